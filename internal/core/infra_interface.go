package core

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/markdave123-py/pawls/internal/core/document"
)

// DocumentStore defines the per-document persistence the services need.
// It abstracts the directory-per-document layout so higher layers never build paths.
type DocumentStore interface {
	CreateDir(sha string) (created bool, err error)
	RemoveDir(sha string) error
	// StagePDF writes an upload beside the stored PDF without replacing it.
	StagePDF(sha string, r io.Reader) (*StagedPDF, error)
	// CommitPDF moves a staged upload into place together with its document.
	CommitPDF(sha string, staged *StagedPDF, doc *document.Document) error
	DiscardPDF(staged *StagedPDF) error
	PDFPath(sha string) (string, error)
	OpenPDF(sha string) (*os.File, error)

	LoadDocument(sha string) (*document.Document, error)
	SaveDocument(sha string, doc *document.Document) error
	UpdateDocument(sha string, fn func(doc *document.Document) error) error

	ListIdentifiers() ([]string, error)
	LoadSample() (*document.Document, error)
	LoadTitles() (map[string]TitleInfo, error)
}

// StagedPDF is an upload written to disk but not yet the document's PDF.
type StagedPDF struct {
	Path          string
	Size          int64
	ContentSHA256 string
}

// TitleInfo is one entry of the shared pdf_metadata.json file.
type TitleInfo struct {
	Title *string `json:"title"`
}

// StatusEntry is one document entry of a user's status record, kept raw so
// fields this service does not know about survive a rewrite.
type StatusEntry struct {
	Sha string
	Raw json.RawMessage
}

// StatusStore defines access to per-user status records.
type StatusStore interface {
	Exists(user string) (bool, error)
	Load(user string) ([]StatusEntry, error)
	// SetField overwrites one field of one entry. It reports false, and
	// writes nothing, when the user has no record.
	SetField(user, sha, field string, value any) (bool, error)
	// Append adds entries whose sha is not present yet, creating the record
	// if needed, and returns how many were added.
	Append(user string, entries []StatusEntry) (int, error)
}

// Parser turns a stored PDF into its structured document.
type Parser interface {
	Name() string
	Parse(ctx context.Context, pdfPath string) (*document.Document, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
