package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/markdave123-py/pawls/internal/core"
	"github.com/markdave123-py/pawls/internal/core/document"
	"github.com/markdave123-py/pawls/internal/core/store"
	"github.com/markdave123-py/pawls/internal/models"
)

// Archive is an optional second home for original PDFs.
type Archive interface {
	Put(ctx context.Context, sha string, r io.Reader) (string, error)
	Open(ctx context.Context, sha string) (io.ReadCloser, error)
}

type DocumentService struct {
	docs    core.DocumentStore
	parser  core.Parser
	archive Archive
	logger  *slog.Logger
}

// NewDocumentService wires the service. archive may be nil.
func NewDocumentService(docs core.DocumentStore, parser core.Parser, archive Archive, logger *slog.Logger) *DocumentService {
	return &DocumentService{docs: docs, parser: parser, archive: archive, logger: logger}
}

// IdentifierFromFilename takes the part of the base name before the first dot.
func IdentifierFromFilename(filename string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	sha, _, _ := strings.Cut(base, ".")
	if err := store.ValidateKey(sha); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, filename)
	}
	return sha, nil
}

// Ingest stores the upload, parses it and stores the structured document.
// Failures past identifier validation are logged and reported as
// ErrProcessingFailed only.
func (s *DocumentService) Ingest(ctx context.Context, filename string, r io.Reader) (*models.UploadResult, error) {
	sha, err := IdentifierFromFilename(filename)
	if err != nil {
		return nil, err
	}
	logCtx := s.logger.With("sha", sha, "filename", filename)

	created, err := s.docs.CreateDir(sha)
	if err != nil {
		logCtx.Error("Error processing PDF", "stage", "create directory", "error", err)
		return nil, ErrProcessingFailed
	}
	fail := func(stage string, err error) (*models.UploadResult, error) {
		logCtx.Error("Error processing PDF", "stage", stage, "error", err)
		if created {
			if rmErr := s.docs.RemoveDir(sha); rmErr != nil {
				logCtx.Warn("cleanup failed", "error", rmErr)
			}
		}
		return nil, ErrProcessingFailed
	}

	// The stored pair only changes on commit.
	staged, err := s.docs.StagePDF(sha, r)
	if err != nil {
		return fail("store pdf", err)
	}
	defer func() {
		if err := s.docs.DiscardPDF(staged); err != nil {
			logCtx.Warn("staged upload not removed", "error", err)
		}
	}()

	doc, err := s.parser.Parse(ctx, staged.Path)
	if err != nil {
		return fail("parse", err)
	}
	doc.Metadata.Sha = sha
	doc.Metadata.Filename = filename
	doc.Metadata.ContentSHA256 = staged.ContentSHA256
	if doc.Metadata.PageCount == 0 {
		doc.Metadata.PageCount = len(doc.Pages)
	}

	if err := s.docs.CommitPDF(sha, staged, doc); err != nil {
		return fail("store document", err)
	}

	logCtx.Info("document ingested", "bytes", staged.Size, "pages", len(doc.Pages), "tokens", len(doc.Tokens), "parser", s.parser.Name())
	s.archiveOriginal(ctx, sha, logCtx)

	return &models.UploadResult{Filename: filename, Status: "success", Sha: sha}, nil
}

func (s *DocumentService) archiveOriginal(ctx context.Context, sha string, logCtx *slog.Logger) {
	if s.archive == nil {
		return
	}
	f, err := s.docs.OpenPDF(sha)
	if err != nil {
		logCtx.Warn("archive skipped", "error", err)
		return
	}
	defer f.Close()

	url, err := s.archive.Put(ctx, sha, f)
	if err != nil {
		logCtx.Warn("archive upload failed", "error", err)
		return
	}
	logCtx.Debug("archived original", "url", url)
}

// Original is a stored PDF ready to be served.
type Original struct {
	Name    string
	ModTime time.Time
	Content io.ReadSeeker
	closer  io.Closer
}

func (o *Original) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// FetchOriginal opens the stored PDF, falling back to the archive when the
// local copy is gone.
func (s *DocumentService) FetchOriginal(ctx context.Context, sha string) (*Original, error) {
	f, err := s.docs.OpenPDF(sha)
	if err == nil {
		orig := &Original{Name: sha + ".pdf", Content: f, closer: f}
		if info, statErr := f.Stat(); statErr == nil {
			orig.ModTime = info.ModTime()
		}
		return orig, nil
	}

	switch {
	case errors.Is(err, store.ErrInvalidKey):
		return nil, fmt.Errorf("%w: pdf %s", ErrNotFound, sha)
	case !errors.Is(err, store.ErrNotExist):
		return nil, err
	case s.archive == nil:
		return nil, fmt.Errorf("%w: pdf %s", ErrNotFound, sha)
	}

	rc, err := s.archive.Open(ctx, sha)
	if err != nil {
		s.logger.Debug("pdf missing from archive", "sha", sha, "error", err)
		return nil, fmt.Errorf("%w: pdf %s", ErrNotFound, sha)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read archived pdf %s: %w", sha, err)
	}
	return &Original{Name: sha + ".pdf", Content: bytes.NewReader(data)}, nil
}

// FetchTitle looks the requested sha up in pdf_metadata.json, then in the
// document's own metadata. It returns nil when neither knows a title.
func (s *DocumentService) FetchTitle(sha string) *string {
	return lookupTitle(s.docs, s.logger, sha)
}

func lookupTitle(docs core.DocumentStore, logger *slog.Logger, sha string) *string {
	titles, err := docs.LoadTitles()
	switch {
	case err == nil:
		if info, ok := titles[sha]; ok && info.Title != nil {
			return info.Title
		}
	case errors.Is(err, store.ErrNotExist):
	default:
		logger.Warn("cannot read pdf metadata", "error", err)
	}

	doc, err := docs.LoadDocument(sha)
	if err != nil || doc.Metadata.Title == "" {
		return nil
	}
	title := doc.Metadata.Title
	return &title
}

func (s *DocumentService) FetchTokens(sha string) ([]models.Token, error) {
	doc, err := loadDocument(s.docs, sha)
	if err != nil {
		return nil, err
	}
	tokens := make([]models.Token, 0, len(doc.Tokens))
	for _, t := range doc.Tokens {
		tokens = append(tokens, models.Token{
			PageIndex:  t.PageIndex,
			TokenIndex: t.TokenIndex,
			Text:       t.Text,
			Bounds:     toBounds(t.Box),
		})
	}
	return tokens, nil
}

// loadDocument maps store misses to ErrNotFound.
func loadDocument(docs core.DocumentStore, sha string) (*document.Document, error) {
	doc, err := docs.LoadDocument(sha)
	if errors.Is(err, store.ErrNotExist) || errors.Is(err, store.ErrInvalidKey) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, sha)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func toBounds(b document.Box) models.Bounds {
	return models.Bounds{Left: b.Left, Top: b.Top, Right: b.Right, Bottom: b.Bottom}
}

func toBox(b models.Bounds) document.Box {
	return document.Box{Left: b.Left, Top: b.Top, Right: b.Right, Bottom: b.Bottom}
}
