package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/pawls/internal/core"
	"github.com/markdave123-py/pawls/internal/core/document"
)

const (
	sampleDir   = "sample"
	titlesFile  = "pdf_metadata.json"
	statusDir   = "status"
	pdfExt      = ".pdf"
	documentExt = ".json"
	stagePrefix = ".upload-"
)

var _ core.DocumentStore = (*DocumentStore)(nil)

// DocumentStore keeps every document in <root>/<sha>/ as <sha>.pdf and <sha>.json.
type DocumentStore struct {
	root  string
	locks *KeyedMutex
}

func NewDocumentStore(root string) *DocumentStore {
	return &DocumentStore{root: root, locks: NewKeyedMutex()}
}

func (s *DocumentStore) Root() string { return s.root }

func (s *DocumentStore) dir(sha string) (string, error) {
	if err := ValidateKey(sha); err != nil {
		return "", err
	}
	return filepath.Join(s.root, sha), nil
}

func (s *DocumentStore) PDFPath(sha string) (string, error) {
	dir, err := s.dir(sha)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sha+pdfExt), nil
}

func (s *DocumentStore) documentPath(sha string) (string, error) {
	dir, err := s.dir(sha)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sha+documentExt), nil
}

// CreateDir makes the document directory and reports whether it was new.
func (s *DocumentStore) CreateDir(sha string) (bool, error) {
	dir, err := s.dir(sha)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dir); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create %s: %w", dir, err)
	}
	return true, nil
}

func (s *DocumentStore) RemoveDir(sha string) error {
	dir, err := s.dir(sha)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// StagePDF writes r to <root>/<sha>/.upload-<uuid>/<sha>.pdf and returns its
// size and SHA-256. The stored pair is untouched until CommitPDF.
func (s *DocumentStore) StagePDF(sha string, r io.Reader) (*core.StagedPDF, error) {
	dir, err := s.dir(sha)
	if err != nil {
		return nil, err
	}
	stage := filepath.Join(dir, stagePrefix+uuid.NewString())
	if err := os.Mkdir(stage, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", notExist(err))
	}

	h := sha256.New()
	path := filepath.Join(stage, sha+pdfExt)
	n, err := writeFileAtomic(path, io.TeeReader(r, h))
	if err != nil {
		_ = os.RemoveAll(stage)
		return nil, err
	}
	return &core.StagedPDF{Path: path, Size: n, ContentSHA256: hex.EncodeToString(h.Sum(nil))}, nil
}

// CommitPDF replaces the stored PDF and document with the staged upload and
// doc. Both new files are complete on disk before either is renamed.
func (s *DocumentStore) CommitPDF(sha string, staged *core.StagedPDF, doc *document.Document) error {
	pdfPath, err := s.PDFPath(sha)
	if err != nil {
		return err
	}
	docPath, err := s.documentPath(sha)
	if err != nil {
		return err
	}
	stage, err := s.stageDir(sha, staged)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(sha)
	defer unlock()
	defer os.RemoveAll(stage)

	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}
	stagedDoc := filepath.Join(stage, sha+documentExt)
	if _, err := writeFileAtomic(stagedDoc, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := os.Rename(staged.Path, pdfPath); err != nil {
		return fmt.Errorf("commit pdf: %w", err)
	}
	if err := os.Rename(stagedDoc, docPath); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

// DiscardPDF drops a staged upload. Discarding twice is not an error.
func (s *DocumentStore) DiscardPDF(staged *core.StagedPDF) error {
	sha := strings.TrimSuffix(filepath.Base(staged.Path), pdfExt)
	stage, err := s.stageDir(sha, staged)
	if err != nil {
		return err
	}
	return os.RemoveAll(stage)
}

// stageDir checks that staged was made by StagePDF for sha.
func (s *DocumentStore) stageDir(sha string, staged *core.StagedPDF) (string, error) {
	dir, err := s.dir(sha)
	if err != nil {
		return "", err
	}
	stage := filepath.Dir(staged.Path)
	if filepath.Dir(stage) != dir || !strings.HasPrefix(filepath.Base(stage), stagePrefix) ||
		filepath.Base(staged.Path) != sha+pdfExt {
		return "", fmt.Errorf("%w: %s is not staged for %s", ErrInvalidKey, staged.Path, sha)
	}
	return stage, nil
}

func (s *DocumentStore) OpenPDF(sha string) (*os.File, error) {
	path, err := s.PDFPath(sha)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, notExist(err)
	}
	return f, nil
}

func (s *DocumentStore) LoadDocument(sha string) (*document.Document, error) {
	path, err := s.documentPath(sha)
	if err != nil {
		return nil, err
	}
	return loadDocument(path)
}

func (s *DocumentStore) SaveDocument(sha string, doc *document.Document) error {
	path, err := s.documentPath(sha)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(sha)
	defer unlock()
	return saveDocument(path, doc)
}

// UpdateDocument loads, mutates and stores a document while holding its lock.
func (s *DocumentStore) UpdateDocument(sha string, fn func(doc *document.Document) error) error {
	path, err := s.documentPath(sha)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(sha)
	defer unlock()

	doc, err := loadDocument(path)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return saveDocument(path, doc)
}

// ListIdentifiers returns the distinct names of directories holding a PDF.
func (s *DocumentStore) ListIdentifiers() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*", "*"+pdfExt))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(matches))
	shas := make([]string, 0, len(matches))
	for _, m := range matches {
		sha := filepath.Base(filepath.Dir(m))
		if seen[sha] {
			continue
		}
		seen[sha] = true
		shas = append(shas, sha)
	}
	sort.Strings(shas)
	return shas, nil
}

// LoadSample reads the shared sample document carrying labels and relations.
func (s *DocumentStore) LoadSample() (*document.Document, error) {
	return loadDocument(filepath.Join(s.root, sampleDir, sampleDir+documentExt))
}

// LoadTitles reads pdf_metadata.json.
func (s *DocumentStore) LoadTitles() (map[string]core.TitleInfo, error) {
	data, err := os.ReadFile(filepath.Join(s.root, titlesFile))
	if err != nil {
		return nil, notExist(err)
	}
	titles := make(map[string]core.TitleInfo)
	if err := json.Unmarshal(data, &titles); err != nil {
		return nil, fmt.Errorf("decode %s: %w", titlesFile, err)
	}
	return titles, nil
}

func loadDocument(path string) (*document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, notExist(err)
	}
	defer f.Close()

	doc, err := document.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func saveDocument(path string, doc *document.Document) error {
	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}
	if _, err := writeFileAtomic(path, bytes.NewReader(data)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notExist(err)
		}
		return err
	}
	return nil
}
