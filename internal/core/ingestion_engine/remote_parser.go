package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/markdave123-py/pawls/internal/core"
	"github.com/markdave123-py/pawls/internal/core/document"
)

var _ core.Parser = (*RemoteParser)(nil)

// RemoteParser posts the PDF to a layout service that answers with the
// structured document JSON.
type RemoteParser struct {
	url    string
	client *http.Client
}

func NewRemoteParser(url string, timeout time.Duration) *RemoteParser {
	return &RemoteParser{url: url, client: &http.Client{Timeout: timeout}}
}

func (p *RemoteParser) Name() string { return "remote" }

func (p *RemoteParser) Parse(ctx context.Context, pdfPath string) (*document.Document, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(pdfPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("layout service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("layout service returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	doc, err := document.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("layout service: %w", err)
	}
	if doc.Tokens == nil {
		doc.Tokens = []document.Token{}
	}
	doc.Metadata.Parser = p.Name()
	doc.Metadata.PageCount = len(doc.Pages)
	return doc, nil
}
