package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/markdave123-py/pawls/internal/core"
	"github.com/markdave123-py/pawls/internal/core/document"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildPDF assembles a one page PDF with a Helvetica font around the given
// content stream.
func buildPDF(content string) []byte {
	return assemblePDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		streamObj("", content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
}

func streamObj(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

// assemblePDF numbers objs from 1 and writes them with a correct xref table.
// The first object must be the catalog.
func assemblePDF(objs ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func writePDF(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paper.pdf")
	if err := os.WriteFile(path, buildPDF(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type fakeExtractor struct {
	text *core.ExtractedText
	err  error
}

func (f *fakeExtractor) ExtractText(ctx context.Context, path, contentType string) (*core.ExtractedText, error) {
	return f.text, f.err
}

func TestLocalParser(t *testing.T) {
	path := writePDF(t, "BT /F1 12 Tf 72 700 Td (Hello World) Tj ET")

	t.Run("layout and text", func(t *testing.T) {
		p := NewLocalParser(&fakeExtractor{text: &core.ExtractedText{
			Text:     "Hello World",
			Metadata: map[string]string{"Title": "A Greeting", "Author": "Someone"},
		}}, discardLogger())

		doc, err := p.Parse(context.Background(), path)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if diff := cmp.Diff([]document.Page{{Index: 0, Width: 612, Height: 792}}, doc.Pages); diff != "" {
			t.Errorf("pages mismatch (-want +got):\n%s", diff)
		}
		var texts []string
		for i, tok := range doc.Tokens {
			texts = append(texts, tok.Text)
			if tok.PageIndex != 0 || tok.TokenIndex != i {
				t.Errorf("token %d indexed as page %d token %d", i, tok.PageIndex, tok.TokenIndex)
			}
		}
		if diff := cmp.Diff([]string{"Hello", "World"}, texts); diff != "" {
			t.Errorf("tokens mismatch (-want +got):\n%s", diff)
		}
		if doc.Symbols != "Hello World" {
			t.Errorf("Symbols = %q", doc.Symbols)
		}
		if doc.Metadata.Title != "A Greeting" || doc.Metadata.Extra["Author"] != "Someone" {
			t.Errorf("metadata = %+v", doc.Metadata)
		}
		if doc.Metadata.Parser != "pdfcpu" || doc.Metadata.PageCount != 1 {
			t.Errorf("parser metadata = %+v", doc.Metadata)
		}
	})

	t.Run("text failure falls back to tokens", func(t *testing.T) {
		p := NewLocalParser(&fakeExtractor{err: errors.New("pdftotext not installed")}, discardLogger())
		doc, err := p.Parse(context.Background(), path)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if doc.Symbols != "Hello World" {
			t.Errorf("Symbols = %q, want token text", doc.Symbols)
		}
	})

	t.Run("not a pdf", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.pdf")
		if err := os.WriteFile(bad, []byte("definitely not a pdf"), 0o644); err != nil {
			t.Fatal(err)
		}
		p := NewLocalParser(nil, discardLogger())
		if _, err := p.Parse(context.Background(), bad); err == nil {
			t.Fatal("expected a parse error")
		}
	})
}

func TestRemoteParser(t *testing.T) {
	path := writePDF(t, "BT ET")

	t.Run("posts the file and decodes the answer", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "multipart/form-data" {
				http.Error(w, "want multipart", http.StatusBadRequest)
				return
			}
			part, err := multipart.NewReader(r.Body, params["boundary"]).NextPart()
			if err != nil || part.FormName() != "file" || part.FileName() != "paper.pdf" {
				http.Error(w, "want a file part", http.StatusBadRequest)
				return
			}
			body, _ := io.ReadAll(part)
			if !bytes.HasPrefix(body, []byte("%PDF-1.4")) {
				http.Error(w, "not a pdf", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"symbols":"x","metadata":{"title":"Remote"},"pages":[{"index":0,"width":600,"height":800}],
				"tokens":[{"page_index":0,"token_index":0,"text":"x","box":{"left":1,"top":2,"right":3,"bottom":4}}]}`)
		}))
		defer srv.Close()

		doc, err := NewRemoteParser(srv.URL, 5*time.Second).Parse(context.Background(), path)
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if doc.Metadata.Title != "Remote" || doc.Metadata.Parser != "remote" || doc.Metadata.PageCount != 1 {
			t.Errorf("metadata = %+v", doc.Metadata)
		}
		if len(doc.Tokens) != 1 || doc.Tokens[0].Box.Right != 3 {
			t.Errorf("tokens = %+v", doc.Tokens)
		}
	})

	t.Run("service error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewRemoteParser(srv.URL, 5*time.Second).Parse(context.Background(), path)
		if err == nil || !strings.Contains(err.Error(), "model not loaded") {
			t.Fatalf("err = %v, want the service message", err)
		}
	})
}
