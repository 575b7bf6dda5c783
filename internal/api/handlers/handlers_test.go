package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	middleware "github.com/markdave123-py/pawls/internal/api/middlewares"
	"github.com/markdave123-py/pawls/internal/config"
	"github.com/markdave123-py/pawls/internal/core/document"
	"github.com/markdave123-py/pawls/internal/core/store"
	"github.com/markdave123-py/pawls/internal/models"
	"github.com/markdave123-py/pawls/internal/services"
)

type stubParser struct{ fail bool }

func (p stubParser) Name() string { return "stub" }

func (p stubParser) Parse(ctx context.Context, pdfPath string) (*document.Document, error) {
	if p.fail {
		return nil, errors.New("unreadable pdf")
	}
	return &document.Document{
		Symbols: "Hi",
		Pages:   []document.Page{{Index: 0, Width: 100, Height: 100}},
		Tokens:  []document.Token{{Text: "Hi", Box: document.Box{Left: 1, Top: 2, Right: 3, Bottom: 4}}},
	}, nil
}

type fixture struct {
	root    string
	handler http.Handler
}

func newFixture(t *testing.T, parser stubParser) *fixture {
	t.Helper()
	root := t.TempDir()
	usersFile := filepath.Join(root, "allowed_users.txt")
	if err := os.WriteFile(usersFile, []byte("alice@example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{OutputDirectory: root, UsersFile: usersFile, MaxUploadBytes: 1 << 20}

	docs := store.NewDocumentStore(root)
	access := services.NewAccessControl(usersFile, logger)
	dh := NewDocumentHandler(services.NewDocumentService(docs, parser, nil, logger), cfg, logger)
	ah := NewAnnotationHandler(services.NewAnnotationService(docs, access, logger), logger)
	alh := NewAllocationHandler(services.NewAllocationService(docs, store.NewStatusStore(root), access, logger), logger)

	r := chi.NewRouter()
	r.Use(middleware.Identity)
	r.Post("/api/upload_pdf", dh.UploadPDF)
	r.Get("/api/doc/{sha}/pdf", dh.GetPDF)
	r.Get("/api/doc/{sha}/title", dh.GetTitle)
	r.Get("/api/doc/{sha}/tokens", dh.GetTokens)
	r.Get("/api/doc/{sha}/annotations", ah.GetAnnotations)
	r.Post("/api/doc/{sha}/annotations", ah.SaveAnnotations)
	r.Post("/api/doc/{sha}/comments", alh.SetComments)
	r.Post("/api/doc/{sha}/junk", alh.SetJunk)
	r.Get("/api/annotation/labels", ah.GetLabels)
	r.Get("/api/annotation/allocation/info", alh.GetAllocation)
	return &fixture{root: root, handler: r}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	mw.Close()
	return f.do(t, http.MethodPost, "/api/upload_pdf", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
}

func TestUploadAndRead(t *testing.T) {
	f := newFixture(t, stubParser{})

	rec := f.upload(t, "abc.pdf", "%PDF-1.4 test")
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body)
	}
	var res models.UploadResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(models.UploadResult{Filename: "abc.pdf", Status: "success", Sha: "abc"}, res); diff != "" {
		t.Errorf("upload result mismatch (-want +got):\n%s", diff)
	}

	rec = f.do(t, http.MethodGet, "/api/doc/abc/pdf", nil, nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" || rec.Body.String() != "%PDF-1.4 test" {
		t.Errorf("pdf = %d %q %q", rec.Code, rec.Header().Get("Content-Type"), rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/doc/abc/pdf", nil, map[string]string{"Range": "bytes=0-3"})
	if rec.Code != http.StatusPartialContent || rec.Body.String() != "%PDF" {
		t.Errorf("ranged pdf = %d %q", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/doc/abc/tokens", nil, nil)
	var tokens []models.Token
	if err := json.NewDecoder(rec.Body).Decode(&tokens); err != nil {
		t.Fatal(err)
	}
	want := []models.Token{{Text: "Hi", Bounds: models.Bounds{Left: 1, Top: 2, Right: 3, Bottom: 4}}}
	if diff := cmp.Diff(want, tokens); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}

	rec = f.do(t, http.MethodGet, "/api/doc/abc/title", nil, nil)
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Errorf("title = %q, want null", rec.Body)
	}
}

func TestUploadFailures(t *testing.T) {
	t.Run("parser failure", func(t *testing.T) {
		f := newFixture(t, stubParser{fail: true})
		rec := f.upload(t, "bad.pdf", "garbage")
		if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Error processing PDF") {
			t.Errorf("status = %d body = %q", rec.Code, rec.Body)
		}
		if strings.Contains(rec.Body.String(), "unreadable") {
			t.Errorf("parser detail leaked: %q", rec.Body)
		}
	})

	t.Run("missing file part", func(t *testing.T) {
		f := newFixture(t, stubParser{})
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("other", "x")
		mw.Close()
		rec := f.do(t, http.MethodPost, "/api/upload_pdf", &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unusable filename", func(t *testing.T) {
		f := newFixture(t, stubParser{})
		if rec := f.upload(t, ".pdf", "%PDF"); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, stubParser{})
	for path, detail := range map[string]string{
		"/api/doc/nope/pdf":         "PDF not found",
		"/api/doc/nope/tokens":      "Tokens not found",
		"/api/doc/nope/annotations": "Annotations not found",
		"/api/annotation/labels":    "Labels not found",
	} {
		rec := f.do(t, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), detail) {
			t.Errorf("GET %s = %d %q, want 404 %q", path, rec.Code, rec.Body, detail)
		}
	}
}

func TestAnnotations(t *testing.T) {
	f := newFixture(t, stubParser{})
	if rec := f.upload(t, "abc.pdf", "%PDF"); rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	body := `[{"id":"a1","page":0,"label":{"text":"Figure","color":"#f00"},"bounds":{"left":1,"top":2,"right":3,"bottom":4},"tokens":null}]`
	alice := map[string]string{"X-Auth-Request-Email": "alice@example.com"}

	rec := f.do(t, http.MethodPost, "/api/doc/abc/annotations", strings.NewReader(body), alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("post status = %d: %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/doc/abc/annotations", nil, nil)
	var got []models.Annotation
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	want := []models.Annotation{{
		ID:     "a1",
		Label:  models.Label{Text: "Figure", Color: "#f00"},
		Bounds: models.Bounds{Left: 1, Top: 2, Right: 3, Bottom: 4},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}

	mallory := map[string]string{"X-Auth-Request-Email": "mallory@example.com"}
	if rec := f.do(t, http.MethodPost, "/api/doc/abc/annotations", strings.NewReader("[]"), mallory); rec.Code != http.StatusForbidden {
		t.Errorf("forbidden post status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/doc/abc/annotations", strings.NewReader("{not json"), alice); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/doc/zzz/annotations", strings.NewReader("[]"), alice); rec.Code != http.StatusNotFound {
		t.Errorf("unknown doc status = %d", rec.Code)
	}
}

func TestAllocation(t *testing.T) {
	f := newFixture(t, stubParser{})
	statusPath := filepath.Join(f.root, "status", "alice@example.com.json")
	if err := os.MkdirAll(filepath.Dir(statusPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(statusPath, []byte(`{"abc":{"sha":"abc","name":"ABC"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	alice := map[string]string{"X-Auth-Request-Email": "alice@example.com"}

	for _, body := range []string{`{"junk": true}`, `true`} {
		rec := f.do(t, http.MethodPost, "/api/doc/abc/junk", strings.NewReader(body), alice)
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
			t.Fatalf("junk %s = %d %q", body, rec.Code, rec.Body)
		}
	}
	if rec := f.do(t, http.MethodPost, "/api/doc/abc/comments", strings.NewReader(`"looks fine"`), alice); rec.Code != http.StatusOK {
		t.Fatalf("comments status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/doc/abc/junk", strings.NewReader(`{"junk": "yes"}`), alice); rec.Code != http.StatusBadRequest {
		t.Errorf("bad junk status = %d", rec.Code)
	}
	for _, tc := range []struct{ path, body string }{
		{"/api/doc/abc/junk", `null`},
		{"/api/doc/abc/junk", `{"junk": null}`},
		{"/api/doc/abc/comments", ` null `},
		{"/api/doc/abc/comments", `{"comments": null}`},
	} {
		if rec := f.do(t, http.MethodPost, tc.path, strings.NewReader(tc.body), alice); rec.Code != http.StatusBadRequest {
			t.Errorf("%s with %s = %d, want 400", tc.path, tc.body, rec.Code)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/annotation/allocation/info", nil, alice)
	var alloc models.Allocation
	if err := json.NewDecoder(rec.Body).Decode(&alloc); err != nil {
		t.Fatal(err)
	}
	want := models.Allocation{
		Papers:             []models.PaperStatus{{Sha: "abc", Name: "ABC", Junk: true, Comments: "looks fine"}},
		HasAllocatedPapers: true,
	}
	if diff := cmp.Diff(want, alloc); diff != "" {
		t.Errorf("allocation mismatch (-want +got):\n%s", diff)
	}

	mallory := map[string]string{"X-Auth-Request-Email": "mallory@example.com"}
	if rec := f.do(t, http.MethodGet, "/api/annotation/allocation/info", nil, mallory); rec.Code != http.StatusForbidden {
		t.Errorf("forbidden allocation status = %d", rec.Code)
	}
}

func TestWriteJSONLogsThroughGivenLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	rec := httptest.NewRecorder()
	writeJSON(rec, logger, http.StatusOK, map[string]any{"bad": make(chan int)})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(logs.String(), "encode response") {
		t.Errorf("encode failure not logged, got %q", logs.String())
	}
}
