package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/pawls/internal/config"
	"github.com/markdave123-py/pawls/internal/models"
	"github.com/markdave123-py/pawls/internal/services"
)

type DocumentService interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (*models.UploadResult, error)
	FetchOriginal(ctx context.Context, sha string) (*services.Original, error)
	FetchTitle(sha string) *string
	FetchTokens(sha string) ([]models.Token, error)
}

type DocumentHandler struct {
	docs   DocumentService
	cfg    *config.Config
	logger *slog.Logger
}

func NewDocumentHandler(docs DocumentService, cfg *config.Config, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, cfg: cfg, logger: logger}
}

// UploadPDF stores the multipart "file" part and parses it synchronously.
func (h *DocumentHandler) UploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, h.logger, http.StatusRequestEntityTooLarge, errorBody{Detail: "file too large"})
			return
		}
		writeError(w, h.logger, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err), "")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: missing file part", services.ErrInvalidRequest), "")
		return
	}
	defer file.Close()

	res, err := h.docs.Ingest(r.Context(), header.Filename, file)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, res)
}

func (h *DocumentHandler) GetPDF(w http.ResponseWriter, r *http.Request) {
	sha := chi.URLParam(r, "sha")
	orig, err := h.docs.FetchOriginal(r.Context(), sha)
	if err != nil {
		writeError(w, h.logger, err, "PDF not found")
		return
	}
	defer orig.Close()

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeContent(w, r, orig.Name, orig.ModTime, orig.Content)
}

func (h *DocumentHandler) GetTitle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, h.docs.FetchTitle(chi.URLParam(r, "sha")))
}

func (h *DocumentHandler) GetTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.docs.FetchTokens(chi.URLParam(r, "sha"))
	if err != nil {
		writeError(w, h.logger, err, "Tokens not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, tokens)
}
