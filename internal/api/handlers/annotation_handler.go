package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/pawls/internal/api/middlewares"
	"github.com/markdave123-py/pawls/internal/models"
	"github.com/markdave123-py/pawls/internal/services"
)

type AnnotationService interface {
	FetchAnnotations(sha string) ([]models.Annotation, error)
	ReplaceAnnotations(sha string, identity *string, anns []models.Annotation) ([]models.Annotation, error)
	FetchLabels() ([]models.Label, error)
	FetchRelations() ([]models.RelationGroup, error)
}

type AnnotationHandler struct {
	annotations AnnotationService
	logger      *slog.Logger
}

func NewAnnotationHandler(annotations AnnotationService, logger *slog.Logger) *AnnotationHandler {
	return &AnnotationHandler{annotations: annotations, logger: logger}
}

func (h *AnnotationHandler) GetAnnotations(w http.ResponseWriter, r *http.Request) {
	anns, err := h.annotations.FetchAnnotations(chi.URLParam(r, "sha"))
	if err != nil {
		writeError(w, h.logger, err, "Annotations not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, anns)
}

func (h *AnnotationHandler) SaveAnnotations(w http.ResponseWriter, r *http.Request) {
	var anns []models.Annotation
	if err := json.NewDecoder(r.Body).Decode(&anns); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: annotations: %v", services.ErrInvalidRequest, err), "")
		return
	}

	stored, err := h.annotations.ReplaceAnnotations(chi.URLParam(r, "sha"), middleware.IdentityFrom(r.Context()), anns)
	if err != nil {
		writeError(w, h.logger, err, "Document not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stored)
}

func (h *AnnotationHandler) GetLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.annotations.FetchLabels()
	if err != nil {
		writeError(w, h.logger, err, "Labels not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, labels)
}

func (h *AnnotationHandler) GetRelations(w http.ResponseWriter, r *http.Request) {
	relations, err := h.annotations.FetchRelations()
	if err != nil {
		writeError(w, h.logger, err, "Relations not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, relations)
}
