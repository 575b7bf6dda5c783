package services

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/markdave123-py/pawls/internal/core"
	"github.com/markdave123-py/pawls/internal/core/document"
	"github.com/markdave123-py/pawls/internal/core/store"
	"github.com/markdave123-py/pawls/internal/models"
)

type AnnotationService struct {
	docs   core.DocumentStore
	access *AccessControl
	logger *slog.Logger
}

func NewAnnotationService(docs core.DocumentStore, access *AccessControl, logger *slog.Logger) *AnnotationService {
	return &AnnotationService{docs: docs, access: access, logger: logger}
}

// FetchAnnotations returns the annotation layer only. Other layers written
// by the parser stay in storage but are not part of the wire format.
func (s *AnnotationService) FetchAnnotations(sha string) ([]models.Annotation, error) {
	doc, err := loadDocument(s.docs, sha)
	if err != nil {
		return nil, err
	}
	entities := doc.Layer(document.AnnotationLayer)
	out := make([]models.Annotation, 0, len(entities))
	for _, e := range entities {
		out = append(out, toAnnotation(e))
	}
	return out, nil
}

// ReplaceAnnotations swaps the document's whole annotation layer for anns.
// Annotations without an id get one; the stored list is returned.
func (s *AnnotationService) ReplaceAnnotations(sha string, identity *string, anns []models.Annotation) ([]models.Annotation, error) {
	user, err := s.access.ResolveIdentity(identity)
	if err != nil {
		return nil, err
	}

	stored := make([]models.Annotation, 0, len(anns))
	entities := make([]document.Entity, 0, len(anns))
	for _, a := range anns {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		stored = append(stored, a)
		entities = append(entities, toEntity(a))
	}

	err = s.docs.UpdateDocument(sha, func(doc *document.Document) error {
		doc.ReplaceLayer(document.AnnotationLayer, entities)
		return nil
	})
	if errors.Is(err, store.ErrNotExist) || errors.Is(err, store.ErrInvalidKey) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, sha)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("annotations replaced", "sha", sha, "user", user, "count", len(stored))
	return stored, nil
}

// FetchLabels returns the labels of the shared sample document.
func (s *AnnotationService) FetchLabels() ([]models.Label, error) {
	sample, err := s.loadSample()
	if err != nil {
		return nil, err
	}
	if sample.Metadata.Labels == nil {
		return []models.Label{}, nil
	}
	return sample.Metadata.Labels, nil
}

// FetchRelations returns the relation groups of the shared sample document.
func (s *AnnotationService) FetchRelations() ([]models.RelationGroup, error) {
	sample, err := s.loadSample()
	if err != nil {
		return nil, err
	}
	if sample.Metadata.Relations == nil {
		return []models.RelationGroup{}, nil
	}
	return sample.Metadata.Relations, nil
}

func (s *AnnotationService) loadSample() (*document.Document, error) {
	sample, err := s.docs.LoadSample()
	if errors.Is(err, store.ErrNotExist) {
		return nil, fmt.Errorf("%w: sample document", ErrNotFound)
	}
	return sample, err
}

func toEntity(a models.Annotation) document.Entity {
	var spans []document.Span
	if a.Tokens != nil {
		spans = make([]document.Span, 0, len(a.Tokens))
		for _, t := range a.Tokens {
			spans = append(spans, document.Span{PageIndex: t.PageIndex, TokenIndex: t.TokenIndex})
		}
	}
	return document.Entity{
		ID:     a.ID,
		Page:   a.Page,
		Label:  a.Label.Text,
		Color:  a.Label.Color,
		Box:    toBox(a.Bounds),
		Tokens: spans,
	}
}

func toAnnotation(e document.Entity) models.Annotation {
	var tokens []models.TokenID
	if e.Tokens != nil {
		tokens = make([]models.TokenID, 0, len(e.Tokens))
		for _, t := range e.Tokens {
			tokens = append(tokens, models.TokenID{PageIndex: t.PageIndex, TokenIndex: t.TokenIndex})
		}
	}
	return models.Annotation{
		ID:     e.ID,
		Page:   e.Page,
		Label:  models.Label{Text: e.Label, Color: e.Color},
		Bounds: toBounds(e.Box),
		Tokens: tokens,
	}
}
