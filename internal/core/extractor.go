package core

import (
	"context"
)

// ExtractedText represents the result of text extraction, potentially with metadata.
type ExtractedText struct {
	Text     string
	Metadata map[string]string
}

// TextExtractor pulls the plain text and document info out of a stored file.
// The contentType hint helps the extractor choose the right parsing strategy.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string, contentType string) (*ExtractedText, error)
}
