package ingestion_engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"code.sajari.com/docconv"
	"github.com/markdave123-py/pawls/internal/core"
)

var _ core.TextExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor reads full text and info metadata with docconv.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

// ExtractText converts the file at path. docconv shells out for PDFs, so a
// missing pdftotext shows up here as an error.
func (e *DocconvExtractor) ExtractText(ctx context.Context, path string, contentType string) (*core.ExtractedText, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res, err := docconv.Convert(f, contentType, e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &core.ExtractedText{
		Text:     strings.TrimSpace(res.Body),
		Metadata: res.Meta,
	}, nil
}
