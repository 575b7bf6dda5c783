package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/pawls/internal/core"
	"github.com/markdave123-py/pawls/internal/core/document"
)

var _ core.Parser = (*LocalParser)(nil)

// LocalParser builds the structured document in-process: pdfcpu validates
// and measures the pages, ledongthuc/pdf decodes the glyphs through the page
// fonts, and a TextExtractor supplies the full text.
type LocalParser struct {
	conf   *model.Configuration
	text   core.TextExtractor
	logger *slog.Logger
}

func NewLocalParser(text core.TextExtractor, logger *slog.Logger) *LocalParser {
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &LocalParser{conf: conf, text: text, logger: logger}
}

func (p *LocalParser) Name() string { return "pdfcpu" }

// Parse runs layout and text extraction concurrently. Only a layout failure
// fails the parse; without text the symbols are rebuilt from the tokens.
func (p *LocalParser) Parse(ctx context.Context, pdfPath string) (*document.Document, error) {
	logCtx := p.logger.With("path", pdfPath, "parser", p.Name())

	var (
		doc       *document.Document
		extracted *core.ExtractedText
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doc, err = p.layout(gctx, pdfPath)
		return err
	})
	if p.text != nil {
		g.Go(func() error {
			res, err := p.text.ExtractText(gctx, pdfPath, "application/pdf")
			if err != nil {
				logCtx.Warn("text extraction failed, falling back to token text", "error", err)
				return nil
			}
			extracted = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	doc.Metadata.Parser = p.Name()
	doc.Metadata.PageCount = len(doc.Pages)
	if extracted != nil && extracted.Text != "" {
		doc.Symbols = extracted.Text
	} else {
		doc.Symbols = doc.PageText()
	}
	if extracted != nil {
		for k, v := range extracted.Metadata {
			if strings.EqualFold(k, "title") && strings.TrimSpace(v) != "" {
				doc.Metadata.Title = strings.TrimSpace(v)
				continue
			}
			if doc.Metadata.Extra == nil {
				doc.Metadata.Extra = make(map[string]string)
			}
			doc.Metadata.Extra[k] = v
		}
	}

	logCtx.Debug("parsed pdf", "pages", len(doc.Pages), "tokens", len(doc.Tokens))
	return doc, nil
}

func (p *LocalParser) layout(ctx context.Context, pdfPath string) (*document.Document, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfCtx, err := api.ReadContext(f, p.conf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, fmt.Errorf("validate pdf: %w", err)
	}

	dims, err := pdfCtx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("page dimensions: %w", err)
	}

	doc := &document.Document{
		Pages:  make([]document.Page, 0, pdfCtx.PageCount),
		Tokens: []document.Token{},
	}
	for i := 0; i < pdfCtx.PageCount; i++ {
		page := document.Page{Index: i}
		if i < len(dims) {
			page.Width, page.Height = dims[i].Width, dims[i].Height
		}
		doc.Pages = append(doc.Pages, page)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	text, err := pdf.NewReader(f, info.Size())
	if err != nil {
		// Pages without tokens still take free-form boxes.
		p.logger.Warn("pdf text layer unreadable, no tokens", "path", pdfPath, "error", err)
		return doc, nil
	}

	for i, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		words, err := PageWords(text, i+1, page.Height)
		if err != nil {
			p.logger.Warn("page content partly unreadable", "path", pdfPath, "page", i, "error", err)
		}
		for j, w := range words {
			doc.Tokens = append(doc.Tokens, document.Token{
				PageIndex:  i,
				TokenIndex: j,
				Text:       w.Text,
				Box:        w.Box,
			})
		}
	}
	return doc, nil
}
