// Package document holds the structured representation of a parsed PDF as it
// is persisted next to the original file.
package document

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/markdave123-py/pawls/internal/models"
)

// AnnotationLayer is the layer replaced by annotation posts.
const AnnotationLayer = "annotations"

type Document struct {
	Symbols  string              `json:"symbols"`
	Metadata Metadata            `json:"metadata"`
	Pages    []Page              `json:"pages"`
	Tokens   []Token             `json:"tokens"`
	Layers   map[string][]Entity `json:"layers,omitempty"`
}

type Metadata struct {
	Sha           string                 `json:"sha,omitempty"`
	Filename      string                 `json:"filename,omitempty"`
	Title         string                 `json:"title,omitempty"`
	ContentSHA256 string                 `json:"content_sha256,omitempty"`
	Parser        string                 `json:"parser,omitempty"`
	PageCount     int                    `json:"page_count,omitempty"`
	Labels        []models.Label         `json:"labels,omitempty"`
	Relations     []models.RelationGroup `json:"relations,omitempty"`
	Extra         map[string]string      `json:"extra,omitempty"`
}

type Page struct {
	Index  int     `json:"index"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

type Token struct {
	PageIndex  int    `json:"page_index"`
	TokenIndex int    `json:"token_index"`
	Text       string `json:"text"`
	Box        Box    `json:"box"`
}

// Span points at a token of the document.
type Span struct {
	PageIndex  int `json:"page_index"`
	TokenIndex int `json:"token_index"`
}

// Entity is one member of an annotation layer.
type Entity struct {
	ID     string `json:"id"`
	Page   int    `json:"page"`
	Label  string `json:"label"`
	Color  string `json:"color,omitempty"`
	Box    Box    `json:"box"`
	Tokens []Span `json:"tokens"`
}

// Decode reads and validates a structured document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Marshal encodes the document for storage.
func Marshal(doc *Document) ([]byte, error) {
	return json.Marshal(doc)
}

// Validate checks the references a parser is trusted to get right.
func (d *Document) Validate() error {
	for i, p := range d.Pages {
		if p.Index != i {
			return fmt.Errorf("page %d has index %d", i, p.Index)
		}
	}
	for i, t := range d.Tokens {
		if t.PageIndex < 0 || (len(d.Pages) > 0 && t.PageIndex >= len(d.Pages)) {
			return fmt.Errorf("token %d: page index %d out of range", i, t.PageIndex)
		}
		if t.TokenIndex < 0 {
			return fmt.Errorf("token %d: negative token index", i)
		}
	}
	return nil
}

// ReplaceLayer installs entities as the whole named layer.
func (d *Document) ReplaceLayer(name string, entities []Entity) {
	if d.Layers == nil {
		d.Layers = make(map[string][]Entity)
	}
	if entities == nil {
		entities = []Entity{}
	}
	d.Layers[name] = entities
}

// Layer returns the entities of the named layer, empty when it is absent.
func (d *Document) Layer(name string) []Entity {
	return append([]Entity{}, d.Layers[name]...)
}

// PageText joins the token texts of every page, one line per page.
func (d *Document) PageText() string {
	var buf []byte
	page := -1
	for _, t := range d.Tokens {
		switch {
		case page == -1:
		case t.PageIndex != page:
			buf = append(buf, '\n')
		default:
			buf = append(buf, ' ')
		}
		page = t.PageIndex
		buf = append(buf, t.Text...)
	}
	return string(buf)
}
