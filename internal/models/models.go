package models

import (
	"bytes"
	"fmt"
	"time"
)

// Label is the semantic category of an annotation.
type Label struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Bounds is an axis-aligned rectangle in page coordinates (origin top-left).
type Bounds struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// TokenID references a token by page and position within the page.
type TokenID struct {
	PageIndex  int `json:"pageIndex"`
	TokenIndex int `json:"tokenIndex"`
}

// Token is the wire projection of a parsed token.
type Token struct {
	PageIndex  int    `json:"pageIndex"`
	TokenIndex int    `json:"tokenIndex"`
	Text       string `json:"text"`
	Bounds     Bounds `json:"bounds"`
}

type Annotation struct {
	ID     string    `json:"id"`
	Page   int       `json:"page"`
	Label  Label     `json:"label"`
	Bounds Bounds    `json:"bounds"`
	Tokens []TokenID `json:"tokens"`
}

// RelationGroup links annotations under a relation label.
type RelationGroup struct {
	SourceIDs []string `json:"sourceIds"`
	TargetIDs []string `json:"targetIds"`
	Label     Label    `json:"label"`
}

// PaperStatus is one entry of a user's status record.
type PaperStatus struct {
	Sha         string     `json:"sha"`
	Name        string     `json:"name"`
	Annotations int        `json:"annotations"`
	Relations   int        `json:"relations"`
	Finished    bool       `json:"finished"`
	Junk        bool       `json:"junk"`
	Comments    string     `json:"comments"`
	CompletedAt *Timestamp `json:"completedAt"`
}

// EmptyPaperStatus is the status of a paper nobody has touched yet.
func EmptyPaperStatus(sha, name string) PaperStatus {
	return PaperStatus{Sha: sha, Name: name}
}

type Allocation struct {
	Papers             []PaperStatus `json:"papers"`
	HasAllocatedPapers bool          `json:"hasAllocatedPapers"`
}

// UploadResult is returned by the upload endpoint. The client reads sha to
// navigate to the new document.
type UploadResult struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Sha      string `json:"sha"`
}

// Timestamp reads RFC 3339 as well as the zone-less ISO form found in older
// status records, and always writes RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("timestamp: expected a string, got %s", b)
	}
	s := string(b[1 : len(b)-1])
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: cannot parse %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Time.Format(time.RFC3339Nano) + `"`), nil
}
