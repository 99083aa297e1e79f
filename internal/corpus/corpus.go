// Package corpus holds the searchable passages of each content set and the
// stores that serve them.
package corpus

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
)

// Passage is one searchable unit of a document. ID is unique only within
// its content set.
type Passage struct {
	ID         string    `json:"id"`
	ContentSet string    `json:"content_set"`
	Title      string    `json:"title"`
	Keywords   []string  `json:"keywords"`
	Body       string    `json:"body,omitempty"`
	Location   *Location `json:"location,omitempty"`
	ParentID   string    `json:"parent_id,omitempty"`
}

// Location is passed through to collaborators; scoring never reads it.
type Location struct {
	Page    *int            `json:"page,omitempty"`
	PageEnd *int            `json:"page_end,omitempty"`
	BBox    json.RawMessage `json:"bbox,omitempty"`
}

// ContentSet is an immutable snapshot of one document's passages.
// Generation changes on every replacement; derived data compares it to
// detect staleness.
type ContentSet struct {
	ID         string
	CodeName   string
	Generation uint64
	Passages   []Passage
}

// Reader serves content sets. Implementations return
// errors.ErrContentSetNotFound for unknown ids.
type Reader interface {
	ContentSet(ctx context.Context, id string) (*ContentSet, error)
}

// NormalizeKeywords lower-cases, trims, drops empties and deduplicates
// keywords, returning them sorted.
func NormalizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizePassages(id string, passages []Passage) []Passage {
	out := make([]Passage, len(passages))
	for i, p := range passages {
		p.ContentSet = id
		p.Keywords = NormalizeKeywords(p.Keywords)
		out[i] = p
	}
	return out
}
