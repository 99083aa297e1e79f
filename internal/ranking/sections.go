package ranking

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
)

// Passage id match scores. A section reference outranks the raw query
// text, and an id ending in the reference outranks one merely containing
// it: reference "9.10.1" ends id "9.10.1" but is only contained in
// "9.10.1.3".
const (
	sectionSuffixScore   = 1.0
	sectionContainsScore = 0.8
	queryIDSuffixScore   = 0.8
	queryIDContainsScore = 0.6
)

// IDLookup finds passages by id rather than by keyword. Sections are
// explicit section references; Text is the raw query, also tried against
// passage ids when no section reference matches.
type IDLookup struct {
	Sections []string
	Text     string
}

func (l IDLookup) normalize() IDLookup {
	var out IDLookup
	for _, s := range l.Sections {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out.Sections = append(out.Sections, s)
		}
	}
	out.Text = strings.ToLower(strings.TrimSpace(l.Text))
	return out
}

func (l IDLookup) Empty() bool {
	return len(l.Sections) == 0 && l.Text == ""
}

// LookupIDs returns the passages of one content set whose id contains a
// section reference or the query text, case-insensitively, best first and
// at most limit. Hierarchy collapsing does not apply: a reference names the
// passage the caller wants.
func (e *Engine) LookupIDs(ctx context.Context, contentSetID string, lookup IDLookup, limit int) ([]ScoredPassage, error) {
	lookup = lookup.normalize()
	if lookup.Empty() {
		return []ScoredPassage{}, nil
	}
	set, err := e.source.ContentSet(ctx, contentSetID)
	if apperrors.Is(err, apperrors.ErrContentSetNotFound) {
		return []ScoredPassage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading content set %s: %w", contentSetID, err)
	}

	var items []*ScoredPassage
	for i := range set.Passages {
		p := &set.Passages[i]
		if sp := matchID(strings.ToLower(p.ID), lookup); sp != nil {
			sp.Passage = *p
			sp.ContentSet = set.ID
			items = append(items, sp)
		}
	}
	return topK(items, e.clampLimit(limit)), nil
}

func matchID(id string, lookup IDLookup) *ScoredPassage {
	var best *ScoredPassage
	for _, ref := range lookup.Sections {
		if !strings.Contains(id, ref) {
			continue
		}
		s := sectionContainsScore
		if strings.HasSuffix(id, ref) {
			s = sectionSuffixScore
		}
		if best == nil || s > best.Score {
			best = &ScoredPassage{Score: s, Class: MatchSectionRef, Terms: []string{ref}}
		}
	}
	if best != nil || lookup.Text == "" || !strings.Contains(id, lookup.Text) {
		return best
	}
	s := queryIDContainsScore
	if strings.HasSuffix(id, lookup.Text) {
		s = queryIDSuffixScore
	}
	return &ScoredPassage{Score: s, Class: MatchExactID, Terms: []string{lookup.Text}}
}
