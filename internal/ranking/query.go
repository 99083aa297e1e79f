// Package ranking scores the passages of a content set against a keyword
// query, weighting each term by its rarity within the set.
package ranking

import (
	"strings"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
)

// Query is a normalised set of keywords plus the synonym table used to
// widen it.
type Query struct {
	Terms    []string
	Synonyms SynonymMap
}

// NewQuery normalises terms the same way passage keywords are normalised.
func NewQuery(terms []string, synonyms SynonymMap) Query {
	return Query{Terms: NormalizeTerms(terms), Synonyms: synonyms}
}

// ParseQuery splits free text on whitespace.
func ParseQuery(text string, synonyms SynonymMap) Query {
	return NewQuery(strings.Fields(text), synonyms)
}

// NormalizeTerms lower-cases, trims and deduplicates terms.
func NormalizeTerms(terms []string) []string {
	return corpus.NormalizeKeywords(terms)
}

func (q Query) Empty() bool {
	return len(q.Terms) == 0
}

// expansion maps each synonym of a query term to the query terms it came
// from. Synonyms are normalised like keywords, so a hand-built map matches
// the same passages as a loaded one. Literal query terms are never part of
// the expansion.
func (q Query) expansion() map[string][]string {
	if len(q.Synonyms) == 0 {
		return nil
	}
	original := make(map[string]struct{}, len(q.Terms))
	for _, t := range q.Terms {
		original[t] = struct{}{}
	}
	out := make(map[string][]string)
	for _, t := range q.Terms {
		for _, s := range NormalizeTerms(q.Synonyms[t]) {
			if _, lit := original[s]; lit {
				continue
			}
			out[s] = append(out[s], t)
		}
	}
	return out
}
