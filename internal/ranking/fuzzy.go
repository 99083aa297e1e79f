package ranking

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/IskanderBlue/CodeChronicle/internal/freqindex"
	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
)

const (
	fuzzyMultiplier = 0.8

	suggestCutoff       = 0.6
	defaultSuggestLimit = 3
)

// similarity is one minus the edit distance between a and b over the
// length of the longer, so identical strings score 1.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(n)
}

// closest returns the candidate most similar to term. Ties go to the
// candidate listed first.
func closest(term string, candidates []string) (string, float64) {
	var best string
	var bestSim float64
	for _, c := range candidates {
		if s := similarity(term, c); s > bestSim {
			best, bestSim = c, s
		}
	}
	return best, bestSim
}

// fuzzyScore credits each query term whose closest keyword of p is at
// least threshold similar, weighted by that similarity.
func fuzzyScore(p *ScoredPassage, terms []string, keywords []string, idf func(string) float64, total, threshold float64) bool {
	var weighted float64
	for _, t := range terms {
		k, sim := closest(t, keywords)
		if sim < threshold {
			continue
		}
		weighted += sim * idf(t)
		p.Terms = append(p.Terms, t)
		p.Matched = append(p.Matched, k)
	}
	if len(p.Terms) == 0 {
		return false
	}
	p.Score = clamp(weighted / total * fuzzyMultiplier)
	p.Class = MatchFuzzy
	return true
}

// Suggest returns up to limit keywords of the given content sets that
// resemble a query term, for queries that matched nothing. Keywords are
// ordered by similarity, then by how many passages carry them.
func (e *Engine) Suggest(ctx context.Context, contentSetIDs []string, q Query, limit int) ([]string, error) {
	if q.Empty() {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = defaultSuggestLimit
	}

	type candidate struct {
		keyword string
		sim     float64
		docs    int
	}
	byKeyword := make(map[string]*candidate)
	literal := make(map[string]struct{}, len(q.Terms))
	for _, t := range q.Terms {
		literal[t] = struct{}{}
	}
	for _, id := range contentSetIDs {
		snap, err := e.vocabulary(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			continue
		}
		for _, entry := range snap.Entries() {
			if _, ok := literal[entry.Term]; ok {
				continue
			}
			var sim float64
			for _, t := range q.Terms {
				sim = max(sim, similarity(t, entry.Term))
			}
			if sim < suggestCutoff {
				continue
			}
			c, ok := byKeyword[entry.Term]
			if !ok {
				c = &candidate{keyword: entry.Term}
				byKeyword[entry.Term] = c
			}
			c.sim = max(c.sim, sim)
			c.docs += entry.DocCount
		}
	}

	all := make([]*candidate, 0, len(byKeyword))
	for _, c := range byKeyword {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.sim != b.sim {
			return a.sim > b.sim
		}
		if a.docs != b.docs {
			return a.docs > b.docs
		}
		return a.keyword < b.keyword
	})
	out := make([]string, 0, min(limit, len(all)))
	for _, c := range all {
		if len(out) == limit {
			break
		}
		out = append(out, c.keyword)
	}
	return out, nil
}

// vocabulary returns the keyword table of a content set: the indexed
// snapshot when there is one, else a table computed from the corpus. A set
// that is not loaded has no vocabulary.
func (e *Engine) vocabulary(ctx context.Context, contentSetID string) (*freqindex.Snapshot, error) {
	if snap, ok := e.index.Lookup(contentSetID); ok {
		return snap, nil
	}
	set, err := e.source.ContentSet(ctx, contentSetID)
	if apperrors.Is(err, apperrors.ErrContentSetNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading content set %s: %w", contentSetID, err)
	}
	return freqindex.Compute(set), nil
}
