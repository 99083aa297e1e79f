// Package freqindex maintains per-content-set document frequencies for
// keyword rarity weighting. Snapshots are immutable and replaced whole.
package freqindex

import (
	"math"
	"sort"
	"time"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
)

// Entry is the number of passages in a content set carrying Term.
type Entry struct {
	Term     string
	DocCount int
}

// Snapshot is the frequency table of one content set at one generation.
type Snapshot struct {
	ContentSetID string
	Generation   uint64
	TotalDocs    int
	BuiltAt      time.Time
	counts       map[string]int
}

// NewSnapshot copies entries into a new Snapshot.
func NewSnapshot(contentSetID string, generation uint64, totalDocs int, entries []Entry) *Snapshot {
	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		counts[e.Term] = e.DocCount
	}
	return &Snapshot{
		ContentSetID: contentSetID,
		Generation:   generation,
		TotalDocs:    totalDocs,
		BuiltAt:      time.Now().UTC(),
		counts:       counts,
	}
}

// Compute counts, for every keyword, the passages of set carrying it. A
// keyword repeated within one passage counts once.
func Compute(set *corpus.ContentSet) *Snapshot {
	counts := make(map[string]int)
	for _, p := range set.Passages {
		seen := make(map[string]struct{}, len(p.Keywords))
		for _, k := range p.Keywords {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			counts[k]++
		}
	}
	return &Snapshot{
		ContentSetID: set.ID,
		Generation:   set.Generation,
		TotalDocs:    len(set.Passages),
		BuiltAt:      time.Now().UTC(),
		counts:       counts,
	}
}

func (s *Snapshot) DocCount(term string) int {
	return s.counts[term]
}

// IDF returns ln(total/df)+1, or 1 for a term no passage carries.
func (s *Snapshot) IDF(term string) float64 {
	return IDF(s.TotalDocs, s.counts[term])
}

// Len returns the number of distinct terms.
func (s *Snapshot) Len() int {
	return len(s.counts)
}

// Entries returns the table sorted by term.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.counts))
	for term, n := range s.counts {
		out = append(out, Entry{Term: term, DocCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out
}

// IDF is the smoothed inverse document frequency of a term carried by
// docCount of totalDocs passages.
func IDF(totalDocs, docCount int) float64 {
	if docCount <= 0 || totalDocs <= 0 {
		return 1.0
	}
	return math.Log(float64(totalDocs)/float64(docCount)) + 1
}
