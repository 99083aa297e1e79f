package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	"github.com/IskanderBlue/CodeChronicle/internal/freqindex"
	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/metrics"
)

const (
	exactMultiplier   = 1.0
	synonymMultiplier = 0.9
)

type MatchClass string

const (
	MatchExact      MatchClass = "exact"
	MatchSynonym    MatchClass = "synonym"
	MatchFuzzy      MatchClass = "fuzzy"
	MatchSectionRef MatchClass = "section_ref"
	MatchExactID    MatchClass = "exact_id"
)

// ScoredPassage is a passage with its score in [0, 1]. Terms lists the
// query terms credited; Matched lists the passage keywords that earned the
// credit, which differ from Terms for synonym matches.
type ScoredPassage struct {
	Passage    corpus.Passage `json:"passage"`
	ContentSet string         `json:"content_set"`
	Score      float64        `json:"score"`
	Class      MatchClass     `json:"match_type"`
	Terms      []string       `json:"terms"`
	Matched    []string       `json:"matched"`
}

type Options struct {
	Policy       HierarchyPolicy
	DefaultLimit int
	MaxLimit     int
	// FuzzyThreshold is the minimum keyword similarity, in (0, 1], for a
	// passage with no exact or synonym match to score as fuzzy. Zero
	// disables fuzzy matching.
	FuzzyThreshold float64
}

// Engine ranks passages. It only reads shared state and is safe for
// concurrent use.
type Engine struct {
	source  corpus.Reader
	index   *freqindex.Index
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(source corpus.Reader, index *freqindex.Index, opts Options, m *metrics.Metrics) *Engine {
	if opts.Policy == "" {
		opts.Policy = PreferDeepest
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 50
	}
	return &Engine{
		source:  source,
		index:   index,
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "ranking-engine"),
	}
}

// Rank ranks each content set independently, capping each at limitPerSet,
// and concatenates the lists in the order the ids were given.
func (e *Engine) Rank(ctx context.Context, contentSetIDs []string, q Query, limitPerSet int) ([]ScoredPassage, error) {
	var out []ScoredPassage
	seen := make(map[string]struct{}, len(contentSetIDs))
	for _, id := range contentSetIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		res, err := e.RankSet(ctx, id, q, limitPerSet)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

// RankSet scores every passage of one content set against q and returns at
// most limit of them, best first. An empty query or an unknown or empty set
// yields an empty result, not an error.
func (e *Engine) RankSet(ctx context.Context, contentSetID string, q Query, limit int) ([]ScoredPassage, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.RankLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if q.Empty() {
		e.observe("empty_query")
		return []ScoredPassage{}, nil
	}
	set, err := e.source.ContentSet(ctx, contentSetID)
	if apperrors.Is(err, apperrors.ErrContentSetNotFound) {
		e.logger.Debug("content set not loaded", "content_set", contentSetID)
		e.observe("zero_result")
		return []ScoredPassage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading content set %s: %w", contentSetID, err)
	}
	if len(set.Passages) == 0 {
		e.observe("zero_result")
		return []ScoredPassage{}, nil
	}

	idf := e.weights(set)
	var total float64
	for _, t := range q.Terms {
		total += idf(t)
	}

	expansion := q.expansion()
	scored := make(map[string]*ScoredPassage)
	parents := make(map[string]string, len(set.Passages))
	for i := range set.Passages {
		p := &set.Passages[i]
		if p.ParentID != "" {
			parents[p.ID] = p.ParentID
		}
		if sp := score(p, q.Terms, expansion, idf, total, e.opts.FuzzyThreshold); sp != nil {
			sp.ContentSet = set.ID
			scored[p.ID] = sp
		}
	}
	if cycles := collapseHierarchy(scored, parents, e.opts.Policy); len(cycles) > 0 {
		e.logger.Warn("parent cycle in content set, treating passages as unrelated",
			"content_set", set.ID,
			"passages", cycles,
		)
		if e.metrics != nil {
			e.metrics.IntegrityWarnings.WithLabelValues("parent_cycle").Inc()
		}
	}

	items := make([]*ScoredPassage, 0, len(scored))
	for _, sp := range scored {
		items = append(items, sp)
	}
	res := topK(items, e.clampLimit(limit))
	if len(res) == 0 {
		e.observe("zero_result")
	} else {
		e.observe("hit")
	}
	return res, nil
}

// weights returns the IDF lookup for set, or uniform weights when the
// index has no snapshot for the set's current generation.
func (e *Engine) weights(set *corpus.ContentSet) func(string) float64 {
	snap, ok := e.index.Lookup(set.ID)
	reason := ""
	switch {
	case !ok:
		reason = "missing"
	case snap.Generation != set.Generation:
		reason = "stale"
	}
	if reason == "" {
		return snap.IDF
	}
	e.logger.Warn("frequency index unavailable, ranking unweighted",
		"content_set", set.ID,
		"reason", reason,
		"corpus_generation", set.Generation,
	)
	if e.metrics != nil {
		e.metrics.RankFallbacksTotal.WithLabelValues(reason).Inc()
	}
	return func(string) float64 { return 1.0 }
}

// score applies the exact class when any literal query term is a keyword
// of p, otherwise the synonym class, otherwise the fuzzy class when
// fuzzy is positive. All credit the weights of the original query terms,
// so a weaker class never outscores a stronger match of the same terms.
func score(p *corpus.Passage, terms []string, expansion map[string][]string, idf func(string) float64, total, fuzzy float64) *ScoredPassage {
	if total <= 0 {
		return nil
	}
	var credited []string
	for _, t := range terms {
		if hasKeyword(p, t) {
			credited = append(credited, t)
		}
	}
	if len(credited) > 0 {
		return &ScoredPassage{
			Passage: *p,
			Score:   clamp(sum(credited, idf) / total * exactMultiplier),
			Class:   MatchExact,
			Terms:   credited,
			Matched: credited,
		}
	}

	var matched []string
	via := make(map[string]struct{})
	for _, k := range p.Keywords {
		origins, ok := expansion[k]
		if !ok {
			continue
		}
		matched = append(matched, k)
		for _, o := range origins {
			via[o] = struct{}{}
		}
	}
	if len(matched) == 0 {
		if fuzzy <= 0 {
			return nil
		}
		sp := &ScoredPassage{Passage: *p}
		if !fuzzyScore(sp, terms, p.Keywords, idf, total, fuzzy) {
			return nil
		}
		return sp
	}
	for _, t := range terms {
		if _, ok := via[t]; ok {
			credited = append(credited, t)
		}
	}
	return &ScoredPassage{
		Passage: *p,
		Score:   clamp(sum(credited, idf) / total * synonymMultiplier),
		Class:   MatchSynonym,
		Terms:   credited,
		Matched: matched,
	}
}

func hasKeyword(p *corpus.Passage, term string) bool {
	for _, k := range p.Keywords {
		if k == term {
			return true
		}
	}
	return false
}

func sum(terms []string, idf func(string) float64) float64 {
	var s float64
	for _, t := range terms {
		s += idf(t)
	}
	return s
}

func clamp(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		limit = e.opts.DefaultLimit
	}
	if limit > e.opts.MaxLimit {
		limit = e.opts.MaxLimit
	}
	return limit
}

func (e *Engine) observe(outcome string) {
	if e.metrics != nil {
		e.metrics.RankQueriesTotal.WithLabelValues(outcome).Inc()
	}
}
