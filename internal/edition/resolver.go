package edition

import (
	"log/slog"
	"sort"
	"time"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/metrics"
)

// Resolver maps (system, jurisdiction, date) to the applicable editions of a
// Catalog. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	catalog *Catalog
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewResolver creates a Resolver over c. m may be nil.
func NewResolver(c *Catalog, m *metrics.Metrics) *Resolver {
	return &Resolver{
		catalog: c,
		metrics: m,
		logger:  slog.Default().With("component", "edition-resolver"),
	}
}

func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve returns the edition of system in force in jurisdiction on date,
// plus its predecessor while a transition rule on it is active. National
// systems ignore jurisdiction. It fails with ErrNoApplicableVersion when the
// date precedes the first edition, falls in a gap, or no history exists.
func (r *Resolver) Resolve(system, jurisdiction string, date time.Time) (Resolution, error) {
	date = Day(date)
	if sys, ok := r.catalog.System(system); ok && sys.National {
		jurisdiction = ""
	}
	history := r.catalog.History(system, jurisdiction)
	if len(history) == 0 {
		r.observe(system, "not_found")
		return Resolution{}, apperrors.Newf(apperrors.ErrNoApplicableVersion, 404,
			"no %s editions for jurisdiction %q", system, jurisdiction)
	}
	if date.Before(history[0].EffectiveFrom) {
		r.observe(system, "not_found")
		return Resolution{}, apperrors.Newf(apperrors.ErrNoApplicableVersion, 404,
			"%s on %s predates the earliest edition (%s)",
			system, date.Format(dateLayout), history[0].EffectiveFrom.Format(dateLayout))
	}

	chosen := -1
	matches := 0
	for i, v := range history {
		if !v.Contains(date) {
			continue
		}
		matches++
		// history is sorted by EffectiveFrom, so the last match is the latest.
		chosen = i
	}
	if chosen < 0 {
		r.observe(system, "not_found")
		return Resolution{}, apperrors.Newf(apperrors.ErrNoApplicableVersion, 404,
			"no %s edition covers %s in %q", system, date.Format(dateLayout), jurisdiction)
	}
	if matches > 1 {
		r.logger.Warn("overlapping editions, preferring latest effective date",
			"system", system,
			"jurisdiction", jurisdiction,
			"date", date.Format(dateLayout),
			"candidates", matches,
			"chosen", history[chosen].CodeName(),
		)
		if r.metrics != nil {
			r.metrics.IntegrityWarnings.WithLabelValues(string(KindOverlap)).Inc()
		}
	}

	res := Resolution{
		System:       system,
		Jurisdiction: jurisdiction,
		Date:         date,
		Versions:     []Version{history[chosen]},
	}
	if prev, ok := predecessor(history, chosen); ok {
		if t := history[chosen].Transition; t != nil && !date.After(t.GraceThrough) {
			res.Versions = append(res.Versions, prev)
		}
	}
	if len(res.Versions) > 1 {
		r.observe(system, "transition")
	} else {
		r.observe(system, "single")
	}
	return res, nil
}

func (r *Resolver) observe(system, outcome string) {
	if r.metrics != nil {
		r.metrics.ResolutionsTotal.WithLabelValues(system, outcome).Inc()
	}
}

// predecessor returns the edition with the latest EffectiveFrom strictly
// before history[i]'s.
func predecessor(history []Version, i int) (Version, bool) {
	for j := i - 1; j >= 0; j-- {
		if history[j].EffectiveFrom.Before(history[i].EffectiveFrom) {
			return history[j], true
		}
	}
	return Version{}, false
}

// Validate reports gaps and overlaps between consecutive editions of one
// history. The input order does not matter.
func Validate(versions []Version) []Inconsistency {
	sorted := make([]Version, len(versions))
	copy(sorted, versions)
	sortHistory(sorted)

	var issues []Inconsistency
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		switch {
		case prev.SupersededAt == nil || prev.SupersededAt.After(cur.EffectiveFrom):
			issues = append(issues, Inconsistency{Kind: KindOverlap, Earlier: prev, Later: cur})
		case prev.SupersededAt.Before(cur.EffectiveFrom):
			issues = append(issues, Inconsistency{Kind: KindGap, Earlier: prev, Later: cur})
		}
	}
	return issues
}

func sortHistory(h []Version) {
	sort.SliceStable(h, func(i, j int) bool {
		if !h[i].EffectiveFrom.Equal(h[j].EffectiveFrom) {
			return h[i].EffectiveFrom.Before(h[j].EffectiveFrom)
		}
		return h[i].ID < h[j].ID
	})
}
