// Package search runs one keyword search end to end: quota admission,
// edition resolution for every code system covering the jurisdiction, then
// ranking of each resolved edition's content sets.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IskanderBlue/CodeChronicle/internal/analytics"
	"github.com/IskanderBlue/CodeChronicle/internal/edition"
	"github.com/IskanderBlue/CodeChronicle/internal/quota"
	"github.com/IskanderBlue/CodeChronicle/internal/ranking"
	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/logger"
)

type Request struct {
	RequestID string
	Identity  string
	Tier      quota.Tier
	// Day is the quota day; zero means the current UTC day.
	Day          time.Time
	Date         time.Time
	Jurisdiction string
	Keywords     []string
	// Sections are section references, e.g. "9.10.14", matched against
	// passage ids ahead of keyword ranking.
	Sections []string
	// LimitPerSet caps results per content set; zero uses the engine default.
	LimitPerSet int
}

// Result is a ranked passage tagged with the edition it came from.
type Result struct {
	ranking.ScoredPassage
	CodeName    string `json:"code_name"`
	System      string `json:"system"`
	Alternative bool   `json:"alternative"`
	// SourceDate is the search date the edition was resolved for.
	SourceDate string `json:"source_date"`
}

type Response struct {
	Decision    quota.Decision       `json:"decision"`
	Resolutions []edition.Resolution `json:"-"`
	CodeNames   []string             `json:"code_names"`
	Results     []Result             `json:"results"`
	// Suggestions are corpus keywords resembling the query, set only when
	// nothing matched.
	Suggestions []string `json:"suggestions,omitempty"`
}

// Tracker receives usage events; *analytics.Collector satisfies it.
type Tracker interface {
	Track(event any)
}

type Service struct {
	counter  *quota.Counter
	resolver *edition.Resolver
	engine   *ranking.Engine
	synonyms ranking.SynonymMap
	tracker  Tracker
	logger   *slog.Logger
}

// NewService wires the collaborators. tracker may be nil.
func NewService(counter *quota.Counter, resolver *edition.Resolver, engine *ranking.Engine, synonyms ranking.SynonymMap, tracker Tracker) *Service {
	return &Service{
		counter:  counter,
		resolver: resolver,
		engine:   engine,
		synonyms: synonyms,
		tracker:  tracker,
		logger:   slog.Default().With("component", "search"),
	}
}

// Search admits the request against the caller's quota and returns the
// ranked passages of every applicable edition: passages whose id matches a
// section reference or the query text first, then keyword matches. When
// nothing matches, the Response carries keyword suggestions. A denial returns the
// Decision in the Response together with an ErrQuotaDenied AppError.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if req.RequestID != "" {
		ctx = logger.WithRequestID(ctx, req.RequestID)
	}
	log := logger.FromContext(ctx).With("component", "search")

	if req.Date.IsZero() {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "search date is required")
	}
	day := req.Day
	if day.IsZero() {
		day = time.Now().UTC()
	}

	decision, err := s.counter.TryAdmit(ctx, req.Identity, req.Tier, edition.Day(day))
	if err != nil {
		return nil, err
	}
	s.track(analytics.QuotaEvent{
		Type:      analytics.EventQuota,
		Identity:  req.Identity,
		Tier:      req.Tier.String(),
		Admitted:  decision.Admitted,
		Reason:    string(decision.Reason),
		Used:      decision.Used,
		Limit:     decision.Limit,
		Timestamp: time.Now().UTC(),
	})
	resp := &Response{Decision: decision, Results: []Result{}}
	if !decision.Admitted {
		log.Info("search denied by quota", "identity", req.Identity, "reason", decision.Reason)
		return resp, decision.Err()
	}

	date := edition.Day(req.Date)
	catalog := s.resolver.Catalog()
	for _, system := range catalog.SystemsFor(req.Jurisdiction) {
		res, err := s.resolver.Resolve(system, req.Jurisdiction, date)
		if apperrors.Is(err, apperrors.ErrNoApplicableVersion) {
			log.Debug("no edition applies", "system", system, "date", date.Format("2006-01-02"))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", system, err)
		}
		resp.Resolutions = append(resp.Resolutions, res)
		resp.CodeNames = append(resp.CodeNames, res.CodeNames()...)
	}
	if len(resp.Resolutions) == 0 {
		return nil, apperrors.Newf(apperrors.ErrNoApplicableVersion, 404,
			"no code applies in %q on %s", req.Jurisdiction, date.Format("2006-01-02"))
	}

	q := ranking.NewQuery(req.Keywords, s.synonyms)
	lookup := ranking.IDLookup{Sections: req.Sections, Text: strings.Join(req.Keywords, " ")}
	seen := make(map[string]struct{})
	var searched []string
	for _, res := range resp.Resolutions {
		for i, v := range res.Versions {
			var passages []ranking.ScoredPassage
			for _, id := range v.ContentSets {
				byID, err := s.engine.LookupIDs(ctx, id, lookup, req.LimitPerSet)
				if err != nil {
					return nil, fmt.Errorf("looking up sections in %s: %w", v.CodeName(), err)
				}
				passages = append(passages, byID...)
			}
			ranked, err := s.engine.Rank(ctx, v.ContentSets, q, req.LimitPerSet)
			if err != nil {
				return nil, fmt.Errorf("ranking %s: %w", v.CodeName(), err)
			}
			passages = append(passages, ranked...)
			searched = append(searched, v.ContentSets...)
			for _, p := range passages {
				key := v.CodeName() + ":" + p.Passage.ID
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				resp.Results = append(resp.Results, Result{
					ScoredPassage: p,
					CodeName:      v.CodeName(),
					System:        v.System,
					Alternative:   i > 0,
					SourceDate:    date.Format("2006-01-02"),
				})
			}
		}
	}
	if len(resp.Results) == 0 {
		suggestions, err := s.engine.Suggest(ctx, searched, q, 0)
		if err != nil {
			log.Warn("keyword suggestions unavailable", "error", err)
		}
		resp.Suggestions = suggestions
	}

	latency := time.Since(start)
	eventType := analytics.EventSearch
	if len(resp.Results) == 0 {
		eventType = analytics.EventZeroResult
	}
	s.track(analytics.SearchEvent{
		Type:         eventType,
		RequestID:    req.RequestID,
		Identity:     req.Identity,
		Tier:         req.Tier.String(),
		Jurisdiction: req.Jurisdiction,
		Date:         date.Format("2006-01-02"),
		Terms:        q.Terms,
		CodeNames:    resp.CodeNames,
		Returned:     len(resp.Results),
		LatencyMs:    latency.Milliseconds(),
		Timestamp:    time.Now().UTC(),
	})
	log.Info("search completed",
		"jurisdiction", req.Jurisdiction,
		"code_names", resp.CodeNames,
		"results", len(resp.Results),
		"latency_ms", latency.Milliseconds(),
	)
	return resp, nil
}

func (s *Service) track(event any) {
	if s.tracker != nil {
		s.tracker.Track(event)
	}
}
