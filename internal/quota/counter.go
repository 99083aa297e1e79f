package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
	"github.com/IskanderBlue/CodeChronicle/pkg/metrics"
	"github.com/IskanderBlue/CodeChronicle/pkg/resilience"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonLimitReached     Reason = "limit_reached"
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// Decision is the outcome of TryAdmit. A denial is an ordinary result and
// carries what a caller needs for an upgrade prompt.
type Decision struct {
	Admitted  bool   `json:"admitted"`
	Tier      Tier   `json:"tier"`
	Limit     int    `json:"limit"`
	Unlimited bool   `json:"unlimited"`
	Used      int    `json:"used"`
	Reason    Reason `json:"reason,omitempty"`
	// Degraded is set when the store failed and the request was admitted
	// anyway under a fail-open policy.
	Degraded bool `json:"degraded,omitempty"`
}

// Remaining returns the admissions left today, or -1 for unlimited tiers.
func (d Decision) Remaining() int {
	if d.Unlimited {
		return -1
	}
	if r := d.Limit - d.Used; r > 0 {
		return r
	}
	return 0
}

// Err returns nil for an admission, otherwise an AppError wrapping
// ErrQuotaDenied with the tier and limit as details.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	status := 429
	msg := fmt.Sprintf("daily limit of %d searches reached for %s tier", d.Limit, d.Tier)
	if d.Reason == ReasonStoreUnavailable {
		status = 503
		msg = "usage could not be verified"
	}
	return apperrors.New(apperrors.ErrQuotaDenied, status, msg).
		WithDetail("tier", d.Tier.String()).
		WithDetail("limit", d.Limit).
		WithDetail("reason", string(d.Reason))
}

type Options struct {
	// FailOpen admits limited tiers when the store is unreachable.
	FailOpen bool
	// RecordUnlimited counts unlimited-tier requests for analytics.
	RecordUnlimited bool
	Breaker         resilience.CircuitBreakerConfig
}

// Counter applies tier limits on top of a Store.
type Counter struct {
	store   Store
	limits  Limits
	opts    Options
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCounter creates a Counter. m may be nil.
func NewCounter(store Store, limits Limits, opts Options, m *metrics.Metrics) *Counter {
	c := &Counter{
		store:   store,
		limits:  limits,
		opts:    opts,
		metrics: m,
		logger:  slog.Default().With("component", "quota"),
	}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues("quota-store").Set(0)
		userHook := opts.Breaker.OnStateChange
		opts.Breaker.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			if userHook != nil {
				userHook(name, to)
			}
		}
	}
	c.breaker = resilience.NewCircuitBreaker("quota-store", opts.Breaker)
	return c
}

// TryAdmit decides whether identity may make another request on day. For
// limited tiers the check and the increment are one atomic store
// operation. Store failures deny unless the counter fails open; they are
// reported in the Decision, not as an error. An error is returned only for
// invalid arguments.
func (c *Counter) TryAdmit(ctx context.Context, identity string, tier Tier, day time.Time) (Decision, error) {
	if identity == "" {
		return Decision{}, apperrors.New(apperrors.ErrInvalidInput, 400, "empty quota identity")
	}
	limit, ok := c.limits[tier]
	if !ok {
		return Decision{}, apperrors.Newf(apperrors.ErrInvalidInput, 400, "no limit configured for %s tier", tier)
	}

	if limit.Unlimited {
		d := Decision{Admitted: true, Tier: tier, Unlimited: true}
		if c.opts.RecordUnlimited {
			err := c.breaker.Execute(func() error {
				n, err := c.store.Increment(ctx, identity, day)
				d.Used = n
				return err
			})
			if err != nil {
				c.logger.Debug("recording unlimited usage failed", "identity", identity, "error", err)
			}
		}
		c.observe(d)
		return d, nil
	}

	d := Decision{Tier: tier, Limit: limit.Max}
	err := c.breaker.Execute(func() error {
		used, admitted, err := c.store.IncrementIfBelow(ctx, identity, day, limit.Max)
		d.Used, d.Admitted = used, admitted
		return err
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.QuotaStoreErrorsTotal.Inc()
		}
		c.logger.Error("quota store unavailable",
			"identity", identity,
			"tier", tier.String(),
			"fail_open", c.opts.FailOpen,
			"error", err,
		)
		d.Admitted = c.opts.FailOpen
		d.Degraded = c.opts.FailOpen
		if !d.Admitted {
			d.Reason = ReasonStoreUnavailable
		}
		c.observe(d)
		return d, nil
	}
	if !d.Admitted {
		d.Reason = ReasonLimitReached
	}
	c.observe(d)
	return d, nil
}

// Usage reports today's count for identity without changing it.
func (c *Counter) Usage(ctx context.Context, identity string, day time.Time) (int, error) {
	return c.store.Usage(ctx, identity, day)
}

func (c *Counter) observe(d Decision) {
	if c.metrics == nil {
		return
	}
	outcome := "admitted"
	switch {
	case d.Reason == ReasonStoreUnavailable:
		outcome = "unavailable"
	case !d.Admitted:
		outcome = "denied"
	}
	c.metrics.QuotaDecisionsTotal.WithLabelValues(d.Tier.String(), outcome).Inc()
}
