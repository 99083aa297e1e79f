// Package quota admits or denies requests against per-identity daily
// limits that depend on the caller's subscription tier.
package quota

import (
	"fmt"
	"strings"
	"time"

	"github.com/IskanderBlue/CodeChronicle/pkg/config"
)

// Tier is the caller's subscription capability, resolved upstream.
type Tier int

const (
	TierAnonymous Tier = iota
	TierFree
	TierPro
)

func (t Tier) String() string {
	switch t {
	case TierAnonymous:
		return "anonymous"
	case TierFree:
		return "free"
	case TierPro:
		return "pro"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anonymous", "anon":
		return TierAnonymous, nil
	case "free":
		return TierFree, nil
	case "pro":
		return TierPro, nil
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// Limit is a tier's daily allowance. An unlimited tier is never counted
// against Max.
type Limit struct {
	Max       int
	Unlimited bool
}

type Limits map[Tier]Limit

func DefaultLimits() Limits {
	return Limits{
		TierAnonymous: {Max: 1},
		TierFree:      {Max: 3},
		TierPro:       {Unlimited: true},
	}
}

func LimitsFromConfig(cfg config.QuotaConfig) Limits {
	l := DefaultLimits()
	l[TierAnonymous] = Limit{Max: cfg.AnonymousLimit}
	l[TierFree] = Limit{Max: cfg.FreeLimit}
	return l
}

// AnonymousKey buckets unauthenticated callers by client address.
func AnonymousKey(ip string) string {
	return "anon:" + ip
}

func AccountKey(accountID string) string {
	return "user:" + accountID
}

// DayKey formats the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
