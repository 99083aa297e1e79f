// Package edition resolves which edition of a regulatory code applied to a
// jurisdiction on a given date.
package edition

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// System is one code lineage, provincial or national.
type System struct {
	Code        string
	DisplayName string
	National    bool
	// Guide marks user guides: searchable, but never returned by SystemsFor.
	Guide bool
	// Jurisdictions lists the provinces a provincial system covers.
	Jurisdictions []string
}

type Amendment struct {
	Regulation  string    `yaml:"reg" json:"reg"`
	Date        time.Time `yaml:"-" json:"date"`
	Description string    `yaml:"desc" json:"desc"`
}

// TransitionRule is declared on the newer edition. Until GraceThrough
// (inclusive) the edition it replaced is offered as an alternative.
type TransitionRule struct {
	GraceThrough time.Time
}

type Version struct {
	ID            string
	System        string
	Jurisdiction  string
	Year          int
	EffectiveFrom time.Time
	// SupersededAt is exclusive; nil means current.
	SupersededAt  *time.Time
	ContentSets   []string
	Transition    *TransitionRule
	Regulation    string
	SourceURL     string
	VersionNumber int
	Amendments    []Amendment
}

// CodeName is the catalog-wide key for the edition, e.g. OBC_2012_v38.
func (v Version) CodeName() string {
	return v.System + "_" + v.ID
}

// Contains reports whether date falls in [EffectiveFrom, SupersededAt).
func (v Version) Contains(date time.Time) bool {
	if date.Before(v.EffectiveFrom) {
		return false
	}
	return v.SupersededAt == nil || date.Before(*v.SupersededAt)
}

func (v Version) String() string {
	end := "current"
	if v.SupersededAt != nil {
		end = v.SupersededAt.Format(dateLayout)
	}
	return fmt.Sprintf("%s [%s, %s)", v.CodeName(), v.EffectiveFrom.Format(dateLayout), end)
}

// Resolution holds one or two editions for a single system. Versions[0] is
// the edition in force on Date; Versions[1], when present, is the previous
// edition still selectable under a transition rule.
type Resolution struct {
	System       string
	Jurisdiction string
	Date         time.Time
	Versions     []Version
}

func (r Resolution) Primary() Version {
	return r.Versions[0]
}

// Alternative returns the transition alternative, if any.
func (r Resolution) Alternative() (Version, bool) {
	if len(r.Versions) < 2 {
		return Version{}, false
	}
	return r.Versions[1], true
}

// CodeNames returns the code names in resolution order.
func (r Resolution) CodeNames() []string {
	names := make([]string, len(r.Versions))
	for i, v := range r.Versions {
		names[i] = v.CodeName()
	}
	return names
}

type InconsistencyKind string

const (
	KindGap     InconsistencyKind = "gap"
	KindOverlap InconsistencyKind = "overlap"
)

// Inconsistency describes two adjacent editions whose intervals do not meet.
type Inconsistency struct {
	Kind    InconsistencyKind
	Earlier Version
	Later   Version
}

func (i Inconsistency) String() string {
	return fmt.Sprintf("%s between %s and %s", i.Kind, i.Earlier, i.Later)
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}
