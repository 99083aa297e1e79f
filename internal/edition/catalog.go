package edition

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type historyKey struct {
	system       string
	jurisdiction string
}

// Catalog is an immutable set of systems and their edition histories. Build
// it once at startup and share it by pointer; methods that change content
// return a new Catalog.
type Catalog struct {
	systems    map[string]System
	order      []string
	histories  map[historyKey][]Version
	provincial map[string]string
	byCodeName map[string]Version
}

// NewCatalog indexes systems and versions. Jurisdictions are upper-cased.
// Histories are sorted by effective date; a provincial version with no
// jurisdiction takes its system's first.
func NewCatalog(systems []System, versions []Version) (*Catalog, error) {
	c := &Catalog{
		systems:    make(map[string]System, len(systems)),
		histories:  make(map[historyKey][]Version),
		provincial: make(map[string]string),
		byCodeName: make(map[string]Version, len(versions)),
	}
	for _, s := range systems {
		if s.Code == "" {
			return nil, fmt.Errorf("system with empty code")
		}
		if _, dup := c.systems[s.Code]; dup {
			return nil, fmt.Errorf("duplicate system %s", s.Code)
		}
		s.Jurisdictions = upper(s.Jurisdictions)
		c.systems[s.Code] = s
		c.order = append(c.order, s.Code)
		if s.National {
			continue
		}
		for _, j := range s.Jurisdictions {
			if other, taken := c.provincial[j]; taken {
				return nil, fmt.Errorf("jurisdiction %s claimed by both %s and %s", j, other, s.Code)
			}
			c.provincial[j] = s.Code
		}
	}
	for _, v := range versions {
		sys, ok := c.systems[v.System]
		if !ok {
			return nil, fmt.Errorf("edition %s references unknown system", v.CodeName())
		}
		v.Jurisdiction = strings.ToUpper(v.Jurisdiction)
		switch {
		case sys.National:
			v.Jurisdiction = ""
		case v.Jurisdiction == "" && len(sys.Jurisdictions) > 0:
			v.Jurisdiction = sys.Jurisdictions[0]
		}
		if _, dup := c.byCodeName[v.CodeName()]; dup {
			return nil, fmt.Errorf("duplicate edition %s", v.CodeName())
		}
		c.byCodeName[v.CodeName()] = v
		key := historyKey{system: v.System, jurisdiction: v.Jurisdiction}
		c.histories[key] = append(c.histories[key], v)
	}
	for _, h := range c.histories {
		sortHistory(h)
	}
	return c, nil
}

func (c *Catalog) System(code string) (System, bool) {
	s, ok := c.systems[code]
	return s, ok
}

// Systems returns every system in declaration order.
func (c *Catalog) Systems() []System {
	out := make([]System, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.systems[code])
	}
	return out
}

// History returns the editions of system for jurisdiction, oldest first.
// The returned slice must not be modified.
func (c *Catalog) History(system, jurisdiction string) []Version {
	if s, ok := c.systems[system]; ok && s.National {
		jurisdiction = ""
	}
	return c.histories[historyKey{system: system, jurisdiction: strings.ToUpper(jurisdiction)}]
}

// SystemsFor returns the provincial system covering jurisdiction, if any,
// followed by every national code system.
func (c *Catalog) SystemsFor(jurisdiction string) []string {
	var out []string
	if code, ok := c.provincial[strings.ToUpper(jurisdiction)]; ok {
		out = append(out, code)
	}
	for _, code := range c.order {
		if s := c.systems[code]; s.National && !s.Guide {
			out = append(out, code)
		}
	}
	return out
}

// Version looks up an edition by code name, e.g. NBC_2020.
func (c *Catalog) Version(codeName string) (Version, bool) {
	v, ok := c.byCodeName[codeName]
	return v, ok
}

// ContentSets returns every content set referenced by any edition, sorted.
func (c *Catalog) ContentSets() []string {
	seen := make(map[string]struct{})
	for _, v := range c.byCodeName {
		for _, id := range v.ContentSets {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Validate checks every history for gaps and overlaps.
func (c *Catalog) Validate() []Inconsistency {
	keys := make([]historyKey, 0, len(c.histories))
	for k := range c.histories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].system != keys[j].system {
			return keys[i].system < keys[j].system
		}
		return keys[i].jurisdiction < keys[j].jurisdiction
	})
	var issues []Inconsistency
	for _, k := range keys {
		issues = append(issues, Validate(c.histories[k])...)
	}
	return issues
}

func (c *Catalog) versions() []Version {
	out := make([]Version, 0, len(c.byCodeName))
	for _, v := range c.byCodeName {
		out = append(out, v)
	}
	return out
}

type catalogFile struct {
	Systems []systemFile `yaml:"systems"`
}

type systemFile struct {
	Code          string        `yaml:"code"`
	Name          string        `yaml:"name"`
	National      bool          `yaml:"national"`
	Guide         bool          `yaml:"guide"`
	Jurisdictions []string      `yaml:"jurisdictions"`
	Editions      []editionFile `yaml:"editions"`
}

type editionFile struct {
	ID            string   `yaml:"id"`
	Year          int      `yaml:"year"`
	Jurisdiction  string   `yaml:"jurisdiction"`
	ContentSets   []string `yaml:"contentSets"`
	EffectiveFrom string   `yaml:"effectiveFrom"`
	SupersededAt  string   `yaml:"supersededAt"`
	GraceThrough  string   `yaml:"graceThrough"`
	Regulation    string   `yaml:"regulation"`
	SourceURL     string   `yaml:"sourceURL"`
	Amendments    []struct {
		Reg  string `yaml:"reg"`
		Date string `yaml:"date"`
		Desc string `yaml:"desc"`
	} `yaml:"amendments"`
}

// LoadCatalog parses a YAML catalog of systems and their editions.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	var (
		systems  []System
		versions []Version
	)
	for _, sf := range f.Systems {
		systems = append(systems, System{
			Code:          sf.Code,
			DisplayName:   sf.Name,
			National:      sf.National,
			Guide:         sf.Guide,
			Jurisdictions: upper(sf.Jurisdictions),
		})
		for _, ef := range sf.Editions {
			v, err := ef.version(sf.Code)
			if err != nil {
				return nil, err
			}
			versions = append(versions, v)
		}
	}
	return NewCatalog(systems, versions)
}

func (ef editionFile) version(system string) (Version, error) {
	v := Version{
		ID:           ef.ID,
		System:       system,
		Jurisdiction: strings.ToUpper(ef.Jurisdiction),
		Year:         ef.Year,
		ContentSets:  ef.ContentSets,
		Regulation:   ef.Regulation,
		SourceURL:    ef.SourceURL,
	}
	var err error
	if v.EffectiveFrom, err = ParseDate(ef.EffectiveFrom); err != nil {
		return Version{}, fmt.Errorf("edition %s: effectiveFrom: %w", v.CodeName(), err)
	}
	if ef.SupersededAt != "" {
		t, err := ParseDate(ef.SupersededAt)
		if err != nil {
			return Version{}, fmt.Errorf("edition %s: supersededAt: %w", v.CodeName(), err)
		}
		if !t.After(v.EffectiveFrom) {
			return Version{}, fmt.Errorf("edition %s: supersededAt must follow effectiveFrom", v.CodeName())
		}
		v.SupersededAt = &t
	}
	if ef.GraceThrough != "" {
		t, err := ParseDate(ef.GraceThrough)
		if err != nil {
			return Version{}, fmt.Errorf("edition %s: graceThrough: %w", v.CodeName(), err)
		}
		v.Transition = &TransitionRule{GraceThrough: t}
	}
	for _, a := range ef.Amendments {
		d, err := ParseDate(a.Date)
		if err != nil {
			return Version{}, fmt.Errorf("edition %s: amendment %s: %w", v.CodeName(), a.Reg, err)
		}
		v.Amendments = append(v.Amendments, Amendment{Regulation: a.Reg, Date: d, Description: a.Desc})
	}
	return v, nil
}

// regulationEntry is one historical edition in a regulations.json feed.
type regulationEntry struct {
	Version       string `json:"version"`
	VersionNumber int    `json:"version_number"`
	OutputFile    string `json:"output_file"`
	EffectiveDate string `json:"effective_date"`
	Source        string `json:"source"`
	Regulation    string `json:"regulation"`
	ElawsURL      string `json:"elaws_url"`
}

// WithRegulations returns a new Catalog in which each system named in the
// regulations feed gains its historical editions. Entries are ordered by
// effective date and each is superseded by the next; the last is superseded
// by the earliest edition already in the catalog.
func (c *Catalog) WithRegulations(r io.Reader) (*Catalog, error) {
	var feed map[string][]regulationEntry
	if err := json.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding regulations: %w", err)
	}

	versions := c.versions()
	logger := slog.Default().With("component", "edition-catalog")
	systems := make([]string, 0, len(feed))
	for system := range feed {
		systems = append(systems, system)
	}
	sort.Strings(systems)

	for _, system := range systems {
		sys, ok := c.systems[system]
		if !ok {
			logger.Warn("regulations feed names unknown system, skipping", "system", system)
			continue
		}
		var historical []Version
		for _, e := range feed[system] {
			if e.EffectiveDate == "" {
				continue
			}
			v, err := e.version(system)
			if err != nil {
				return nil, err
			}
			if len(sys.Jurisdictions) > 0 && !sys.National {
				v.Jurisdiction = sys.Jurisdictions[0]
			}
			historical = append(historical, v)
		}
		if len(historical) == 0 {
			logger.Warn("no dated entries in regulations feed", "system", system)
			continue
		}
		sortHistory(historical)

		var next *Version
		if h := c.History(system, historical[0].Jurisdiction); len(h) > 0 {
			next = &h[0]
		}
		for i := range historical {
			switch {
			case i+1 < len(historical):
				t := historical[i+1].EffectiveFrom
				historical[i].SupersededAt = &t
			case next != nil:
				t := next.EffectiveFrom
				historical[i].SupersededAt = &t
			}
		}
		versions = append(versions, historical...)
		logger.Info("merged historical editions", "system", system, "count", len(historical))
	}

	systemsList := c.Systems()
	return NewCatalog(systemsList, versions)
}

func (e regulationEntry) version(system string) (Version, error) {
	id := fmt.Sprintf("%s_v%02d", e.Version, e.VersionNumber)
	eff, err := ParseDate(e.EffectiveDate)
	if err != nil {
		return Version{}, fmt.Errorf("regulation %s_%s: %w", system, id, err)
	}
	year, err := strconv.Atoi(e.Version)
	if err != nil {
		return Version{}, fmt.Errorf("regulation %s_%s: version year: %w", system, id, err)
	}
	return Version{
		ID:            id,
		System:        system,
		Year:          year,
		EffectiveFrom: eff,
		ContentSets:   []string{strings.TrimSuffix(e.OutputFile, ".json")},
		Regulation:    e.Regulation,
		SourceURL:     e.ElawsURL,
		VersionNumber: e.VersionNumber,
	}, nil
}

func upper(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
