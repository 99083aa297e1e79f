package ranking

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// SynonymMap maps a normalised term to the terms accepted in its place.
type SynonymMap map[string][]string

// Expand returns terms together with all their synonyms, normalised and
// sorted.
func (m SynonymMap) Expand(terms []string) []string {
	all := append([]string{}, terms...)
	for _, t := range NormalizeTerms(terms) {
		all = append(all, m[t]...)
	}
	return NormalizeTerms(all)
}

// LoadSynonyms reads a YAML mapping of term to synonym list. With symmetric
// set, every synonym also maps back to its head term.
func LoadSynonyms(r io.Reader, symmetric bool) (SynonymMap, error) {
	var raw map[string][]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return SynonymMap{}, nil
		}
		return nil, fmt.Errorf("decoding synonyms: %w", err)
	}

	sets := make(map[string]map[string]struct{})
	link := func(from, to string) {
		if from == to {
			return
		}
		if sets[from] == nil {
			sets[from] = make(map[string]struct{})
		}
		sets[from][to] = struct{}{}
	}
	for head, syns := range raw {
		heads := NormalizeTerms([]string{head})
		if len(heads) == 0 {
			continue
		}
		for _, s := range NormalizeTerms(syns) {
			link(heads[0], s)
			if symmetric {
				link(s, heads[0])
			}
		}
	}

	m := make(SynonymMap, len(sets))
	for term, set := range sets {
		list := make([]string, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Strings(list)
		m[term] = list
	}
	return m, nil
}
