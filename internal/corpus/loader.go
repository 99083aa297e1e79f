package corpus

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MapFile is one parsed passage map. MapCode is the file stem and doubles as
// the content set id.
type MapFile struct {
	MapCode  string
	CodeName string
	Passages []Passage
}

type mapDocument struct {
	CodeName      string     `json:"code_name"`
	Code          string     `json:"code"`
	Version       any        `json:"version"`
	Year          any        `json:"year"`
	VersionNumber *int       `json:"version_number"`
	Sections      []mapEntry `json:"sections"`
	Tables        []mapEntry `json:"tables"`
}

type mapEntry struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Page     *int            `json:"page"`
	PageEnd  *int            `json:"page_end"`
	HTML     string          `json:"html"`
	Markdown string          `json:"markdown"`
	Keywords []string        `json:"keywords"`
	BBox     json.RawMessage `json:"bbox"`
	ParentID string          `json:"parent_id"`
}

// LoadMapFile parses a map document. Sections and tables share one id
// space: repeated ids are merged, the first non-empty value of each field
// wins and keywords are unioned.
func LoadMapFile(r io.Reader, mapCode string) (*MapFile, error) {
	var doc mapDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding map %s: %w", mapCode, err)
	}

	byID := make(map[string]*Passage)
	var order []string
	entries := append(append([]mapEntry{}, doc.Sections...), doc.Tables...)
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		body := e.HTML
		if body == "" {
			body = e.Markdown
		}
		existing, ok := byID[e.ID]
		if !ok {
			p := &Passage{
				ID:         e.ID,
				ContentSet: mapCode,
				Title:      e.Title,
				Keywords:   e.Keywords,
				Body:       body,
				ParentID:   e.ParentID,
			}
			if e.Page != nil || e.PageEnd != nil || len(e.BBox) > 0 {
				p.Location = &Location{Page: e.Page, PageEnd: e.PageEnd, BBox: nullable(e.BBox)}
			}
			byID[e.ID] = p
			order = append(order, e.ID)
			continue
		}
		mergeEntry(existing, e, body)
	}

	passages := make([]Passage, 0, len(order))
	for _, id := range order {
		passages = append(passages, *byID[id])
	}
	return &MapFile{
		MapCode:  mapCode,
		CodeName: doc.codeName(mapCode),
		Passages: normalizePassages(mapCode, passages),
	}, nil
}

func mergeEntry(p *Passage, e mapEntry, body string) {
	if p.Title == "" {
		p.Title = e.Title
	}
	if p.Body == "" {
		p.Body = body
	}
	if p.ParentID == "" {
		p.ParentID = e.ParentID
	}
	if e.Page != nil || e.PageEnd != nil || len(nullable(e.BBox)) > 0 {
		if p.Location == nil {
			p.Location = &Location{}
		}
		if p.Location.Page == nil {
			p.Location.Page = e.Page
		}
		if p.Location.PageEnd == nil {
			p.Location.PageEnd = e.PageEnd
		}
		if len(p.Location.BBox) == 0 {
			p.Location.BBox = nullable(e.BBox)
		}
	}
	p.Keywords = append(p.Keywords, e.Keywords...)
}

func nullable(raw json.RawMessage) json.RawMessage {
	if string(raw) == "null" {
		return nil
	}
	return raw
}

// codeName prefers an explicit code_name, then code/version/version_number,
// then the map code itself.
func (d mapDocument) codeName(mapCode string) string {
	if d.CodeName != "" {
		return d.CodeName
	}
	version := d.Version
	if version == nil {
		version = d.Year
	}
	switch {
	case d.Code != "" && version != nil && d.VersionNumber != nil:
		return fmt.Sprintf("%s_%v_v%02d", d.Code, version, *d.VersionNumber)
	case d.Code != "" && version != nil:
		return fmt.Sprintf("%s_%v", d.Code, version)
	case d.Code != "":
		return d.Code
	}
	return mapCode
}

// LoadMapDir parses every *.json map in dir, sorted by name. Files that fail
// to parse are logged and skipped.
func LoadMapDir(dir string) ([]*MapFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing maps in %s: %w", dir, err)
	}
	sort.Strings(paths)
	logger := slog.Default().With("component", "map-loader")

	var maps []*MapFile
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), ".json")
		if stem == "regulations" {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening map %s: %w", path, err)
		}
		m, err := LoadMapFile(f, stem)
		f.Close()
		if err != nil {
			logger.Error("skipping map", "file", filepath.Base(path), "error", err)
			continue
		}
		logger.Info("map parsed", "map_code", m.MapCode, "code_name", m.CodeName, "passages", len(m.Passages))
		maps = append(maps, m)
	}
	if len(maps) == 0 {
		return nil, fmt.Errorf("no loadable maps in %s", dir)
	}
	return maps, nil
}
