package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEditions = `
systems:
  - code: OBC
    name: Ontario Building Code
    jurisdictions: [ON]
    editions:
      - id: "2012"
        year: 2012
        contentSets: [OBC2012]
        effectiveFrom: 2014-01-01
        supersededAt: 2025-01-01
      - id: "2024"
        year: 2024
        contentSets: [OBC2024]
        effectiveFrom: 2025-01-01
        graceThrough: 2025-03-31
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	maps := filepath.Join(dir, "maps")
	require.NoError(t, os.Mkdir(maps, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "editions.yaml"), []byte(testEditions), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(maps, "OBC2012.json"), []byte(
		`{"code":"OBC","version":"2012","sections":[{"id":"9.10.1","title":"Fire separations","keywords":["fire"]}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(maps, "OBC2024.json"), []byte(
		`{"code":"OBC","version":"2024","sections":[{"id":"9.10.1","title":"Fire separations","keywords":["fire"]}]}`), 0o644))

	cfg := `
catalog:
  source: files
  editionsFile: ` + filepath.Join(dir, "editions.yaml") + `
  synonymsFile: ""
  mapsDir: ` + maps + `
quota:
  backend: memory
logging:
  level: error
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveCommand(t *testing.T) {
	path := writeConfig(t)
	out, err := run(t, "--config", path, "resolve", "--jurisdiction", "on", "--date", "2025-02-01")
	require.NoError(t, err)

	var got []resolveOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	require.Len(t, got[0].Editions, 2)
	assert.Equal(t, "OBC_2024", got[0].Editions[0].CodeName)
	assert.Equal(t, "OBC_2012", got[0].Editions[1].CodeName)
	assert.True(t, got[0].Editions[1].Alternative)

	_, err = run(t, "--config", path, "resolve", "--jurisdiction", "ON", "--date", "2001-01-01")
	require.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog ok")
}

func TestSearchCommand(t *testing.T) {
	path := writeConfig(t)
	out, err := run(t, "--config", path, "search", "--jurisdiction", "ON", "--date", "2025-02-01", "fire")
	require.NoError(t, err)

	var resp struct {
		CodeNames []string `json:"code_names"`
		Results   []struct {
			CodeName    string `json:"code_name"`
			Alternative bool   `json:"alternative"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []string{"OBC_2024", "OBC_2012"}, resp.CodeNames)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[1].Alternative)

	_, err = run(t, "--config", path, "search", "--date", "2025-02-01", "--tier", "platinum", "fire")
	require.Error(t, err)

	_, err = run(t, "--config", path, "search", "--date", "2025-02-01")
	require.Error(t, err, "keywords or a section reference are required")
}

func TestSearchCommandSectionAndFuzzy(t *testing.T) {
	path := writeConfig(t)
	out, err := run(t, "--config", path, "search", "--jurisdiction", "ON", "--date", "2021-06-01", "--section", "9.10.1")
	require.NoError(t, err)
	var resp struct {
		Results []struct {
			SourceDate string `json:"source_date"`
			MatchType  string `json:"match_type"`
		} `json:"results"`
		Suggestions []string `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "section_ref", resp.Results[0].MatchType)
	assert.Equal(t, "2021-06-01", resp.Results[0].SourceDate)

	out, err = run(t, "--config", path, "search", "--jurisdiction", "ON", "--date", "2021-06-01", "firre")
	require.NoError(t, err)
	resp.Results, resp.Suggestions = nil, nil
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Results, 1, "the default configuration matches misspellings")
	assert.Equal(t, "fuzzy", resp.Results[0].MatchType)
}

func TestRebuildCommand(t *testing.T) {
	out, err := run(t, "--config", writeConfig(t), "rebuild", "OBC2024", "NBC")
	require.NoError(t, err)
	assert.Contains(t, out, "OBC2024")
	assert.Contains(t, out, "not loaded")
}
