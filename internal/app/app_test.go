package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	"github.com/IskanderBlue/CodeChronicle/internal/edition"
	"github.com/IskanderBlue/CodeChronicle/internal/quota"
	"github.com/IskanderBlue/CodeChronicle/internal/ranking"
	"github.com/IskanderBlue/CodeChronicle/pkg/config"
)

const editions = `
systems:
  - code: OBC
    name: Ontario Building Code
    jurisdictions: [ON]
    editions:
      - id: "2024"
        year: 2024
        contentSets: [OBC_Vol1]
        effectiveFrom: 2025-01-01
`

const synonyms = `
fire: [flame]
`

const obcMap = `{"code": "OBC", "version": "2024", "sections": [
  {"id": "9.10.1", "title": "Fire separations", "keywords": ["fire", "separation"]},
  {"id": "9.10.2", "title": "Flame spread", "keywords": ["flame"]}
]}`

func writeFixtures(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	maps := filepath.Join(dir, "maps")
	require.NoError(t, os.Mkdir(maps, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "editions.yaml"), []byte(editions), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "synonyms.yaml"), []byte(synonyms), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(maps, "OBC_Vol1.json"), []byte(obcMap), 0o644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Catalog.EditionsFile = filepath.Join(dir, "editions.yaml")
	cfg.Catalog.SynonymsFile = filepath.Join(dir, "synonyms.yaml")
	cfg.Catalog.MapsDir = maps
	return cfg
}

func TestNewFromFiles(t *testing.T) {
	cfg := writeFixtures(t)
	ctx := context.Background()
	a, err := New(ctx, cfg, Options{Quota: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.Equal(t, []string{"OBC_Vol1"}, a.Corpus.IDs())
	assert.Equal(t, 1, a.Builder.Index().Len())

	res, err := a.Resolver.Resolve("OBC", "ON", edition.Day(mustDate(t, "2025-06-01")))
	require.NoError(t, err)
	assert.Equal(t, []string{"OBC_2024"}, res.CodeNames())

	got, err := a.Engine.RankSet(ctx, "OBC_Vol1", ranking.NewQuery([]string{"fire"}, a.Synonyms), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ranking.MatchExact, got[0].Class)
	assert.Equal(t, ranking.MatchSynonym, got[1].Class)

	d, err := a.Counter.TryAdmit(ctx, quota.AnonymousKey("1.2.3.4"), quota.TierAnonymous, mustDate(t, "2025-06-01"))
	require.NoError(t, err)
	assert.True(t, d.Admitted)

	_, isDir := a.Source().(*corpus.DirReader)
	assert.True(t, isDir)
}

func TestNewWithoutQuotaOrSynonyms(t *testing.T) {
	cfg := writeFixtures(t)
	cfg.Catalog.SynonymsFile = filepath.Join(t.TempDir(), "absent.yaml")
	a, err := New(context.Background(), cfg, Options{SkipCorpus: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Counter)
	assert.Empty(t, a.Synonyms)
	assert.Zero(t, a.Builder.Index().Len())
}

func TestNewRejectsBadHierarchyPolicy(t *testing.T) {
	cfg := writeFixtures(t)
	cfg.Search.HierarchyPolicy = "sideways"
	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
}

func TestNewFailsWithoutCatalog(t *testing.T) {
	cfg := writeFixtures(t)
	cfg.Catalog.EditionsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := edition.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestLoadCatalogFilesMergesRegulations(t *testing.T) {
	dir := t.TempDir()
	editionsPath := filepath.Join(dir, "editions.yaml")
	require.NoError(t, os.WriteFile(editionsPath, []byte(editions), 0o644))

	c, err := LoadCatalogFiles(editionsPath, filepath.Join(dir, "regulations.json"))
	require.NoError(t, err)
	assert.Len(t, c.History("OBC", "ON"), 1)

	regs := filepath.Join(dir, "regulations.json")
	require.NoError(t, os.WriteFile(regs, []byte(`{"OBC": [
		{"version": "2012", "version_number": 38, "output_file": "OBC_2012_v38.json", "effective_date": "2019-01-01"}
	]}`), 0o644))
	c, err = LoadCatalogFiles(editionsPath, regs)
	require.NoError(t, err)
	h := c.History("OBC", "ON")
	require.Len(t, h, 2)
	assert.Equal(t, "OBC_2012_v38", h[0].CodeName())
	require.NotNil(t, h[0].SupersededAt)
	assert.Equal(t, h[1].EffectiveFrom, *h[0].SupersededAt)
}
