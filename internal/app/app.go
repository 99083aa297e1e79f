// Package app assembles the core components from configuration for the
// chronicle CLI and the reindexer.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	"github.com/IskanderBlue/CodeChronicle/internal/edition"
	"github.com/IskanderBlue/CodeChronicle/internal/freqindex"
	"github.com/IskanderBlue/CodeChronicle/internal/quota"
	"github.com/IskanderBlue/CodeChronicle/internal/ranking"
	"github.com/IskanderBlue/CodeChronicle/pkg/config"
	"github.com/IskanderBlue/CodeChronicle/pkg/metrics"
	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
	"github.com/IskanderBlue/CodeChronicle/pkg/redis"
)

type Options struct {
	// Quota builds the quota counter and connects its backend.
	Quota bool
	// SkipCorpus leaves the in-memory corpus and frequency index empty.
	SkipCorpus bool
}

type App struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	DB    *postgres.Client
	Redis *redis.Client

	Resolver *edition.Resolver
	Synonyms ranking.SynonymMap
	Corpus   *corpus.MemoryStore
	Builder  *freqindex.Builder
	Engine   *ranking.Engine
	Counter  *quota.Counter
	// QuotaStore backs Counter; nil unless Options.Quota is set.
	QuotaStore quota.Store

	logger *slog.Logger
}

// New connects the configured backends and loads the catalog, synonyms and
// corpus. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := &App{
		Config:   cfg,
		Registry: reg,
		Metrics:  metrics.New(reg),
		Corpus:   corpus.NewMemoryStore(),
		logger:   slog.Default().With("component", "app"),
	}
	if err := a.init(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config
	if needsPostgres(cfg, opts) {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		a.DB = db
		if err := EnsureSchema(ctx, db); err != nil {
			return err
		}
	}

	catalog, err := a.loadCatalog(ctx)
	if err != nil {
		return err
	}
	for _, inc := range catalog.Validate() {
		a.logger.Warn("edition history inconsistency", "detail", inc.String())
		a.Metrics.IntegrityWarnings.WithLabelValues(string(inc.Kind)).Inc()
	}
	a.Resolver = edition.NewResolver(catalog, a.Metrics)

	if a.Synonyms, err = loadSynonyms(cfg.Catalog.SynonymsFile); err != nil {
		return err
	}

	var entries freqindex.EntryStore
	if cfg.Index.PersistEntries {
		entries = freqindex.NewPostgresStore(a.DB)
	}
	a.Builder = freqindex.NewBuilder(a.Corpus, freqindex.NewIndex(), entries, a.Metrics, cfg.Index.RebuildConcurrency)
	if !opts.SkipCorpus {
		if err := a.LoadCorpus(ctx); err != nil {
			return err
		}
		if err := a.Builder.Warm(ctx, a.Corpus.IDs()); err != nil {
			return fmt.Errorf("warming frequency index: %w", err)
		}
	}

	policy, err := ranking.ParseHierarchyPolicy(cfg.Search.HierarchyPolicy)
	if err != nil {
		return err
	}
	a.Engine = ranking.NewEngine(a.Corpus, a.Builder.Index(), ranking.Options{
		Policy:         policy,
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxLimit:       cfg.Search.MaxLimit,
		FuzzyThreshold: cfg.Search.FuzzyThreshold,
	}, a.Metrics)

	if opts.Quota {
		store, err := a.quotaStore()
		if err != nil {
			return err
		}
		a.QuotaStore = store
		a.Counter = quota.NewCounter(store, quota.LimitsFromConfig(cfg.Quota), quota.Options{
			FailOpen:        cfg.Quota.FailOpen,
			RecordUnlimited: cfg.Quota.RecordUnlimited,
		}, a.Metrics)
	}
	return nil
}

func needsPostgres(cfg *config.Config, opts Options) bool {
	return cfg.Catalog.Source == "postgres" ||
		cfg.Index.PersistEntries ||
		(opts.Quota && cfg.Quota.Backend == "postgres")
}

// EnsureSchema creates every table the core stores use.
func EnsureSchema(ctx context.Context, db *postgres.Client) error {
	var stmts []string
	stmts = append(stmts, edition.Schema...)
	stmts = append(stmts, corpus.Schema...)
	stmts = append(stmts, freqindex.Schema...)
	stmts = append(stmts, quota.Schema...)
	return db.EnsureSchema(ctx, stmts...)
}

func (a *App) loadCatalog(ctx context.Context) (*edition.Catalog, error) {
	cfg := a.Config.Catalog
	if cfg.Source == "postgres" {
		return edition.NewPostgresSource(a.DB).Load(ctx)
	}
	return LoadCatalogFiles(cfg.EditionsFile, cfg.RegulationsFile)
}

// LoadCatalogFiles reads the YAML catalog and, when regulationsFile is set
// and present, merges the historical editions it lists.
func LoadCatalogFiles(editionsFile, regulationsFile string) (*edition.Catalog, error) {
	f, err := os.Open(editionsFile)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	catalog, err := edition.LoadCatalog(f)
	if err != nil {
		return nil, err
	}
	if regulationsFile == "" {
		return catalog, nil
	}
	rf, err := os.Open(regulationsFile)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("regulations feed not found, using catalog editions only", "path", regulationsFile)
		return catalog, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening regulations: %w", err)
	}
	defer rf.Close()
	return catalog.WithRegulations(rf)
}

func loadSynonyms(path string) (ranking.SynonymMap, error) {
	if path == "" {
		return ranking.SynonymMap{}, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("synonyms file not found, searching without synonyms", "path", path)
		return ranking.SynonymMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening synonyms: %w", err)
	}
	defer f.Close()
	return ranking.LoadSynonyms(f, true)
}

// LoadCorpus fills the in-memory corpus from the configured source without
// touching the frequency index.
func (a *App) LoadCorpus(ctx context.Context) error {
	if a.Config.Catalog.Source == "postgres" {
		store := corpus.NewPostgresStore(a.DB)
		ids, err := store.IDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			set, err := store.ContentSet(ctx, id)
			if err != nil {
				return err
			}
			a.Corpus.Put(set)
		}
		a.logger.Info("corpus loaded from postgres", "content_sets", len(ids))
		return nil
	}
	maps, err := corpus.LoadMapDir(a.Config.Catalog.MapsDir)
	if err != nil {
		return err
	}
	for _, m := range maps {
		a.Corpus.Replace(m.MapCode, m.CodeName, m.Passages)
	}
	a.logger.Info("corpus loaded from maps", "content_sets", len(maps))
	return nil
}

// Source returns the authoritative passage store reloads read from.
func (a *App) Source() corpus.Reader {
	if a.Config.Catalog.Source == "postgres" {
		return corpus.NewPostgresStore(a.DB)
	}
	return corpus.NewDirReader(a.Config.Catalog.MapsDir)
}

func (a *App) quotaStore() (quota.Store, error) {
	cfg := a.Config
	switch cfg.Quota.Backend {
	case "redis":
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.Redis = client
		return quota.NewRedisStore(client, cfg.Quota.KeyTTL), nil
	case "postgres":
		return quota.NewPostgresStore(a.DB), nil
	default:
		return quota.NewMemoryStore(), nil
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.Error("closing redis", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.Error("closing postgres", "error", err)
		}
	}
}
