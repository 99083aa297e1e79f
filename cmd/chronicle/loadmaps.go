package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/IskanderBlue/CodeChronicle/internal/app"
	"github.com/IskanderBlue/CodeChronicle/internal/corpus"
	"github.com/IskanderBlue/CodeChronicle/internal/edition"
	"github.com/IskanderBlue/CodeChronicle/internal/reload"
	"github.com/IskanderBlue/CodeChronicle/pkg/kafka"
	"github.com/IskanderBlue/CodeChronicle/pkg/postgres"
)

func newLoadMapsCmd(root *rootOptions) *cobra.Command {
	var (
		dir         string
		withCatalog bool
		announce    bool
	)
	cmd := &cobra.Command{
		Use:   "load-maps",
		Short: "Load passage maps (and optionally the edition catalog) into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := root.cfg
			if dir == "" {
				dir = cfg.Catalog.MapsDir
			}
			db, err := postgres.New(cfg.Postgres)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := app.EnsureSchema(ctx, db); err != nil {
				return err
			}

			if withCatalog {
				catalog, err := app.LoadCatalogFiles(cfg.Catalog.EditionsFile, cfg.Catalog.RegulationsFile)
				if err != nil {
					return err
				}
				if err := edition.NewPostgresSource(db).Save(ctx, catalog); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "catalog saved: %d systems\n", len(catalog.Systems()))
			}

			maps, err := corpus.LoadMapDir(dir)
			if err != nil {
				return err
			}
			store := corpus.NewPostgresStore(db)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTENT SET\tCODE NAME\tPASSAGES\tGENERATION")
			ids := make([]string, 0, len(maps))
			for _, m := range maps {
				gen, err := store.Replace(ctx, m.MapCode, m.CodeName, m.Passages)
				if err != nil {
					return err
				}
				ids = append(ids, m.MapCode)
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", m.MapCode, m.CodeName, len(m.Passages), gen)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if announce {
				producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusReload)
				defer producer.Close()
				if err := reload.NewPublisher(producer).Announce(ctx, ids...); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of passage maps (catalog.mapsDir when empty)")
	cmd.Flags().BoolVar(&withCatalog, "catalog", false, "also save the edition catalog")
	cmd.Flags().BoolVar(&announce, "announce", true, "publish reload events for the loaded content sets")
	return cmd
}
