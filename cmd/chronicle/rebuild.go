package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/IskanderBlue/CodeChronicle/internal/app"
	"github.com/IskanderBlue/CodeChronicle/internal/reload"
	"github.com/IskanderBlue/CodeChronicle/pkg/kafka"
)

func newRebuildCmd(root *rootOptions) *cobra.Command {
	var announce bool
	cmd := &cobra.Command{
		Use:   "rebuild [content-set...]",
		Short: "Recompute frequency snapshots (all content sets when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, root.cfg, app.Options{SkipCorpus: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.LoadCorpus(ctx); err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				ids = a.Corpus.IDs()
			}
			if err := a.Builder.RebuildAll(ctx, ids); err != nil {
				return err
			}

			idx := a.Builder.Index()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTENT SET\tGENERATION\tPASSAGES\tTERMS")
			for _, id := range ids {
				snap, ok := idx.Lookup(id)
				if !ok {
					fmt.Fprintf(w, "%s\t-\t-\tnot loaded\n", id)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", id, snap.Generation, snap.TotalDocs, snap.Len())
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if announce {
				producer := kafka.NewProducer(root.cfg.Kafka, root.cfg.Kafka.Topics.CorpusReload)
				defer producer.Close()
				return reload.NewPublisher(producer).Announce(ctx, ids...)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&announce, "announce", false, "publish reload events so running workers refresh")
	return cmd
}
