package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IskanderBlue/CodeChronicle/internal/analytics"
	"github.com/IskanderBlue/CodeChronicle/internal/app"
	"github.com/IskanderBlue/CodeChronicle/internal/edition"
	"github.com/IskanderBlue/CodeChronicle/internal/quota"
	"github.com/IskanderBlue/CodeChronicle/internal/search"
	"github.com/IskanderBlue/CodeChronicle/pkg/kafka"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		jurisdiction  string
		date          string
		identity      string
		tierName      string
		sections      []string
		limit         int
		publishEvents bool
	)
	cmd := &cobra.Command{
		Use:   "search [keywords...]",
		Short: "Rank passages of the editions that applied on a date",
		Example: `  chronicle search --jurisdiction ON --date 2025-02-01 fire separation
  chronicle search --tier anonymous --identity 203.0.113.7 --date 2019-06-30 sprinkler
  chronicle search --jurisdiction ON --date 2025-02-01 --section 9.10.14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(sections) == 0 {
				return fmt.Errorf("give keywords or at least one --section")
			}
			d, err := edition.ParseDate(date)
			if err != nil {
				return err
			}
			tier, err := quota.ParseTier(tierName)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.New(ctx, root.cfg, app.Options{Quota: true})
			if err != nil {
				return err
			}
			defer a.Close()

			var tracker search.Tracker
			if publishEvents {
				producer := kafka.NewProducer(root.cfg.Kafka, root.cfg.Kafka.Topics.UsageEvents)
				defer producer.Close()
				collector := analytics.NewCollector(producer, 64)
				collector.Start(ctx)
				defer collector.Close()
				tracker = collector
			}

			key := quota.AccountKey(identity)
			if tier == quota.TierAnonymous {
				key = quota.AnonymousKey(identity)
			}
			svc := search.NewService(a.Counter, a.Resolver, a.Engine, a.Synonyms, tracker)
			resp, err := svc.Search(ctx, search.Request{
				RequestID:    fmt.Sprintf("cli-%d", time.Now().UnixNano()),
				Identity:     key,
				Tier:         tier,
				Date:         d,
				Jurisdiction: jurisdiction,
				Keywords:     args,
				Sections:     sections,
				LimitPerSet:  limit,
			})
			if resp != nil {
				if werr := writeJSON(cmd.OutOrStdout(), resp); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "province or territory code, e.g. ON")
	cmd.Flags().StringVar(&date, "date", "", "construction or permit date, YYYY-MM-DD")
	cmd.Flags().StringVar(&identity, "identity", "cli", "account id, or client address for the anonymous tier")
	cmd.Flags().StringVar(&tierName, "tier", "pro", "quota tier: anonymous, free or pro")
	cmd.Flags().StringSliceVar(&sections, "section", nil, "section reference matched against passage ids, repeatable")
	cmd.Flags().IntVar(&limit, "limit", 0, "results per content set (configured default when 0)")
	cmd.Flags().BoolVar(&publishEvents, "publish-events", false, "publish usage events to Kafka")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
