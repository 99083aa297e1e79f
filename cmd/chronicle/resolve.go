package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/IskanderBlue/CodeChronicle/internal/app"
	"github.com/IskanderBlue/CodeChronicle/internal/edition"
	apperrors "github.com/IskanderBlue/CodeChronicle/pkg/errors"
)

type resolvedEdition struct {
	CodeName      string   `json:"code_name"`
	EffectiveFrom string   `json:"effective_from"`
	SupersededAt  string   `json:"superseded_at,omitempty"`
	Alternative   bool     `json:"alternative"`
	ContentSets   []string `json:"content_sets"`
	Regulation    string   `json:"regulation,omitempty"`
}

type resolveOutput struct {
	System       string            `json:"system"`
	Jurisdiction string            `json:"jurisdiction,omitempty"`
	Date         string            `json:"date"`
	Editions     []resolvedEdition `json:"editions"`
}

func newResolveCmd(root *rootOptions) *cobra.Command {
	var (
		system       string
		jurisdiction string
		date         string
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show which editions applied on a date",
		Example: `  chronicle resolve --jurisdiction ON --date 2025-02-01
  chronicle resolve --system NBC --date 2019-06-30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := edition.ParseDate(date)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), root.cfg, app.Options{SkipCorpus: true})
			if err != nil {
				return err
			}
			defer a.Close()

			systems := []string{system}
			if system == "" {
				systems = a.Resolver.Catalog().SystemsFor(jurisdiction)
			}
			var out []resolveOutput
			for _, s := range systems {
				res, err := a.Resolver.Resolve(s, jurisdiction, d)
				if apperrors.Is(err, apperrors.ErrNoApplicableVersion) && system == "" {
					continue
				}
				if err != nil {
					return err
				}
				out = append(out, toOutput(res))
			}
			if len(out) == 0 {
				return fmt.Errorf("no code applies in %q on %s", jurisdiction, date)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "code system, e.g. OBC (all systems for the jurisdiction when empty)")
	cmd.Flags().StringVar(&jurisdiction, "jurisdiction", "", "province or territory code, e.g. ON")
	cmd.Flags().StringVar(&date, "date", "", "construction or permit date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func toOutput(res edition.Resolution) resolveOutput {
	out := resolveOutput{
		System:       res.System,
		Jurisdiction: res.Jurisdiction,
		Date:         res.Date.Format(time.DateOnly),
	}
	for i, v := range res.Versions {
		e := resolvedEdition{
			CodeName:      v.CodeName(),
			EffectiveFrom: v.EffectiveFrom.Format(time.DateOnly),
			Alternative:   i > 0,
			ContentSets:   v.ContentSets,
			Regulation:    v.Regulation,
		}
		if v.SupersededAt != nil {
			e.SupersededAt = v.SupersededAt.Format(time.DateOnly)
		}
		out.Editions = append(out.Editions, e)
	}
	return out
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Report gaps and overlaps in the edition catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), root.cfg, app.Options{SkipCorpus: true})
			if err != nil {
				return err
			}
			defer a.Close()
			issues := a.Resolver.Catalog().Validate()
			for _, inc := range issues {
				fmt.Fprintln(cmd.OutOrStdout(), inc.String())
			}
			if len(issues) > 0 {
				return fmt.Errorf("%d inconsistencies in edition catalog", len(issues))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "catalog ok")
			return nil
		},
	}
}
