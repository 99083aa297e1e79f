package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/IskanderBlue/CodeChronicle/pkg/config"
	"github.com/IskanderBlue/CodeChronicle/pkg/logger"
)

type rootOptions struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "chronicle",
		Short:        "Resolve building code editions and search their passages",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			// stdout carries command output.
			slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
			opts.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (defaults plus CC_* environment when empty)")

	cmd.AddCommand(
		newResolveCmd(opts),
		newValidateCmd(opts),
		newSearchCmd(opts),
		newLoadMapsCmd(opts),
		newRebuildCmd(opts),
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
