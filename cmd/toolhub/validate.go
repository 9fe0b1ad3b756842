package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"toolhub/internal/app"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without contacting providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			application := app.New(logger)
			cfg, err := application.Validate(cmd.Context(), opts.configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			if opts.jsonOutput {
				return writeJSON(cfg)
			}

			names := make([]string, 0, len(cfg.Providers))
			for name := range cfg.Providers {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Printf("config ok: %d providers, trusted=%v\n", len(names), cfg.Workspace.Trusted)
			for _, name := range names {
				spec := cfg.Providers[name]
				fmt.Printf("  %s (%s)\n", name, spec.Transport)
			}
			return nil
		},
	}
}
