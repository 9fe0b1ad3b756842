package main

import (
	"github.com/spf13/cobra"

	"toolhub/internal/app"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the aggregated tool and prompt catalog",
		Long: "Runs one discovery cycle and prints the aggregated catalog." +
			" With --cached, prints each provider's last persisted catalog" +
			" without contacting any provider.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)

			if cached {
				entries, err := application.CachedCatalog(ctx, opts.configPath)
				if err != nil {
					return err
				}
				return printCachedEntries(entries, opts.jsonOutput)
			}

			return application.Run(ctx, app.RunOptions{
				ConfigPath: opts.configPath,
				OnCycle: func(session *app.Session) {
					_ = printCatalog(session.Catalog(), opts.jsonOutput)
				},
			})
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "read the persisted catalog cache instead of contacting providers")

	return cmd
}
