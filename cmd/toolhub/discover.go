package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolhub/internal/app"
)

func newDiscoverCmd(opts *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Connect to every configured provider and print the discovered catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(opts)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application := app.New(logger)
			return application.Run(ctx, app.RunOptions{
				ConfigPath: opts.configPath,
				Watch:      watch,
				OnCycle: func(session *app.Session) {
					if err := printCycle(session, opts.jsonOutput); err != nil {
						logger.Warn("print cycle failed", zap.Error(err))
					}
				},
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "stay resident and rediscover on config changes")

	return cmd
}
