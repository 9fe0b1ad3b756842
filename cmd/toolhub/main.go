package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
	debug      bool
	jsonOutput bool
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := rootOptions{
		configPath: "toolhub.yaml",
	}

	root := &cobra.Command{
		Use:           "toolhub",
		Short:         "Tool-provider discovery hub for the coding assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addRootFlags(root.PersistentFlags(), &opts)

	root.AddCommand(
		newDiscoverCmd(&opts),
		newCatalogCmd(&opts),
		newValidateCmd(&opts),
	)

	return root
}

func addRootFlags(flags *pflag.FlagSet, opts *rootOptions) {
	flags.StringVar(&opts.configPath, "config", opts.configPath, "path to the toolhub config file")
	flags.BoolVar(&opts.debug, "debug", false, "verbose development logging")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output JSON")
}

func newLogger(opts *rootOptions) (*zap.Logger, error) {
	if opts.debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
