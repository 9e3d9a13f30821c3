// Command meetingbot serves the meeting assistant and ships operator tooling.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Protocol-Lattice/meeting-agent/pkg/config"
	"github.com/Protocol-Lattice/meeting-agent/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFiles []string

	root := &cobra.Command{
		Use:           "meetingbot",
		Short:         "Meeting assistant agent over a Supabase document store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", config.DefaultEnvFiles, "dotenv files to load before reading the environment")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.Load(envFiles...)
		if err != nil {
			return nil, nil, err
		}
		logger := observability.NewLogger(observability.LogConfig{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			Output: os.Stderr,
		})
		slog.SetDefault(logger)
		return cfg, logger, nil
	}

	root.AddCommand(
		newServeCommand(load),
		newSearchTravelCommand(load),
		newOrgsCommand(load),
	)
	return root
}

type loader func() (*config.Config, *slog.Logger, error)

// closeAll runs the closers in reverse order and joins their errors.
func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newOrgsCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "orgs",
		Short: "Print the organization catalog used for name validation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			catalog := loadCatalog(cfg, logger)
			return printCatalog(cmd.OutOrStdout(), catalog.Source(), catalog.Names())
		},
	}
}

func printCatalog(w io.Writer, source string, names []string) error {
	if _, err := fmt.Fprintf(w, "source: %s\norganizations: %d\n", source, len(names)); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "  %s\n", name); err != nil {
			return err
		}
	}
	return nil
}
