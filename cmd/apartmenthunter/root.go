package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"ApartmentHunter/internal/app"
	"ApartmentHunter/internal/config"
	"ApartmentHunter/internal/domain"
	"ApartmentHunter/internal/logging"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "apartmenthunter",
		Short:         "Scan rental listings, keep the new ones and notify about matches",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (default $APARTMENT_HUNTER_CONFIG)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newScanCommand(opts),
		newRunCommand(opts),
		newStatusCommand(opts),
		newTestCommand(opts),
		newPurgeCommand(opts),
	)
	return root
}

// bootstrap loads config, builds the logger and the application. The returned
// cleanup closes both.
func bootstrap(cmd *cobra.Command, opts *rootOptions) (*app.Application, *slog.Logger, func(), error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}

	logger, logFile, err := logging.NewWithFile(cfg.Logging.Level, cfg.Logging.Dir, time.Now())
	if err != nil {
		return nil, nil, nil, err
	}

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logFile.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := application.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
		_ = logFile.Close()
	}
	return application, logger, cleanup, nil
}

func newScanCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, logger, cleanup, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			session, err := application.Scan(cmd.Context())
			if err != nil && !errors.Is(err, domain.ErrStoreFailure) {
				return err
			}
			// A failed cycle is reported in the session, not through the exit code.
			printSession(cmd.OutOrStdout(), session)
			if err != nil {
				logger.Error("scan aborted by store failure", "error", err)
			}
			return nil
		},
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan repeatedly on the configured schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, logger, cleanup, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			logger.Info("apartment hunting started, press Ctrl+C to stop")
			err = application.Run(cmd.Context())
			logger.Info("apartment hunting stopped")
			return err
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print store statistics and recent matches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, cleanup, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			summary, listings, err := application.Status(cmd.Context(), recent)
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), summary, listings)
			return nil
		},
	}
	cmd.Flags().IntVar(&recent, "recent", 10, "number of recent matching listings to show")
	return cmd
}

func newTestCommand(opts *rootOptions) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Self-check store, filter, notifiers and scraper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, cleanup, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			results := application.SelfCheck(cmd.Context(), offline)
			renderChecks(cmd.OutOrStdout(), results)
			if !app.Healthy(results) {
				return errors.New("self-check failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip fetching a live search page")
	return cmd
}

func newPurgeCommand(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete listings not seen within the given window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, cleanup, err := bootstrap(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := application.Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d listings\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "purge listings last seen before now minus this duration")
	return cmd
}

func printSession(w io.Writer, s domain.ScanSession) {
	fmt.Fprintf(w, "scan %s: %d pages, %d scraped, %d new, %d passed filters, %d notified\n",
		s.Status, s.PagesFetched, s.Extracted, s.New, s.Passed, s.Notified)
	if s.Broken() {
		fmt.Fprintf(w, "warning: no usable page (fetch failures %d, unrecognized %d)\n", s.FetchFailures, s.PagesUnrecognized)
	}
}
