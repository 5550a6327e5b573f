// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IlhamRichie/bps-ingest/internal/fetch"
	"github.com/IlhamRichie/bps-ingest/internal/pipeline"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingestions periodically until interrupted",
	Long: `Schedule runs every configured target on the cron schedule from the
"schedule" key (default "@every 6h") until SIGINT or SIGTERM. A run that is
still in progress when its next tick fires is skipped, never overlapped.

The store connection is opened once and shared by all runs.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().String("cron", "", "cron spec overriding the schedule key, e.g. \"0 */6 * * *\" or \"@hourly\"")
	scheduleCmd.Flags().Bool("now", false, "run every target once at startup")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if spec, _ := cmd.Flags().GetString("cron"); spec != "" {
		cfg.Schedule = spec
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	p := pipeline.New(cfg, fetch.New(cfg.Fetch), st, logger)
	sched := pipeline.NewScheduler(p, logger)
	targets := cfg.AllTargets()
	for _, t := range targets {
		if err := sched.Add(cfg.Schedule, t); err != nil {
			return err
		}
	}

	sched.Start(ctx)
	if now, _ := cmd.Flags().GetBool("now"); now {
		for _, t := range targets {
			res, err := sched.RunOnce(ctx, t)
			if errors.Is(err, pipeline.ErrRunInProgress) {
				continue
			}
			if res != nil {
				printSummary(cmd.OutOrStdout(), res)
			}
		}
	}

	<-ctx.Done()
	logger.Info("shutting down, waiting for in-flight runs")
	sched.Stop()
	return nil
}
