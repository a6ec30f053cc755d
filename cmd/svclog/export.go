package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oakfield/servicelog/internal/model"
	"github.com/oakfield/servicelog/internal/sync"
)

// storeSource adapts the typed stores to the export source.
type storeSource struct{}

func (storeSource) ListActivities(ctx context.Context) ([]*model.Activity, error) {
	return activities.List(ctx, model.Filter{})
}

func (storeSource) ListTasks(ctx context.Context) ([]*model.Task, error) {
	return tasks.List(ctx, model.Filter{})
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all records as JSONL to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sync.ExportJSONL(cmd.Context(), storeSource{}, os.Stdout)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the periodic off-site export until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.SyncInterval <= 0 {
			return fmt.Errorf("SVCLOG_SYNC_INTERVAL is 0: sync disabled")
		}

		var destinations []sync.Destination
		if cfg.SyncS3Bucket != "" {
			d, err := sync.NewS3Destination(cmd.Context(), cfg.SyncS3Bucket, cfg.SyncS3Key, cfg.SyncS3Region, cfg.SyncS3Endpoint)
			if err != nil {
				return err
			}
			destinations = append(destinations, d)
		}
		if cfg.SyncGitRepo != "" {
			destinations = append(destinations, sync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		}
		if len(destinations) == 0 {
			return fmt.Errorf("no sync destinations configured")
		}

		sched := sync.NewScheduler(storeSource{}, destinations, cfg.SyncInterval, logger)
		sched.Start()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		logger.Info("stopping sync")
		sched.Stop()
		return nil
	},
}
