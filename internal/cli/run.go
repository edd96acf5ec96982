package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/geotile/internal/health"
	"github.com/ChuLiYu/geotile/internal/metrics"
	"github.com/ChuLiYu/geotile/internal/pipeline"
)

func (a *app) buildRunCommand() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "run <folder>",
		Short: "Start workers on a job folder",
		Long: `Build the ledger if it is missing, then claim and process jobs until
every job is DONE. Several processes (or --workers) may run on the same
folder at once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWorkers(cmd.Context(), args[0], workers)
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of in-process workers")
	return cmd
}

func (a *app) runWorkers(ctx context.Context, folder string, workers int) error {
	if workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	if fi, err := os.Stat(folder); err != nil || !fi.IsDir() {
		return fmt.Errorf("job folder %s is not a directory", folder)
	}

	cfg, log, err := a.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Collector
	if cfg.Metrics.Enabled {
		m = metrics.NewCollector()
		go func() {
			log.Infow("Starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Errorw("Metrics server error", "error", err)
			}
		}()
	}

	pc := cfg.pipelineConfig(folder, log, m)

	if cfg.Health.Enabled {
		hs := health.New(log)
		go func() {
			if err := hs.ListenAndServe(cfg.Health.Port); err != nil {
				log.Errorw("Health server error", "error", err)
			}
		}()
		defer hs.Stop()
		pc.OnServing = servingTracker(hs.SetServing)
	}

	log.Infow("Starting workers", "folder", folder, "workers", workers, "config", a.configFile)

	err = pipeline.RunWorkers(ctx, pc, workers)
	switch {
	case err == nil:
		log.Infow("All jobs done; exiting", "folder", folder)
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		log.Infow("Received shutdown signal; in-progress jobs need reset", "folder", folder)
		return nil
	default:
		log.Errorw("Worker stopped", "folder", folder, "error", err)
		return err
	}
}

// servingTracker 只要仍有 worker 迴圈在執行就回報 SERVING
func servingTracker(set func(bool)) func(bool) {
	var mu sync.Mutex
	active := 0
	return func(serving bool) {
		mu.Lock()
		defer mu.Unlock()
		if serving {
			active++
		} else if active > 0 {
			active--
		}
		set(active > 0)
	}
}
