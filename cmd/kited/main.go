package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitemesh/kite/pkg/config"
	"github.com/kitemesh/kite/pkg/coordinator"
	"github.com/kitemesh/kite/pkg/graph"
	"github.com/kitemesh/kite/pkg/observability/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kited",
		Short: "Run the kite coordinator",
		Run:   runCoordinator,
	}
	rootCmd.Flags().String("addr", "", "RPC listen address (overrides config)")
	rootCmd.Flags().String("config", "", "Path to config file")
	rootCmd.Flags().Bool("metrics", false, "Serve Prometheus metrics on /metrics")
	rootCmd.Flags().String("graph-snapshot", "", "Periodically write the graph JSON to this path")
	rootCmd.Flags().Bool("debug", false, "Enable debug logging")

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("failed to execute command: %q", err)
	}
}

func runCoordinator(cmd *cobra.Command, _ []string) {
	addr, _ := cmd.Flags().GetString("addr")
	configPath, _ := cmd.Flags().GetString("config")
	metricsFlag, _ := cmd.Flags().GetBool("metrics")
	snapshotPath, _ := cmd.Flags().GetString("graph-snapshot")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg := &config.Config{}
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	} else {
		loaded, err := config.Load("kite.yaml")
		if err == nil {
			cfg = loaded
		}
	}
	if addr != "" {
		cfg.CoordinatorAddr = addr
	}
	if metricsFlag {
		cfg.Metrics = true
	}
	if snapshotPath != "" {
		cfg.GraphSnapshotPath = snapshotPath
	}

	logging.Init(debug || cfg.Debug)
	defer zap.S().Sync() //nolint:errcheck
	logger := zap.S()
	logger.Infow("starting kited...", "addr", cfg.CoordinatorAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := graph.New()
	var metrics *coordinator.Metrics
	if cfg.Metrics {
		metrics = coordinator.NewMetrics()
	}
	svc := coordinator.NewService(g, coordinator.NewPusher(metrics), metrics)
	srv := coordinator.NewServer(coordinator.ServerConfig{Address: cfg.CoordinatorAddr}, svc, metrics)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Listen(ctx)
	})
	if cfg.GraphSnapshotPath != "" {
		eg.Go(func() error {
			snapshotLoop(ctx, g, cfg.GraphSnapshotPath, cfg.SnapshotInterval)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Fatal(err)
	}
}

// snapshotLoop periodically writes the graph JSON atomically so
// external tooling can watch the file.
func snapshotLoop(ctx context.Context, g *graph.Graph, path string, interval time.Duration) {
	logger := zap.S().Named("snapshot")
	if interval <= 0 {
		interval = config.DefaultSnapshotInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			raw, err := g.JSON()
			if err != nil {
				logger.Warnw("graph serialization failed", "err", err)
				continue
			}
			if err := renameio.WriteFile(path, raw, 0o644); err != nil {
				logger.Warnw("graph snapshot write failed", "path", path, "err", err)
			}
		}
	}
}
