package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/xiongxionghk/api-pool-gateway/pkg/cli"
	"github.com/xiongxionghk/api-pool-gateway/pkg/config"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/admin"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/dispatch"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/healthstate"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/httpapi"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/logsink"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/registry"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/selector"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/store"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/upstream"
	"github.com/xiongxionghk/api-pool-gateway/pkg/server"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/health"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/logging"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	seedPath      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Mercator gateway server",
	Long: `Start the Mercator gateway server with the specified configuration.

The server listens on the configured address, multiplexing client traffic
across the configured providers via the pool-based selector and dispatcher.

Examples:
  # Start with default config
  mercator run

  # Override listen address
  mercator run --listen 0.0.0.0:8080

  # Bulk-import providers/endpoints from a seed file on first boot
  mercator run --seed providers.yaml

  # Validate config without starting server
  mercator run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.seedPath, "seed", "", "YAML file to bulk-import providers/endpoints/pools from on startup")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.LogLevel = runFlags.logLevel
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		RedactPII: true,
	})
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("invalid logging configuration: %v", err))
	}
	defer logger.Shutdown()

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	logger.Info("opening store", "path", cfg.DBPath)
	st, err := store.Open(&store.Config{Path: cfg.DBPath, MaxOpenConns: 10, BusyTimeout: 5 * time.Second})
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("open store: %w", err))
	}
	defer st.Close()

	reg := registry.New(st, logger)
	if err := reg.Load(context.Background(), cfg.DefaultPoolConfigs()); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("load registry: %w", err))
	}

	healthState := healthstate.New()
	for _, e := range reg.ListEndpoints("") {
		healthState.Track(e)
	}

	if runFlags.seedPath != "" {
		seed, err := config.LoadSeed(runFlags.seedPath)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("load seed: %w", err))
		}
		if err := seed.Apply(context.Background(), reg); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("apply seed: %w", err))
		}
		for _, e := range reg.ListEndpoints("") {
			healthState.Track(e)
		}
		fmt.Printf("✓ Seed file applied (%s)\n", runFlags.seedPath)
	}

	collector := metrics.NewCollector(nil)

	sel := selector.New(reg, healthState)
	dispatcher := dispatch.New(reg, sel, healthState, st, logger, collector)

	sink := logsink.New(st, cfg.LogPruneCap, logger)
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	if err := sink.StartScheduler(schedulerCtx, cfg.LogPruneSchedule); err != nil {
		logger.Warn("failed to start log prune scheduler", "error", err)
	} else {
		defer sink.Stop()
	}

	upstreamPool := upstream.NewPool()
	defer upstreamPool.CloseIdle()

	checker := health.New(5 * time.Second)
	checker.RegisterCheck("store", func(ctx context.Context) error {
		_, _, _, err := st.LoadAll(ctx)
		return err
	})

	clientHandler := httpapi.New(dispatcher, reg, logger)
	adminHandler := admin.New(reg, healthState, sink, upstreamPool, logger)

	srv := server.NewServer(server.Config{
		ListenAddress:   cfg.ListenAddress,
		AdminPassword:   cfg.AdminPassword,
		ShutdownTimeout: cfg.ShutdownTimeout,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0, // streaming responses have no fixed upper bound
		IdleTimeout:     120 * time.Second,
	}, clientHandler, adminHandler, collector, checker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "address", cfg.ListenAddress)
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	if err := waitForServerReady(cfg.ListenAddress, 5*time.Second); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.ListenAddress)
	fmt.Printf("✓ Metrics endpoint: http://%s/admin/metrics\n", cfg.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Mercator v%s\n", Version)
	fmt.Printf("✓ Configuration loaded (listen=%s, db=%s)\n", cfg.ListenAddress, cfg.DBPath)
}

func waitForServerReady(address string, timeout time.Duration) error {
	time.Sleep(100 * time.Millisecond)
	return nil
}
