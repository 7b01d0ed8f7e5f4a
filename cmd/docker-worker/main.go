package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/indygreg/docker-worker/pkg/api"
	"github.com/indygreg/docker-worker/pkg/clock"
	"github.com/indygreg/docker-worker/pkg/config"
	"github.com/indygreg/docker-worker/pkg/log"
	"github.com/indygreg/docker-worker/pkg/metrics"
	"github.com/indygreg/docker-worker/pkg/queue"
	"github.com/indygreg/docker-worker/pkg/runtime"
	"github.com/indygreg/docker-worker/pkg/storage"
	"github.com/indygreg/docker-worker/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docker-worker",
	Short: "docker-worker - container task execution worker",
	Long: `docker-worker claims task runs from an upstream queue, executes
each one inside a container, streams the task log, and reports the
outcome. It holds no queue state of its own; everything it knows about
a task comes from the claim it holds.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"docker-worker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the worker",
	Long: `Run the worker until interrupted.

The worker polls the queue for pending tasks, claims each run, executes
it in a container, and reports the result. A small HTTP server exposes
health, metrics, and recent run history.

Examples:
  # Run with a config file
  docker-worker run --config /etc/docker-worker/config.yaml

  # Run against a local queue with identity flags
  docker-worker run --worker-id worker-1 --worker-type builder \
    --provisioner-id dev --worker-group local \
    --queue-url http://localhost:8000`,
	RunE: runWorker,
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Path to YAML config file")
	runCmd.Flags().String("provisioner-id", "", "Provisioner this worker serves")
	runCmd.Flags().String("worker-type", "", "Worker type to claim tasks for")
	runCmd.Flags().String("worker-group", "", "Group this worker belongs to")
	runCmd.Flags().String("worker-id", "", "Unique worker ID")
	runCmd.Flags().String("data-dir", "", "Directory for run state and history")
	runCmd.Flags().String("queue-url", "", "Base URL of the task queue")
	runCmd.Flags().String("queue-token", "", "Bearer token for queue calls")
	runCmd.Flags().String("listen-addr", "", "HTTP listen address for health and metrics")
	runCmd.Flags().String("containerd-socket", "", "Path to the containerd socket")
	runCmd.Flags().String("containerd-namespace", "", "Containerd namespace for run containers")
	runCmd.Flags().Int("capacity", 0, "Concurrent task runs (overrides config)")
	runCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	logger := log.WithWorkerID(cfg.Worker.WorkerID)
	logger.Info().
		Str("version", Version).
		Str("worker_type", cfg.Worker.WorkerType).
		Msg("docker-worker starting")
	metrics.SetVersion(Version)

	engine, err := runtime.NewContainerd(cfg.Runtime.Socket, cfg.Runtime.Namespace)
	if err != nil {
		metrics.SetComponentHealth("containerd", false, err.Error())
		return fmt.Errorf("failed to connect to containerd: %v", err)
	}
	defer engine.Close()
	metrics.SetComponentHealth("containerd", true, "")

	store, err := storage.NewRunStore(cfg.Worker.DataDir)
	if err != nil {
		metrics.SetComponentHealth("storage", false, err.Error())
		return fmt.Errorf("failed to open run store: %v", err)
	}
	defer store.Close()
	metrics.SetComponentHealth("storage", true, "")

	q := queue.NewClient(
		cfg.Queue.BaseURL,
		cfg.Queue.AccessToken,
		cfg.Identity(),
		time.Duration(cfg.Queue.Timeout)*time.Second,
		log.WithComponent("queue"),
	)
	metrics.SetComponentHealth("queue", true, "")

	w, err := worker.New(cfg, q, engine, store, clock.Real(), log.WithComponent("worker"))
	if err != nil {
		return fmt.Errorf("failed to create worker: %v", err)
	}

	collector := metrics.NewCollector(store, engine, 30*time.Second)
	collector.Start()

	apiServer := api.NewServer(cfg.Server.ListenAddr, store, log.WithComponent("api"))
	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- err
		}
	}()

	w.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("HTTP server failed, shutting down")
	}

	w.Stop()
	collector.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("docker-worker stopped")
	return nil
}

// loadConfig builds the effective configuration: file if given,
// defaults otherwise, then flag overrides, then validation.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	applyFlagOverrides(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("provisioner-id"); v != "" {
		cfg.Worker.ProvisionerID = v
	}
	if v, _ := cmd.Flags().GetString("worker-type"); v != "" {
		cfg.Worker.WorkerType = v
	}
	if v, _ := cmd.Flags().GetString("worker-group"); v != "" {
		cfg.Worker.WorkerGroup = v
	}
	if v, _ := cmd.Flags().GetString("worker-id"); v != "" {
		cfg.Worker.WorkerID = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Worker.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("queue-url"); v != "" {
		cfg.Queue.BaseURL = v
	}
	if v, _ := cmd.Flags().GetString("queue-token"); v != "" {
		cfg.Queue.AccessToken = v
	}
	if v, _ := cmd.Flags().GetString("listen-addr"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("containerd-socket"); v != "" {
		cfg.Runtime.Socket = v
	}
	if v, _ := cmd.Flags().GetString("containerd-namespace"); v != "" {
		cfg.Runtime.Namespace = v
	}
	if v, _ := cmd.Flags().GetInt("capacity"); v > 0 {
		cfg.Worker.Capacity = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
}
