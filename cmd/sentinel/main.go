package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/journal-sentinel/internal/audit"
	"github.com/raaihank/journal-sentinel/internal/config"
	"github.com/raaihank/journal-sentinel/internal/logger"
	"github.com/raaihank/journal-sentinel/internal/proxy"
	"github.com/raaihank/journal-sentinel/internal/telemetry"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("journal-sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *healthCheck {
		performHealthCheck(cfg.Server.Port)
		return
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Runs after every other deferred cleanup, including log.Sync.
	exitCode := 0
	defer func() { os.Exit(exitCode) }()
	defer log.Sync()

	log.Info("Starting journal-sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder, err := telemetry.New(ctx, cfg.Telemetry, log.Logger)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer recorder.Close()

	deps := proxy.Dependencies{Recorder: recorder}
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(ctx, cfg.Audit, log.Logger)
		if err != nil {
			log.Fatal("Failed to initialize audit log", zap.Error(err))
		}
		defer store.Close()
		deps.Audit = store
	}

	proxy.Version = version
	server, err := proxy.New(cfg, log, deps)
	if err != nil {
		log.Fatal("Failed to create proxy server", zap.Error(err))
	}

	loader.Watch(func(newConfig *config.Config) {
		if err := server.Reload(newConfig); err != nil {
			log.Error("Failed to apply configuration change", zap.Error(err))
		}
	}, func(err error) {
		log.Error("Ignoring invalid configuration change", zap.Error(err))
	})

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start(ctx)
	}()

	if err := waitForShutdown(ctx, serverErrors, server.Stop, log); err != nil {
		exitCode = 1
	}
}

// waitForShutdown blocks until the server fails or ctx is cancelled. A server
// error is returned as is; on cancellation stop gets 30 seconds to drain
// outstanding requests.
func waitForShutdown(ctx context.Context, serverErrors <-chan error, stop func(context.Context) error, log *logger.Logger) error {
	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			return err
		}

		log.Info("Server shutdown complete")
		return nil
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(port int) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
