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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/migadu/sera/config"
	"github.com/migadu/sera/db"
	"github.com/migadu/sera/engine"
	"github.com/migadu/sera/logger"
	"github.com/migadu/sera/mailer"
)

func main() {
	cfg := config.NewDefaultConfig()

	// Flags override values from the config file if set.
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	fLogOutput := flag.String("logoutput", cfg.Logging.Output, "Log output: 'stderr', 'stdout', 'syslog' or a file path (overrides config)")
	fLogLevel := flag.String("loglevel", cfg.Logging.Level, "Log level: debug, info, warn, error (overrides config)")
	fSweepInterval := flag.String("sweepinterval", cfg.Engine.SweepInterval, "Interval between sweep ticks (overrides config)")
	fMetricsAddr := flag.String("metricsaddr", cfg.Metrics.Addr, "Metrics listen address (overrides config)")

	flag.Parse()

	found, err := config.Load(*configPath, &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "logoutput":
			cfg.Logging.Output = *fLogOutput
		case "loglevel":
			cfg.Logging.Level = *fLogLevel
		case "sweepinterval":
			cfg.Engine.SweepInterval = *fSweepInterval
		case "metricsaddr":
			cfg.Metrics.Addr = *fMetricsAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if !found {
		logger.Info("configuration file not found, using defaults", "path", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDatabaseFromConfig(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()
	database.StartPoolMetrics(ctx)

	opts, err := engineOptions(&cfg.Engine)
	if err != nil {
		logger.Fatal("invalid engine configuration", "error", err)
	}

	messenger := mailer.New(&cfg.Mailer, database)
	eng := engine.New(database, messenger, nil, opts)
	eng.Start(ctx)
	defer eng.Stop()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.GetPath(), promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.GetAddr(), Handler: mux}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.GetAddr())
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("sera started", "sweep_interval", opts.SweepInterval)
	<-ctx.Done()
	logger.Info("shutting down")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func engineOptions(cfg *config.EngineConfig) (engine.Options, error) {
	sweepInterval, err := cfg.GetSweepInterval()
	if err != nil {
		return engine.Options{}, err
	}
	processingTimeout, err := cfg.GetProcessingTimeout()
	if err != nil {
		return engine.Options{}, err
	}
	logRetention, err := cfg.GetLogRetention()
	if err != nil {
		return engine.Options{}, err
	}
	purgeInterval, err := cfg.GetPurgeInterval()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		SweepInterval:      sweepInterval,
		CandidateBatchSize: cfg.GetCandidateBatchSize(),
		ProcessingTimeout:  processingTimeout,
		LogRetention:       logRetention,
		PurgeInterval:      purgeInterval,
	}, nil
}
