// Package main runs the hookrelay service: webhook event ingestion with
// idempotent deduplication and trigger-based agent dispatch.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hookrelay/hookrelay/internal/app"
	"github.com/hookrelay/hookrelay/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Optional .env for local development. Missing file is fine.
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	var (
		configFile  string
		dataDir     string
		httpAddr    string
		executorURL string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&executorURL, "executor-url", "", "Agent executor endpoint (empty logs fired sessions)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Hookrelay - webhook event log and trigger dispatch\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hookrelay [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hookrelay --data-dir /data/hookrelay\n")
		fmt.Fprintf(os.Stderr, "  hookrelay --config /etc/hookrelay/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  HOOKRELAY_DATA_DIR              Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  HOOKRELAY_HTTP_ADDR             HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  HOOKRELAY_DISPATCH_EXECUTOR_URL Agent executor endpoint\n")
		fmt.Fprintf(os.Stderr, "  HOOKRELAY_STORAGE_TYPE          Archive storage type (local, s3)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("hookrelay version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, dataDir, httpAddr, executorURL)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Printf("Received signal: %v", sig)

	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig layers file, environment and command line flags, flags winning.
func loadConfig(configFile, dataDir, httpAddr, executorURL string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if executorURL != "" {
		cfg.Dispatch.ExecutorURL = executorURL
	}

	return cfg, nil
}
