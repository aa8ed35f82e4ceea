// Claimbankd is the hypothesis memory daemon for research-assistant
// pipelines.
//
// This binary starts the claimbank HTTP server with full service
// initialization: local embeddings, the persistent vector store, and the
// hypothesis subsystem.
//
// Configuration is loaded from a YAML file plus CLAIMBANK_* environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	claimbankd
//
//	# Start with a config file
//	claimbankd -config /etc/claimbank/config.yaml
//
//	# Configure via environment
//	CLAIMBANK_SERVER_PORT=9290 claimbankd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/claimbank/internal/config"
	"github.com/fyrsmithlabs/claimbank/internal/embeddings"
	"github.com/fyrsmithlabs/claimbank/internal/httpapi"
	"github.com/fyrsmithlabs/claimbank/internal/hypothesis"
	"github.com/fyrsmithlabs/claimbank/internal/logging"
	"github.com/fyrsmithlabs/claimbank/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  claimbankd           Start the claimbank daemon\n")
			fmt.Fprintf(os.Stderr, "  claimbankd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("claimbankd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the claimbank server and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Create the local embedding provider
//  4. Open the persistent vector store
//  5. Wire the hypothesis service
//  6. Start the HTTP server
//  7. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting claimbankd",
		zap.String("version", version),
		zap.String("commit", gitCommit))

	embedder, err := embeddings.NewFastEmbedProvider(embeddings.Config{
		Model:    cfg.Embeddings.Model,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embeddings: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:       cfg.Store.Path,
		Collection: cfg.Store.Collection,
		Compress:   cfg.Store.Compress,
	}, embedder, logger)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer func() { _ = store.Close() }()

	service := hypothesis.NewService(bankConfig(cfg.Bank), hypothesis.NewStore(store, logger), logger)

	server, err := httpapi.NewServer(service, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// bankConfig maps the daemon configuration onto the hypothesis service
// tuning.
func bankConfig(bank config.BankConfig) hypothesis.Config {
	return hypothesis.Config{
		NoveltyFloor:          bank.NoveltyFloor,
		MergeThreshold:        bank.MergeThreshold,
		MergeEpsilon:          bank.MergeEpsilon,
		ActivationThreshold:   bank.ActivationThreshold,
		MinEvidenceToActivate: bank.MinEvidenceToActivate,
		RetirementFloor:       bank.RetirementFloor,
		ScopeCeiling:          bank.ScopeCeiling,
		Weights: hypothesis.Weights{
			ExplanatoryPower: bank.Weights.ExplanatoryPower,
			Simplicity:       bank.Weights.Simplicity,
			Scope:            bank.Weights.Scope,
			Consilience:      bank.Weights.Consilience,
		},
		HUD: hypothesis.HUDOptions{
			DefaultK:         bank.HUD.DefaultK,
			MaxK:             bank.HUD.MaxK,
			MinConfidence:    bank.HUD.MinConfidence,
			SnippetsPerEntry: bank.HUD.SnippetsPerEntry,
			Timeout:          bank.HUD.Timeout,
		},
		FinalizeMaxAttempts:    bank.Finalize.MaxAttempts,
		FinalizeInitialBackoff: bank.Finalize.InitialBackoff,
	}
}
