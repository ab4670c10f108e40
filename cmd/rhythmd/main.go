// Rhythmd extracts commitments from conversation transcripts and turns
// them into scheduled actions.
//
// The daemon runs the extraction pipeline (LLM strategy with a rule-based
// fallback), persists actions in SQLite, and serves the HTTP API with
// scheduling suggestions.
//
// Usage:
//
//	# Start server with defaults
//	rhythmd
//
//	# Configure via environment
//	SERVER_PORT=9090 EXTRACTION_API_KEY=sk-... rhythmd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/myrhythm/rhythmd/internal/config"
	"github.com/myrhythm/rhythmd/internal/extraction"
	"github.com/myrhythm/rhythmd/internal/http"
	"github.com/myrhythm/rhythmd/internal/logging"
	"github.com/myrhythm/rhythmd/internal/pipeline"
	"github.com/myrhythm/rhythmd/internal/schedule"
	"github.com/myrhythm/rhythmd/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/rhythmd/config.yaml)")
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
			fmt.Fprintf(os.Stderr, "  rhythmd           Start the rhythmd daemon\n")
			fmt.Fprintf(os.Stderr, "  rhythmd version   Show version information\n")
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

func printVersion() {
	fmt.Printf("rhythmd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the daemon together and blocks until the context is
// cancelled. Returns nil on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting rhythmd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("db_path", cfg.Database.Path),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	extractor := buildExtractor(cfg, logger)
	engine := schedule.NewEngine(logger)
	svc := pipeline.NewService(extractor, st, engine, logger, pipeline.Options{
		MaxTranscriptChars: cfg.Extraction.MaxTranscriptChars,
		HorizonDays:        cfg.Scheduling.HorizonDays,
		SuggestionLimit:    cfg.Scheduling.SuggestionLimit,
	})

	server, err := http.NewServer(svc, logger, &http.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// buildExtractor assembles the strategy chain from configuration. The
// rule-based extractor is always present as the terminal fallback; the
// LLM strategy joins the chain only when configured with an API key.
func buildExtractor(cfg *config.Config, logger *zap.Logger) extraction.Extractor {
	rules := extraction.NewRuleExtractor(extraction.DefaultRuleConfig(), logger)

	if cfg.Extraction.Provider == "openai" && cfg.Extraction.APIKey != "" {
		llm := extraction.NewLLMExtractor(extraction.LLMConfig{
			APIKey:  cfg.Extraction.APIKey,
			BaseURL: cfg.Extraction.BaseURL,
			Model:   cfg.Extraction.Model,
			Timeout: int(cfg.Extraction.Timeout.Seconds()),
		}, logger)
		return extraction.NewChain(logger, llm, rules)
	}

	logger.Info("llm extraction disabled, using rule-based extraction only")
	return extraction.NewChain(logger, rules)
}
