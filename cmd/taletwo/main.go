// Taletwo serves the interactive story engine: the HTTP reading API, the
// speculative page precompute workers, and the retention sweeper.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Sopamo/taletwo/pkg/api"
	"github.com/Sopamo/taletwo/pkg/auth"
	"github.com/Sopamo/taletwo/pkg/cleanup"
	"github.com/Sopamo/taletwo/pkg/config"
	"github.com/Sopamo/taletwo/pkg/database"
	"github.com/Sopamo/taletwo/pkg/llm"
	"github.com/Sopamo/taletwo/pkg/plan"
	"github.com/Sopamo/taletwo/pkg/services"
	"github.com/Sopamo/taletwo/pkg/store"
	"github.com/Sopamo/taletwo/pkg/story"
	"github.com/Sopamo/taletwo/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to the directory holding .env and taletwo.yaml")
	flag.Parse()

	// Load .env from the config directory before anything reads the
	// environment.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting taletwo", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database
	dbClient, err := database.NewClient(ctx, database.LoadConfigFromEnv())
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dbClient.Close(closeCtx); err != nil {
			slog.Error("Error closing MongoDB client", "error", err)
		}
	}()
	books := store.NewMongo(dbClient)
	slog.Info("Connected to MongoDB")

	// 3. Model gateway
	gateway, err := llm.NewGateway(llm.GatewayOptions{
		APIKey:       cfg.OpenAI.APIKey,
		BaseURL:      cfg.OpenAI.BaseURL,
		DefaultModel: cfg.OpenAI.Model,
		TPMBudget:    cfg.OpenAI.TPMBudget,
	})
	if err != nil {
		slog.Error("Failed to initialize model gateway", "error", err)
		os.Exit(1)
	}

	// 4. Story engine
	plans := plan.NewEngine(books, gateway, cfg.Models)
	generator := story.NewGenerator(gateway, cfg.Models)
	tasks := story.NewScheduler()
	coordinator := story.NewCoordinator(books, generator, plans, tasks)
	runtime := story.NewRuntime(books, plans, generator, coordinator, tasks)

	// 5. Token verification
	var verifier auth.Verifier
	if cfg.AuthDisabled {
		verifier = auth.InsecureVerifier{UserID: "dev-user"}
		slog.Warn("Authentication disabled, every request acts as the development user")
	} else {
		verifier, err = auth.NewFirebaseVerifier(ctx, cfg.FirebaseCredentialsJSON)
		if err != nil {
			slog.Error("Failed to initialize token verifier", "error", err)
			os.Exit(1)
		}
	}

	// 6. Retention sweeper
	sweeper := cleanup.NewService(cfg.Retention, books)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 7. HTTP server
	server := api.NewServer(api.ServerParams{
		Config:   cfg,
		Books:    services.NewBookService(books),
		Stories:  runtime,
		Verifier: verifier,
		DB:       dbClient,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Port); err != nil {
			errCh <- err
		}
	}()
	slog.Info("Taletwo started", "port", cfg.Port)

	// 8. Wait for a shutdown signal or a server failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: drain requests first so no new background work
	// is scheduled, then wait for precompute and adaptation in flight.
	httpCtx, httpCancel := context.WithTimeout(ctx, 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	tasksCtx, tasksCancel := context.WithTimeout(ctx, 30*time.Second)
	defer tasksCancel()
	if err := tasks.Stop(tasksCtx); err != nil {
		slog.Warn("Background tasks did not finish before shutdown deadline", "error", err)
	}

	slog.Info("Shutdown complete")
}
