package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/draftcast-team/draftcast/internal/api"
	"github.com/draftcast-team/draftcast/internal/db"
	"github.com/draftcast-team/draftcast/internal/generator"
	"github.com/draftcast-team/draftcast/internal/guard"
	"github.com/draftcast-team/draftcast/internal/ratelimit"
	"github.com/draftcast-team/draftcast/internal/telemetry"
)

func main() {
	// Register Prometheus metrics
	telemetry.RegisterMetrics()

	ctx := context.Background()

	// Initialize tracing (no-op unless OTEL_EXPORTER_OTLP_ENDPOINT is set)
	shutdownTracing, err := telemetry.InitTracing(ctx, "draftcast-api")
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	// Guard configuration: built-in defaults, optionally overlaid from YAML
	guardCfg := guard.DefaultConfig()
	if path := os.Getenv("GUARD_CONFIG"); path != "" {
		guardCfg, err = guard.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load guard config %s: %v", path, err)
		}
		log.Printf("Loaded guard config from %s", path)
	}

	library, err := guard.DefaultLibrary().WithExtraPatterns(guardCfg.ExtraInjectionPatterns, guardCfg.ExtraWarningPatterns)
	if err != nil {
		log.Fatalf("Failed to compile guard patterns: %v", err)
	}

	sanitizer := guard.NewSanitizer(library, guardCfg, guard.NewSecurityLog())
	quality := guard.NewQualityGate(library, guardCfg)

	// Database is optional: without it the service falls back to the
	// in-memory rate limit store and skips audit logging.
	var store ratelimit.Store
	var generationLog *generator.GenerationLogger
	var dbChecker api.DBChecker

	if os.Getenv("DATABASE_PASSWORD") != "" {
		dbConfig, err := db.ConfigFromEnv()
		if err != nil {
			log.Fatalf("Failed to load database config: %v", err)
		}

		database, err := db.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close(database)

		log.Println("Connected to database successfully")

		queries := db.NewQueries(database)
		generationLog = generator.NewGenerationLogger(queries)
		dbChecker = database

		rlStore := db.NewRateLimitStore(database)
		go rlStore.StartPurge(ctx, 10*time.Minute)
		store = rlStore
	} else {
		log.Println("DATABASE_PASSWORD not set, using in-memory rate limit store")
		memStore := ratelimit.NewMemoryStore()
		memStore.StartCleanup(ctx, time.Minute, 10*time.Minute)
		store = memStore
	}

	limiter, err := ratelimit.New(store, ratelimit.DefaultTiers())
	if err != nil {
		log.Fatalf("Failed to create rate limiter: %v", err)
	}

	// Create Echo instance
	e := echo.New()

	// Basic middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("draftcast-api"))

	// Create handlers
	handlers := api.NewHandlers(limiter, sanitizer)
	healthHandlers := api.NewHealthHandlers(dbChecker)

	// AI generation requires an OpenAI API key; without it the endpoint
	// responds 503
	if os.Getenv("OPENAI_API_KEY") != "" {
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			model = "gpt-4o-mini"
		}
		llm, err := openai.New(openai.WithModel(model))
		if err != nil {
			log.Fatalf("Failed to create OpenAI client: %v", err)
		}
		gen := generator.NewPostGenerator(llm, model, sanitizer, quality)
		handlers.SetGenerator(gen)
		log.Printf("AI post generation enabled with model %s", model)
	} else {
		log.Println("OPENAI_API_KEY not set, AI post generation disabled")
	}

	if generationLog != nil {
		handlers.SetLogger(generationLog)
	}

	// Setup routes (includes metrics and request ID middleware)
	api.SetupRoutes(e, handlers, healthHandlers, api.NewIPRateLimiterConfig())

	// Start server with graceful shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", port)
		log.Printf("Starting server on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal(err)
	}

	log.Println("Server shutdown complete")
}
