package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/veridata-labs/veridata-engine/pkg/adapters/datasource"
	_ "github.com/veridata-labs/veridata-engine/pkg/adapters/datasource/mysql"
	_ "github.com/veridata-labs/veridata-engine/pkg/adapters/datasource/postgres"
	_ "github.com/veridata-labs/veridata-engine/pkg/adapters/datasource/sqlserver"
	"github.com/veridata-labs/veridata-engine/pkg/config"
	"github.com/veridata-labs/veridata-engine/pkg/handlers"
	"github.com/veridata-labs/veridata-engine/pkg/llm"
	"github.com/veridata-labs/veridata-engine/pkg/logging"
	"github.com/veridata-labs/veridata-engine/pkg/middleware"
	"github.com/veridata-labs/veridata-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("source_dialect", cfg.Source.Dialect),
		zap.String("target_dialect", cfg.Target.Dialect),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapters, err := openAdapters(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect databases", zap.Error(err))
	}
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()

	llmClient, err := llm.New(&llm.Config{
		Provider: cfg.LLM.Provider,
		Endpoint: cfg.LLM.Endpoint,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to build LLM client", zap.Error(err))
	}

	schemaService := services.NewSchemaService(adapters, logger)
	generator := services.NewTestCaseGenerator(llmClient, services.GeneratorConfig{
		Temperature:  cfg.LLM.Temperature,
		MaxTestCases: cfg.Validation.MaxTestCases,
	}, logger)
	compiler := services.NewTestCaseCompiler(logger)
	executor := services.NewQueryExecutor(adapters, services.ExecutorConfig{
		QueryTimeout: cfg.Validation.QueryTimeout(),
		SampleCap:    cfg.Validation.RowSampleCap,
	}, logger)
	comparator := services.NewComparator(logger)
	orchestrator := services.NewValidationOrchestrator(
		schemaService, generator, compiler, executor, comparator,
		services.OrchestratorConfig{
			Workers:      cfg.Validation.Workers,
			QueryTimeout: cfg.Validation.QueryTimeout(),
			RunTimeout:   cfg.Validation.RunTimeout(),
			SampleCap:    cfg.Validation.RowSampleCap,
		}, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, schemaService, logger).RegisterRoutes(mux)
	handlers.NewValidationHandler(orchestrator, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(executor, generator, schemaService, logger).RegisterRoutes(mux)
	handlers.NewSchemaHandler(schemaService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting veridata-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}

// openAdapters connects both database roles. Startup fails when either
// role is unreachable.
func openAdapters(ctx context.Context, cfg *config.Config, logger *zap.Logger) (map[string]datasource.Adapter, error) {
	roles := map[string]*config.DatabaseConfig{
		services.SourceDatabaseID: &cfg.Source,
		services.TargetDatabaseID: &cfg.Target,
	}

	adapters := make(map[string]datasource.Adapter, len(roles))
	for role, db := range roles {
		adapter, err := datasource.Open(ctx, &datasource.Config{
			DatabaseID:     role,
			Dialect:        db.Dialect,
			URL:            db.URL,
			MaxConnections: int(db.MaxConnections),
			MinConnections: int(db.MinConnections),
		}, logger)
		if err != nil {
			for _, a := range adapters {
				_ = a.Close()
			}
			return nil, err
		}
		adapters[role] = adapter
	}
	return adapters, nil
}
