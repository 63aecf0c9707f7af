package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/ledgerline-ai/bulwark/internal/api"
	"github.com/ledgerline-ai/bulwark/internal/audit"
	"github.com/ledgerline-ai/bulwark/internal/engine"
	"github.com/ledgerline-ai/bulwark/internal/judge"
	"github.com/ledgerline-ai/bulwark/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("BULWARK_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("BULWARK_HTTP_PORT", "8080")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	judgeEndpoint := os.Getenv("BULWARK_JUDGE_ENDPOINT")
	judgeModel := envOrDefault("BULWARK_JUDGE_MODEL", "gpt-4o-mini")
	judgeTimeoutMs := envOrDefaultInt("BULWARK_JUDGE_TIMEOUT_MS", 10_000)
	defCacheTTL := envOrDefaultInt("BULWARK_GUARDRAIL_CACHE_TTL_S", 30)
	authCacheTTL := envOrDefaultInt("BULWARK_AUTH_CACHE_TTL_S", 30)

	logger.Info("starting bulwark server",
		zap.String("http_port", httpPort),
		zap.String("judge_model", judgeModel),
		zap.Int("judge_timeout_ms", judgeTimeoutMs),
	)

	// LLM judge — optional; guardrails using llm_judge checks report an
	// evaluation error when no endpoint is configured.
	var judgeClient judge.Client
	if judgeEndpoint != "" {
		judgeClient = judge.NewHTTPClient(judge.HTTPClientConfig{
			Endpoint: judgeEndpoint,
			Model:    judgeModel,
			APIKey:   os.Getenv("BULWARK_JUDGE_API_KEY"),
			Timeout:  time.Duration(judgeTimeoutMs) * time.Millisecond,
			Logger:   logger,
		})
		logger.Info("llm judge enabled", zap.String("endpoint", judgeEndpoint))
	} else {
		logger.Info("no BULWARK_JUDGE_ENDPOINT set, llm_judge checks will error")
	}

	orch := engine.NewOrchestrator(judgeClient, logger)

	// Audit sink — ClickHouse or LogWriter fallback
	var writer audit.Writer
	if clickhouseDSN != "" {
		chWriter, err := audit.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = audit.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = audit.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Postgres pool (required)
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	db, err := sql.Open("pgx", postgresDSN)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(context.Background()); err != nil {
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	pgStore := store.NewStore(db)
	logger.Info("postgres connected")

	deps := &api.Dependencies{
		Store:    pgStore,
		Defs:     store.NewDefinitionCache(time.Duration(defCacheTTL) * time.Second),
		Engine:   orch,
		Writer:   writer,
		Logger:   logger,
		CacheTTL: time.Duration(authCacheTTL) * time.Second,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("bulwark server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
