package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/thomasbeckford/pasichat/internal/chunker"
	"github.com/thomasbeckford/pasichat/internal/config"
	dbRedis "github.com/thomasbeckford/pasichat/internal/db/redis"
	"github.com/thomasbeckford/pasichat/internal/expansion"
	logpkg "github.com/thomasbeckford/pasichat/internal/logger"
	"github.com/thomasbeckford/pasichat/internal/metrics"
	"github.com/thomasbeckford/pasichat/internal/pdf"
	passagerepo "github.com/thomasbeckford/pasichat/internal/repository/passage"
	chiTransport "github.com/thomasbeckford/pasichat/internal/transport/chi"
	openaiTransport "github.com/thomasbeckford/pasichat/internal/transport/openai"
	"github.com/thomasbeckford/pasichat/internal/usecase/capability"
	healthuc "github.com/thomasbeckford/pasichat/internal/usecase/health"
	"github.com/thomasbeckford/pasichat/internal/usecase/ingest"
	"github.com/thomasbeckford/pasichat/internal/usecase/retrieval"
	"github.com/thomasbeckford/pasichat/internal/version"
)

func main() {
	// .env is optional, real env vars win either way
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting pasichat API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create vector store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Vector store not ready", zap.Error(err))
	}
	logger.Info("Connected to vector store")

	// Metrics registered explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	embedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
		Model:    cfg.Embedding.Model,
		Provider: "openai",
		Logger:   logger,
	})
	understander := openaiTransport.NewUnderstander(&openaiTransport.Config{
		APIKey:  cfg.Chat.APIKey,
		BaseURL: cfg.Chat.BaseURL,
		Model:   cfg.Chat.Model,
		Logger:  logger,
	})
	logger.Info("Providers created",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("chat_model", cfg.Chat.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	passages := passagerepo.New(store)
	if err := passages.EnsureIndex(ctx, cfg.Embedding.Dimensions); err != nil {
		logger.Fatal("Failed to ensure passage index", zap.Error(err))
	}

	table := loadExpansionTable(cfg.Expansion.TablePath, logger)

	seg := chunker.New(cfg.Chunking.MaxSize, cfg.Chunking.OverlapSentences)
	extractor := pdf.NewExtractor(seg, logger)

	ingestSvc := ingest.NewService(passages, embedder, seg, logger)
	retrievalSvc := retrieval.New(passages, embedder, table, retrieval.Config{
		Threshold:        cfg.Retrieval.Threshold,
		QueryLimit:       cfg.Retrieval.QueryLimit,
		ResultLimit:      cfg.Retrieval.ResultLimit,
		DisableExpansion: cfg.Retrieval.ExpansionOff,
	}, logger)

	dispatcher := capability.NewDispatcher(ingestSvc, retrievalSvc, extractor, understander, capability.Config{
		MaxAttempts: cfg.Retrieval.MaxAttempts,
		Budget:      time.Duration(cfg.Retrieval.BudgetSec) * time.Second,
	}, logger)

	healthSvc := healthuc.New(store, embedder)

	server := chiTransport.NewServer(dispatcher, healthSvc, cfg.Upload.MaxSizeMB, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// loadExpansionTable falls back to an empty table when no file is
// configured or the file cannot be read; expansion then simply never
// fires.
func loadExpansionTable(path string, logger *zap.Logger) *expansion.Table {
	if path == "" {
		logger.Info("No expansion table configured")
		return expansion.Empty()
	}
	table, err := expansion.Load(path)
	if err != nil {
		logger.Warn("Failed to load expansion table, continuing without it",
			zap.String("path", path),
			zap.Error(err))
		return expansion.Empty()
	}
	logger.Info("Expansion table loaded",
		zap.String("path", path),
		zap.Int("terms", table.Len()))
	return table
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
