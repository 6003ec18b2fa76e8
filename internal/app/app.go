// Package app wires configuration, adapters, services and HTTP routes into a
// runnable server.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
	"google.golang.org/api/option"

	"akar-rag/features/chat"
	"akar-rag/features/ingest"
	"akar-rag/internal/adapter/gemini"
	"akar-rag/internal/admission"
	"akar-rag/internal/config"
	"akar-rag/internal/document"
	"akar-rag/internal/middleware"
	"akar-rag/internal/retrieval"
	"akar-rag/internal/text"
	"akar-rag/internal/vector"
	"akar-rag/internal/worker"
)

const runHistorySize = 50

type App struct {
	Handler        http.Handler
	Store          *vector.Store
	IngestService  *ingest.Service
	Retrieval      *retrieval.Service
	ReloadConsumer *worker.ReloadConsumer

	cfg         *config.Config
	genai       *genai.Client
	queryLogger *retrieval.QueryLogger
}

type options struct {
	gemini    []option.ClientOption
	extractor document.Extractor
}

type Option func(*options)

// WithGeminiOptions appends client options, e.g. a test endpoint.
func WithGeminiOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.gemini = append(o.gemini, opts...) }
}

// WithExtractor replaces the file based document extractor.
func WithExtractor(e document.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// New builds the application. db and pub may be nil.
func New(ctx context.Context, cfg *config.Config, db *sql.DB, pub ingest.EventPublisher, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// Adapters
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY", config.ErrMissingRequired)
	}
	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, o.gemini...)
	if err != nil {
		return nil, fmt.Errorf("gemini client error: %w", err)
	}
	embedder := gemini.NewEmbedder(client, cfg.EmbeddingModel, cfg.UpstreamTimeout())
	generator := gemini.NewGenerator(client, gemini.GeneratorOptions{
		Model:       cfg.ChatModel,
		Temperature: cfg.GenerationTemperature,
		MaxTokens:   cfg.GenerationMaxTokens,
		Timeout:     cfg.UpstreamTimeout(),
	})

	extractor := o.extractor
	if extractor == nil {
		extractor = document.NewFileExtractor(cfg.DocumentPath, cfg.PDFToTextPath)
	}
	chunker, err := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		client.Close()
		return nil, err
	}
	store := vector.NewStore(cfg.StorageDir)

	// Feature: Ingest
	var runs ingest.Repository
	if db != nil {
		runs = ingest.NewPostgresRepo(db)
	} else {
		runs = ingest.NewMemoryRepo(runHistorySize)
	}
	ingestService := ingest.NewService(extractor, chunker, embedder, cfg.EmbedBatchSize, store, runs, pub)
	ingestHandler := ingest.NewHandler(ingestService)

	// Feature: Chat
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedder, store, generator, retrieval.Options{
		TopK:          cfg.TopK,
		Policy:        retrieval.Policy{High: cfg.ConfidenceHighThreshold, Medium: cfg.ConfidenceMediumThreshold},
		MaxSources:    cfg.MaxSources,
		SnippetLength: cfg.SnippetLength,
	}, queryLogger)
	chatHandler := chat.NewHandler(retrievalService, cfg.MaxQuestionLength)

	// Admission control guards the billed provider calls only
	limiter := admission.NewController(cfg.RateLimitMaxRequests, cfg.RateLimitWindow())
	admit := middleware.Admission(limiter, middleware.ClientIP(cfg.TrustProxyHeaders), cfg.RateLimitWindow())

	a := &App{
		Store:          store,
		IngestService:  ingestService,
		Retrieval:      retrievalService,
		ReloadConsumer: worker.NewReloadConsumer(store),
		cfg:            cfg,
		genai:          client,
		queryLogger:    queryLogger,
	}

	// Routes. The /api aliases serve the existing website widget.
	mux := http.NewServeMux()
	for _, prefix := range []string{"", "/api"} {
		mux.Handle("POST "+prefix+"/chat", middleware.CorrelationID(admit(http.HandlerFunc(chatHandler.Chat))))
		mux.Handle("POST "+prefix+"/ingest", middleware.CorrelationID(admit(http.HandlerFunc(ingestHandler.Ingest))))
		mux.Handle("GET "+prefix+"/ingest/runs", middleware.CorrelationID(http.HandlerFunc(ingestHandler.ListRuns)))
		mux.HandleFunc("GET "+prefix+"/health", a.health)
	}
	a.Handler = middleware.CORS(mux)

	a.warm(ctx)
	logger.Info("application initialised", "storage_dir", cfg.StorageDir, "run_history", runsBackend(db))
	return a, nil
}

func runsBackend(db *sql.DB) string {
	if db != nil {
		return "postgres"
	}
	return "memory"
}

// warm loads a persisted index so the first question does not pay for it.
func (a *App) warm(ctx context.Context) {
	if _, err := a.Store.Current(ctx); err != nil {
		if errors.Is(err, vector.ErrIndexNotReady) {
			slog.WarnContext(ctx, "warm-up skipped, index not built yet", "error", err)
			return
		}
		slog.ErrorContext(ctx, "warm-up failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "warm-up complete", "generation", a.Store.Generation())
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := map[string]string{"status": "ok", "service": a.cfg.ServiceName}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// Run serves HTTP until ctx is cancelled. When NSQ is configured it also
// consumes index events from other replicas.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	consumer, err := a.startConsumer()
	if err != nil {
		slog.Error("failed to start index event consumer", "error", err)
	}
	if consumer != nil {
		defer func() {
			consumer.Stop()
			<-consumer.StopChan
			slog.Info("index event consumer stopped")
		}()
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) startConsumer() (*nsq.Consumer, error) {
	if a.cfg.NSQDHost == "" && a.cfg.NSQLookupd == "" {
		return nil, nil
	}

	// every replica needs its own channel to see every event
	channel := a.cfg.NSQChannel
	if channel == "" {
		channel = "akar-rag-" + uuid.New().String()[:8] + "#ephemeral"
	}

	consumer, err := nsq.NewConsumer(config.TopicIndexRebuilt, channel, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	consumer.AddHandler(a.ReloadConsumer)

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, err
	}
	slog.Info("index event consumer connected", "topic", config.TopicIndexRebuilt, "channel", channel)
	return consumer, nil
}

func (a *App) close() {
	if err := a.queryLogger.Close(); err != nil {
		slog.Warn("failed to close query log", "error", err)
	}
	if err := a.genai.Close(); err != nil {
		slog.Warn("failed to close gemini client", "error", err)
	}
}
