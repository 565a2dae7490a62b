// Package main is the composition root for the request-serving middle
// tier: it wires the connection pools, cache manager, provider clients,
// vector repository, and the ingestion/query/health services behind a
// chi router, then serves them with graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ragmw/midtier/engine/embedding"
	"github.com/ragmw/midtier/engine/health"
	"github.com/ragmw/midtier/engine/ingest"
	"github.com/ragmw/midtier/engine/rag"
	"github.com/ragmw/midtier/engine/search"
	"github.com/ragmw/midtier/engine/semantic"
	"github.com/ragmw/midtier/pkg/cache"
	"github.com/ragmw/midtier/pkg/config"
	"github.com/ragmw/midtier/pkg/metrics"
	"github.com/ragmw/midtier/pkg/mid"
	"github.com/ragmw/midtier/pkg/pool"
	"github.com/ragmw/midtier/pkg/providers/azureopenai"
	"github.com/ragmw/midtier/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	met := metrics.New()

	// --- Connection pools (C3) ---
	httpPool := pool.NewHTTPPool(pool.HTTPConfig{
		Timeout: time.Duration(cfg.AzureOpenAI.TimeoutS) * time.Second,
		Metrics: met,
	})
	qdrantPool, err := pool.NewQdrantPool(ctx, pool.QdrantConfig{
		Addr:    qdrantDialAddr(cfg.Qdrant.URL),
		Timeout: time.Duration(cfg.Qdrant.TimeoutS) * time.Second,
		Metrics: met,
	})
	if err != nil {
		return err
	}
	defer qdrantPool.Close()

	conn, err := qdrantPool.Get()
	if err != nil {
		return err
	}

	// --- Vector repository (C7) ---
	// The connection is owned by qdrantPool, not by the store: Close is
	// left to qdrantPool.Close() on shutdown.
	vectorStore := semantic.NewFromConn(conn, semantic.Config{
		Collection: cfg.Qdrant.CollectionName,
		VectorSize: int(cfg.Qdrant.VectorSize),
		MaxRetries: cfg.Qdrant.MaxRetries,
	})
	if err := vectorStore.InitializeCollection(ctx); err != nil {
		return err
	}

	// --- Provider clients (C5/C6), routed through the HTTP pool ---
	pooledClient := httpPool.HTTPClient()
	embedClient := azureopenai.NewEmbeddingClient(azureopenai.Config{
		Endpoint:        cfg.AzureOpenAI.Endpoint,
		APIKey:          cfg.AzureOpenAI.APIKey,
		APIVersion:      cfg.AzureOpenAI.APIVersion,
		EmbedDeployment: cfg.AzureOpenAI.EmbedDeployment,
		MaxRetries:      cfg.AzureOpenAI.MaxRetries,
		TimeoutS:        cfg.AzureOpenAI.TimeoutS,
		HTTPClient:      pooledClient,
		Metrics:         met,
	})
	chatClient := azureopenai.NewChatClient(azureopenai.Config{
		Endpoint:       cfg.AzureOpenAI.Endpoint,
		APIKey:         cfg.AzureOpenAI.APIKey,
		APIVersion:     cfg.AzureOpenAI.APIVersion,
		ChatDeployment: cfg.AzureOpenAI.ChatDeployment,
		MaxRetries:     cfg.AzureOpenAI.MaxRetries,
		TimeoutS:       cfg.AzureOpenAI.TimeoutS,
		HTTPClient:     pooledClient,
		Metrics:        met,
	})

	// --- Cache (C4) ---
	cacheMgr := cache.NewManager(met)
	stopSweeper := cacheMgr.StartCleanupSweeper(ctx, cache.DefaultCleanupInterval)
	defer stopSweeper()

	// --- Services (C9-C13) ---
	rcfg := resilience.DefaultConfig
	rcfg.Metrics = met
	rcfg.MetricsLabel = "embedding_service"
	embedSvc := embedding.New(embedClient, rcfg, logger)
	searchSvc := search.New(vectorStore, cacheMgr.Search)
	ingestSvc := ingest.New(ingest.Deps{Embedder: embedSvc, Store: searchSvc, Logger: logger, Metrics: met})
	ragSvc := rag.New(rag.Deps{
		Embedder: embedSvc,
		Searcher: searchSvc,
		Chat:     chatClient,
		Logger:   logger,
	}, rag.DefaultConfig)
	healthAgg := health.New(health.Deps{
		Embedding:    embedClient,
		VectorStore:  vectorStore,
		HTTPPool:     httpPool,
		QdrantPool:   qdrantPool,
		CacheManager: cacheMgr,
		CollectionStatus: func(ctx context.Context) string {
			stats, err := vectorStore.GetCollectionInfo(ctx)
			if err != nil {
				return "unknown"
			}
			return stats.CollectionStatus
		},
	})

	router := newRouter(routerDeps{
		Ingest:  ingestSvc,
		RAG:     ragSvc,
		Health:  healthAgg,
		Metrics: met,
		Logger:  logger,
	})

	handler := mid.Chain(router,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS("*"),
		mid.OTel("midtier"),
	)

	srv := &http.Server{
		Addr:         serverAddr(cfg),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func serverAddr(cfg config.Config) string {
	return cfg.Server.Host + ":" + strconv.Itoa(int(cfg.Server.Port))
}

// qdrantDialAddr strips a scheme from a configured Qdrant URL so it can be
// used as a bare host:port gRPC dial target; REST-style URLs and gRPC
// dial targets share the same QDRANT_URL setting in this deployment.
func qdrantDialAddr(url string) string {
	addr := strings.TrimPrefix(url, "https://")
	addr = strings.TrimPrefix(addr, "http://")
	return strings.TrimSuffix(addr, "/")
}
