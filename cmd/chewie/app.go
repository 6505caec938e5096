package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chewie/internal/ai"
	"github.com/xxxsen/chewie/internal/config"
	"github.com/xxxsen/chewie/internal/db"
	"github.com/xxxsen/chewie/internal/embedcache"
	"github.com/xxxsen/chewie/internal/exactcache"
	"github.com/xxxsen/chewie/internal/pooldata"
	"github.com/xxxsen/chewie/internal/repo"
	"github.com/xxxsen/chewie/internal/retrieval"
	"github.com/xxxsen/chewie/internal/semcache"
	"github.com/xxxsen/chewie/internal/service"
)

// app holds every long lived component built from the config.
type app struct {
	cfg            *config.Config
	db             *sql.DB
	redis          *redis.Client
	embedder       ai.IEmbedder
	embeddingCache *repo.EmbeddingCacheRepo
	exact          *exactcache.Cache
	semantic       *semcache.Cache
	lifecycle      *semcache.Lifecycle
	index          *retrieval.Index
	chunks         *repo.DocumentChunkRepo
	manager        *ai.Manager
	ask            *service.AskService
}

func buildApp(ctx context.Context, cfg *config.Config, withGenerator bool) (*app, error) {
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &app{cfg: cfg, db: conn}
	if err := a.init(ctx, withGenerator); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, withGenerator bool) error {
	cfg := a.cfg
	logger := logutil.GetLogger(ctx)

	base, err := ai.NewEmbedder(ctx, cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimension, cfg.Embedding.Data)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	embedder := base
	a.embeddingCache = repo.NewEmbeddingCacheRepo(a.db)
	if cfg.Embedding.DBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.embeddingCache)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Embedding.LRUSize, time.Duration(cfg.Embedding.LRUTTLSeconds)*time.Second)
	a.embedder = embedder
	logger.Info("embedder ready",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", embedder.ModelName()),
		zap.Int("dimension", embedder.Dimension()),
	)

	exactTTL := time.Duration(cfg.Cache.ExactTTLSeconds) * time.Second
	var store exactcache.Store
	switch cfg.Cache.ExactBackend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			// exact cache is best effort, keep serving without it
			logger.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		store = exactcache.NewRedisStore(a.redis)
	default:
		store = exactcache.NewMemoryStore(cfg.Cache.MemorySize, exactTTL)
	}
	a.exact = exactcache.New(store, exactTTL)

	entries := repo.NewCacheEntryRepo(a.db)
	a.semantic = semcache.New(embedder, entries)
	a.lifecycle = semcache.NewLifecycle(entries, a.exact)

	a.chunks = repo.NewDocumentChunkRepo(a.db)
	a.index = retrieval.NewIndex(embedder, a.chunks, retrieval.IndexConfig{
		ChunkSize:          cfg.Retrieval.ChunkSize,
		ChunkOverlap:       cfg.Retrieval.ChunkOverlap,
		EmbedBatchSize:     cfg.Retrieval.EmbedBatchSize,
		EmbedRatePerSecond: cfg.Retrieval.EmbedRatePerSecond,
	})

	if !withGenerator {
		return nil
	}
	gen, err := buildGenerator(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	a.manager = ai.NewManager(gen, ai.ManagerConfig{Timeout: cfg.LLM.Timeout, Temperature: cfg.LLM.Temperature})
	logger.Info("generator ready", zap.String("provider", gen.Name()), zap.String("model", gen.Model()))

	pools, err := pooldata.New(cfg.PoolData)
	if err != nil {
		return fmt.Errorf("init pool data: %w", err)
	}
	logger.Info("pool data ready", zap.String("provider", pools.Name()))

	var maxAge *time.Duration
	if cfg.Cache.MaxAgeSeconds >= 0 {
		d := time.Duration(cfg.Cache.MaxAgeSeconds) * time.Second
		maxAge = &d
	}
	a.ask = service.NewAskService(a.exact, a.semantic, a.index, a.manager, pools, service.AskConfig{
		DefaultScope:     cfg.DefaultScope,
		SimilarityFloor:  cfg.Cache.SimilarityThreshold,
		MaxAge:           maxAge,
		TopK:             cfg.Retrieval.TopK,
		RetrievalFloor:   cfg.Retrieval.SimilarityThreshold,
		MaxContextLength: cfg.Retrieval.MaxContextLength,
		FollowupCount:    cfg.LLM.FollowupCount,
		CoalesceInflight: cfg.Cache.CoalesceInflight,
	})
	return nil
}

func buildGenerator(ctx context.Context, cfg config.LLMConfig) (ai.IGenerator, error) {
	all := append([]config.GeneratorConfig{cfg.GeneratorConfig}, cfg.Fallbacks...)
	entries := make([]ai.GeneratorEntry, 0, len(all))
	for _, item := range all {
		gen, err := ai.NewGenerator(ctx, item.Provider, item.Model, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{Name: item.Provider, Generator: gen})
	}
	return ai.NewGroupGenerator(entries), nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
