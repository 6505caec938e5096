package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/chewie/internal/ai"
	"github.com/xxxsen/chewie/internal/config"
	"github.com/xxxsen/chewie/internal/db"
	"github.com/xxxsen/chewie/internal/docsource"
	"github.com/xxxsen/chewie/internal/handler"
	"github.com/xxxsen/chewie/internal/job"
	"github.com/xxxsen/chewie/internal/metrics"
	"github.com/xxxsen/chewie/internal/middleware"
	"github.com/xxxsen/chewie/internal/model"
	"github.com/xxxsen/chewie/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "chewie",
		Short: "chewie semantic answer cache and retrieval engine",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	load := func() (*config.Config, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
		return cfg, nil
	}

	rootCmd.AddCommand(
		newRunCmd(load),
		newMigrateCmd(load),
		newIngestCmd(load),
		newCacheCmd(load),
		newReEmbedCmd(load),
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

type loader func() (*config.Config, error)

func migrate(ctx context.Context, cfg *config.Config) error {
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer conn.Close()
	if err := db.ApplyMigrations(ctx, conn, cfg.Embedding.Dimension); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func newRunCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run chewie server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			if err := migrate(ctx, cfg); err != nil {
				return err
			}
			a, err := buildApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}
}

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if err := migrate(cmd.Context(), cfg); err != nil {
				return err
			}
			logutil.GetLogger(cmd.Context()).Info("migrations applied")
			return nil
		},
	}
}

func newIngestCmd(load loader) *cobra.Command {
	var (
		scope           string
		docType         string
		dir             string
		baseURL         string
		continueOnError bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "chunk, embed and store documentation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var src docsource.Source
			if dir != "" {
				src = docsource.NewLocalSource(dir, baseURL)
			} else {
				src, err = docsource.New(cfg.DocSource)
				if err != nil {
					return fmt.Errorf("init doc source: %w", err)
				}
			}
			a, err := buildApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			scope = strings.ToLower(strings.TrimSpace(scope))
			if scope == "" {
				scope = cfg.DefaultScope
			}
			report, err := docsource.Ingest(ctx, src, a.index, docsource.IngestOptions{
				Scope:           scope,
				DocType:         docType,
				ContinueOnError: continueOnError,
			})
			if err != nil {
				return err
			}
			total, err := a.chunks.CountByScope(ctx, scope)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "documents=%d chunks=%d skipped=%d failed=%d scope_chunks=%d\n",
				report.Documents, report.Chunks, report.Skipped, len(report.Failed), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "scope the documents belong to (defaults to default_scope)")
	cmd.Flags().StringVar(&docType, "doc-type", model.DocTypeDocumentation, "document type label")
	cmd.Flags().StringVar(&dir, "dir", "", "ingest a local directory instead of doc_source")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public url prefix for --dir documents")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "skip documents that fail to ingest")
	return cmd
}

func newCacheCmd(load loader) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "inspect or invalidate the answer cache",
	}

	var statsScope string
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "print semantic cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			stats, err := a.lifecycle.Stats(cmd.Context(), strings.ToLower(strings.TrimSpace(statsScope)))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total_entries=%d\n", stats.TotalEntries)
			if stats.OldestEntry != nil {
				fmt.Fprintf(out, "oldest_entry=%s\n", stats.OldestEntry.Format(time.RFC3339))
				fmt.Fprintf(out, "newest_entry=%s\n", stats.NewestEntry.Format(time.RFC3339))
			}
			for _, q := range stats.MostUsed {
				fmt.Fprintf(out, "%6d  %s\n", q.UseCount, q.Query)
			}
			return nil
		},
	}
	statsCmd.Flags().StringVar(&statsScope, "scope", "", "limit to one scope")

	var filter model.InvalidateFilter
	invalidateCmd := &cobra.Command{
		Use:   "invalidate",
		Short: "delete cache entries matching every given filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			filter.Scope = strings.ToLower(strings.TrimSpace(filter.Scope))
			n, err := a.lifecycle.Invalidate(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted_entries=%d\n", n)
			return nil
		},
	}
	invalidateCmd.Flags().StringVar(&filter.Scope, "scope", "", "scope filter")
	invalidateCmd.Flags().StringVar(&filter.PoolID, "pool", "", "pool id filter")
	invalidateCmd.Flags().IntVar(&filter.OlderThanHours, "older-than-hours", 0, "only entries not updated within this many hours")

	cacheCmd.AddCommand(statsCmd, invalidateCmd)
	return cacheCmd
}

func newReEmbedCmd(load loader) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "re-embed document chunks produced by another model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return job.NewReEmbedJob(a.index, batch).Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 100, "chunks per batch")
	return cmd
}

func startJobs(ctx context.Context, a *app) (*schedule.CronScheduler, error) {
	jc := a.cfg.Jobs
	s := schedule.NewCronScheduler(time.Duration(jc.RunTimeoutSeconds) * time.Second)
	if jc.CacheExpirySpec != "" {
		if err := s.AddJob(job.NewCacheExpiryJob(a.lifecycle, time.Duration(jc.CacheMaxAgeHours)*time.Hour), jc.CacheExpirySpec); err != nil {
			return nil, err
		}
	}
	if jc.EmbeddingCacheCleanup != "" {
		if err := s.AddJob(job.NewEmbeddingCacheCleanupJob(a.embeddingCache, jc.EmbeddingCacheMaxAgeDays), jc.EmbeddingCacheCleanup); err != nil {
			return nil, err
		}
	}
	if jc.ReEmbedSpec != "" {
		if err := s.AddJob(job.NewReEmbedJob(a.index, jc.ReEmbedBatch), jc.ReEmbedSpec); err != nil {
			return nil, err
		}
	}
	s.Start(ctx)
	return s, nil
}

func healthDeps(a *app) (map[string]handler.Checker, map[string]string) {
	checks := map[string]handler.Checker{
		"database": a.db.PingContext,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}
	}
	llm := "configured (" + a.manager.ProviderName() + ")"
	if a.manager.ProviderName() == ai.ProviderMock {
		llm = "not configured"
	}
	return checks, map[string]string{
		"llm":         llm,
		"exact_cache": a.cfg.Cache.ExactBackend,
	}
}

func runServer(a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("default_scope", cfg.DefaultScope),
		zap.String("exact_cache", cfg.Cache.ExactBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := startJobs(ctx, a)
	if err != nil {
		return fmt.Errorf("init jobs: %w", err)
	}
	defer scheduler.Stop()

	checks, services := healthDeps(a)
	deps := handler.RouterDeps{
		Ask:           handler.NewAskHandler(a.ask),
		Admin:         handler.NewAdminHandler(a.lifecycle, a.index, cfg.MaxIngestBytes),
		Health:        handler.NewHealthHandler(checks, services),
		Metrics:       metrics.Handler(),
		APIKeys:       cfg.Security.APIKeys,
		RatePerMinute: cfg.Security.RateLimitPerMinute,
		RateBurst:     cfg.Security.RateLimitBurst,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.Security.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
