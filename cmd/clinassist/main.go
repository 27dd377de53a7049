package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/carelink/clinassist/internal/ai"
	"github.com/carelink/clinassist/internal/cache"
	"github.com/carelink/clinassist/internal/config"
	"github.com/carelink/clinassist/internal/embedcache"
	"github.com/carelink/clinassist/internal/fhir"
	"github.com/carelink/clinassist/internal/handler"
	"github.com/carelink/clinassist/internal/job"
	"github.com/carelink/clinassist/internal/middleware"
	"github.com/carelink/clinassist/internal/schedule"
	"github.com/carelink/clinassist/internal/service"
	"github.com/carelink/clinassist/internal/session"
	"github.com/carelink/clinassist/internal/tools"
	"github.com/carelink/clinassist/internal/vectorindex"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "clinassist",
		Short: "clinician assistant server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the assistant server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "vector index maintenance",
	}
	indexBuildCmd := &cobra.Command{
		Use:   "build",
		Short: "chunk and embed the plan document, persisting the index artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			builder, _, _, err := buildIndex(cfg)
			if err != nil {
				return err
			}
			return builder.Ensure(cmd.Context())
		},
	}
	indexBuildCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	indexCmd.AddCommand(indexBuildCmd)

	rootCmd.AddCommand(runCmd, indexCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(configPath string) (*config.Config, error) {
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

// buildIndex assembles the embedding pipeline (provider, lru cache, interval
// limiter) and the index with its builder.
func buildIndex(cfg *config.Config) (*vectorindex.Builder, vectorindex.Index, ai.IEmbedder, error) {
	embedProvider, err := ai.NewEmbedProvider(cfg.Embedding.Provider, cfg.Embedding.Data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init embedding provider: %w", err)
	}
	embedder := ai.NewEmbedder(embedProvider, cfg.Embedding.Model)
	embedder = ai.WrapIntervalLimitToEmbedder(embedder, time.Duration(cfg.Embedding.RequestIntervalMS)*time.Millisecond)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder,
		cfg.Embedding.CacheSize,
		time.Duration(cfg.Embedding.CacheTTLMinutes)*time.Minute,
	)

	index, err := vectorindex.New(cfg.Index.Type, vectorindex.Args{
		Embedder: embedder,
		Data:     cfg.Index.Data,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init vector index: %w", err)
	}
	return vectorindex.NewBuilder(index, cfg.Index.DocumentPath, cfg.Index.ChunkSize), index, embedder, nil
}

func runServer(cfg *config.Config) error {
	rootLogger := logutil.GetLogger(context.Background())
	rootLogger.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("chat_provider", cfg.Chat.Provider),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("cache_type", cfg.Cache.Type),
		zap.String("index_type", cfg.Index.Type),
	)

	chatProvider, err := ai.NewProvider(cfg.Chat.Provider, cfg.Chat.Data)
	if err != nil {
		return fmt.Errorf("init chat provider: %w", err)
	}
	chatClient := ai.NewChatClient(chatProvider, cfg.Chat.Model)

	builder, index, embedder, err := buildIndex(cfg)
	if err != nil {
		return err
	}

	answerStore, err := cache.New(cfg.Cache.Type, cfg.Cache.Data)
	if err != nil {
		return fmt.Errorf("init answer cache: %w", err)
	}

	sess := session.New()
	assistant := service.NewAssistantService(chatClient, embedder, index, answerStore, tools.NewRegistry(), service.Config{
		MaxContextChars: cfg.Prompt.MaxContextChars,
		MaxToolChars:    cfg.Prompt.MaxToolChars,
		ChatTimeout:     time.Duration(cfg.Chat.TimeoutSeconds) * time.Second,
		EmbedTimeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		CacheTimeout:    time.Duration(cfg.Cache.TimeoutSeconds) * time.Second,
	})

	var fhirClient *fhir.Client
	if cfg.FHIR.Enabled() {
		fhirClient, err = fhir.NewClient(cfg.FHIR)
		if err != nil {
			return fmt.Errorf("init fhir client: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Index and patient loads can take a while (sequential rate-limited
	// embedding calls); neither failing should keep the server down.
	if err := builder.Ensure(ctx); err != nil {
		rootLogger.Error("index build failed, retrying on schedule", zap.Error(err))
	}
	if fhirClient != nil && cfg.FHIR.Resources.Patient != "" {
		snap, err := fhirClient.FetchSnapshot(ctx, cfg.FHIR.Resources)
		if err != nil {
			rootLogger.Error("initial patient load failed", zap.Error(err))
		} else {
			sess.SetSnapshot(snap)
		}
	}

	deps := handler.RouterDeps{
		Chat:            handler.NewChatHandler(assistant, sess),
		Patient:         handler.NewPatientHandler(sess, fhirClient),
		RateLimitWindow: time.Duration(cfg.RateLimitWindowMS) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIndexRefreshJob(builder), cfg.Schedule.IndexRefreshSpec); err != nil {
		return fmt.Errorf("schedule index refresh: %w", err)
	}
	if memStore, ok := answerStore.(*cache.MemoryStore); ok {
		if err := scheduler.AddJob(job.NewCacheSweepJob(memStore), cfg.Schedule.CacheSweepSpec); err != nil {
			return fmt.Errorf("schedule cache sweep: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	rootLogger.Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	rootLogger.Info("server stopping...")
	return nil
}
