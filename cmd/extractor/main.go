// Command extractor runs the exam-paper question-extraction pipeline: it
// claims pending papers, drives the per-question LLM extraction sequence, and
// records progress in each paper's ledger.
//
// Usage:
//
//	extractor [flags] [question-number]
//	extractor -report <paper-id> [file.xlsx]
//
// By default one pass runs over all pending papers and the process exits.
// The optional positional argument restricts processing to one question
// number.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/studylab/paperextract/internal/ai"
	"github.com/studylab/paperextract/internal/distractor"
	"github.com/studylab/paperextract/internal/latex"
	"github.com/studylab/paperextract/internal/ops"
	"github.com/studylab/paperextract/internal/paper"
	"github.com/studylab/paperextract/internal/platform/cache"
	"github.com/studylab/paperextract/internal/platform/config"
	"github.com/studylab/paperextract/internal/platform/database"
	"github.com/studylab/paperextract/internal/prompts"
	"github.com/studylab/paperextract/internal/report"
)

func main() {
	watch := flag.Bool("watch", false, "run forever, polling for pending papers")
	subject := flag.String("subject", "", "case-insensitive subject filter (overrides config)")
	reportPaper := flag.String("report", "", "export a progress workbook for the given paper id and exit")
	flag.Parse()

	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, *watch, *subject, *reportPaper); err != nil {
		slog.Error("extractor failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, watch bool, subjectFlag, reportPaper string) error {
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store, err := paper.NewPostgresStore(pool)
	if err != nil {
		return err
	}

	if reportPaper != "" {
		return exportReport(ctx, store, reportPaper, flag.Arg(0))
	}

	var redisClient *redis.Client
	if cfg.Cache.URL != "" {
		redisClient, err = cache.Connect(ctx, cfg.Cache)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		defer redisClient.Close()
	}

	provider, err := buildProvider(cfg, redisClient)
	if err != nil {
		return err
	}

	loader, err := prompts.NewLoader(cfg.PromptPackPath)
	if err != nil {
		return err
	}
	pack, ok := loader.Pack(cfg.Pipeline.PromptStyle)
	if !ok {
		return fmt.Errorf("unknown prompt style %q", cfg.Pipeline.PromptStyle)
	}

	var events paper.EventSink = paper.NopSink{}
	var feed *paper.BroadcastSink
	if cfg.Ops.Enabled {
		feed = paper.NewBroadcastSink()
		events = feed
	}

	subjectFilter := cfg.Pipeline.SubjectFilter
	if subjectFlag != "" {
		subjectFilter = subjectFlag
	}

	norm := latex.NewNormalizer(provider, pack)
	proc, err := paper.NewProcessor(paper.ProcessorConfig{
		Store:         store,
		Provider:      provider,
		Normalizer:    norm,
		Distractors:   distractor.NewParser(norm),
		Prompts:       pack,
		Events:        events,
		SubjectFilter: subjectFilter,
		NumberFilter:  flag.Arg(0),
		Retry: paper.RetryPolicy{
			Enabled:     cfg.Pipeline.RetryEnabled,
			MaxAttempts: cfg.Pipeline.MaxAttempts,
		},
	})
	if err != nil {
		return err
	}

	if cfg.Ops.Enabled {
		startOpsServer(ctx, cfg.Ops, pool, redisClient, feed)
	}

	if !watch {
		return proc.Run(ctx)
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	_, err = scheduler.Every(cfg.Pipeline.PollIntervalMinutes).Minutes().Do(func() {
		if err := proc.Run(ctx); err != nil {
			slog.Error("pipeline pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule pipeline: %w", err)
	}

	slog.Info("watch mode started",
		"poll_interval_minutes", cfg.Pipeline.PollIntervalMinutes,
		"subject_filter", subjectFilter)
	scheduler.StartAsync()

	<-ctx.Done()
	slog.Info("shutting down")
	scheduler.Stop()
	return nil
}

func buildProvider(cfg *config.Config, redisClient *redis.Client) (ai.Provider, error) {
	router := ai.NewRouter()
	if cfg.AI.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.AI.OpenAI.APIKey,
			ai.WithDefaultModel(cfg.AI.OpenAI.Model)))
	}
	if cfg.AI.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.AI.DeepSeek.APIKey,
			ai.WithDefaultModel(cfg.AI.DeepSeek.Model)))
	}
	if !router.HasProvider() {
		return nil, fmt.Errorf("no AI provider configured")
	}

	if redisClient == nil {
		return router, nil
	}
	ttl := time.Duration(cfg.Cache.CompletionTTLHours) * time.Hour
	return ai.NewCachedProvider(router, redisClient, ttl), nil
}

func startOpsServer(ctx context.Context, cfg config.OpsConfig, pool *pgxpool.Pool, redisClient *redis.Client, feed *paper.BroadcastSink) {
	srv := ops.New(feed)
	srv.AddCheck("database", pool.Ping)
	if redisClient != nil {
		srv.AddCheck("cache", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      srv.Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ops server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("ops server shutdown error", "error", err)
		}
	}()
}

func exportReport(ctx context.Context, store *paper.PostgresStore, paperID, path string) error {
	if path == "" {
		path = "progress.xlsx"
	}
	p, err := store.GetPaper(ctx, paperID)
	if err != nil {
		return fmt.Errorf("load paper: %w", err)
	}
	if err := report.WriteProgress(path, []*paper.ExamPaper{p}); err != nil {
		return err
	}
	slog.Info("progress report written", "paper_id", paperID, "path", path)
	return nil
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
