package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/fixbothq/fixbot/internal/bot"
	"github.com/fixbothq/fixbot/internal/config"
	"github.com/fixbothq/fixbot/internal/db"
	"github.com/fixbothq/fixbot/internal/dedup"
	"github.com/fixbothq/fixbot/internal/extract"
	"github.com/fixbothq/fixbot/internal/handlers"
	"github.com/fixbothq/fixbot/internal/llm"
	"github.com/fixbothq/fixbot/internal/logger"
	"github.com/fixbothq/fixbot/internal/server"
	slackpkg "github.com/fixbothq/fixbot/internal/slack"
	"github.com/fixbothq/fixbot/internal/task"
	"github.com/fixbothq/fixbot/internal/workspace"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideDBQuerier,
			dedup.NewService,
			workspace.NewService,
			workspace.NewSequenceAllocator,
			provideTaskRepository,
			provideExtractor,
			provideSlackClient,
			provideOrchestrator,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewSlackEventsHandler),
			provideServerHandler(handlers.NewBoardHandler),
			provideServerHandler(handlers.NewWorkspacesHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideDBQuerier(pool *pgxpool.Pool) db.Conn { return pool }

func provideTaskRepository(log *slog.Logger, conn db.Conn, allocator *workspace.SequenceAllocator) *task.Repository {
	return task.NewRepository(log, conn, allocator)
}

// provideExtractor builds the AI-backed extractor when an extraction
// API key is configured, and runs on the deterministic fallback alone
// otherwise.
func provideExtractor(log *slog.Logger, cfg config.Config) extract.Extractor {
	client, err := llm.New(log, cfg.Extraction)
	if err != nil {
		log.Warn("extraction service not configured; using fallback extractor only",
			slog.Any("error", err))
		return extract.FallbackExtractor{}
	}
	timeout := time.Duration(cfg.Extraction.TimeoutMS) * time.Millisecond
	return extract.NewLLMExtractor(log, client, timeout)
}

func provideSlackClient(log *slog.Logger, cfg config.Config) *slackpkg.Client {
	return slackpkg.NewClient(log, cfg.Slack.BotToken)
}

func provideOrchestrator(log *slog.Logger, cfg config.Config, dedupService *dedup.Service, workspaceService *workspace.Service, taskRepository *task.Repository, extractor extract.Extractor, slackClient *slackpkg.Client) *bot.Orchestrator {
	model := cfg.Extraction.Model
	if _, ok := extractor.(extract.FallbackExtractor); ok {
		model = "fallback"
	}
	return bot.NewOrchestrator(log, dedupService, workspaceService, taskRepository, extractor, slackClient, model)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config.Server.Addr, params.Handlers)
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
