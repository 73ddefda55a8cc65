package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"comfybridge/internal/audio"
	"comfybridge/internal/comfy"
	"comfybridge/internal/config"
	"comfybridge/internal/pkg/logger"
	"comfybridge/internal/pkg/shutdown"
	"comfybridge/internal/storage"
	"comfybridge/internal/worker/processor"
	"comfybridge/internal/worker/queue"
	"comfybridge/internal/workflow"
)

// app holds everything a subcommand needs to run jobs.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	engine    *comfy.HTTPClient
	workflows workflow.Source
	sp        storage.Provider
	proc      *processor.Processor
	pool      *pgxpool.Pool
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		AddSource:   cfg.LogSource,
		ServiceName: cfg.ServiceName,
	})
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)

	a := &app{cfg: cfg, log: log}

	a.engine = comfy.NewHTTPClient(cfg.ComfyURL, cfg.WebSocketURL(), cfg.EngineHTTPTimeout)
	log.Info("engine configured", "url", cfg.ComfyURL, "ws_url", cfg.WebSocketURL())

	switch cfg.WorkflowSource {
	case "postgres":
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		log.Info("PostgreSQL connected")
		a.pool = pool
		a.workflows = workflow.NewPostgresSource(pool)
	default:
		a.workflows = workflow.NewDirSource(cfg.WorkflowDir)
	}
	log.Info("workflow source ready", "source", cfg.WorkflowSource)

	sp, err := storage.NewProvider(ctx, cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("init storage provider: %w", err)
	}
	a.sp = sp
	log.Info("storage provider initialized", "provider", sp.Provider())

	a.proc = processor.New(processor.Deps{
		Engine:     a.engine,
		Workflows:  a.workflows,
		SP:         sp,
		Duration:   audio.Default,
		HTTPClient: &http.Client{Timeout: cfg.FetchTimeout},
		Log:        log,
		Options: processor.Options{
			WorkRoot:          cfg.WorkRoot,
			DefaultWorkflow:   cfg.DefaultWorkflow,
			ReadyMaxAttempts:  cfg.ReadyMaxAttempts,
			ReadyInterval:     cfg.ReadyInterval,
			ProbeTimeout:      cfg.EngineHTTPTimeout,
			CompletionTimeout: cfg.CompletionTimeout,
			KeepWorkDir:       cfg.KeepWorkDir,
		},
	})
	return a, nil
}

func (a *app) connectQueue(ctx context.Context) (*queue.RedisQueue, error) {
	a.log.Info("connecting to Redis", "addr", a.cfg.RedisAddr)
	q, err := queue.Connect(ctx, queue.Config{
		Addr:         a.cfg.RedisAddr,
		Password:     a.cfg.RedisPassword,
		DB:           a.cfg.RedisDB,
		QueueName:    a.cfg.QueueName,
		ResultPrefix: a.cfg.ResultPrefix,
		ResultTTL:    a.cfg.ResultTTL,
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("Redis connected", "queue", a.cfg.QueueName)
	return q, nil
}

// registerCleanup hands the app's own resources to the shutdown manager.
func (a *app) registerCleanup(mgr *shutdown.Manager) {
	if a.pool != nil {
		mgr.Register("postgres", func(context.Context) error {
			a.pool.Close()
			return nil
		})
	}
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
