package handlers

import (
	"context"

	"comfybridge/internal/pkg/logger"
	"comfybridge/internal/ports"
	"comfybridge/internal/worker/processor"
	"comfybridge/internal/worker/queue"
	"comfybridge/internal/workflow"
)

// Runner executes one job payload synchronously.
type Runner interface {
	Handle(ctx context.Context, raw []byte) (*processor.Result, error)
}

// Prober reports whether the engine answers.
type Prober interface {
	Probe(ctx context.Context) error
}

// JobStore is the queue side used by the async endpoints.
type JobStore interface {
	Push(ctx context.Context, job queue.Job) error
	Result(ctx context.Context, id string) (*queue.Outcome, error)
	Ping(ctx context.Context) error
}

type Deps struct {
	Runner    Runner
	Engine    Prober
	Workflows workflow.Source
	SP        ports.StorageProvider
	// Jobs is optional; without it the async endpoints are not mounted.
	Jobs         JobStore
	Log          *logger.Logger
	ServiceName  string
	MaxBodyBytes int64
}

type Handler struct {
	runner    Runner
	engine    Prober
	workflows workflow.Source
	sp        ports.StorageProvider
	jobs      JobStore
	log       *logger.Logger
	service   string
	maxBody   int64

	// busy holds a token while a synchronous job runs.
	busy chan struct{}
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	service := d.ServiceName
	if service == "" {
		service = "comfybridge"
	}
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 256 << 20
	}
	return &Handler{
		runner:    d.Runner,
		engine:    d.Engine,
		workflows: d.Workflows,
		sp:        d.SP,
		jobs:      d.Jobs,
		log:       log.WithComponent("httpapi"),
		service:   service,
		maxBody:   maxBody,
		busy:      make(chan struct{}, 1),
	}
}

// HasQueue reports whether the async endpoints are available.
func (h *Handler) HasQueue() bool {
	return h.jobs != nil
}
