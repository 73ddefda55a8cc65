package worker

import (
	"context"
	"time"

	"comfybridge/internal/pkg/logger"
	"comfybridge/internal/worker/processor"
	"comfybridge/internal/worker/queue"
)

// JobQueue is the part of *queue.RedisQueue the loop needs.
type JobQueue interface {
	Pop(ctx context.Context, wait time.Duration) (*queue.Job, error)
	StoreResult(ctx context.Context, out queue.Outcome) error
}

// JobHandler runs one raw payload. *processor.Processor satisfies it.
type JobHandler interface {
	Handle(ctx context.Context, raw []byte) (*processor.Result, error)
}

type Deps struct {
	Queue   JobQueue
	Handler JobHandler
	Log     *logger.Logger
	// PopWait bounds each BRPOP so the loop notices cancellation.
	PopWait time.Duration
}
