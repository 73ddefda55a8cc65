package worker

import (
	"context"
	"time"

	"comfybridge/internal/pkg/errors"
	"comfybridge/internal/pkg/logger"
	"comfybridge/internal/worker/processor"
	"comfybridge/internal/worker/queue"
)

const storeTimeout = 10 * time.Second

// Run pops jobs one at a time until ctx is canceled. Each job's outcome is
// stored back in the queue whether it succeeded or not.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	wait := d.PopWait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		job, err := d.Queue.Pop(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			var malformed *queue.MalformedError
			if errors.As(err, &malformed) {
				log.Warn("dropping malformed queue entry", "error", err.Error())
				continue
			}

			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if job == nil {
			continue
		}

		runOne(ctx, d, log, job)
	}
}

func runOne(ctx context.Context, d Deps, log *logger.Logger, job *queue.Job) {
	jobCtx := logger.ContextWithInvocationID(ctx, job.ID)
	jobLog := log.WithInvocationID(job.ID)

	jobLog.Info("processing job")
	startTime := time.Now()

	res, err := d.Handler.Handle(jobCtx, job.Input)
	out := NewOutcome(job.ID, res, err)
	if err != nil {
		jobLog.Error("job failed",
			"code", out.Error.Code,
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	} else {
		jobLog.Info("job completed",
			"duration_ms", time.Since(startTime).Milliseconds(),
		)
	}

	// The outcome is stored even when the loop is shutting down.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if serr := d.Queue.StoreResult(storeCtx, out); serr != nil {
		jobLog.Error("failed to store job result", "error", serr.Error())
	}
}

// NewOutcome converts a processor result or error into a stored outcome.
func NewOutcome(id string, res *processor.Result, err error) queue.Outcome {
	if err != nil {
		return queue.Outcome{
			ID:     id,
			Status: queue.StatusFailed,
			Error: &queue.Failure{
				Code:    string(errors.GetCode(err)),
				Message: err.Error(),
				Fields:  errors.GetFields(err),
			},
		}
	}
	return queue.Outcome{ID: id, Status: queue.StatusCompleted, Output: res}
}
