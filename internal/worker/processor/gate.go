package processor

import (
	"context"
	"fmt"
	"time"

	"comfybridge/internal/pkg/errors"
	"comfybridge/internal/pkg/logger"
)

// Gate blocks a job until the engine answers its health probe.
type Gate struct {
	probe        func(ctx context.Context) error
	maxAttempts  int
	interval     time.Duration
	probeTimeout time.Duration
	log          *logger.Logger
}

func NewGate(probe func(ctx context.Context) error, maxAttempts int, interval, probeTimeout time.Duration, log *logger.Logger) *Gate {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Gate{
		probe:        probe,
		maxAttempts:  maxAttempts,
		interval:     interval,
		probeTimeout: probeTimeout,
		log:          log,
	}
}

// AwaitReady probes up to maxAttempts times, interval apart, and returns
// nil on the first success.
func (g *Gate) AwaitReady(ctx context.Context) error {
	const op = "processor.gate"
	log := g.log.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if lastErr = g.probeOnce(ctx); lastErr == nil {
			log.Debug("engine ready", "attempts", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return contextError(ctx, op, "waiting for engine")
		}
		log.Debug("engine not ready", "attempt", attempt, "error", lastErr.Error())

		if attempt == g.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return contextError(ctx, op, "waiting for engine")
		case <-time.After(g.interval):
		}
	}

	return errors.E(errors.CodeUnavailable, op, lastErr,
		fmt.Sprintf("engine not reachable after %d attempts", g.maxAttempts)).
		WithField("attempts", g.maxAttempts)
}

func (g *Gate) probeOnce(ctx context.Context) error {
	if g.probeTimeout <= 0 {
		return g.probe(ctx)
	}
	pctx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()
	return g.probe(pctx)
}
