package processor

import (
	"context"

	"comfybridge/internal/comfy"
	"comfybridge/internal/pkg/errors"
)

// WaitForCompletion reads the job's event stream until the engine reports
// promptID as executed. It returns how many events were consumed,
// including the matching one. The stream is closed on return; a deadline
// or cancellation on ctx ends the wait with a timeout or internal error.
func WaitForCompletion(ctx context.Context, engine comfy.Engine, promptID, clientID string) (int, error) {
	const op = "processor.wait"

	stream, err := engine.Events(ctx, clientID)
	if err != nil {
		if ctx.Err() != nil {
			return 0, contextError(ctx, op, "waiting for completion")
		}
		return 0, errors.E(errors.CodeStream, op, err, "open event stream").WithField("prompt_id", promptID)
	}
	defer stream.Close()

	consumed := 0
	for {
		ev, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return consumed, contextError(ctx, op, "waiting for completion")
			}
			return consumed, errors.E(errors.CodeStream, op, err, "event stream closed before completion").
				WithField("prompt_id", promptID).
				WithField("events", consumed)
		}
		consumed++
		if ev.Type == comfy.EventExecuted && ev.PromptID() == promptID {
			return consumed, nil
		}
	}
}
