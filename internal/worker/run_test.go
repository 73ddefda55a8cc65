package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "comfybridge/internal/pkg/errors"
	"comfybridge/internal/pkg/logger"
	"comfybridge/internal/worker/processor"
	"comfybridge/internal/worker/queue"
)

type fakeQueue struct {
	mu      sync.Mutex
	items   []any // *queue.Job or error
	stored  []queue.Outcome
	drained chan struct{}
}

func (q *fakeQueue) Pop(ctx context.Context, wait time.Duration) (*queue.Job, error) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		select {
		case q.drained <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
			return nil, nil
		}
	}
	item := q.items[0]
	q.items = q.items[1:]
	q.mu.Unlock()

	switch v := item.(type) {
	case error:
		return nil, v
	default:
		return v.(*queue.Job), nil
	}
}

func (q *fakeQueue) StoreResult(_ context.Context, out queue.Outcome) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stored = append(q.stored, out)
	return nil
}

type handlerFunc func(ctx context.Context, raw []byte) (*processor.Result, error)

func (f handlerFunc) Handle(ctx context.Context, raw []byte) (*processor.Result, error) {
	return f(ctx, raw)
}

func TestRunStoresEveryOutcome(t *testing.T) {
	q := &fakeQueue{
		items: []any{
			&queue.Job{ID: "ok", Input: json.RawMessage(`{"audio":"a","image":"b"}`)},
			&queue.MalformedError{Raw: "garbage", Err: errors.New("bad json")},
			&queue.Job{ID: "bad", Input: json.RawMessage(`{}`)},
		},
		drained: make(chan struct{}, 1),
	}

	var seen []string
	h := handlerFunc(func(ctx context.Context, raw []byte) (*processor.Result, error) {
		var in map[string]string
		_ = json.Unmarshal(raw, &in)
		seen = append(seen, string(raw))
		if in["audio"] == "" {
			return nil, apperrors.ValidationField("audio", "missing required input: audio")
		}
		return &processor.Result{VideoBase64: "AAAA"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Deps{Queue: q, Handler: h, Log: logger.Discard(), PopWait: 10 * time.Millisecond})
	}()

	select {
	case <-q.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("queue never drained")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("handler called %d times, want 2", len(seen))
	}
	if len(q.stored) != 2 {
		t.Fatalf("stored %d outcomes, want 2", len(q.stored))
	}

	if got := q.stored[0]; got.ID != "ok" || got.Status != queue.StatusCompleted || got.Error != nil {
		t.Errorf("first outcome = %+v", got)
	}
	if got := q.stored[1]; got.ID != "bad" || got.Status != queue.StatusFailed || got.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("second outcome = %+v", got)
	}
}

func TestNewOutcome(t *testing.T) {
	out := NewOutcome("j1", &processor.Result{VideoPath: "/v/j1.mp4"}, nil)
	if out.Status != queue.StatusCompleted || out.Output.(*processor.Result).VideoPath != "/v/j1.mp4" {
		t.Errorf("completed outcome = %+v", out)
	}

	err := apperrors.New(apperrors.CodeOutputMissing, "engine produced no output").WithField("path", "/tmp/x/output.mp4")
	out = NewOutcome("j2", nil, err)
	if out.Status != queue.StatusFailed || out.Output != nil {
		t.Fatalf("failed outcome = %+v", out)
	}
	if out.Error.Code != "OUTPUT_MISSING" || out.Error.Fields["path"] != "/tmp/x/output.mp4" {
		t.Errorf("failure = %+v", out.Error)
	}

	out = NewOutcome("j3", nil, errors.New("plain"))
	if out.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("plain error code = %q", out.Error.Code)
	}
}
