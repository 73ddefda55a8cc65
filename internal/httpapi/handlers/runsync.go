package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"comfybridge/internal/httpkit"
	"comfybridge/internal/pkg/errors"
	"comfybridge/internal/pkg/logger"
	"comfybridge/internal/worker/queue"
)

// RunRequest mirrors the serverless invocation body.
type RunRequest struct {
	ID    string          `json:"id,omitempty"`
	Input json.RawMessage `json:"input"`
}

type RunResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output,omitempty"`
}

const statusInQueue = "IN_QUEUE"

func (h *Handler) decodeRun(w http.ResponseWriter, r *http.Request, op string) (*RunRequest, error) {
	var req RunRequest
	if err := httpkit.DecodeJSON(w, r, &req, h.maxBody); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, op, "invalid json body")
	}
	if len(req.Input) == 0 || string(req.Input) == "null" {
		return nil, errors.ValidationField("input", "input is required")
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}
	return &req, nil
}

// RunSync runs one job and answers with its result. Only one job runs at a
// time; a second request gets 429 while the first is in flight.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) error {
	const op = "httpapi.runsync"

	req, err := h.decodeRun(w, r, op)
	if err != nil {
		return err
	}

	select {
	case h.busy <- struct{}{}:
		defer func() { <-h.busy }()
	default:
		return errors.New(errors.CodeResourceExhaust, "a job is already running").WithField("id", req.ID)
	}

	ctx := logger.ContextWithInvocationID(r.Context(), req.ID)
	res, err := h.runner.Handle(ctx, req.Input)
	if err != nil {
		return errors.Wrap(err, op, "job "+req.ID+" failed").WithField("id", req.ID)
	}

	httpkit.WriteJSON(w, http.StatusOK, RunResponse{ID: req.ID, Status: queue.StatusCompleted, Output: res})
	return nil
}

// Run enqueues a job for the queue worker.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) error {
	const op = "httpapi.run"

	req, err := h.decodeRun(w, r, op)
	if err != nil {
		return err
	}
	if err := h.jobs.Push(r.Context(), queue.Job{ID: req.ID, Input: req.Input}); err != nil {
		return errors.E(errors.CodeUnavailable, op, err, "failed to enqueue job")
	}

	h.log.FromContext(r.Context()).Info("job enqueued", "invocation_id", req.ID)
	httpkit.WriteJSON(w, http.StatusAccepted, RunResponse{ID: req.ID, Status: statusInQueue})
	return nil
}

// Status returns a stored outcome. Jobs still queued or running have none
// yet and answer 404.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")

	out, err := h.jobs.Result(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return errors.NotFound("job result", id)
		}
		return errors.E(errors.CodeUnavailable, "httpapi.status", err, "failed to read job result")
	}

	httpkit.WriteJSON(w, http.StatusOK, out)
	return nil
}
