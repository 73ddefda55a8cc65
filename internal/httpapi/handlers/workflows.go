package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"comfybridge/internal/httpkit"
	"comfybridge/internal/pkg/errors"
	"comfybridge/internal/workflow"
)

func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) error {
	infos, err := h.workflows.List(r.Context())
	if err != nil {
		return errors.Wrap(err, "httpapi.workflows", "failed to list workflows")
	}
	if infos == nil {
		infos = []workflow.Info{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"workflows": infos})
	return nil
}

// GetWorkflow returns a template with the roles it lacks, so a broken
// template shows up before any job is submitted against it.
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) error {
	name := chi.URLParam(r, "name")
	if !workflow.ValidName(name) {
		return errors.ValidationField("name", "invalid workflow name: "+name)
	}

	graph, err := h.workflows.Load(r.Context(), name)
	if err != nil {
		return errors.Wrap(err, "httpapi.workflows", "failed to load workflow "+name)
	}

	missing := []string{}
	if verr := workflow.Validate(graph); verr != nil {
		if m, ok := errors.GetFields(verr)["missing"].([]string); ok {
			missing = m
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"name":          name,
		"nodes":         len(graph),
		"usable":        len(missing) == 0,
		"missing_roles": missing,
		"graph":         graph,
	})
	return nil
}
