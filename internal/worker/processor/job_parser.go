package processor

import (
	"bytes"
	"encoding/json"
	"strings"

	"comfybridge/internal/pkg/errors"
	"comfybridge/internal/workflow"
)

// ParseInput decodes the invocation payload. Unknown fields are ignored;
// workflow falls back to defaultWorkflow.
func ParseInput(raw []byte, defaultWorkflow string) (*Input, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.ValidationField("input", "input is required")
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "input must be a JSON object")
	}

	in := &Input{
		Workflow:      strings.TrimSpace(stringField(m, "workflow")),
		Audio:         strings.TrimSpace(stringField(m, "audio")),
		Image:         strings.TrimSpace(stringField(m, "image")),
		NetworkVolume: IsTruthy(m["network_volume"]),
	}
	if in.Workflow == "" {
		in.Workflow = defaultWorkflow
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// Validate checks the required fields.
func (in *Input) Validate() error {
	if in.Audio == "" {
		return errors.ValidationField("audio", "missing required input: audio")
	}
	if in.Image == "" {
		return errors.ValidationField("image", "missing required input: image")
	}
	if !workflow.ValidName(in.Workflow) {
		return errors.ValidationField("workflow", "invalid workflow name: "+in.Workflow)
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
