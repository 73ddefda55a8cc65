// Package workflow loads named graph templates and injects a job's inputs
// into them.
package workflow

import (
	"encoding/json"
	"fmt"
	"sort"

	"comfybridge/internal/pkg/errors"
)

// Graph maps node ids to their JSON descriptors. Nodes keep their exact
// bytes until Parameterize rewrites them.
type Graph map[string]json.RawMessage

// Role tags recognised by Parameterize.
const (
	RoleLoadImage     = "LoadImage"
	RoleLoadAudio     = "LoadAudio"
	RoleAudioDuration = "AudioDuration"
)

// RequiredRoles lists the class types a template must contain.
var RequiredRoles = []string{RoleLoadImage, RoleLoadAudio, RoleAudioDuration}

// Bindings are the values injected into a graph.
type Bindings struct {
	ImagePath string
	AudioPath string
	Duration  float64
}

func (b Bindings) slot(role string) (string, any, bool) {
	switch role {
	case RoleLoadImage:
		return "image", b.ImagePath, true
	case RoleLoadAudio:
		return "audio", b.AudioPath, true
	case RoleAudioDuration:
		return "duration", b.Duration, true
	default:
		return "", nil, false
	}
}

type nodeHeader struct {
	ClassType string `json:"class_type"`
}

// ClassType returns the role tag of a node, or "" when it has none or is
// not an object.
func ClassType(raw json.RawMessage) string {
	var h nodeHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return ""
	}
	return h.ClassType
}

// Parse decodes a template document.
func Parse(name string, data []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "workflow.parse", fmt.Sprintf("workflow %q is not a JSON object of nodes", name))
	}
	if g == nil {
		g = Graph{}
	}
	return g, nil
}

// Validate fails with CodeGraphMissingRole when a required role has no node.
func Validate(g Graph) error {
	seen := make(map[string]bool, len(RequiredRoles))
	for _, raw := range g {
		seen[ClassType(raw)] = true
	}

	var missing []string
	for _, role := range RequiredRoles {
		if !seen[role] {
			missing = append(missing, role)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.Newf(errors.CodeGraphMissingRole, "workflow has no node for %v", missing).
		WithField("missing", missing)
}

// Parameterize writes the bindings into every node whose class type is a
// recognised role and returns how many nodes it rewrote. Other nodes are
// left byte-for-byte untouched. It performs no structural validation.
func Parameterize(g Graph, b Bindings) (int, error) {
	updated := 0
	for id, raw := range g {
		slot, value, ok := b.slot(ClassType(raw))
		if !ok {
			continue
		}

		var node map[string]any
		if err := json.Unmarshal(raw, &node); err != nil {
			return updated, errors.WrapWithCode(err, errors.CodeValidation, "workflow.parameterize", "node "+id+" is not an object")
		}
		inputs, _ := node["inputs"].(map[string]any)
		if inputs == nil {
			inputs = make(map[string]any)
		}
		inputs[slot] = value
		node["inputs"] = inputs

		out, err := json.Marshal(node)
		if err != nil {
			return updated, errors.Wrap(err, "workflow.parameterize", "re-encode node "+id)
		}
		g[id] = out
		updated++
	}
	return updated, nil
}
