package workflow

import (
	"bytes"
	"encoding/json"
	"testing"

	"comfybridge/internal/pkg/errors"
)

const singleSpeaker = `{
  "3": {"class_type": "KSampler", "inputs": {"seed": 42, "steps": 20}},
  "10": {"class_type": "LoadImage", "inputs": {"image": "placeholder.png", "upload": "image"}},
  "11": {"class_type": "LoadAudio", "inputs": {"audio": "placeholder.wav"}},
  "12": {"class_type": "AudioDuration", "inputs": {"duration": 0, "fps": 25}},
  "20": {"class_type": "VHS_VideoCombine", "inputs": {"frame_rate": 25, "filename_prefix": "output"}},
  "21": {"inputs": {"note": "no class type"}}
}`

func mustParse(t *testing.T, doc string) Graph {
	t.Helper()
	g, err := Parse("test", []byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return g
}

func inputsOf(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var node struct {
		Inputs map[string]any `json:"inputs"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		t.Fatalf("unmarshal node: %v", err)
	}
	return node.Inputs
}

func TestParameterizeTouchesOnlyRoleSlots(t *testing.T) {
	original := mustParse(t, singleSpeaker)
	g := mustParse(t, singleSpeaker)

	n, err := Parameterize(g, Bindings{ImagePath: "/tmp/j/image.png", AudioPath: "/tmp/j/audio.wav", Duration: 7.25})
	if err != nil {
		t.Fatalf("Parameterize: %v", err)
	}
	if n != 3 {
		t.Fatalf("updated %d nodes, want 3", n)
	}

	if got := inputsOf(t, g["10"])["image"]; got != "/tmp/j/image.png" {
		t.Errorf("image = %v", got)
	}
	if got := inputsOf(t, g["11"])["audio"]; got != "/tmp/j/audio.wav" {
		t.Errorf("audio = %v", got)
	}
	if got := inputsOf(t, g["12"])["duration"]; got != 7.25 {
		t.Errorf("duration = %v", got)
	}

	// sibling inputs of rewritten nodes survive
	if got := inputsOf(t, g["10"])["upload"]; got != "image" {
		t.Errorf("upload = %v", got)
	}
	if got := inputsOf(t, g["12"])["fps"]; got != float64(25) {
		t.Errorf("fps = %v", got)
	}

	for _, id := range []string{"3", "20", "21"} {
		if !bytes.Equal(original[id], g[id]) {
			t.Errorf("node %s changed:\n got %s\nwant %s", id, g[id], original[id])
		}
	}
}

func TestParameterizeEveryMatchingNode(t *testing.T) {
	g := mustParse(t, `{
		"1": {"class_type": "LoadImage", "inputs": {}},
		"2": {"class_type": "LoadImage"}
	}`)

	n, err := Parameterize(g, Bindings{ImagePath: "/x.png"})
	if err != nil {
		t.Fatalf("Parameterize: %v", err)
	}
	if n != 2 {
		t.Fatalf("updated %d nodes, want 2", n)
	}
	for _, id := range []string{"1", "2"} {
		if got := inputsOf(t, g[id])["image"]; got != "/x.png" {
			t.Errorf("node %s image = %v", id, got)
		}
	}
}

func TestParameterizeToleratesMissingRoles(t *testing.T) {
	g := mustParse(t, `{"1": {"class_type": "KSampler", "inputs": {}}}`)

	n, err := Parameterize(g, Bindings{})
	if err != nil || n != 0 {
		t.Fatalf("Parameterize = %d, %v", n, err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(mustParse(t, singleSpeaker)); err != nil {
		t.Fatalf("complete graph: %v", err)
	}

	g := mustParse(t, `{"1": {"class_type": "LoadImage", "inputs": {}}}`)
	err := Validate(g)
	if !errors.IsCode(err, errors.CodeGraphMissingRole) {
		t.Fatalf("expected GRAPH_MISSING_ROLE, got %v", err)
	}
	missing, _ := errors.GetFields(err)["missing"].([]string)
	if len(missing) != 2 || missing[0] != RoleAudioDuration || missing[1] != RoleLoadAudio {
		t.Errorf("missing = %v", missing)
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("bad", []byte(`[1,2,3]`)); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("expected validation error for array document, got %v", err)
	}
	g, err := Parse("null", []byte(`null`))
	if err != nil || g == nil || len(g) != 0 {
		t.Fatalf("null document = %v, %v", g, err)
	}
}

func TestClassType(t *testing.T) {
	if ClassType(json.RawMessage(`{"class_type":"LoadAudio"}`)) != "LoadAudio" {
		t.Error("expected LoadAudio")
	}
	if ClassType(json.RawMessage(`"just a string"`)) != "" {
		t.Error("expected empty class type for non-object")
	}
}
