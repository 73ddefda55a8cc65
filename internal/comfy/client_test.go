package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newEngineServer(t *testing.T, mux *http.ServeMux) (*httptest.Server, *HTTPClient) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, NewHTTPClient(srv.URL, wsURL, 5*time.Second)
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"no content still 2xx", http.StatusNoContent, false},
		{"starting up", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, c := newEngineServer(t, mux)

			err := c.Probe(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Probe error = %v, wantErr %v", err, tt.wantErr)
			}
			var se *StatusError
			if tt.wantErr && !errors.As(err, &se) {
				t.Fatalf("expected StatusError, got %T", err)
			}
		})
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "ws://127.0.0.1:1/ws", time.Second)
	if err := c.Probe(context.Background()); err == nil {
		t.Fatal("expected error from closed port")
	}
}

func TestSubmit(t *testing.T) {
	var got promptRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"prompt_id":"p-123","number":1}`))
	})
	_, c := newEngineServer(t, mux)

	id, err := c.Submit(context.Background(), map[string]any{"1": map[string]any{"class_type": "LoadImage"}}, "job-1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "p-123" {
		t.Errorf("prompt id = %q", id)
	}
	if got.ClientID != "job-1" {
		t.Errorf("client_id = %q", got.ClientID)
	}
	if _, ok := got.Prompt.(map[string]any)["1"]; !ok {
		t.Errorf("prompt not forwarded: %v", got.Prompt)
	}
}

func TestSubmitRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"prompt_outputs_failed_validation"}}`))
	})
	_, c := newEngineServer(t, mux)

	_, err := c.Submit(context.Background(), map[string]any{}, "")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusBadRequest || !strings.Contains(se.Body, "prompt_outputs_failed_validation") {
		t.Errorf("unexpected status error: %+v", se)
	}
}

func TestSubmitMissingPromptID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"number":3}`))
	})
	_, c := newEngineServer(t, mux)

	if _, err := c.Submit(context.Background(), map[string]any{}, ""); err == nil {
		t.Fatal("expected error when prompt_id is absent")
	}
}

func TestEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	clientIDs := make(chan string, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		clientIDs <- r.URL.Query().Get("clientId")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"executed","data":{"prompt_id":"p-1","node":"9"}}`))
		_, _, _ = conn.ReadMessage()
	})
	_, c := newEngineServer(t, mux)

	stream, err := c.Events(context.Background(), "job-7")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	defer stream.Close()

	if id := <-clientIDs; id != "job-7" {
		t.Errorf("clientId = %q", id)
	}

	first, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.Type != "" {
		t.Errorf("non-JSON text should yield an empty event, got %+v", first)
	}

	second, err := stream.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Type != EventExecuted || second.PromptID() != "p-1" {
		t.Errorf("unexpected event %+v", second)
	}
}

func TestEventsCancelUnblocksNext(t *testing.T) {
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
	})
	_, c := newEngineServer(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.Events(ctx, "")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	defer stream.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := stream.Next()
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error after cancel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after cancel")
	}
}

func TestEventPromptID(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"present", Event{Type: "executed", Data: json.RawMessage(`{"prompt_id":"abc"}`)}, "abc"},
		{"no data", Event{Type: "status"}, ""},
		{"data not object", Event{Type: "status", Data: json.RawMessage(`[1,2]`)}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.PromptID(); got != tt.want {
				t.Errorf("PromptID() = %q, want %q", got, tt.want)
			}
		})
	}
}
