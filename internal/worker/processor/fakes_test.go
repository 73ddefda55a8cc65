package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"comfybridge/internal/comfy"
)

// fakeEngine is an in-memory comfy.Engine.
type fakeEngine struct {
	mu sync.Mutex

	// probe fails until it has been called healthyAfter times.
	healthyAfter int
	probes       int

	promptID  string
	submitErr error
	submits   int
	submitted map[string]json.RawMessage
	clientID  string
	onSubmit  func(graph map[string]json.RawMessage) error

	events    []comfy.Event
	block     bool
	eventsErr error
	stream    *fakeStream
}

func (f *fakeEngine) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.probes < f.healthyAfter {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (f *fakeEngine) Submit(ctx context.Context, graph any, clientID string) (string, error) {
	f.mu.Lock()
	f.submits++
	f.clientID = clientID
	f.mu.Unlock()

	if f.submitErr != nil {
		return "", f.submitErr
	}

	// Round-trip through JSON as the engine would see it.
	b, err := json.Marshal(graph)
	if err != nil {
		return "", err
	}
	var g map[string]json.RawMessage
	if err := json.Unmarshal(b, &g); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.submitted = g
	f.mu.Unlock()

	if f.onSubmit != nil {
		if err := f.onSubmit(g); err != nil {
			return "", err
		}
	}
	id := f.promptID
	if id == "" {
		id = "prompt-1"
	}
	return id, nil
}

func (f *fakeEngine) Events(ctx context.Context, clientID string) (comfy.EventStream, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	s := &fakeStream{ctx: ctx, events: f.events, block: f.block}
	f.mu.Lock()
	f.stream = s
	f.mu.Unlock()
	return s, nil
}

type fakeStream struct {
	ctx    context.Context
	events []comfy.Event
	block  bool

	mu     sync.Mutex
	next   int
	calls  int
	closed bool
}

func (s *fakeStream) Next() (comfy.Event, error) {
	s.mu.Lock()
	s.calls++
	if s.next < len(s.events) {
		ev := s.events[s.next]
		s.next++
		s.mu.Unlock()
		return ev, nil
	}
	s.mu.Unlock()

	if s.block {
		<-s.ctx.Done()
		return comfy.Event{}, s.ctx.Err()
	}
	return comfy.Event{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) state() (calls int, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.closed
}

func event(typ, promptID string) comfy.Event {
	data, _ := json.Marshal(map[string]any{"prompt_id": promptID, "node": "9"})
	return comfy.Event{Type: typ, Data: data}
}
