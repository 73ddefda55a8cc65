package comfy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventExecuted is the message type the engine emits when a node of a
// prompt has produced its output.
const EventExecuted = "executed"

// Event is one message from the engine's event channel.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PromptID returns data.prompt_id, or "" when the message carries none.
func (e Event) PromptID() string {
	if len(e.Data) == 0 {
		return ""
	}
	var d struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return ""
	}
	return d.PromptID
}

// EventStream yields engine messages until it fails or is closed.
type EventStream interface {
	// Next blocks for the next text message. Messages that are not JSON
	// come back as an Event with an empty Type.
	Next() (Event, error)
	Close() error
}

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

func defaultDialer(handshake time.Duration) Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}
}

func (c *HTTPClient) Events(ctx context.Context, clientID string) (EventStream, error) {
	target, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	if clientID != "" {
		q := target.Query()
		q.Set("clientId", clientID)
		target.RawQuery = q.Encode()
	}

	conn, _, err := c.dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return nil, err
	}
	return newWSStream(ctx, conn), nil
}

type wsStream struct {
	conn *websocket.Conn
	done chan struct{}
	once sync.Once
}

func newWSStream(ctx context.Context, conn *websocket.Conn) *wsStream {
	s := &wsStream{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			// ReadMessage has no context; closing the socket is what unblocks it.
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s
}

func (s *wsStream) Next() (Event, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return Event{}, err
		}
		// binary frames are execution previews
		if mt != websocket.TextMessage {
			continue
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return Event{}, nil
		}
		return ev, nil
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
