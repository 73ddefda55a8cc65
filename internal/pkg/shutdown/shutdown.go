// Package shutdown coordinates graceful stop of the long-running
// subcommands.
package shutdown

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"comfybridge/internal/pkg/logger"
)

// Manager cancels a root context on shutdown and then runs cleanup
// handlers in reverse registration order.
type Manager struct {
	log      *logger.Logger
	timeout  time.Duration
	handlers []Handler
	mu       sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	err    error
	done   chan struct{}
}

// Handler is a function that performs cleanup during shutdown.
type Handler struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// NewManager creates a new shutdown manager. A zero timeout means 30s.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup handler.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, Handler{Name: name, Cleanup: cleanup})
	m.log.Debug("registered shutdown handler", "name", name)
}

// RegisterCloser adds a handler that closes c.
func (m *Manager) RegisterCloser(name string, c io.Closer) {
	m.Register(name, func(context.Context) error {
		return c.Close()
	})
}

// Context is canceled as soon as shutdown starts, before any handler runs.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Done is closed once every handler has returned or the timeout expired.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until SIGINT/SIGTERM/SIGHUP or until ctx is canceled, then
// shuts down.
func (m *Manager) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		m.log.Info("context canceled, initiating shutdown")
	case <-m.ctx.Done():
	}

	return m.Shutdown()
}

// Shutdown cancels Context and runs the handlers LIFO, sharing one timeout.
// Only the first call does work; later calls return the same result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.cancel()

		m.mu.Lock()
		handlers := make([]Handler, len(m.handlers))
		copy(handlers, m.handlers)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.log.Info("starting graceful shutdown", "handlers", len(handlers), "timeout", m.timeout.String())

		var errs []error
		for i := len(handlers) - 1; i >= 0; i-- {
			h := handlers[i]
			if ctx.Err() != nil {
				m.log.Warn("shutdown timeout exceeded, skipping handler", "name", h.Name)
				errs = append(errs, ctx.Err())
				continue
			}

			start := time.Now()
			if err := h.Cleanup(ctx); err != nil {
				m.log.Error("shutdown handler failed",
					"name", h.Name,
					"error", err.Error(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
				errs = append(errs, err)
				continue
			}
			m.log.Debug("shutdown handler completed",
				"name", h.Name,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}

		m.err = stderrors.Join(errs...)
		if m.err == nil {
			m.log.Info("graceful shutdown completed")
		}
		close(m.done)
	})
	return m.err
}
