// Package shutdown coordinates harness teardown. An operator signal is
// the only way the restart loop ends, so the signal path has to be
// reliable: cancel the run context, let the supervisor stop the active
// worker, then run cleanup hooks in reverse registration order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/simplco/botkeeper/pkg/logging"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager handles graceful shutdown
type Manager struct {
	mu      sync.Mutex
	hooks   []hook
	timeout time.Duration
	log     *logging.Logger
}

// New creates a shutdown manager. timeout bounds the total time spent in
// cleanup hooks.
func New(timeout time.Duration, log *logging.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		log:     log.WithComponent("shutdown"),
	}
}

// Register adds a named cleanup hook. Hooks run in reverse order (LIFO).
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Context returns a child of parent that is cancelled on SIGINT or
// SIGTERM. The first signal begins graceful shutdown; a second one kills
// the harness the default way.
func (m *Manager) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigChan:
			m.log.Info("signal received, shutting down", map[string]interface{}{
				"signal": sig.String(),
			})
			signal.Stop(sigChan)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
		}
	}()

	return ctx, cancel
}

// Shutdown executes all registered hooks in reverse order
func (m *Manager) Shutdown() {
	m.mu.Lock()
	hooks := make([]hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			m.log.Warn("shutdown hook failed", map[string]interface{}{
				"hook":  h.name,
				"error": err.Error(),
			})
			continue
		}
		m.log.Debug("shutdown hook completed", map[string]interface{}{
			"hook": h.name,
		})
	}
}
