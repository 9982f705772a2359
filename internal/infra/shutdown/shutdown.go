package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler coordinates graceful teardown. It waits for SIGINT, SIGTERM,
// or a programmatic Trigger, then runs registered hooks last-in
// first-out under a shared deadline.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger
	trigger chan struct{}
	once    sync.Once
	done    chan struct{}

	mu    sync.Mutex
	hooks []hook
}

// NewHandler creates a handler. The timeout bounds the total time all
// hooks get; a nil logger discards hook progress messages.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		trigger: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a named hook. Register in startup order; hooks
// run in reverse so dependents stop before their dependencies.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
	h.mu.Unlock()
}

// Trigger starts shutdown without a signal, for fatal errors observed
// by the caller. Safe to call multiple times.
func (h *Handler) Trigger() {
	h.once.Do(func() { close(h.trigger) })
}

// Wait blocks until a termination signal or Trigger, runs the hooks,
// and returns their joined errors.
func (h *Handler) Wait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		h.logger.Info("shutdown signal received", "signal", sig.String())
	case <-h.trigger:
		h.logger.Info("shutdown triggered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h.logger.Info("shutdown step", "name", hooks[i].name)
		if err := hooks[i].fn(ctx); err != nil {
			h.logger.Error("shutdown step failed", "name", hooks[i].name, "error", err)
			errs = append(errs, err)
		}
	}

	close(h.done)
	return errors.Join(errs...)
}

// Done closes once every hook has run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
