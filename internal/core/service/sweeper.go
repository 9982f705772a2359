package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/swapdotz/dotvault/internal/core/domain"
)

// DefaultSweepInterval is how often the sweeper collects expired
// sessions.
const DefaultSweepInterval = 30 * time.Second

// Sweep collects every pending session past its deadline: the session
// fails with SESSION_EXPIRED, the lease is released, and the durable
// record settles as failed. Terminal sessions older than the retention
// window are removed. Returns the number of sessions expired.
//
// Sweep is also the path for an operator-triggered collection.
func (s *TransferService) Sweep(ctx context.Context) (int, error) {
	expired, err := s.sessions.Expired(ctx)
	if err != nil {
		return 0, err
	}
	for _, sess := range expired {
		s.failTransfer(ctx, sess, domain.GetErrorCode(domain.ErrSessionExpired))
	}

	cutoff := time.Now().Add(-s.cfg.TerminalRetention).UnixMilli()
	removed, err := s.sessions.DeleteTerminal(ctx, cutoff)
	if err != nil {
		return len(expired), err
	}
	if len(expired) > 0 || removed > 0 {
		s.logger.Info("sweep completed", "expired", len(expired), "removed", removed)
	}
	return len(expired), nil
}

// Sweeper periodically runs TransferService.Sweep in the background.
type Sweeper struct {
	svc      *TransferService
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewSweeper creates a sweeper for svc. A non-positive interval gets
// the default.
func NewSweeper(svc *TransferService, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. Starting twice is a no-op.
func (w *Sweeper) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.started = true

	go w.run(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *Sweeper) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.started = false
	w.mu.Unlock()

	cancel()
	<-done
}

func (w *Sweeper) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.svc.Sweep(ctx); err != nil {
				w.logger.Error("sweep failed", "error", err)
			}
		}
	}
}
