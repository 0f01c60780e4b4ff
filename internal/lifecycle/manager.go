// Package lifecycle runs the long-lived jobs of the daemon (HTTP server,
// config watcher) and the cleanup that follows them.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"
)

// DefaultShutdownTimeout bounds each shutdown job.
const DefaultShutdownTimeout = 5 * time.Second

type job struct {
	name string
	fn   func(context.Context) error
}

// Manager starts every run job together and, once they have all returned,
// runs the shutdown jobs in reverse registration order.
type Manager struct {
	logger          *slog.Logger
	shutdownTimeout time.Duration

	mu       sync.Mutex
	runs     []job
	cleanups []job
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("module", "lifecycle"), shutdownTimeout: DefaultShutdownTimeout}
}

// SetShutdownTimeout changes the per-job shutdown bound. Zero disables it.
func (m *Manager) SetShutdownTimeout(d time.Duration) {
	m.mu.Lock()
	m.shutdownTimeout = d
	m.mu.Unlock()
}

// AddRun registers a job that runs until its context is canceled. A job
// returning an error cancels the others.
func (m *Manager) AddRun(name string, fn func(context.Context) error) {
	m.add(&m.runs, name, fn)
}

// AddShutdown registers cleanup. Cleanup registered last runs first.
func (m *Manager) AddShutdown(name string, fn func(context.Context) error) {
	m.add(&m.cleanups, name, fn)
}

func (m *Manager) add(list *[]job, name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	*list = append(*list, job{name: name, fn: fn})
	m.mu.Unlock()
}

// StartAndWait blocks until parent is done, a signal in sig arrives, or a
// run job fails. Shutdown jobs always run; their errors are joined with the
// first run error.
func (m *Manager) StartAndWait(parent context.Context, sig ...os.Signal) error {
	ctx := parent
	if len(sig) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(parent, sig...)
		defer stop()
	}

	m.mu.Lock()
	runs := append([]job(nil), m.runs...)
	cleanups := append([]job(nil), m.cleanups...)
	timeout := m.shutdownTimeout
	m.mu.Unlock()

	runErr := m.runAll(ctx, runs)

	var shutdownErr error
	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		if err := m.runCleanup(c, timeout); err != nil {
			m.logger.Warn("shutdown job failed", "job", c.name, "err", err)
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}
	return errors.Join(runErr, shutdownErr)
}

func (m *Manager) runAll(ctx context.Context, runs []job) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, r := range runs {
		wg.Add(1)
		go func(r job) {
			defer wg.Done()
			err := r.fn(runCtx)
			if err == nil || errors.Is(err, context.Canceled) {
				m.logger.Debug("run job stopped", "job", r.name)
				return
			}
			m.logger.Error("run job failed", "job", r.name, "err", err)
			once.Do(func() { firstErr = err })
			cancel()
		}(r)
	}
	wg.Wait()
	return firstErr
}

func (m *Manager) runCleanup(c job, timeout time.Duration) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := c.fn(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
