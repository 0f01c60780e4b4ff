// Package supervisor tracks at most one external process at a time and
// relays its output and exit as a three-state status stream.
package supervisor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"agentdock/internal/process"
)

type State string

const (
	StateRunning State = "running"
	StateSuccess State = "success"
	StateError   State = "error"
)

const (
	MessageStarted   = "Process started"
	MessageCompleted = "Process completed successfully."
)

// Status is a transient status event. Data carries an output chunk while
// running and the full output on terminal events.
type Status struct {
	Status  State  `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Terminal reports whether s ends a process lifecycle.
func (s Status) Terminal() bool {
	return s.Status == StateSuccess || s.Status == StateError
}

// Observer receives status events in arrival order. Calls for one
// attachment never overlap, but a torn-down attachment may still be inside
// its last call when the next attachment emits its first event, so an
// observer shared across attachments must be safe for concurrent use.
// Every Supervisor method may be called from inside an observer.
type Observer func(Status)

// Process is the handle the supervisor owns. Stdout and Stderr may be nil.
// Wait is called only after both streams are drained.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() error
	Kill() error
}

const readChunkSize = 32 * 1024

type attachment struct {
	proc     Process
	observer Observer

	// emitMu serializes observer calls. outMu guards out and is never held
	// while the observer runs.
	emitMu   sync.Mutex
	outMu    sync.Mutex
	out      strings.Builder
	detached atomic.Bool
}

func (a *attachment) output() string {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	return a.out.String()
}

// emit must be called with a.emitMu held.
func (a *attachment) emit(st Status) {
	if a.detached.Load() || a.observer == nil {
		return
	}
	a.observer(st)
}

// Supervisor owns a single process slot. The zero value is not usable; use New.
type Supervisor struct {
	logger *slog.Logger

	mu      sync.Mutex
	current *attachment
	last    *attachment
}

func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{logger: logger}
}

// Attach tears down any owned process, adopts p, and emits the initial
// running event before returning.
func (s *Supervisor) Attach(p Process, observer Observer) {
	a := &attachment{proc: p, observer: observer}

	s.mu.Lock()
	if prev := s.current; prev != nil {
		s.teardown(prev)
	}
	s.current = a
	s.last = a
	s.mu.Unlock()

	a.emitMu.Lock()
	a.emit(Status{Status: StateRunning, Message: MessageStarted})
	a.emitMu.Unlock()

	go s.watch(a)
}

// Run starts spec and attaches it. A launch failure is still attached, so
// the observer sees it as an error status; the error is also returned.
func (s *Supervisor) Run(spec process.Spec, observer Observer) error {
	cmd, err := process.Start(spec)
	if err != nil {
		s.logger.Warn("process start failed", "command", spec.CommandLine(), "err", err)
		s.Attach(process.Failed(err), observer)
		return err
	}
	s.logger.Info("process started", "command", spec.CommandLine(), "pid", cmd.Pid())
	s.Attach(cmd, observer)
	return nil
}

// Detach releases and kills the owned process, if any. It reports whether a
// process was owned. The kill is not awaited.
func (s *Supervisor) Detach() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	s.teardown(s.current)
	s.current = nil
	return true
}

func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Output returns the output accumulated by the most recently attached process.
func (s *Supervisor) Output() string {
	s.mu.Lock()
	a := s.last
	s.mu.Unlock()
	if a == nil {
		return ""
	}
	return a.output()
}

// teardown must be called with s.mu held. It does not take a.emitMu, so it
// is safe from inside an observer.
func (s *Supervisor) teardown(a *attachment) {
	a.detached.Store(true)
	if err := a.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("kill process failed", "err", err)
	}
}

func (s *Supervisor) watch(a *attachment) {
	var wg sync.WaitGroup
	for _, r := range []io.Reader{a.proc.Stdout(), a.proc.Stderr()} {
		if r == nil {
			continue
		}
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			s.pump(a, r)
		}(r)
	}
	wg.Wait()
	s.finish(a, a.proc.Wait())
}

func (s *Supervisor) pump(a *attachment, r io.Reader) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			a.emitMu.Lock()
			a.outMu.Lock()
			a.out.WriteString(chunk)
			a.outMu.Unlock()
			a.emit(Status{Status: StateRunning, Data: chunk})
			a.emitMu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !a.detached.Load() {
				s.logger.Debug("process stream closed", "err", err)
			}
			return
		}
	}
}

type exitCoder interface {
	ExitCode() int
}

func (s *Supervisor) finish(a *attachment, waitErr error) {
	a.emitMu.Lock()
	full := a.output()
	st := Status{Status: StateSuccess, Message: MessageCompleted, Data: full}
	var ec exitCoder
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &ec) && ec.ExitCode() >= 0:
		st = Status{Status: StateError, Message: fmt.Sprintf("Process exited with code %d", ec.ExitCode()), Data: full}
	default:
		st = Status{Status: StateError, Message: waitErr.Error(), Data: full}
	}
	if !a.detached.Load() {
		s.logger.Info("process finished", "status", st.Status, "message", st.Message, "output_bytes", len(full))
	}
	a.emit(st)
	a.emitMu.Unlock()

	s.mu.Lock()
	if s.current == a {
		s.current = nil
	}
	s.mu.Unlock()
}
