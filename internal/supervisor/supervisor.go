// Package supervisor runs cluster-smi and reports what it does.
//
// A Supervisor owns at most one running process. Output chunks, start and
// exit notifications are delivered in order on a single event channel, which
// the caller must keep draining while the process runs.
package supervisor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrAlreadyRunning is returned by Start while a process is running.
var ErrAlreadyRunning = errors.New("process is already running")

// EventKind tells the Event variants apart.
type EventKind int

const (
	// Started is sent once the process has been spawned.
	Started EventKind = iota + 1
	// Stdout carries a chunk of standard output.
	Stdout
	// Stderr carries a chunk of standard error.
	Stderr
	// Exited is sent after the process has ended.
	Exited
	// Failed is sent when the process could not be started or waited on.
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Started:
		return "started"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case Exited:
		return "exited"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one notification from the supervised process.
type Event struct {
	Kind   EventKind
	Time   time.Time
	Data   []byte     // Stdout, Stderr
	PID    int        // Started
	Status ExitStatus // Exited
	Err    error      // Failed
}

// Supervisor starts, stops and restarts one cluster-smi process.
type Supervisor struct {
	runner  Runner
	cmd     Command
	events  chan Event
	restart bool
	limiter *rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	pid    int

	stats statsSampler
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithRestart restarts the process after it exits on its own, at most
// burst times at once and then once per interval.
func WithRestart(interval time.Duration, burst int) Option {
	return func(s *Supervisor) {
		if interval <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.restart = true
		s.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// WithBuffer sets the capacity of the event channel.
func WithBuffer(n int) Option {
	return func(s *Supervisor) { s.events = make(chan Event, n) }
}

func New(runner Runner, cmd Command, opts ...Option) *Supervisor {
	s := &Supervisor{
		runner: runner,
		cmd:    cmd,
		events: make(chan Event, 64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events returns the event channel. It is never closed.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Running reports whether a process is currently supervised.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// Start spawns the process. It returns ErrAlreadyRunning when one is
// already supervised. Spawn failures are reported as a Failed event.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go s.loop(runCtx, done)
	return nil
}

// Stop terminates the process and waits for its Exited event to be queued.
// Stopping an idle Supervisor does nothing.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Restart stops the running process, if any, and starts a new one.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

func (s *Supervisor) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.cancel()
			s.cancel, s.done = nil, nil
		}
		s.mu.Unlock()
		close(done)
	}()

	for {
		s.runOnce(ctx)
		if ctx.Err() != nil || !s.restart {
			return
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) {
	h, err := s.runner.Start(ctx, s.cmd, chunkWriter{s, Stdout}, chunkWriter{s, Stderr})
	if err != nil {
		s.send(Event{Kind: Failed, Err: err})
		return
	}

	pid := h.PID()
	s.setPID(pid)
	s.send(Event{Kind: Started, PID: pid})

	status, err := h.Wait()
	s.setPID(0)
	if err != nil {
		s.send(Event{Kind: Failed, Err: err})
		return
	}
	s.send(Event{Kind: Exited, Status: status})
}

func (s *Supervisor) setPID(pid int) {
	s.mu.Lock()
	s.pid = pid
	s.mu.Unlock()
	s.stats.reset(pid)
}

// PID returns the id of the running local process, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

func (s *Supervisor) send(ev Event) {
	ev.Time = time.Now()
	s.events <- ev
}

// chunkWriter turns each Write into an output event.
type chunkWriter struct {
	s    *Supervisor
	kind EventKind
}

func (w chunkWriter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	w.s.send(Event{Kind: w.kind, Data: data})
	return len(p), nil
}
