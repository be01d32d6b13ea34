// Package monitor connects a supervised cluster-smi process to the parser
// and turns what happens into a stream of updates for presentation.
package monitor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/k-kuroguro/smiview/internal/model"
	"github.com/k-kuroguro/smiview/internal/parser"
	"github.com/k-kuroguro/smiview/internal/supervisor"
	"github.com/sirupsen/logrus"
)

// Status is the lifecycle state of the cluster-smi process as presented.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusExitedSuccessfully
	StatusExitedWithError
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusExitedSuccessfully:
		return "exited"
	case StatusExitedWithError:
		return "exited with error"
	default:
		return "idle"
	}
}

// Kind tells what an Update reports.
type Kind int

const (
	// KindStatus reports a process start.
	KindStatus Kind = iota + 1
	// KindSnapshot carries a snapshot with at least one node.
	KindSnapshot
	// KindEmpty reports a poll that produced no nodes.
	KindEmpty
	// KindParseError carries one malformed line.
	KindParseError
	// KindExited reports the end of the process. Its data is gone.
	KindExited
	// KindStats carries a resource sample of the process.
	KindStats
)

// Update is one notification for the presentation layer. Status is always
// the current process status.
type Update struct {
	Kind     Kind
	Time     time.Time
	Status   Status
	Snapshot *model.Snapshot
	Err      error
	Exit     *supervisor.ExitStatus
	Stats    *supervisor.Stats
}

// Recorder stores emitted snapshots.
type Recorder interface {
	Record(ctx context.Context, snap model.Snapshot) error
}

// Monitor drives one Supervisor and one Parser.
type Monitor struct {
	sup           *supervisor.Supervisor
	parser        *parser.Parser
	recorder      Recorder
	statsInterval time.Duration

	status Status
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRecorder stores every non-empty snapshot in r.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithStatsInterval samples process resource usage every d. Zero disables it.
func WithStatsInterval(d time.Duration) Option {
	return func(m *Monitor) { m.statsInterval = d }
}

func New(sup *supervisor.Supervisor, p *parser.Parser, opts ...Option) *Monitor {
	m := &Monitor{sup: sup, parser: p}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stream starts the process and returns a channel of updates. The process
// is stopped and the channel closed once ctx is done.
func (m *Monitor) Stream(ctx context.Context) <-chan Update {
	ch := make(chan Update)
	go func() {
		defer close(ch)
		if err := m.sup.Start(ctx); err != nil && !errors.Is(err, supervisor.ErrAlreadyRunning) {
			logrus.Errorf("An error occurred while executing the command: %v", err)
		}

		var tick <-chan time.Time
		if m.statsInterval > 0 {
			ticker := time.NewTicker(m.statsInterval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				m.shutdown()
				return
			case ev := <-m.sup.Events():
				for _, u := range m.handle(ctx, ev) {
					u.Time = ev.Time
					select {
					case ch <- u:
					case <-ctx.Done():
						m.shutdown()
						return
					}
				}
			case t := <-tick:
				st, err := m.sup.Stats()
				if err != nil {
					continue
				}
				select {
				case ch <- Update{Kind: KindStats, Time: t, Status: m.status, Stats: &st}:
				case <-ctx.Done():
					m.shutdown()
					return
				}
			}
		}
	}()
	return ch
}

// shutdown stops the process while draining its remaining events.
func (m *Monitor) shutdown() {
	stopped := make(chan struct{})
	go func() {
		m.sup.Stop()
		close(stopped)
	}()
	for {
		select {
		case <-m.sup.Events():
		case <-stopped:
			return
		}
	}
}

func (m *Monitor) handle(ctx context.Context, ev supervisor.Event) []Update {
	switch ev.Kind {
	case supervisor.Started:
		m.parser.Reset()
		m.status = StatusRunning
		logrus.Infof("cluster-smi started (pid %d)", ev.PID)
		return []Update{{Kind: KindStatus, Status: m.status}}

	case supervisor.Stdout:
		return m.parsed(ctx, m.parser.Feed(ev.Data))

	case supervisor.Stderr:
		logrus.Errorf("An error occurred while executing the command: %s", strings.TrimRight(string(ev.Data), "\n"))
		return nil

	case supervisor.Exited:
		updates := m.parsed(ctx, m.parser.Flush())
		if ev.Status.WithError() {
			m.status = StatusExitedWithError
			logrus.Errorf("Process exited with %s", ev.Status)
		} else {
			m.status = StatusExitedSuccessfully
			logrus.Infof("Process exited with %s", ev.Status)
		}
		status := ev.Status
		return append(updates, Update{Kind: KindExited, Status: m.status, Exit: &status})

	case supervisor.Failed:
		m.status = StatusExitedWithError
		logrus.Errorf("An error occurred while executing the command: %v", ev.Err)
		return []Update{{Kind: KindExited, Status: m.status, Err: ev.Err}}
	}
	return nil
}

func (m *Monitor) parsed(ctx context.Context, events []parser.Event) []Update {
	var updates []Update
	for _, e := range events {
		switch e := e.(type) {
		case *parser.ParseError:
			logrus.Errorf("An error occurred during parsing: %v", e)
			updates = append(updates, Update{Kind: KindParseError, Status: m.status, Err: e})
		case parser.SnapshotUpdated:
			snap := e.Snapshot
			if snap.Empty() {
				updates = append(updates, Update{Kind: KindEmpty, Status: m.status})
				continue
			}
			if m.recorder != nil {
				if err := m.recorder.Record(ctx, snap); err != nil {
					logrus.Warnf("recording snapshot: %v", err)
				}
			}
			updates = append(updates, Update{Kind: KindSnapshot, Status: m.status, Snapshot: &snap})
		}
	}
	return updates
}
