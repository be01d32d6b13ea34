package main

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/k-kuroguro/smiview/internal/model"
	"github.com/k-kuroguro/smiview/internal/monitor"
	"github.com/k-kuroguro/smiview/internal/parser"
	"github.com/k-kuroguro/smiview/internal/supervisor"
)

// outputJSON writes a value as formatted JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputJSONCompact writes a value as one line of JSON.
func outputJSONCompact(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// Record types of the JSON event output.
const (
	recordSnapshot   = "snapshot"
	recordEmpty      = "empty"
	recordParseError = "parseError"
	recordStatus     = "status"
	recordExited     = "exited"
	recordStats      = "stats"
)

// eventRecord is one line of `watch --json-stream` or one element of
// `parse` output.
type eventRecord struct {
	Type     string                 `json:"type"`
	Time     *time.Time             `json:"time,omitempty"`
	Status   string                 `json:"status,omitempty"`
	Snapshot *model.Snapshot        `json:"snapshot,omitempty"`
	Error    *errorRecord           `json:"error,omitempty"`
	Exit     *supervisor.ExitStatus `json:"exit,omitempty"`
	Stats    *supervisor.Stats      `json:"stats,omitempty"`
}

type errorRecord struct {
	Message string `json:"message"`
	*parser.ParseError
}

func newErrorRecord(err error) *errorRecord {
	if err == nil {
		return nil
	}
	rec := &errorRecord{Message: err.Error()}
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		rec.ParseError = pe
	}
	return rec
}

// parserRecord converts a parser event.
func parserRecord(ev parser.Event) eventRecord {
	switch ev := ev.(type) {
	case parser.SnapshotUpdated:
		snap := ev.Snapshot
		if snap.Empty() {
			return eventRecord{Type: recordEmpty}
		}
		return eventRecord{Type: recordSnapshot, Snapshot: &snap}
	case *parser.ParseError:
		return eventRecord{Type: recordParseError, Error: newErrorRecord(ev)}
	}
	return eventRecord{}
}

// updateRecord converts a monitor update.
func updateRecord(u monitor.Update) eventRecord {
	t := u.Time
	rec := eventRecord{Time: &t, Status: u.Status.String()}
	switch u.Kind {
	case monitor.KindStatus:
		rec.Type = recordStatus
	case monitor.KindSnapshot:
		rec.Type, rec.Snapshot = recordSnapshot, u.Snapshot
	case monitor.KindEmpty:
		rec.Type = recordEmpty
	case monitor.KindParseError:
		rec.Type, rec.Error = recordParseError, newErrorRecord(u.Err)
	case monitor.KindExited:
		rec.Type, rec.Exit, rec.Error = recordExited, u.Exit, newErrorRecord(u.Err)
	case monitor.KindStats:
		rec.Type, rec.Stats = recordStats, u.Stats
	}
	return rec
}
