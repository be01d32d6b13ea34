// Package parser turns the redrawn terminal output of cluster-smi into
// structured snapshots.
//
// cluster-smi prints a banner line with the poll time followed by a bordered
// table, once per poll. The Parser is fed raw stdout chunks and reports a
// SnapshotUpdated event whenever the table of the current poll grew, and a
// *ParseError for every malformed line. Errors never stop the parser; each
// line is handled on its own.
//
// By default every Feed call is split into lines on its own, so a line that
// arrives split across two chunks is seen as two broken lines. cluster-smi
// writes whole lines per flush, which makes this acceptable in practice;
// WithLineBuffering carries the trailing fragment over instead.
//
// A Parser is not safe for concurrent use.
package parser

import (
	"errors"
	"strings"
	"time"

	"github.com/k-kuroguro/smiview/internal/model"
)

// Event is either a SnapshotUpdated or a *ParseError.
type Event interface{ isEvent() }

// SnapshotUpdated carries the full snapshot of the current poll. The
// snapshot is a copy the parser never touches again.
type SnapshotUpdated struct {
	Snapshot model.Snapshot
}

func (SnapshotUpdated) isEvent() {}

// Option configures a Parser.
type Option func(*Parser)

// WithLocation sets the zone the banner time is read in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithLineBuffering keeps an unterminated trailing fragment until the next
// Feed (or Flush) completes it.
func WithLineBuffering() Option {
	return func(p *Parser) { p.lineBuffered = true }
}

// Parser is the incremental cluster-smi table parser.
type Parser struct {
	loc          *time.Location
	lineBuffered bool
	pending      string

	// cur is nil until a valid banner line has been seen.
	cur *builder
}

// New returns a Parser waiting for its first banner line.
func New(opts ...Option) *Parser {
	p := &Parser{loc: time.Local}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed processes one chunk of cluster-smi output and returns the resulting
// events in input order. At most one SnapshotUpdated is produced per poll
// cycle touched by the chunk, after the errors of that cycle.
func (p *Parser) Feed(data []byte) []Event {
	text := string(data)
	if p.lineBuffered {
		text = p.pending + text
		idx := strings.LastIndexByte(text, '\n')
		if idx < 0 {
			p.pending = text
			return nil
		}
		p.pending = text[idx+1:]
		text = text[:idx]
	}
	return p.process(text)
}

// Flush processes a fragment held back by WithLineBuffering as a complete line.
func (p *Parser) Flush() []Event {
	rest := p.pending
	p.pending = ""
	if rest == "" {
		return nil
	}
	return p.process(rest)
}

// Reset drops the snapshot being built and any buffered fragment.
func (p *Parser) Reset() {
	p.cur = nil
	p.pending = ""
}

func (p *Parser) process(text string) []Event {
	var events []Event
	changed := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case isTimestampLine(line):
			// Rows of the previous cycle seen in this chunk are reported
			// before that cycle is dropped.
			if p.cur != nil && changed {
				events = append(events, p.cur.updated())
			}
			changed = false

			ts, err := parseTimestampLine(line, p.loc)
			if err != nil {
				p.cur = nil
				events = append(events, &ParseError{Kind: InvalidTimestamp, Line: line})
				continue
			}
			p.cur = newBuilder(ts)
		case isTableBorder(line):
			// borders carry no data
		case isTableRow(line):
			ok, perr := p.handleRow(line)
			if perr != nil {
				events = append(events, perr)
				continue
			}
			changed = changed || ok
		}
	}

	if p.cur != nil && changed {
		events = append(events, p.cur.updated())
	}
	return events
}

// handleRow applies one content line to the current snapshot. It reports
// whether the snapshot changed.
func (p *Parser) handleRow(line string) (bool, *ParseError) {
	if p.cur == nil {
		return false, &ParseError{Kind: TableRowBeforeTimestamp, Line: line}
	}

	row, ok := splitTableRow(line)
	if !ok {
		return false, &ParseError{Kind: InvalidColumnCount, Line: line}
	}
	if row.isHeader() {
		return false, nil
	}

	parsed, err := parseRow(row)
	if err != nil {
		return false, rowError(line, err)
	}

	switch parsed.kind {
	case rowNode:
		p.cur.addNode(parsed.hostname, parsed.device, parsed.process)
	case rowDevice:
		if !p.cur.addDevice(*parsed.device, parsed.process) {
			return false, &ParseError{Kind: DeviceBeforeNode, Line: line}
		}
	case rowProcess:
		if err := p.cur.addProcess(*parsed.process); err != nil {
			return false, &ParseError{Kind: ProcessBeforeDevice, Line: line, Detail: err.Error()}
		}
	}
	return true, nil
}

func rowError(line string, err error) *ParseError {
	var fe *fieldError
	if errors.As(err, &fe) {
		return &ParseError{Kind: InvalidFieldFormat, Line: line, Field: fe.field, Raw: fe.raw}
	}
	return &ParseError{Kind: InvalidRowShape, Line: line}
}
