package parser

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	InvalidTimestamp ErrorKind = iota + 1
	TableRowBeforeTimestamp
	InvalidColumnCount
	DeviceBeforeNode
	ProcessBeforeDevice
	InvalidFieldFormat
	InvalidRowShape
)

// Sentinel errors matched by errors.Is against a *ParseError.
var (
	ErrInvalidTimestamp        = errors.New("could not parse timestamp")
	ErrTableRowBeforeTimestamp = errors.New("table row found before timestamp")
	ErrInvalidColumnCount      = errors.New("invalid table row")
	ErrDeviceBeforeNode        = errors.New("device found before node")
	ErrProcessBeforeDevice     = errors.New("process found before device")
	ErrInvalidFieldFormat      = errors.New("invalid field")
	ErrInvalidRowShape         = errors.New("invalid table row")
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidTimestamp:
		return "InvalidTimestamp"
	case TableRowBeforeTimestamp:
		return "TableRowBeforeTimestamp"
	case InvalidColumnCount:
		return "InvalidColumnCount"
	case DeviceBeforeNode:
		return "DeviceBeforeNode"
	case ProcessBeforeDevice:
		return "ProcessBeforeDevice"
	case InvalidFieldFormat:
		return "InvalidFieldFormat"
	case InvalidRowShape:
		return "InvalidRowShape"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// MarshalText lets the kind appear by name in JSON output.
func (k ErrorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ErrorKind) UnmarshalText(text []byte) error {
	for c := InvalidTimestamp; c <= InvalidRowShape; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown parse error kind %q", text)
}

func (k ErrorKind) sentinel() error {
	switch k {
	case InvalidTimestamp:
		return ErrInvalidTimestamp
	case TableRowBeforeTimestamp:
		return ErrTableRowBeforeTimestamp
	case InvalidColumnCount:
		return ErrInvalidColumnCount
	case DeviceBeforeNode:
		return ErrDeviceBeforeNode
	case ProcessBeforeDevice:
		return ErrProcessBeforeDevice
	case InvalidFieldFormat:
		return ErrInvalidFieldFormat
	case InvalidRowShape:
		return ErrInvalidRowShape
	default:
		return nil
	}
}

// ParseError reports one malformed line. It is recoverable: the parser keeps
// going with the next line.
type ParseError struct {
	Kind ErrorKind `json:"kind"`
	// Line is the offending input line, trimmed.
	Line string `json:"line"`
	// Field and Raw are set for InvalidFieldFormat only.
	Field  string `json:"field,omitempty"`
	Raw    string `json:"raw,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if err := e.Kind.sentinel(); err != nil {
		msg = err.Error()
	}
	if e.Detail != "" {
		msg = e.Detail
	}
	if e.Field != "" {
		return fmt.Sprintf("%s %s: %q", msg, e.Field, e.Raw)
	}
	if e.Line != "" {
		return fmt.Sprintf("%s: %s", msg, e.Line)
	}
	return msg
}

// Unwrap exposes the sentinel for the error kind.
func (e *ParseError) Unwrap() error { return e.Kind.sentinel() }

func (*ParseError) isEvent() {}

// fieldError is returned by the field converters and turned into a
// ParseError once the offending line is known.
type fieldError struct {
	field string
	raw   string
}

func (e *fieldError) Error() string { return fmt.Sprintf("invalid %s: %q", e.field, e.raw) }

func newFieldError(field, raw string) error { return &fieldError{field: field, raw: raw} }

// errRowShape marks a row whose populated cells match no node, device or
// process pattern.
var errRowShape = errors.New("row shape")
