package supervisor

import (
	"fmt"
	"strconv"
	"syscall"
)

// ExitStatus describes how a cluster-smi run ended. Code is -1 when the
// process was terminated by a signal; Signal is empty otherwise.
type ExitStatus struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

// WithError reports whether the exit should be surfaced as a failure.
// A SIGTERM is how Stop ends the process, so it never counts.
func (s ExitStatus) WithError() bool {
	return s.Code != 0 && s.Signal != "SIGTERM"
}

func (s ExitStatus) String() string {
	code, signal := "null", "null"
	if s.Code >= 0 {
		code = strconv.Itoa(s.Code)
	}
	if s.Signal != "" {
		signal = s.Signal
	}
	return fmt.Sprintf("code: %s, signal: %s", code, signal)
}

var signalNames = map[syscall.Signal]string{
	syscall.SIGHUP:  "SIGHUP",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGQUIT: "SIGQUIT",
	syscall.SIGABRT: "SIGABRT",
	syscall.SIGKILL: "SIGKILL",
	syscall.SIGSEGV: "SIGSEGV",
	syscall.SIGPIPE: "SIGPIPE",
	syscall.SIGALRM: "SIGALRM",
	syscall.SIGTERM: "SIGTERM",
}

func signalName(sig syscall.Signal) string {
	if name, ok := signalNames[sig]; ok {
		return name
	}
	return "SIG" + strconv.Itoa(int(sig))
}
