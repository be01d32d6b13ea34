package config

import (
	"github.com/spf13/pflag"
)

// Flag names shared by the CLI commands.
const (
	FlagCommand      = "command"
	FlagRemote       = "remote"
	FlagRemoteUser   = "remote-user"
	FlagProxyJump    = "proxy-jump"
	FlagNodeFilter   = "node-filter"
	FlagLogLevel     = "log-level"
	FlagLogFile      = "log-file"
	FlagHistory      = "history"
	FlagTimeZone     = "time-zone"
	FlagNoRestart    = "no-restart"
	FlagLineBuffered = "line-buffered"
)

// Flags holds values bound to a flag set. Only flags the user actually set
// are copied onto a Config, so the file and environment keep their say for
// everything else.
type Flags struct {
	fs  *pflag.FlagSet
	val Config
	// noRestart is inverted into Restart.Enabled.
	noRestart bool
}

// BindFlags registers the shared flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, val: Default()}
	fs.StringVar(&f.val.Command, FlagCommand, f.val.Command, "cluster-smi executable")
	fs.StringVar(&f.val.Remote.Host, FlagRemote, "", "run cluster-smi on this host over SSH")
	fs.StringVar(&f.val.Remote.User, FlagRemoteUser, "", "SSH user (default: current user)")
	fs.StringVar(&f.val.Remote.ProxyJump, FlagProxyJump, "", "SSH jump host")
	fs.StringVar(&f.val.NodeFilter, FlagNodeFilter, "", "regex of node hostnames to show")
	fs.StringVar(&f.val.LogLevel, FlagLogLevel, f.val.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&f.val.LogFile, FlagLogFile, "", "write logs to this file")
	fs.StringVar(&f.val.HistoryPath, FlagHistory, "", "record snapshots into this SQLite database")
	fs.StringVar(&f.val.TimeZone, FlagTimeZone, f.val.TimeZone, "zone of the cluster-smi banner time")
	fs.BoolVar(&f.noRestart, FlagNoRestart, false, "do not restart cluster-smi when it exits")
	fs.BoolVar(&f.val.LineBuffered, FlagLineBuffered, false, "reassemble lines split across output chunks")
	return f
}

// Apply copies the flags that were set on the command line onto cfg.
func (f *Flags) Apply(cfg *Config) {
	f.fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case FlagCommand:
			cfg.Command = f.val.Command
		case FlagRemote:
			cfg.Remote.Host = f.val.Remote.Host
		case FlagRemoteUser:
			cfg.Remote.User = f.val.Remote.User
		case FlagProxyJump:
			cfg.Remote.ProxyJump = f.val.Remote.ProxyJump
		case FlagNodeFilter:
			cfg.NodeFilter = f.val.NodeFilter
		case FlagLogLevel:
			cfg.LogLevel = f.val.LogLevel
		case FlagLogFile:
			cfg.LogFile = f.val.LogFile
		case FlagHistory:
			cfg.HistoryPath = f.val.HistoryPath
		case FlagTimeZone:
			cfg.TimeZone = f.val.TimeZone
		case FlagNoRestart:
			cfg.Restart.Enabled = !f.noRestart
		case FlagLineBuffered:
			cfg.LineBuffered = f.val.LineBuffered
		}
	})
}
