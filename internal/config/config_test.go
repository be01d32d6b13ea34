package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "cluster-smi", cfg.Command)
	assert.Equal(t, []string{"-p", "-d"}, cfg.Args)
	assert.Len(t, cfg.DeviceInfoFields, 6)
	assert.Len(t, cfg.ProcessInfoFields, 4)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Command, cfg.Command)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), File)
	writeFile(t, path, `
command: /opt/cluster-smi/bin/cluster-smi
remote:
  host: head01
  proxy_jump: bastion
node_filter: "^gpu"
device_info_fields: [memory, processes]
process_info_fields: [pid]
restart:
  enabled: true
  interval: 30s
  burst: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/opt/cluster-smi/bin/cluster-smi", cfg.Command)
	assert.Equal(t, []string{"-p", "-d"}, cfg.Args)
	assert.Equal(t, "head01", cfg.Remote.Host)
	assert.Equal(t, "bastion", cfg.Remote.ProxyJump)
	assert.Equal(t, 10, cfg.Remote.ConnectTimeout)
	assert.Equal(t, []DeviceInfoField{DeviceMemory, DeviceProcesses}, cfg.DeviceInfoFields)
	assert.Equal(t, []ProcessInfoField{ProcessPID}, cfg.ProcessInfoFields)
	assert.Equal(t, 30*time.Second, cfg.Restart.Interval)

	re, err := cfg.NodeFilterRegexp()
	require.NoError(t, err)
	assert.True(t, re.MatchString("gpu01"))
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), File)
	writeFile(t, path, "command: [unterminated")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SMIVIEW_COMMAND", "/usr/local/bin/cluster-smi")
	t.Setenv("SMIVIEW_REMOTE_HOST", "head02")
	t.Setenv("SMIVIEW_RESTART", "0")
	t.Setenv("SMIVIEW_STATS_INTERVAL", "7")

	cfg := Default()
	ApplyEnv(&cfg)

	assert.Equal(t, "/usr/local/bin/cluster-smi", cfg.Command)
	assert.Equal(t, "head02", cfg.Remote.Host)
	assert.False(t, cfg.Restart.Enabled)
	assert.Equal(t, 7*time.Second, cfg.StatsInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty command", mutate: func(c *Config) { c.Command = "" }},
		{name: "bad regex", mutate: func(c *Config) { c.NodeFilter = "(" }},
		{name: "bad zone", mutate: func(c *Config) { c.TimeZone = "Mars/Olympus" }},
		{name: "unknown device field", mutate: func(c *Config) { c.DeviceInfoFields = []DeviceInfoField{"clock"} }},
		{name: "unknown process field", mutate: func(c *Config) { c.ProcessInfoFields = []ProcessInfoField{"cmd"} }},
		{name: "zero restart interval", mutate: func(c *Config) { c.Restart.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := Default()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.TimeZone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestFlagsApplyOnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("smiview", pflag.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--remote", "head03", "--no-restart"}))

	cfg := Default()
	cfg.Command = "/from/file"
	flags.Apply(&cfg)

	assert.Equal(t, "/from/file", cfg.Command)
	assert.Equal(t, "head03", cfg.Remote.Host)
	assert.False(t, cfg.Restart.Enabled)
}

func TestWatchDeliversReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, File)
	writeFile(t, path, "node_filter: a\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan Config, 4)
	errs := make(chan error, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c Config) { changes <- c }, func(err error) { errs <- err })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, path, "node_filter: b\n")

	select {
	case cfg := <-changes:
		assert.Equal(t, "b", cfg.NodeFilter)
	case err := <-errs:
		t.Fatalf("unexpected reload error: %v", err)
	case <-ctx.Done():
		t.Fatal("no reload delivered")
	}

	cancel()
	require.NoError(t, <-done)
}
