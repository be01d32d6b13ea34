package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-kuroguro/smiview/internal/history"
	"github.com/k-kuroguro/smiview/internal/model"
	"github.com/k-kuroguro/smiview/internal/monitor"
	"github.com/k-kuroguro/smiview/internal/parser"
	"github.com/k-kuroguro/smiview/internal/supervisor"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitError, exitCode(errors.New("boom")))
	assert.Equal(t, ExitDataError, exitCode(withCode(ExitDataError, "bad line")))
	wrapped := errors.Join(errors.New("context"), withCode(ExitConfigError, "bad config"))
	assert.Equal(t, ExitConfigError, exitCode(wrapped))
}

func TestParseValidFile(t *testing.T) {
	out, err := execute(t, "parse", "--time-zone", "UTC", filepath.Join("..", "..", "internal", "parser", "testdata", "valid.txt"))
	require.NoError(t, err)

	var records []eventRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.NotEmpty(t, records)
	for _, r := range records {
		assert.NotEqual(t, recordParseError, r.Type)
	}
	last := records[len(records)-1]
	assert.Equal(t, recordSnapshot, last.Type)
	require.NotNil(t, last.Snapshot)
	assert.Equal(t, time.UTC, last.Snapshot.Timestamp.Location())
}

func TestParseInvalidFile(t *testing.T) {
	out, err := execute(t, "parse", filepath.Join("..", "..", "internal", "parser", "testdata", "invalid_col_count.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitDataError, exitCode(err))

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	failed := 0
	for _, r := range records {
		if r["type"] == recordParseError {
			failed++
			errRec := r["error"].(map[string]any)
			assert.Equal(t, parser.InvalidColumnCount.String(), errRec["kind"])
			assert.NotEmpty(t, errRec["message"])
		}
	}
	assert.Equal(t, 2, failed)
}

func TestParseMissingFile(t *testing.T) {
	_, err := execute(t, "parse", filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.Equal(t, ExitError, exitCode(err))
}

func TestHistoryCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(dbPath)
	require.NoError(t, err)
	snap := model.Snapshot{
		Timestamp: time.Date(2025, 2, 15, 21, 53, 41, 0, time.UTC),
		Nodes: []model.Node{{Hostname: "gpu01", Devices: []model.Device{
			{ID: 0, Name: "NVIDIA A100", Utilization: 55, Processes: []model.Process{}},
		}}},
	}
	require.NoError(t, store.Record(context.Background(), snap))
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "list", "--history", dbPath)
	require.NoError(t, err)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Devices)

	out, err = execute(t, "history", "show", strconv.FormatInt(entries[0].ID, 10), "--history", dbPath)
	require.NoError(t, err)
	var got model.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, snap.Nodes, got.Nodes)

	out, err = execute(t, "history", "device", "gpu01", "0", "--history", dbPath)
	require.NoError(t, err)
	var samples []history.DeviceSample
	require.NoError(t, json.Unmarshal([]byte(out), &samples))
	require.Len(t, samples, 1)
	assert.Equal(t, 55, samples[0].Utilization)

	_, err = execute(t, "history", "show", "999", "--history", dbPath)
	assert.Equal(t, ExitDataError, exitCode(err))
}

func TestInvalidConfigFlag(t *testing.T) {
	_, err := execute(t, "parse", "--node-filter", "(", "-")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
	// Leave the flag valid for later tests.
	_, _ = execute(t, "parse", "--node-filter", "", filepath.Join("..", "..", "internal", "parser", "testdata", "valid.txt"))
}

func TestUpdateRecord(t *testing.T) {
	now := time.Now()
	rec := updateRecord(monitor.Update{
		Kind:   monitor.KindExited,
		Time:   now,
		Status: monitor.StatusExitedWithError,
		Exit:   &supervisor.ExitStatus{Code: 2},
	})
	assert.Equal(t, recordExited, rec.Type)
	assert.Equal(t, "exited with error", rec.Status)
	assert.Equal(t, 2, rec.Exit.Code)
	assert.Nil(t, rec.Error)

	pe := &parser.ParseError{Kind: parser.InvalidTimestamp, Line: "garbage"}
	rec = updateRecord(monitor.Update{Kind: monitor.KindParseError, Time: now, Err: pe})
	assert.Equal(t, recordParseError, rec.Type)
	require.NotNil(t, rec.Error)
	assert.Equal(t, pe, rec.Error.ParseError)
	assert.Equal(t, pe.Error(), rec.Error.Message)
}

func TestFirstSnapshot(t *testing.T) {
	snap := &model.Snapshot{Nodes: []model.Node{{Hostname: "gpu01", Devices: []model.Device{}}}}
	ch := make(chan monitor.Update, 2)
	ch <- monitor.Update{Kind: monitor.KindStatus}
	ch <- monitor.Update{Kind: monitor.KindSnapshot, Snapshot: snap}

	var out bytes.Buffer
	require.NoError(t, firstSnapshot(&out, ch, false))
	assert.Contains(t, out.String(), `"hostname": "gpu01"`)

	ch = make(chan monitor.Update, 1)
	ch <- monitor.Update{Kind: monitor.KindExited}
	err := firstSnapshot(&out, ch, false)
	assert.Equal(t, ExitDataError, exitCode(err))
}
