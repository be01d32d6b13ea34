package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/k-kuroguro/smiview/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshotAt(ts time.Time, devices ...model.Device) model.Snapshot {
	return model.Snapshot{
		Timestamp: ts,
		Nodes:     []model.Node{{Hostname: "gpu01", Devices: devices}},
	}
}

func device(id, util int, procs ...model.Process) model.Device {
	return model.Device{
		ID:          id,
		Name:        "NVIDIA A100",
		Utilization: util,
		Memory:      model.Memory{Used: 100, Total: 40960, Percentage: 0},
		Temperature: 40,
		PowerUsage:  60,
		Processes:   append([]model.Process{}, procs...),
	}
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 2, 15, 21, 53, 41, 0, time.UTC)

	snap := snapshotAt(ts, device(0, 10, model.Process{PID: 42, Username: "alice", Name: "python"}), device(1, 0))
	require.NoError(t, s.Record(ctx, snap))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Nodes)
	assert.Equal(t, 2, entries[0].Devices)
	assert.Equal(t, 1, entries[0].Processes)
	assert.True(t, entries[0].Timestamp.Equal(ts))

	got, err := s.Get(ctx, entries[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, snap.Nodes, got.Nodes)
}

func TestRecordSamePollOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 2, 15, 21, 53, 41, 0, time.UTC)

	require.NoError(t, s.Record(ctx, snapshotAt(ts, device(0, 10))))
	require.NoError(t, s.Record(ctx, snapshotAt(ts, device(0, 10), device(1, 20))))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Devices)

	samples, err := s.DeviceSamples(ctx, "gpu01", 0, 0)
	require.NoError(t, err)
	assert.Len(t, samples, 1)
}

func TestListNewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 15, 21, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(ctx, snapshotAt(base.Add(time.Duration(i)*time.Minute), device(0, i*10))))
	}

	entries, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Timestamp.After(entries[1].Timestamp))

	samples, err := s.DeviceSamples(ctx, "gpu01", 0, 0)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 20, samples[0].Utilization)
	assert.Equal(t, 0, samples[2].Utilization)
}

func TestGetUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
