package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Timestamp: time.Date(2025, 2, 15, 21, 53, 41, 0, time.UTC),
		Nodes: []Node{
			{Hostname: "gpu01", Devices: []Device{
				{ID: 0, Name: "A6000", Processes: []Process{{PID: 1, Username: "alice"}}},
				{ID: 1, Name: "A6000", Processes: []Process{}},
			}},
			{Hostname: "cpu01", Devices: []Device{}},
		},
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := sampleSnapshot()
	cp := orig.Clone()
	require.Equal(t, orig, cp)

	cp.Nodes[0].Devices[0].Processes[0].PID = 99
	cp.Nodes[0].Devices = append(cp.Nodes[0].Devices, Device{ID: 2})
	cp.Nodes[1].Hostname = "changed"

	assert.Equal(t, 1, orig.Nodes[0].Devices[0].Processes[0].PID)
	assert.Len(t, orig.Nodes[0].Devices, 2)
	assert.Equal(t, "cpu01", orig.Nodes[1].Hostname)
}

func TestCounts(t *testing.T) {
	nodes, devices, procs := sampleSnapshot().Counts()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 2, devices)
	assert.Equal(t, 1, procs)
}

func TestAvailable(t *testing.T) {
	s := sampleSnapshot()
	assert.False(t, s.Nodes[0].Devices[0].Available())
	assert.True(t, s.Nodes[0].Devices[1].Available())
}

func TestRuntimeDuration(t *testing.T) {
	rt := Runtime{Days: 1, Hours: 2, Minutes: 3, Seconds: 4}
	assert.Equal(t, 26*time.Hour+3*time.Minute+4*time.Second, rt.Duration())
	assert.Zero(t, Runtime{}.Duration())
}

func TestFilterNodes(t *testing.T) {
	s := sampleSnapshot()

	assert.Equal(t, s, s.FilterNodes(nil))

	got := s.FilterNodes(regexp.MustCompile(`^gpu`))
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, "gpu01", got.Nodes[0].Hostname)
	assert.Equal(t, s.Timestamp, got.Timestamp)
	assert.True(t, s.FilterNodes(regexp.MustCompile(`^none$`)).Empty())
}
