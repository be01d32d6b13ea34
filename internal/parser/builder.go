package parser

import (
	"errors"
	"time"

	"github.com/k-kuroguro/smiview/internal/model"
)

var errNoNode = errors.New("process found before node")

// builder accumulates the snapshot of one poll cycle. It tracks the open
// node and device by index; opening a node closes the previous device.
type builder struct {
	snap    model.Snapshot
	nodeIdx int
	devIdx  int
}

func newBuilder(ts time.Time) *builder {
	return &builder{
		snap:    model.Snapshot{Timestamp: ts, Nodes: []model.Node{}},
		nodeIdx: -1,
		devIdx:  -1,
	}
}

func (b *builder) addNode(hostname string, dev *model.Device, proc *model.Process) {
	n := model.Node{Hostname: hostname, Devices: []model.Device{}}
	b.snap.Nodes = append(b.snap.Nodes, n)
	b.nodeIdx = len(b.snap.Nodes) - 1
	b.devIdx = -1
	if dev != nil {
		b.addDevice(*dev, proc)
	}
}

func (b *builder) addDevice(dev model.Device, proc *model.Process) bool {
	if b.nodeIdx < 0 {
		return false
	}
	if proc != nil {
		dev.Processes = append(dev.Processes, *proc)
	}
	node := &b.snap.Nodes[b.nodeIdx]
	node.Devices = append(node.Devices, dev)
	b.devIdx = len(node.Devices) - 1
	return true
}

func (b *builder) addProcess(proc model.Process) error {
	if b.nodeIdx < 0 {
		return errNoNode
	}
	if b.devIdx < 0 {
		return ErrProcessBeforeDevice
	}
	dev := &b.snap.Nodes[b.nodeIdx].Devices[b.devIdx]
	dev.Processes = append(dev.Processes, proc)
	return nil
}

func (b *builder) updated() SnapshotUpdated {
	return SnapshotUpdated{Snapshot: b.snap.Clone()}
}
