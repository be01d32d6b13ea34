package model

import (
	"regexp"
	"time"
)

// Memory is device memory usage in MiB.
type Memory struct {
	Used       int `json:"used"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Runtime is the elapsed time of a process as reported by cluster-smi.
// Units the tool omits are zero.
type Runtime struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// Duration converts the runtime to a time.Duration.
func (r Runtime) Duration() time.Duration {
	return time.Duration(r.Days)*24*time.Hour +
		time.Duration(r.Hours)*time.Hour +
		time.Duration(r.Minutes)*time.Minute +
		time.Duration(r.Seconds)*time.Second
}

// Process is one workload using a device.
type Process struct {
	PID           int     `json:"pid"`
	Username      string  `json:"username"`
	Name          string  `json:"name"` // may be empty
	UsedGPUMemory int     `json:"usedGpuMemory"` // MiB
	Runtime       Runtime `json:"runtime"`
}

// Device is one accelerator on a node.
type Device struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Utilization int       `json:"utilization"` // percent
	Memory      Memory    `json:"memory"`
	FanSpeed    int       `json:"fanSpeed"`    // percent
	Temperature int       `json:"temperature"` // degrees C
	PowerUsage  int       `json:"powerUsage"`  // W
	Processes   []Process `json:"processes"`
}

// Available reports whether no process is running on the device.
func (d Device) Available() bool { return len(d.Processes) == 0 }

// Node is one cluster host.
type Node struct {
	Hostname string   `json:"hostname"`
	Devices  []Device `json:"devices"`
}

// Snapshot is the full cluster state of one poll cycle.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Nodes     []Node    `json:"nodes"`
}

// Empty reports whether the snapshot carries no nodes.
func (s Snapshot) Empty() bool { return len(s.Nodes) == 0 }

// Clone returns a deep copy that shares no slices with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Timestamp: s.Timestamp, Nodes: make([]Node, len(s.Nodes))}
	for i, n := range s.Nodes {
		out.Nodes[i] = n.Clone()
	}
	return out
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := Node{Hostname: n.Hostname, Devices: make([]Device, len(n.Devices))}
	for i, d := range n.Devices {
		d.Processes = append(make([]Process, 0, len(d.Processes)), d.Processes...)
		out.Devices[i] = d
	}
	return out
}

// Counts returns the number of nodes, devices and processes in the snapshot.
func (s Snapshot) Counts() (nodes, devices, processes int) {
	nodes = len(s.Nodes)
	for _, n := range s.Nodes {
		devices += len(n.Devices)
		for _, d := range n.Devices {
			processes += len(d.Processes)
		}
	}
	return
}

// FilterNodes returns a copy of s holding only nodes whose hostname matches re.
// A nil re keeps every node.
func (s Snapshot) FilterNodes(re *regexp.Regexp) Snapshot {
	if re == nil {
		return s
	}
	out := Snapshot{Timestamp: s.Timestamp, Nodes: make([]Node, 0, len(s.Nodes))}
	for _, n := range s.Nodes {
		if re.MatchString(n.Hostname) {
			out.Nodes = append(out.Nodes, n)
		}
	}
	return out
}
