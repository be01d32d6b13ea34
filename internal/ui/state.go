package ui

import (
	"fmt"

	"github.com/k-kuroguro/smiview/internal/model"
)

// Expansion keys. Only these tree items can be expanded.
func nodeKey(host string) string { return "node:" + host }

func deviceKey(host string, id int) string { return fmt.Sprintf("device:%s.%d", host, id) }

func processesKey(host string, id int) string {
	return fmt.Sprintf("deviceInfo:%s.%d.processes", host, id)
}

func processKey(host string, id, pid int) string {
	return fmt.Sprintf("process:%s.%d.processes.%d", host, id, pid)
}

// expansion remembers which tree items are expanded. Items start collapsed.
type expansion struct {
	expanded map[string]bool
	// pruned is set once stale keys were dropped for the current run.
	pruned bool
}

func newExpansion() *expansion {
	return &expansion{expanded: make(map[string]bool)}
}

func (e *expansion) isExpanded(key string) bool { return e.expanded[key] }

func (e *expansion) set(key string, expanded bool) {
	if expanded {
		e.expanded[key] = true
	} else {
		delete(e.expanded, key)
	}
}

func (e *expansion) toggle(key string) { e.set(key, !e.expanded[key]) }

// prune drops keys of items that are not in snap.
func (e *expansion) prune(snap model.Snapshot) {
	live := keysOf(snap)
	for k := range e.expanded {
		if _, ok := live[k]; !ok {
			delete(e.expanded, k)
		}
	}
}

// pruneOnce prunes on the first snapshot after a (re)start.
func (e *expansion) pruneOnce(snap model.Snapshot) {
	if e.pruned {
		return
	}
	e.prune(snap)
	e.pruned = true
}

func keysOf(snap model.Snapshot) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, n := range snap.Nodes {
		keys[nodeKey(n.Hostname)] = struct{}{}
		for _, d := range n.Devices {
			keys[deviceKey(n.Hostname, d.ID)] = struct{}{}
			keys[processesKey(n.Hostname, d.ID)] = struct{}{}
			for _, p := range d.Processes {
				keys[processKey(n.Hostname, d.ID, p.PID)] = struct{}{}
			}
		}
	}
	return keys
}
