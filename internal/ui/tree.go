package ui

import (
	"strconv"

	"github.com/k-kuroguro/smiview/internal/config"
	"github.com/k-kuroguro/smiview/internal/model"
)

type rowKind int

const (
	rowTimestamp rowKind = iota
	rowNode
	rowDevice
	rowDeviceInfo
	rowProcess
	rowProcessInfo
)

// row is one visible line of the tree.
type row struct {
	kind  rowKind
	depth int
	// id identifies the row across rebuilds so the cursor can follow it.
	id string
	// key is the expansion key, empty for leaves.
	key       string
	label     string
	desc      string
	available bool
	// parent is the index of the enclosing row, -1 at the top level.
	parent int
}

func (r row) expandable() bool { return r.key != "" }

// buildRows flattens the visible part of snap.
func buildRows(snap *model.Snapshot, devFields []config.DeviceInfoField, procFields []config.ProcessInfoField, exp *expansion) []row {
	if snap == nil {
		return nil
	}
	rows := []row{{
		kind:   rowTimestamp,
		id:     "timestamp",
		label:  "Updated",
		desc:   snap.Timestamp.Format("2006/01/02 15:04:05"),
		parent: -1,
	}}

	for _, n := range snap.Nodes {
		nk := nodeKey(n.Hostname)
		rows = append(rows, row{kind: rowNode, id: nk, key: nk, label: n.Hostname, parent: -1})
		if !exp.isExpanded(nk) {
			continue
		}
		nodeIdx := len(rows) - 1

		for _, d := range n.Devices {
			dk := deviceKey(n.Hostname, d.ID)
			rows = append(rows, row{
				kind: rowDevice, depth: 1, id: dk, key: dk,
				label: strconv.Itoa(d.ID), desc: d.Name, available: d.Available(), parent: nodeIdx,
			})
			if !exp.isExpanded(dk) {
				continue
			}
			devIdx := len(rows) - 1

			for _, f := range devFields {
				r := row{
					kind: rowDeviceInfo, depth: 2, id: dk + "." + string(f),
					label: deviceInfoLabel(f), desc: deviceInfoValue(f, d), parent: devIdx,
				}
				if f != config.DeviceProcesses {
					rows = append(rows, r)
					continue
				}
				pk := processesKey(n.Hostname, d.ID)
				r.id, r.key = pk, pk
				rows = append(rows, r)
				if !exp.isExpanded(pk) {
					continue
				}
				procsIdx := len(rows) - 1

				for _, p := range d.Processes {
					k := processKey(n.Hostname, d.ID, p.PID)
					rows = append(rows, row{
						kind: rowProcess, depth: 3, id: k, key: k,
						label: p.Name, desc: p.Username, parent: procsIdx,
					})
					if !exp.isExpanded(k) {
						continue
					}
					procIdx := len(rows) - 1
					for _, pf := range procFields {
						rows = append(rows, row{
							kind: rowProcessInfo, depth: 4, id: k + "." + string(pf),
							label: processInfoLabel(pf), desc: processInfoValue(pf, p), parent: procIdx,
						})
					}
				}
			}
		}
	}
	return rows
}

// expandableKeys lists every expansion key of snap that is reachable with
// the given info fields.
func expandableKeys(snap *model.Snapshot, devFields []config.DeviceInfoField) []string {
	if snap == nil {
		return nil
	}
	showProcs := false
	for _, f := range devFields {
		if f == config.DeviceProcesses {
			showProcs = true
		}
	}
	var keys []string
	for _, n := range snap.Nodes {
		keys = append(keys, nodeKey(n.Hostname))
		for _, d := range n.Devices {
			keys = append(keys, deviceKey(n.Hostname, d.ID))
			if !showProcs {
				continue
			}
			keys = append(keys, processesKey(n.Hostname, d.ID))
			for _, p := range d.Processes {
				keys = append(keys, processKey(n.Hostname, d.ID, p.PID))
			}
		}
	}
	return keys
}
