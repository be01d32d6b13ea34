package parser

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/k-kuroguro/smiview/internal/model"
)

const (
	tableRowLength = 12
	columnDelim    = "|"
	borderPrefix   = "+"
)

// tableRow holds the normalized cells of one content line. An empty string
// means the cell is absent, except for command which may legitimately be
// blank on an otherwise complete process row.
type tableRow struct {
	node        string
	gpu         string
	memoryUsage string
	gpuUtil     string
	fan         string
	temp        string
	power       string
	pid         string
	user        string
	command     string
	gpuMem      string
	runtime     string
}

var headerRow = tableRow{
	node:        colNode,
	gpu:         colGpu,
	memoryUsage: colMemoryUsage,
	gpuUtil:     colGpuUtil,
	fan:         colFan,
	temp:        colTemp,
	power:       colPower,
	pid:         colPID,
	user:        colUser,
	command:     colCommand,
	gpuMem:      colGpuMem,
	runtime:     colRuntime,
}

func isTableBorder(line string) bool { return strings.HasPrefix(line, borderPrefix) }

// isTableRow matches on the leading delimiter only, so that a row cut short
// is reported as a column count error instead of vanishing silently.
func isTableRow(line string) bool { return strings.HasPrefix(line, columnDelim) }

func normalizeCell(s string) string { return strings.TrimSpace(ansi.Strip(s)) }

// splitTableRow splits a content line into its twelve normalized cells.
func splitTableRow(line string) (tableRow, bool) {
	parts := strings.Split(line, columnDelim)
	if len(parts) < 2 {
		return tableRow{}, false
	}
	cols := parts[1 : len(parts)-1]
	if len(cols) != tableRowLength {
		return tableRow{}, false
	}
	for i := range cols {
		cols[i] = normalizeCell(cols[i])
	}
	return tableRow{
		node:        cols[0],
		gpu:         cols[1],
		memoryUsage: cols[2],
		gpuUtil:     cols[3],
		fan:         cols[4],
		temp:        cols[5],
		power:       cols[6],
		pid:         cols[7],
		user:        cols[8],
		command:     cols[9],
		gpuMem:      cols[10],
		runtime:     cols[11],
	}, true
}

func (r tableRow) isHeader() bool { return r == headerRow }

func (r tableRow) hasNode() bool { return r.node != "" }

func (r tableRow) hasAnyDeviceField() bool {
	return r.gpu != "" || r.memoryUsage != "" || r.gpuUtil != "" || r.fan != "" || r.temp != "" || r.power != ""
}

func (r tableRow) hasAllDeviceFields() bool {
	return r.gpu != "" && r.memoryUsage != "" && r.gpuUtil != "" && r.fan != "" && r.temp != "" && r.power != ""
}

func (r tableRow) hasAnyProcessField() bool {
	return r.pid != "" || r.user != "" || r.gpuMem != "" || r.runtime != ""
}

func (r tableRow) hasAllProcessFields() bool {
	return r.pid != "" && r.user != "" && r.gpuMem != "" && r.runtime != ""
}

// rowKind says which level of the hierarchy a row opens.
type rowKind int

const (
	rowNode rowKind = iota + 1
	rowDevice
	rowProcess
)

// parsedRow is the typed content of a row. For rowNode, device and process
// are optional; for rowDevice, process is optional.
type parsedRow struct {
	kind     rowKind
	hostname string
	device   *model.Device
	process  *model.Process
}

// parseRow classifies a row by its populated field groups and converts every
// field it carries. It has no side effects: a failing row leaves no trace.
func parseRow(r tableRow) (parsedRow, error) {
	var out parsedRow
	switch {
	case r.hasNode():
		out.kind = rowNode
		out.hostname = r.node
	case r.hasAnyDeviceField():
		out.kind = rowDevice
	case r.hasAnyProcessField():
		out.kind = rowProcess
	default:
		return parsedRow{}, errRowShape
	}

	if out.kind != rowProcess && r.hasAnyDeviceField() {
		if !r.hasAllDeviceFields() {
			return parsedRow{}, errRowShape
		}
		d, err := parseDevice(r)
		if err != nil {
			return parsedRow{}, err
		}
		out.device = &d
	}

	// A process on a node row needs the device on the same row.
	if r.hasAnyProcessField() && (out.kind == rowProcess || out.device != nil) {
		if !r.hasAllProcessFields() {
			return parsedRow{}, errRowShape
		}
		p, err := parseProcess(r)
		if err != nil {
			return parsedRow{}, err
		}
		out.process = &p
	}
	return out, nil
}

func parseDevice(r tableRow) (model.Device, error) {
	id, name, err := parseDeviceIDAndName(r.gpu)
	if err != nil {
		return model.Device{}, err
	}
	d := model.Device{ID: id, Name: name, Processes: []model.Process{}}
	if d.Memory, err = parseMemory(r.memoryUsage); err != nil {
		return model.Device{}, err
	}
	if d.Utilization, err = parseIntWithUnit(r.gpuUtil, unitPercent, colGpuUtil); err != nil {
		return model.Device{}, err
	}
	if d.FanSpeed, err = parseIntWithUnit(r.fan, unitPercent, colFan); err != nil {
		return model.Device{}, err
	}
	if d.Temperature, err = parseIntWithUnit(r.temp, unitCelsius, colTemp); err != nil {
		return model.Device{}, err
	}
	if d.PowerUsage, err = parseIntWithUnit(r.power, unitWatt, colPower); err != nil {
		return model.Device{}, err
	}
	return d, nil
}

func parseProcess(r tableRow) (model.Process, error) {
	pid, err := parsePID(r.pid)
	if err != nil {
		return model.Process{}, err
	}
	mem, err := parseIntWithUnit(r.gpuMem, unitMiB, colGpuMem)
	if err != nil {
		return model.Process{}, err
	}
	rt, err := parseRuntime(r.runtime)
	if err != nil {
		return model.Process{}, err
	}
	return model.Process{
		PID:           pid,
		Username:      r.user,
		Name:          r.command,
		UsedGPUMemory: mem,
		Runtime:       rt,
	}, nil
}
