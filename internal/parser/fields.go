package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/k-kuroguro/smiview/internal/model"
)

// Column names as printed in the cluster-smi header.
const (
	colNode        = "Node"
	colGpu         = "Gpu"
	colMemoryUsage = "Memory-Usage"
	colGpuUtil     = "GPU-Util"
	colFan         = "Fan"
	colTemp        = "Temp"
	colPower       = "Power"
	colPID         = "PID"
	colUser        = "User"
	colCommand     = "Command"
	colGpuMem      = "GPU Mem"
	colRuntime     = "Runtime"
)

// Units accepted by parseIntWithUnit.
const (
	unitPercent = "%"
	unitCelsius = "C"
	unitWatt    = "W"
	unitMiB     = "MiB"
)

var (
	memoryRe      = regexp.MustCompile(`^(\d+)MiB/(\d+)MiB\((\d+)%\)$`)
	deviceRe      = regexp.MustCompile(`^(\d+):(.+)$`)
	digitsRe      = regexp.MustCompile(`^\d+$`)
	runtimeRe     = regexp.MustCompile(`^(?:\d+(?:d|h|min|sec)){1,4}$`)
	runtimePartRe = regexp.MustCompile(`(\d+)(d|h|min|sec)`)
)

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// parseIntWithUnit parses values like "27 %", "142W" or "5026 MiB".
func parseIntWithUnit(raw, unit, field string) (int, error) {
	s := stripSpaces(raw)
	digits, ok := strings.CutSuffix(s, unit)
	if !ok || !digitsRe.MatchString(digits) {
		return 0, newFieldError(field, raw)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, newFieldError(field, raw)
	}
	return n, nil
}

// parseMemory parses "5328 MiB / 11264 MiB ( 47 %)".
func parseMemory(raw string) (model.Memory, error) {
	m := memoryRe.FindStringSubmatch(stripSpaces(raw))
	if m == nil {
		return model.Memory{}, newFieldError(colMemoryUsage, raw)
	}
	var vals [3]int
	for i := range vals {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return model.Memory{}, newFieldError(colMemoryUsage, raw)
		}
		vals[i] = n
	}
	return model.Memory{Used: vals[0], Total: vals[1], Percentage: vals[2]}, nil
}

// parseDeviceIDAndName parses "0:NVIDIA GeForce GTX 1080 Ti".
func parseDeviceIDAndName(raw string) (int, string, error) {
	m := deviceRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, "", newFieldError(colGpu, raw)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", newFieldError(colGpu, raw)
	}
	return id, m[2], nil
}

// parsePID accepts a positive decimal integer.
func parsePID(raw string) (int, error) {
	if !digitsRe.MatchString(raw) {
		return 0, newFieldError(colPID, raw)
	}
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, newFieldError(colPID, raw)
	}
	return pid, nil
}

// parseRuntime parses "138 d 21 h 20 min 1 sec" and any subset of those units.
// A unit given twice keeps the last value.
func parseRuntime(raw string) (model.Runtime, error) {
	s := stripSpaces(raw)
	if !runtimeRe.MatchString(s) {
		return model.Runtime{}, newFieldError(colRuntime, raw)
	}
	var rt model.Runtime
	for _, part := range runtimePartRe.FindAllStringSubmatch(s, -1) {
		n, err := strconv.Atoi(part[1])
		if err != nil {
			return model.Runtime{}, newFieldError(colRuntime, raw)
		}
		switch part[2] {
		case "d":
			rt.Days = n
		case "h":
			rt.Hours = n
		case "min":
			rt.Minutes = n
		case "sec":
			rt.Seconds = n
		default:
			return model.Runtime{}, newFieldError(colRuntime, raw)
		}
	}
	return rt, nil
}
