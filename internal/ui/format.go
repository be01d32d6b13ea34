package ui

import (
	"fmt"

	"github.com/k-kuroguro/smiview/internal/config"
	"github.com/k-kuroguro/smiview/internal/model"
)

// pad right-aligns n in a field of width columns.
func pad(n, width int) string {
	return fmt.Sprintf("%*d", width, n)
}

func deviceInfoLabel(f config.DeviceInfoField) string {
	switch f {
	case config.DeviceUtilization:
		return "GPU-Util"
	case config.DeviceMemory:
		return "Memory-Usage"
	case config.DeviceFanSpeed:
		return "Fan"
	case config.DeviceTemperature:
		return "Temp"
	case config.DevicePowerUsage:
		return "Power"
	case config.DeviceProcesses:
		return "Processes"
	}
	return string(f)
}

func deviceInfoValue(f config.DeviceInfoField, d model.Device) string {
	switch f {
	case config.DeviceUtilization:
		return pad(d.Utilization, 3) + " %"
	case config.DeviceMemory:
		return fmt.Sprintf("%s MiB / %s MiB (%s %%)", pad(d.Memory.Used, 5), pad(d.Memory.Total, 5), pad(d.Memory.Percentage, 3))
	case config.DeviceFanSpeed:
		return pad(d.FanSpeed, 3) + " %"
	case config.DeviceTemperature:
		return pad(d.Temperature, 3) + " °C"
	case config.DevicePowerUsage:
		return pad(d.PowerUsage, 3) + " W"
	case config.DeviceProcesses:
		return fmt.Sprintf("Running: %d", len(d.Processes))
	}
	return ""
}

func processInfoLabel(f config.ProcessInfoField) string {
	switch f {
	case config.ProcessPID:
		return "PID"
	case config.ProcessUsedGPUMemory:
		return "GPU Mem"
	case config.ProcessUsername:
		return "User"
	case config.ProcessRuntime:
		return "Runtime"
	}
	return string(f)
}

func processInfoValue(f config.ProcessInfoField, p model.Process) string {
	switch f {
	case config.ProcessPID:
		return fmt.Sprint(p.PID)
	case config.ProcessUsedGPUMemory:
		return pad(p.UsedGPUMemory, 5) + " MiB"
	case config.ProcessUsername:
		return p.Username
	case config.ProcessRuntime:
		r := p.Runtime
		return fmt.Sprintf("%s d %s h %s m %s s", pad(r.Days, 2), pad(r.Hours, 2), pad(r.Minutes, 2), pad(r.Seconds, 2))
	}
	return ""
}

func bytesToMiB(b uint64) float64 { return float64(b) / (1024 * 1024) }
