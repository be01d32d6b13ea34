package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/k-kuroguro/smiview/internal/config"
	"github.com/k-kuroguro/smiview/internal/model"
)

func TestExpansionKeys(t *testing.T) {
	assert.Equal(t, "node:gpu01", nodeKey("gpu01"))
	assert.Equal(t, "device:gpu01.3", deviceKey("gpu01", 3))
	assert.Equal(t, "deviceInfo:gpu01.3.processes", processesKey("gpu01", 3))
	assert.Equal(t, "process:gpu01.3.processes.4242", processKey("gpu01", 3, 4242))
}

func TestPruneDropsVanishedItems(t *testing.T) {
	exp := newExpansion()
	exp.set(nodeKey("gpu01"), true)
	exp.set(deviceKey("gpu01", 0), true)
	exp.set(processKey("gpu01", 0, 4242), true)
	exp.set(nodeKey("gone"), true)

	exp.prune(*testSnapshot())

	assert.True(t, exp.isExpanded(nodeKey("gpu01")))
	assert.True(t, exp.isExpanded(deviceKey("gpu01", 0)))
	assert.True(t, exp.isExpanded(processKey("gpu01", 0, 4242)))
	assert.False(t, exp.isExpanded(nodeKey("gone")))
}

func TestBuildRowsNilSnapshot(t *testing.T) {
	assert.Nil(t, buildRows(nil, nil, nil, newExpansion()))
}

func TestExpandableKeysWithoutProcesses(t *testing.T) {
	keys := expandableKeys(testSnapshot(), []config.DeviceInfoField{config.DeviceMemory})
	assert.Equal(t, []string{"node:gpu01", "device:gpu01.0", "device:gpu01.1", "node:cpu01"}, keys)
}

func TestInfoValues(t *testing.T) {
	d := model.Device{Utilization: 5, FanSpeed: 100, Temperature: 7, PowerUsage: 1234}
	assert.Equal(t, "  5 %", deviceInfoValue(config.DeviceUtilization, d))
	assert.Equal(t, "100 %", deviceInfoValue(config.DeviceFanSpeed, d))
	assert.Equal(t, "  7 °C", deviceInfoValue(config.DeviceTemperature, d))
	assert.Equal(t, "1234 W", deviceInfoValue(config.DevicePowerUsage, d))
	assert.Equal(t, "Running: 0", deviceInfoValue(config.DeviceProcesses, d))

	p := model.Process{PID: 7, UsedGPUMemory: 12, Runtime: model.Runtime{Days: 10, Seconds: 59}}
	assert.Equal(t, "7", processInfoValue(config.ProcessPID, p))
	assert.Equal(t, "   12 MiB", processInfoValue(config.ProcessUsedGPUMemory, p))
	assert.Equal(t, "10 d  0 h  0 m 59 s", processInfoValue(config.ProcessRuntime, p))
}
