package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-kuroguro/smiview/internal/model"
)

func TestParseIntWithUnit(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		unit    string
		want    int
		wantErr bool
	}{
		{name: "percent with space", raw: "27 %", unit: unitPercent, want: 27},
		{name: "watts without space", raw: "142W", unit: unitWatt, want: 142},
		{name: "celsius", raw: "66 C", unit: unitCelsius, want: 66},
		{name: "mebibytes", raw: "5026 MiB", unit: unitMiB, want: 5026},
		{name: "wrong unit", raw: "27 W", unit: unitPercent, wantErr: true},
		{name: "missing digits", raw: "%", unit: unitPercent, wantErr: true},
		{name: "negative", raw: "-3 C", unit: unitCelsius, wantErr: true},
		{name: "decimal", raw: "2.5 W", unit: unitWatt, wantErr: true},
		{name: "overflow", raw: "99999999999999999999999 W", unit: unitWatt, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntWithUnit(tt.raw, tt.unit, "field")
			if tt.wantErr {
				require.Error(t, err)
				var fe *fieldError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, "field", fe.field)
				assert.Equal(t, tt.raw, fe.raw)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMemory(t *testing.T) {
	got, err := parseMemory("5328 MiB / 11264 MiB ( 47 %)")
	require.NoError(t, err)
	assert.Equal(t, model.Memory{Used: 5328, Total: 11264, Percentage: 47}, got)

	for _, raw := range []string{"5328 MiB / 11264 MiB", "5328/11264 (47%)", "a MiB / 1 MiB (1 %)", ""} {
		_, err := parseMemory(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseDeviceIDAndName(t *testing.T) {
	id, name, err := parseDeviceIDAndName("0:NVIDIA GeForce GTX 1080 Ti")
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	assert.Equal(t, "NVIDIA GeForce GTX 1080 Ti", name)

	id, name, err = parseDeviceIDAndName(normalizeCell(" \x1b[0;32m0:NVIDIA GeForce GTX 1080 Ti\x1b[0m "))
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	assert.Equal(t, "NVIDIA GeForce GTX 1080 Ti", name)

	id, name, err = parseDeviceIDAndName("3:A:B")
	require.NoError(t, err)
	assert.Equal(t, 3, id)
	assert.Equal(t, "A:B", name)

	for _, raw := range []string{"NVIDIA", "x:NVIDIA", "1:", ":name"} {
		_, _, err := parseDeviceIDAndName(raw)
		assert.Error(t, err, raw)
	}
}

func TestParsePID(t *testing.T) {
	pid, err := parsePID("891011")
	require.NoError(t, err)
	assert.Equal(t, 891011, pid)

	for _, raw := range []string{"0", "-1", "12a", "1 2"} {
		_, err := parsePID(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseRuntime(t *testing.T) {
	tests := []struct {
		raw     string
		want    model.Runtime
		wantErr bool
	}{
		{raw: "30 min 5 sec", want: model.Runtime{Minutes: 30, Seconds: 5}},
		{raw: "138 d 21 h 20 min 1 sec", want: model.Runtime{Days: 138, Hours: 21, Minutes: 20, Seconds: 1}},
		{raw: "10 sec", want: model.Runtime{Seconds: 10}},
		{raw: "1 h 32 min 4 sec", want: model.Runtime{Hours: 1, Minutes: 32, Seconds: 4}},
		{raw: "5 sec 2 d", want: model.Runtime{Days: 2, Seconds: 5}},
		{raw: "3 weeks", wantErr: true},
		{raw: "10", wantErr: true},
		{raw: "1 d 2 h 3 min 4 sec 5 sec", wantErr: true},
		{raw: "min", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseRuntime(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
