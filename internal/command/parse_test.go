package command

import (
	"testing"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, name := range Names() {
		kind, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, kind.String())
	}

	kind, err := ParseKind(" DSO ")
	require.NoError(t, err)
	assert.Equal(t, Dso, kind)

	_, err = ParseKind("tare")
	assert.Error(t, err)
	assert.False(t, NeedsDevice(Scan))
	assert.True(t, NeedsDevice(Status))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		text    string
		service comms.Service
		want    comms.Mode
		wantErr bool
	}{
		{"ac voltage", comms.ServiceDso, comms.ModeAcVoltage, false},
		{"Vac", comms.ServiceDso, comms.ModeAcVoltage, false},
		{"dc volts", comms.ServiceLogger, comms.ModeDcVoltage, false},
		{"VDC", comms.ServiceMultimeter, comms.ModeDcVoltage, false},
		{"ac current", comms.ServiceDso, comms.ModeAcCurrent, false},
		{"aac", comms.ServiceDso, comms.ModeAcCurrent, false},
		{"dc current", comms.ServiceDso, comms.ModeDcCurrent, false},
		{"adc", comms.ServiceDso, comms.ModeDcCurrent, false},
		{"resistance", comms.ServiceMultimeter, comms.ModeResistance, false},
		{"diode", comms.ServiceMultimeter, comms.ModeDiode, false},
		{"continuity", comms.ServiceMultimeter, comms.ModeContinuity, false},
		{"temperature", comms.ServiceMultimeter, comms.ModeTemperature, false},
		{"resistance", comms.ServiceDso, 0, true},
		{"temp", comms.ServiceLogger, 0, true},
		{"frequency", comms.ServiceMultimeter, 0, true},
	}
	for _, tt := range tests {
		got, err := parseMode(tt.text, tt.service)
		if tt.wantErr {
			assert.Error(t, err, tt.text)
			continue
		}
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		text      string
		mode      comms.Mode
		allowAuto bool
		want      comms.Range
		wantErr   error
	}{
		{"8V", comms.ModeDcVoltage, false, comms.Voltage6VTo12V, nil},
		{"8", comms.ModeAcVoltage, false, comms.Voltage6VTo12V, nil},
		{"300mV", comms.ModeDcVoltage, false, comms.Voltage0To300mV, nil},
		{"100V", comms.ModeDcVoltage, false, comms.Voltage30VTo60V, nil},
		{"20mV", comms.ModeDcVoltage, false, nil, units.ErrInvalidValue},
		{"300mA", comms.ModeDcCurrent, false, comms.Current150mATo300mA, nil},
		{"2mA", comms.ModeDcCurrent, false, nil, units.ErrInvalidValue},
		{"5k", comms.ModeResistance, true, comms.Resistance1K5To10K, nil},
		{"200ohm", comms.ModeResistance, true, comms.Resistance160To330, nil},
		{"auto", comms.ModeDcVoltage, true, comms.VoltageAutoRange, nil},
		{"AUTO", comms.ModeResistance, true, comms.ResistanceAutoRange, nil},
		{"auto", comms.ModeDcVoltage, false, nil, units.ErrInvalidValue},
		{"auto", comms.ModeDiode, true, nil, nil},
		{"anything", comms.ModeTemperature, true, nil, nil},
	}
	for _, tt := range tests {
		got, err := parseRange(tt.text, tt.mode, tt.allowAuto)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.text)
			continue
		}
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestParseTrigger(t *testing.T) {
	for text, want := range map[string]comms.DsoCommand{
		"free":    comms.DsoFreeRunning,
		"Rising":  comms.DsoRisingEdgeTrigger,
		"falling": comms.DsoFallingEdgeTrigger,
	} {
		got, err := parseTriggerMode(text)
		require.NoError(t, err, text)
		assert.Equal(t, want, got, text)
	}
	_, err := parseTriggerMode("edge")
	assert.Error(t, err)

	level, err := parseTriggerLevel("1.5V", comms.ModeDcVoltage)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), level)

	level, err = parseTriggerLevel("250mA", comms.ModeAcCurrent)
	require.NoError(t, err)
	assert.Equal(t, float32(0.25), level)
}

func TestParseSampleCount(t *testing.T) {
	n, err := parseSampleCount("1.5k")
	require.NoError(t, err)
	assert.Equal(t, uint16(1500), n)

	_, err = parseSampleCount("70k")
	assert.Error(t, err)

	_, err = parseSampleCount("none")
	assert.ErrorIs(t, err, units.ErrInvalidValue)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := parseTimestamp("1700000000")
	require.NoError(t, err)
	assert.Equal(t, uint32(1700000000), ts)

	ts, err = parseTimestamp("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, uint32(1700000000), ts)

	_, err = parseTimestamp("yesterday")
	assert.Error(t, err)
}
