package command

import (
	"fmt"
	"math"
	"strings"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/units"
)

// Smallest values worth asking the device for.
const (
	minVoltageRange   = 50      // mV
	minCurrentRange   = 5       // mA
	minDsoWindow      = 500_000 // µs
	minMeterInterval  = 500     // ms
	minLoggerInterval = 5_000   // ms
)

var modePrefixes = []struct {
	prefixes []string
	mode     comms.Mode
}{
	{[]string{"ac v", "vac"}, comms.ModeAcVoltage},
	{[]string{"dc v", "vdc"}, comms.ModeDcVoltage},
	{[]string{"ac c", "aac"}, comms.ModeAcCurrent},
	{[]string{"dc c", "adc"}, comms.ModeDcCurrent},
	{[]string{"res"}, comms.ModeResistance},
	{[]string{"dio"}, comms.ModeDiode},
	{[]string{"cont"}, comms.ModeContinuity},
	{[]string{"temp"}, comms.ModeTemperature},
}

// parseMode matches the start of text against the known mode names, e.g. "dc voltage",
// "Vdc" or "resistance", and checks that service supports the mode.
func parseMode(text string, service comms.Service) (comms.Mode, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, m := range modePrefixes {
		for _, p := range m.prefixes {
			if strings.HasPrefix(s, p) {
				if !m.mode.ValidFor(service) {
					return 0, fmt.Errorf("mode %s is not available for the %s", m.mode, service)
				}
				return m.mode, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown %s mode: %s", service, text)
}

// parseRange selects the lowest range of the mode that covers text, e.g. "8V" or "300mA".
// Modes without ranges ignore text and return nil. "auto" selects auto-range when allowed.
func parseRange(text string, mode comms.Mode, allowAuto bool) (comms.Range, error) {
	if allowAuto && strings.EqualFold(strings.TrimSpace(text), "auto") {
		if mode.Category() == comms.CategoryNone {
			return nil, nil
		}
		return comms.AutoRangeFor(mode)
	}

	var rangeMax uint32
	var err error
	switch mode.Category() {
	case comms.CategoryVoltage:
		rangeMax, err = units.ParseMilliValue(text, "V", minVoltageRange)
	case comms.CategoryCurrent:
		rangeMax, err = units.ParseMilliValue(text, "A", minCurrentRange)
	case comms.CategoryResistance:
		rangeMax, err = units.ParseWholeValue(text, "ohm")
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid range value: %w", err)
	}
	return comms.LowestRange(mode, rangeMax)
}

// parseTriggerMode accepts "free", "rising" and "falling", or any prefix of at least
// "ris"/"fall".
func parseTriggerMode(text string) (comms.DsoCommand, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(s, "free"):
		return comms.DsoFreeRunning, nil
	case strings.HasPrefix(s, "ris"):
		return comms.DsoRisingEdgeTrigger, nil
	case strings.HasPrefix(s, "fall"):
		return comms.DsoFallingEdgeTrigger, nil
	default:
		return 0, fmt.Errorf("unknown trigger mode: %s", text)
	}
}

// parseTriggerLevel returns the trigger level in the mode's whole unit.
func parseTriggerLevel(text string, mode comms.Mode) (float32, error) {
	unit := "V"
	if mode.Category() == comms.CategoryCurrent {
		unit = "A"
	}
	milli, err := units.ParseMilliValue(text, unit, 0)
	if err != nil {
		return 0, fmt.Errorf("invalid trigger level: %w", err)
	}
	return float32(milli) / 1000, nil
}

// parseSampleCount parses a number of samples that must fit the 16-bit wire field.
func parseSampleCount(text string) (uint16, error) {
	n, err := units.ParseWholeValue(text, "S")
	if err != nil {
		return 0, fmt.Errorf("invalid samples value: %w", err)
	}
	if n > math.MaxUint16 {
		return 0, fmt.Errorf("invalid samples value: %s exceeds %d", text, math.MaxUint16)
	}
	return uint16(n), nil
}
