package comms

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	MultimeterSettingsSize = 6
	MultimeterReadingSize  = 7
)

// MultimeterSettings is the value written to the multimeter settings characteristic.
type MultimeterSettings struct {
	Mode           Mode
	Range          Range // may be an auto-range value
	UpdateInterval uint32 // milliseconds
}

func (s MultimeterSettings) Validate() error {
	if !s.Mode.ValidFor(ServiceMultimeter) {
		return fmt.Errorf("%w: mode %s is not supported by the multimeter", ErrInvalidSettings, s.Mode)
	}
	return checkRange(s.Mode, s.Range, true)
}

// EncodeMultimeterSettings builds the 6-byte payload: mode, range, update interval (ms).
func EncodeMultimeterSettings(s MultimeterSettings) []byte {
	buf := make([]byte, MultimeterSettingsSize)
	buf[0] = byte(s.Mode)
	buf[1] = rangeByte(s.Range)
	binary.LittleEndian.PutUint32(buf[2:6], s.UpdateInterval)
	return buf
}

func DecodeMultimeterSettings(payload []byte) (MultimeterSettings, error) {
	if len(payload) < MultimeterSettingsSize {
		return MultimeterSettings{}, truncated("multimeter settings", len(payload), MultimeterSettingsSize)
	}
	mode, err := decodeMode(payload[0])
	if err != nil {
		return MultimeterSettings{}, err
	}
	r, err := decodeRange(mode, payload[1], true)
	if err != nil {
		return MultimeterSettings{}, err
	}
	return MultimeterSettings{
		Mode:           mode,
		Range:          r,
		UpdateInterval: binary.LittleEndian.Uint32(payload[2:6]),
	}, nil
}

// MeterStatus is the status byte of a multimeter reading. Its meaning depends on the mode:
// auto-range on/off for ranged modes, continuity for continuity mode.
type MeterStatus uint8

const (
	MeterAutoRangeOff MeterStatus = 0
	MeterAutoRangeOn  MeterStatus = 1
	MeterNoContinuity MeterStatus = 0
	MeterContinuity   MeterStatus = 1
	MeterError        MeterStatus = 255
)

// MultimeterReading is one notification from the multimeter reading characteristic.
// Value is already in engineering units.
type MultimeterReading struct {
	Status MeterStatus
	Value  float32
	Mode   Mode
	Range  Range
}

// StatusLabel describes Status in the context of the reading's mode.
func (r MultimeterReading) StatusLabel() string {
	if r.Status == MeterError {
		return "Error"
	}
	switch r.Mode {
	case ModeContinuity:
		if r.Status == MeterContinuity {
			return "Continuity"
		}
		return "No continuity"
	case ModeDiode, ModeTemperature, ModeIdle:
		return "Ok"
	default:
		if r.Status == MeterAutoRangeOn {
			return "Auto Range On"
		}
		return "Auto Range Off"
	}
}

// EncodeMultimeterReading builds a reading payload, for the simulated device.
func EncodeMultimeterReading(r MultimeterReading) []byte {
	buf := make([]byte, MultimeterReadingSize)
	buf[0] = byte(r.Status)
	binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(r.Value))
	buf[5] = byte(r.Mode)
	buf[6] = rangeByte(r.Range)
	return buf
}

// DecodeMultimeterReading parses the 7-byte reading: status, value (float32), mode, range.
func DecodeMultimeterReading(payload []byte) (MultimeterReading, error) {
	if len(payload) < MultimeterReadingSize {
		return MultimeterReading{}, truncated("multimeter reading", len(payload), MultimeterReadingSize)
	}
	mode, err := decodeMode(payload[5])
	if err != nil {
		return MultimeterReading{}, err
	}
	r, err := decodeRange(mode, payload[6], true)
	if err != nil {
		return MultimeterReading{}, err
	}
	return MultimeterReading{
		Status: MeterStatus(payload[0]),
		Value:  math.Float32frombits(binary.LittleEndian.Uint32(payload[1:5])),
		Mode:   mode,
		Range:  r,
	}, nil
}
