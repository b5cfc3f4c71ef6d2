package comms

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DsoCommand selects how the DSO starts capturing.
type DsoCommand uint8

const (
	DsoFreeRunning        DsoCommand = 0
	DsoRisingEdgeTrigger  DsoCommand = 1
	DsoFallingEdgeTrigger DsoCommand = 2
	DsoResendData         DsoCommand = 3
)

func (c DsoCommand) String() string {
	switch c {
	case DsoFreeRunning:
		return "Free running"
	case DsoRisingEdgeTrigger:
		return "Rising edge trigger"
	case DsoFallingEdgeTrigger:
		return "Falling edge trigger"
	case DsoResendData:
		return "Resend data"
	default:
		return fmt.Sprintf("Unknown DSO Command (%d)", uint8(c))
	}
}

// Sizes of the DSO characteristics.
const (
	DsoSettingsSize = 13
	DsoMetadataSize = 17
)

// DsoSettings is the value written to the DSO settings characteristic.
type DsoSettings struct {
	Command DsoCommand
	// TriggerLevel is in the mode's whole unit (volts or amps).
	TriggerLevel    float32
	Mode            Mode
	Range           Range
	SamplingWindow  uint32 // microseconds
	NumberOfSamples uint16
}

// Validate checks that the settings can be sent to a DSO.
func (s DsoSettings) Validate() error {
	if s.Command > DsoResendData {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, s.Command)
	}
	if !s.Mode.ValidFor(ServiceDso) {
		return fmt.Errorf("%w: mode %s is not supported by the DSO", ErrInvalidSettings, s.Mode)
	}
	return checkRange(s.Mode, s.Range, false)
}

// EncodeDsoSettings builds the 13-byte DSO settings payload:
//
//	[0]     command
//	[1:5]   trigger level (float32)
//	[5]     mode
//	[6]     range
//	[7:11]  sampling window in µs
//	[11:13] number of samples
func EncodeDsoSettings(s DsoSettings) []byte {
	buf := make([]byte, DsoSettingsSize)
	buf[0] = byte(s.Command)
	binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(s.TriggerLevel))
	buf[5] = byte(s.Mode)
	buf[6] = rangeByte(s.Range)
	binary.LittleEndian.PutUint32(buf[7:11], s.SamplingWindow)
	binary.LittleEndian.PutUint16(buf[11:13], s.NumberOfSamples)
	return buf
}

// DecodeDsoSettings is the inverse of EncodeDsoSettings.
func DecodeDsoSettings(payload []byte) (DsoSettings, error) {
	if len(payload) < DsoSettingsSize {
		return DsoSettings{}, truncated("dso settings", len(payload), DsoSettingsSize)
	}
	if payload[0] > byte(DsoResendData) {
		return DsoSettings{}, &UnknownEnumError{Field: "dso command", Value: payload[0]}
	}
	mode, err := decodeMode(payload[5])
	if err != nil {
		return DsoSettings{}, err
	}
	r, err := decodeRange(mode, payload[6], false)
	if err != nil {
		return DsoSettings{}, err
	}
	return DsoSettings{
		Command:         DsoCommand(payload[0]),
		TriggerLevel:    math.Float32frombits(binary.LittleEndian.Uint32(payload[1:5])),
		Mode:            mode,
		Range:           r,
		SamplingWindow:  binary.LittleEndian.Uint32(payload[7:11]),
		NumberOfSamples: binary.LittleEndian.Uint16(payload[11:13]),
	}, nil
}

// EncodeDsoMetadata builds a DSO metadata payload. Devices send this; it exists for the
// simulated device and for tests.
func EncodeDsoMetadata(m Metadata) []byte {
	buf := make([]byte, DsoMetadataSize)
	buf[0] = byte(m.Status)
	binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(m.Scale))
	buf[5] = byte(m.Mode)
	buf[6] = rangeByte(m.Range)
	binary.LittleEndian.PutUint32(buf[7:11], m.SamplingWindow)
	binary.LittleEndian.PutUint16(buf[11:13], m.NumberOfSamples)
	binary.LittleEndian.PutUint32(buf[13:17], m.SamplingRate)
	return buf
}

// DecodeDsoMetadata parses the 17-byte DSO metadata notification:
//
//	[0]     status
//	[1:5]   scale (float32)
//	[5]     mode
//	[6]     range
//	[7:11]  sampling window in µs
//	[11:13] number of samples
//	[13:17] sampling rate in Hz
func DecodeDsoMetadata(payload []byte) (Metadata, error) {
	if len(payload) < DsoMetadataSize {
		return Metadata{}, truncated("dso metadata", len(payload), DsoMetadataSize)
	}
	mode, err := decodeMode(payload[5])
	if err != nil {
		return Metadata{}, err
	}
	if !mode.ValidFor(ServiceDso) {
		return Metadata{}, &UnknownEnumError{Field: "dso mode", Value: payload[5]}
	}
	r, err := decodeRange(mode, payload[6], false)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Service:         ServiceDso,
		Status:          MetadataStatus(payload[0]),
		Scale:           math.Float32frombits(binary.LittleEndian.Uint32(payload[1:5])),
		Mode:            mode,
		Range:           r,
		SamplingWindow:  binary.LittleEndian.Uint32(payload[7:11]),
		NumberOfSamples: binary.LittleEndian.Uint16(payload[11:13]),
		SamplingRate:    binary.LittleEndian.Uint32(payload[13:17]),
	}, nil
}
