package comms

import (
	"encoding/binary"
	"fmt"
	"math"
)

// LoggerCommand controls the data logger.
type LoggerCommand uint8

const (
	LoggerStart   LoggerCommand = 0
	LoggerStop    LoggerCommand = 1
	LoggerRefresh LoggerCommand = 2
)

func (c LoggerCommand) String() string {
	switch c {
	case LoggerStart:
		return "Start"
	case LoggerStop:
		return "Stop"
	case LoggerRefresh:
		return "Refresh"
	default:
		return fmt.Sprintf("Unknown Logger Command (%d)", uint8(c))
	}
}

const (
	LoggerSettingsSize = 13
	LoggerMetadataSize = 17
)

// LoggerSettings is the value written to the data logger settings characteristic.
type LoggerSettings struct {
	Command        LoggerCommand
	Reserved       uint16
	Mode           Mode
	Range          Range
	UpdateInterval uint32 // milliseconds
	Timestamp      uint32 // unix seconds
}

// Validate checks that the settings can be sent to a data logger. Stop and Refresh may
// leave the mode Idle and the interval zero, but the range must still match the mode.
func (s LoggerSettings) Validate() error {
	if s.Command > LoggerRefresh {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, s.Command)
	}
	if !s.Mode.ValidFor(ServiceLogger) || (s.Command == LoggerStart && s.Mode == ModeIdle) {
		return fmt.Errorf("%w: mode %s is not supported by the data logger", ErrInvalidSettings, s.Mode)
	}
	if s.Command == LoggerStart && s.UpdateInterval == 0 {
		return fmt.Errorf("%w: update interval must be positive", ErrInvalidSettings)
	}
	return checkRange(s.Mode, s.Range, false)
}

// EncodeLoggerSettings builds the 13-byte data logger settings payload:
//
//	[0]    command
//	[1:3]  reserved
//	[3]    mode
//	[4]    range
//	[5:9]  update interval in ms
//	[9:13] timestamp
func EncodeLoggerSettings(s LoggerSettings) []byte {
	buf := make([]byte, LoggerSettingsSize)
	buf[0] = byte(s.Command)
	binary.LittleEndian.PutUint16(buf[1:3], s.Reserved)
	buf[3] = byte(s.Mode)
	buf[4] = rangeByte(s.Range)
	binary.LittleEndian.PutUint32(buf[5:9], s.UpdateInterval)
	binary.LittleEndian.PutUint32(buf[9:13], s.Timestamp)
	return buf
}

// DecodeLoggerSettings is the inverse of EncodeLoggerSettings.
func DecodeLoggerSettings(payload []byte) (LoggerSettings, error) {
	if len(payload) < LoggerSettingsSize {
		return LoggerSettings{}, truncated("logger settings", len(payload), LoggerSettingsSize)
	}
	if payload[0] > byte(LoggerRefresh) {
		return LoggerSettings{}, &UnknownEnumError{Field: "logger command", Value: payload[0]}
	}
	mode, err := decodeMode(payload[3])
	if err != nil {
		return LoggerSettings{}, err
	}
	r, err := decodeRange(mode, payload[4], false)
	if err != nil {
		return LoggerSettings{}, err
	}
	return LoggerSettings{
		Command:        LoggerCommand(payload[0]),
		Reserved:       binary.LittleEndian.Uint16(payload[1:3]),
		Mode:           mode,
		Range:          r,
		UpdateInterval: binary.LittleEndian.Uint32(payload[5:9]),
		Timestamp:      binary.LittleEndian.Uint32(payload[9:13]),
	}, nil
}

// EncodeLoggerMetadata builds a data logger metadata payload.
func EncodeLoggerMetadata(m Metadata) []byte {
	buf := make([]byte, LoggerMetadataSize)
	buf[0] = byte(m.Status)
	binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(m.Scale))
	buf[5] = byte(m.Mode)
	buf[6] = rangeByte(m.Range)
	binary.LittleEndian.PutUint32(buf[7:11], m.SamplingWindow)
	binary.LittleEndian.PutUint16(buf[11:13], m.NumberOfSamples)
	binary.LittleEndian.PutUint32(buf[13:17], m.Timestamp)
	return buf
}

// DecodeLoggerMetadata parses the 17-byte data logger metadata notification:
//
//	[0]     status
//	[1:5]   scale (float32)
//	[5]     mode
//	[6]     range
//	[7:11]  update interval in ms
//	[11:13] number of samples
//	[13:17] timestamp
func DecodeLoggerMetadata(payload []byte) (Metadata, error) {
	if len(payload) < LoggerMetadataSize {
		return Metadata{}, truncated("logger metadata", len(payload), LoggerMetadataSize)
	}
	mode, err := decodeMode(payload[5])
	if err != nil {
		return Metadata{}, err
	}
	if !mode.ValidFor(ServiceLogger) {
		return Metadata{}, &UnknownEnumError{Field: "logger mode", Value: payload[5]}
	}
	r, err := decodeRange(mode, payload[6], false)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Service:         ServiceLogger,
		Status:          MetadataStatus(payload[0]),
		Scale:           math.Float32frombits(binary.LittleEndian.Uint32(payload[1:5])),
		Mode:            mode,
		Range:           r,
		SamplingWindow:  binary.LittleEndian.Uint32(payload[7:11]),
		NumberOfSamples: binary.LittleEndian.Uint16(payload[11:13]),
		Timestamp:       binary.LittleEndian.Uint32(payload[13:17]),
	}, nil
}
