package comms

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

// FirmwareVersion holds the major and minor firmware version numbers.
type FirmwareVersion struct {
	Major uint8
	Minor uint8
}

// String returns a formatted version string, e.g., "1.4".
func (v FirmwareVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// MacAddress is a device hardware address, most significant byte first.
type MacAddress [6]byte

func (m MacAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

const DeviceCharacteristicsSize = 20

// DeviceCharacteristics is the fixed description of a device's capabilities.
type DeviceCharacteristics struct {
	FirmwareVersion     FirmwareVersion
	MaximumVoltage      uint16
	MaximumCurrent      uint16
	MaximumResistance   uint16
	MaximumSamplingRate uint16
	SamplingBufferSize  uint16
	CapabilityMask      uint16
	MacAddress          MacAddress
}

// EncodeDeviceCharacteristics builds the 20-byte payload, for the simulated device.
func EncodeDeviceCharacteristics(c DeviceCharacteristics) []byte {
	buf := make([]byte, DeviceCharacteristicsSize)
	buf[0] = c.FirmwareVersion.Major
	buf[1] = c.FirmwareVersion.Minor
	binary.LittleEndian.PutUint16(buf[2:4], c.MaximumVoltage)
	binary.LittleEndian.PutUint16(buf[4:6], c.MaximumCurrent)
	binary.LittleEndian.PutUint16(buf[6:8], c.MaximumResistance)
	binary.LittleEndian.PutUint16(buf[8:10], c.MaximumSamplingRate)
	binary.LittleEndian.PutUint16(buf[10:12], c.SamplingBufferSize)
	binary.LittleEndian.PutUint16(buf[12:14], c.CapabilityMask)
	copy(buf[14:20], c.MacAddress[:])
	return buf
}

// DecodeDeviceCharacteristics parses the 20-byte device characteristics value:
//
//	[0]     firmware major
//	[1]     firmware minor
//	[2:4]   maximum voltage
//	[4:6]   maximum current
//	[6:8]   maximum resistance
//	[8:10]  maximum sampling rate
//	[10:12] sampling buffer size
//	[12:14] capability mask
//	[14:20] MAC address
func DecodeDeviceCharacteristics(payload []byte) (DeviceCharacteristics, error) {
	if len(payload) < DeviceCharacteristicsSize {
		return DeviceCharacteristics{}, truncated("device characteristics", len(payload), DeviceCharacteristicsSize)
	}
	c := DeviceCharacteristics{
		FirmwareVersion:     FirmwareVersion{Major: payload[0], Minor: payload[1]},
		MaximumVoltage:      binary.LittleEndian.Uint16(payload[2:4]),
		MaximumCurrent:      binary.LittleEndian.Uint16(payload[4:6]),
		MaximumResistance:   binary.LittleEndian.Uint16(payload[6:8]),
		MaximumSamplingRate: binary.LittleEndian.Uint16(payload[8:10]),
		SamplingBufferSize:  binary.LittleEndian.Uint16(payload[10:12]),
		CapabilityMask:      binary.LittleEndian.Uint16(payload[12:14]),
	}
	copy(c.MacAddress[:], payload[14:20])
	return c, nil
}

// DeviceStatus is what the device is currently doing.
type DeviceStatus uint8

const (
	DeviceIdle                  DeviceStatus = 0
	DeviceMultimeterDcVoltage   DeviceStatus = 1
	DeviceMultimeterAcVoltage   DeviceStatus = 2
	DeviceMultimeterDcCurrent   DeviceStatus = 3
	DeviceMultimeterAcCurrent   DeviceStatus = 4
	DeviceMultimeterResistance  DeviceStatus = 5
	DeviceMultimeterDiode       DeviceStatus = 6
	DeviceMultimeterContinuity  DeviceStatus = 7
	DeviceMultimeterTemperature DeviceStatus = 8
	DeviceDsoModeSampling       DeviceStatus = 9
	DeviceLoggerModeSampling    DeviceStatus = 10
)

var deviceStatusLabels = []string{
	"Idle",
	"MultimeterDcVoltage",
	"MultimeterAcVoltage",
	"MultimeterDcCurrent",
	"MultimeterAcCurrent",
	"MultimeterResistance",
	"MultimeterDiode",
	"MultimeterContinuity",
	"MultimeterTemperature",
	"DsoModeSampling",
	"LoggerModeSampling",
}

func (s DeviceStatus) String() string {
	if int(s) < len(deviceStatusLabels) {
		return deviceStatusLabels[s]
	}
	return fmt.Sprintf("Unknown Status (%d)", uint8(s))
}

// BatteryStatus is only reported by newer firmware.
type BatteryStatus uint8

const (
	BatteryLow  BatteryStatus = 0
	BatteryGood BatteryStatus = 1
)

func (b BatteryStatus) String() string {
	switch b {
	case BatteryLow:
		return "Low"
	case BatteryGood:
		return "Good"
	default:
		return fmt.Sprintf("Unknown Battery Status (%d)", uint8(b))
	}
}

const (
	StatusMinSize = 5
	StatusMaxSize = 6
)

// Status is the device's current activity and battery state.
type Status struct {
	DeviceStatus   DeviceStatus
	BatteryVoltage float32
	// BatteryStatus is nil when the firmware does not report it.
	BatteryStatus *BatteryStatus
}

// EncodeStatus builds a 5- or 6-byte status payload, for the simulated device.
func EncodeStatus(s Status) []byte {
	size := StatusMinSize
	if s.BatteryStatus != nil {
		size = StatusMaxSize
	}
	buf := make([]byte, size)
	buf[0] = byte(s.DeviceStatus)
	binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(s.BatteryVoltage))
	if s.BatteryStatus != nil {
		buf[5] = byte(*s.BatteryStatus)
	}
	return buf
}

// DecodeStatus parses the status value: device status, battery voltage (float32), and an
// optional battery status byte.
func DecodeStatus(payload []byte) (Status, error) {
	if len(payload) < StatusMinSize {
		return Status{}, truncated("status", len(payload), StatusMinSize)
	}
	if int(payload[0]) >= len(deviceStatusLabels) {
		return Status{}, &UnknownEnumError{Field: "device status", Value: payload[0]}
	}
	s := Status{
		DeviceStatus:   DeviceStatus(payload[0]),
		BatteryVoltage: math.Float32frombits(binary.LittleEndian.Uint32(payload[1:5])),
	}
	if len(payload) >= StatusMaxSize {
		b := BatteryStatus(payload[5])
		s.BatteryStatus = &b
	}
	return s, nil
}

// MaxNameSize is the longest device name, in bytes, the device will accept.
const MaxNameSize = 11

// ErrInvalidName is returned for names the device cannot store.
var ErrInvalidName = errors.New("invalid device name")

// EncodeName validates and encodes a new device name.
func EncodeName(name string) ([]byte, error) {
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is empty", ErrInvalidName)
	case len(name) > MaxNameSize:
		return nil, fmt.Errorf("%w: %q is %d bytes, at most %d allowed", ErrInvalidName, name, len(name), MaxNameSize)
	case !utf8.ValidString(name):
		return nil, fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidName, name)
	}
	return []byte(name), nil
}

// FlashLedCommand is written to the flash LED characteristic to blink the device's LED.
func FlashLedCommand() []byte {
	return []byte{0x01}
}

const TemperatureSize = 4

// EncodeTemperature builds the calibration payload for an ambient temperature in °C.
func EncodeTemperature(celsius float32) []byte {
	buf := make([]byte, TemperatureSize)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(celsius))
	return buf
}

func DecodeTemperature(payload []byte) (float32, error) {
	if len(payload) < TemperatureSize {
		return 0, truncated("temperature", len(payload), TemperatureSize)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(payload)), nil
}

// DecodeAppearance parses the 2-byte generic access appearance value.
func DecodeAppearance(payload []byte) (uint16, error) {
	if len(payload) < 2 {
		return 0, truncated("appearance", len(payload), 2)
	}
	return binary.LittleEndian.Uint16(payload), nil
}
