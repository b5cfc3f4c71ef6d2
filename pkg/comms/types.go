package comms

import "fmt"

// Mode is the measurement mode byte shared by the multimeter, DSO and data logger services.
// Only a subset is valid for each service; see Mode.ValidFor.
type Mode uint8

const (
	ModeIdle        Mode = 0
	ModeDcVoltage   Mode = 1
	ModeAcVoltage   Mode = 2
	ModeDcCurrent   Mode = 3
	ModeAcCurrent   Mode = 4
	ModeResistance  Mode = 5
	ModeDiode       Mode = 6
	ModeContinuity  Mode = 7
	ModeTemperature Mode = 8
)

var modeLabels = []struct {
	mode  Mode
	label string
	unit  string
}{
	{ModeIdle, "Idle", ""},
	{ModeDcVoltage, "DC voltage", "Vdc"},
	{ModeAcVoltage, "AC voltage", "Vac"},
	{ModeDcCurrent, "DC current", "Adc"},
	{ModeAcCurrent, "AC current", "Aac"},
	{ModeResistance, "Resistance", "Ω"},
	{ModeDiode, "Diode", "V"},
	{ModeContinuity, "Continuity", ""},
	{ModeTemperature, "Temperature", "°C"},
}

func (m Mode) String() string {
	for _, l := range modeLabels {
		if l.mode == m {
			return l.label
		}
	}
	return fmt.Sprintf("Unknown Mode (%d)", uint8(m))
}

// Unit returns the engineering unit label for values measured in this mode, e.g. "Vdc".
func (m Mode) Unit() string {
	for _, l := range modeLabels {
		if l.mode == m {
			return l.unit
		}
	}
	return ""
}

// Category returns the range category this mode selects ranges from.
func (m Mode) Category() Category {
	switch m {
	case ModeDcVoltage, ModeAcVoltage:
		return CategoryVoltage
	case ModeDcCurrent, ModeAcCurrent:
		return CategoryCurrent
	case ModeResistance:
		return CategoryResistance
	default:
		return CategoryNone
	}
}

// Service identifies which Pokit service a settings or metadata value belongs to.
type Service uint8

const (
	ServiceMultimeter Service = iota
	ServiceDso
	ServiceLogger
)

func (s Service) String() string {
	switch s {
	case ServiceMultimeter:
		return "Multimeter"
	case ServiceDso:
		return "DSO"
	case ServiceLogger:
		return "Data Logger"
	default:
		return fmt.Sprintf("Unknown Service (%d)", uint8(s))
	}
}

// ValidFor reports whether the mode may be requested from the given service.
// Idle is valid everywhere since it is how a service is switched off.
func (m Mode) ValidFor(s Service) bool {
	switch s {
	case ServiceMultimeter:
		return m <= ModeTemperature
	case ServiceDso, ServiceLogger:
		return m <= ModeAcCurrent
	default:
		return false
	}
}

func decodeMode(b byte) (Mode, error) {
	if Mode(b) > ModeTemperature {
		return 0, &UnknownEnumError{Field: "mode", Value: b}
	}
	return Mode(b), nil
}

// MetadataStatus is the status byte reported in DSO and data logger metadata.
type MetadataStatus uint8

const (
	StatusDone       MetadataStatus = 0
	StatusSampling   MetadataStatus = 1
	StatusBufferFull MetadataStatus = 2 // data logger only
	StatusError      MetadataStatus = 255
)

func (s MetadataStatus) String() string {
	switch s {
	case StatusDone:
		return "Done"
	case StatusSampling:
		return "Sampling"
	case StatusBufferFull:
		return "Buffer Full"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown Status (%d)", uint8(s))
	}
}

// Metadata describes one DSO or data logger acquisition. It is sent by the device once,
// before any sample frames.
type Metadata struct {
	Service Service
	Status  MetadataStatus
	Scale   float32
	Mode    Mode
	Range   Range // nil when Mode has no range category

	// SamplingWindow is the DSO sampling window in microseconds, or the data logger
	// update interval in milliseconds.
	SamplingWindow  uint32
	NumberOfSamples uint16

	SamplingRate uint32 // Hz, DSO only
	Timestamp    uint32 // unix seconds, data logger only
}

// RangeLabel returns the label of the metadata range, or "N/A" when the mode has none.
func (m Metadata) RangeLabel() string {
	if m.Range == nil {
		return "N/A"
	}
	return m.Range.String()
}
