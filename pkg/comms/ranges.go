package comms

import "fmt"

// Category groups modes that share a set of range buckets.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryVoltage
	CategoryCurrent
	CategoryResistance
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "None"
	case CategoryVoltage:
		return "Voltage"
	case CategoryCurrent:
		return "Current"
	case CategoryResistance:
		return "Resistance"
	default:
		return fmt.Sprintf("Unknown Category (%d)", uint8(c))
	}
}

// SubUnit is the unit range thresholds of this category are expressed in.
func (c Category) SubUnit() string {
	switch c {
	case CategoryVoltage:
		return "mV"
	case CategoryCurrent:
		return "mA"
	case CategoryResistance:
		return "Ω"
	default:
		return ""
	}
}

// Range is one discrete measurement span of a category. It is implemented by
// VoltageRange, CurrentRange and ResistanceRange.
type Range interface {
	Category() Category
	// Byte is the value written to, and read from, the device.
	Byte() byte
	// Max is the upper bound of the range in the category's sub-unit, or 0 for auto-range.
	Max() uint32
	String() string
}

// AutoRange is the wire value of every category's auto-range setting (multimeter only).
const AutoRange byte = 255

// VoltageRange is a voltage range bucket; thresholds are in millivolts.
type VoltageRange uint8

const (
	Voltage0To300mV  VoltageRange = 0
	Voltage300mVTo2V VoltageRange = 1
	Voltage2VTo6V    VoltageRange = 2
	Voltage6VTo12V   VoltageRange = 3
	Voltage12VTo30V  VoltageRange = 4
	Voltage30VTo60V  VoltageRange = 5
	VoltageAutoRange VoltageRange = VoltageRange(AutoRange)
)

var voltageRanges = []struct {
	r     VoltageRange
	max   uint32
	label string
}{
	{Voltage0To300mV, 300, "0 to 300mV"},
	{Voltage300mVTo2V, 2_000, "300mV to 2V"},
	{Voltage2VTo6V, 6_000, "2V to 6V"},
	{Voltage6VTo12V, 12_000, "6V to 12V"},
	{Voltage12VTo30V, 30_000, "12V to 30V"},
	{Voltage30VTo60V, 60_000, "30V to 60V"},
}

func (VoltageRange) Category() Category { return CategoryVoltage }
func (r VoltageRange) Byte() byte { return byte(r) }

func (r VoltageRange) Max() uint32 {
	for _, v := range voltageRanges {
		if v.r == r {
			return v.max
		}
	}
	return 0
}

func (r VoltageRange) String() string {
	if r == VoltageAutoRange {
		return "Auto-range"
	}
	for _, v := range voltageRanges {
		if v.r == r {
			return v.label
		}
	}
	return fmt.Sprintf("Unknown Voltage Range (%d)", uint8(r))
}

// CurrentRange is a current range bucket; thresholds are in milliamps.
type CurrentRange uint8

const (
	Current0To10mA      CurrentRange = 0
	Current10mATo30mA   CurrentRange = 1
	Current30mATo150mA  CurrentRange = 2
	Current150mATo300mA CurrentRange = 3
	Current300mATo3A    CurrentRange = 4
	CurrentAutoRange    CurrentRange = CurrentRange(AutoRange)
)

var currentRanges = []struct {
	r     CurrentRange
	max   uint32
	label string
}{
	{Current0To10mA, 10, "0 to 10mA"},
	{Current10mATo30mA, 30, "10mA to 30mA"},
	{Current30mATo150mA, 150, "30mA to 150mA"},
	{Current150mATo300mA, 300, "150mA to 300mA"},
	{Current300mATo3A, 3_000, "300mA to 3A"},
}

func (CurrentRange) Category() Category { return CategoryCurrent }
func (r CurrentRange) Byte() byte { return byte(r) }

func (r CurrentRange) Max() uint32 {
	for _, c := range currentRanges {
		if c.r == r {
			return c.max
		}
	}
	return 0
}

func (r CurrentRange) String() string {
	if r == CurrentAutoRange {
		return "Auto-range"
	}
	for _, c := range currentRanges {
		if c.r == r {
			return c.label
		}
	}
	return fmt.Sprintf("Unknown Current Range (%d)", uint8(r))
}

// ResistanceRange is a resistance range bucket; thresholds are in ohms.
type ResistanceRange uint8

const (
	Resistance0To160     ResistanceRange = 0
	Resistance160To330   ResistanceRange = 1
	Resistance330To890   ResistanceRange = 2
	Resistance890To1K5   ResistanceRange = 3
	Resistance1K5To10K   ResistanceRange = 4
	Resistance10KTo100K  ResistanceRange = 5
	Resistance100KTo470K ResistanceRange = 6
	Resistance470KTo1M   ResistanceRange = 7
	ResistanceAutoRange  ResistanceRange = ResistanceRange(AutoRange)
)

var resistanceRanges = []struct {
	r     ResistanceRange
	max   uint32
	label string
}{
	{Resistance0To160, 160, "0 to 160Ω"},
	{Resistance160To330, 330, "160 to 330Ω"},
	{Resistance330To890, 890, "330 to 890Ω"},
	{Resistance890To1K5, 1_500, "890Ω to 1.5KΩ"},
	{Resistance1K5To10K, 10_000, "1.5KΩ to 10KΩ"},
	{Resistance10KTo100K, 100_000, "10KΩ to 100KΩ"},
	{Resistance100KTo470K, 470_000, "100KΩ to 470KΩ"},
	{Resistance470KTo1M, 1_000_000, "470KΩ to 1MΩ"},
}

func (ResistanceRange) Category() Category { return CategoryResistance }
func (r ResistanceRange) Byte() byte { return byte(r) }

func (r ResistanceRange) Max() uint32 {
	for _, c := range resistanceRanges {
		if c.r == r {
			return c.max
		}
	}
	return 0
}

func (r ResistanceRange) String() string {
	if r == ResistanceAutoRange {
		return "Auto-range"
	}
	for _, c := range resistanceRanges {
		if c.r == r {
			return c.label
		}
	}
	return fmt.Sprintf("Unknown Resistance Range (%d)", uint8(r))
}

// LowestRange returns the smallest range of the mode's category whose maximum is at least
// desiredMax (in the category's sub-unit: mV, mA or Ω).
//
// Selection saturates: a desiredMax above every threshold silently selects the largest
// range, i.e. the instrument's ceiling. That is never an error. Asking for a mode that
// has no ranges (Idle, Diode, Continuity, Temperature) is a caller bug and returns ErrNoRanges.
func LowestRange(mode Mode, desiredMax uint32) (Range, error) {
	switch mode.Category() {
	case CategoryVoltage:
		for _, v := range voltageRanges {
			if desiredMax <= v.max {
				return v.r, nil
			}
		}
		return voltageRanges[len(voltageRanges)-1].r, nil
	case CategoryCurrent:
		for _, c := range currentRanges {
			if desiredMax <= c.max {
				return c.r, nil
			}
		}
		return currentRanges[len(currentRanges)-1].r, nil
	case CategoryResistance:
		for _, r := range resistanceRanges {
			if desiredMax <= r.max {
				return r.r, nil
			}
		}
		return resistanceRanges[len(resistanceRanges)-1].r, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoRanges, mode)
	}
}

// AutoRangeFor returns the auto-range value for the mode's category.
func AutoRangeFor(mode Mode) (Range, error) {
	switch mode.Category() {
	case CategoryVoltage:
		return VoltageAutoRange, nil
	case CategoryCurrent:
		return CurrentAutoRange, nil
	case CategoryResistance:
		return ResistanceAutoRange, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoRanges, mode)
	}
}

// decodeRange maps a wire byte to a range of the mode's category. Modes without a category
// ignore the byte and yield a nil Range.
func decodeRange(mode Mode, b byte, allowAuto bool) (Range, error) {
	if allowAuto && b == AutoRange {
		if r, err := AutoRangeFor(mode); err == nil {
			return r, nil
		}
	}
	switch mode.Category() {
	case CategoryVoltage:
		if int(b) < len(voltageRanges) {
			return VoltageRange(b), nil
		}
		return nil, &UnknownEnumError{Field: "voltage range", Value: b}
	case CategoryCurrent:
		if int(b) < len(currentRanges) {
			return CurrentRange(b), nil
		}
		return nil, &UnknownEnumError{Field: "current range", Value: b}
	case CategoryResistance:
		if int(b) < len(resistanceRanges) {
			return ResistanceRange(b), nil
		}
		return nil, &UnknownEnumError{Field: "resistance range", Value: b}
	default:
		return nil, nil
	}
}

// rangeByte returns the wire byte for r; modes without a range send zero.
func rangeByte(r Range) byte {
	if r == nil {
		return 0
	}
	return r.Byte()
}

// checkRange verifies that r belongs to the mode's category.
func checkRange(mode Mode, r Range, allowAuto bool) error {
	cat := mode.Category()
	if cat == CategoryNone {
		if r != nil {
			return fmt.Errorf("%w: mode %s takes no range, got %s", ErrInvalidSettings, mode, r)
		}
		return nil
	}
	if r == nil {
		return fmt.Errorf("%w: mode %s requires a %s range", ErrInvalidSettings, mode, cat)
	}
	if r.Category() != cat {
		return fmt.Errorf("%w: %s range %s does not match mode %s", ErrInvalidSettings, r.Category(), r, mode)
	}
	if r.Byte() == AutoRange {
		if !allowAuto {
			return fmt.Errorf("%w: auto-range is not supported here", ErrInvalidSettings)
		}
		return nil
	}
	if r.Max() == 0 {
		return fmt.Errorf("%w: unknown range %s", ErrInvalidSettings, r)
	}
	return nil
}
