// Package units parses user supplied quantities such as "500ms", "2A" or "1.5k" into
// unsigned integers of a fixed sub-unit.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidValue is wrapped by every parse failure.
var ErrInvalidValue = errors.New("invalid value")

const (
	micro = 1e-6
	milli = 1e-3
	kilo  = 1e3
	mega  = 1e6
)

// ParseMicroValue parses text as a quantity of unit and returns it in micro-units, e.g.
// ParseMicroValue("500ms", "s", 0) returns 500000.
func ParseMicroValue(text, unit string, sensibleMinimum uint32) (uint32, error) {
	return parse(text, unit, 1/micro, sensibleMinimum)
}

// ParseMilliValue parses text as a quantity of unit and returns it in milli-units, e.g.
// ParseMilliValue("2A", "A", 0) returns 2000.
func ParseMilliValue(text, unit string, sensibleMinimum uint32) (uint32, error) {
	return parse(text, unit, 1/milli, sensibleMinimum)
}

// ParseWholeValue parses text as a quantity of unit in whole units, e.g.
// ParseWholeValue("1.5k", "S") returns 1500.
func ParseWholeValue(text, unit string) (uint32, error) {
	return parse(text, unit, 1, 0)
}

// parse converts text to an integer count of sub-units, where one whole unit is perUnit
// sub-units.
//
// A prefixed value ("500m") is scaled by its prefix. An unprefixed value followed by the unit
// letter ("2s") is in whole units. A bare number is whole units when it is at least 1 and is
// taken to be in sub-units already when it is below 1.
func parse(text, unit string, perUnit float64, sensibleMinimum uint32) (uint32, error) {
	s := strings.TrimSpace(text)
	numLen := numberPrefix(s)
	if numLen == 0 {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, text)
	}
	value, err := strconv.ParseFloat(s[:numLen], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidValue, text, err)
	}

	rest := strings.TrimSpace(s[numLen:])
	hasUnit := false
	if unit != "" && len(rest) >= len(unit) && strings.EqualFold(rest[len(rest)-len(unit):], unit) {
		rest = strings.TrimSpace(rest[:len(rest)-len(unit)])
		hasUnit = true
	}

	var scaled float64
	switch {
	case rest != "":
		prefix, ok := prefixes[rest]
		if !ok {
			return 0, fmt.Errorf("%w: %q has unknown unit %q", ErrInvalidValue, text, rest)
		}
		scaled = value * prefix * perUnit
	case hasUnit, value >= 1:
		scaled = value * perUnit
	default:
		scaled = value
	}

	if math.IsNaN(scaled) || math.IsInf(scaled, 0) || scaled < 0 {
		return 0, fmt.Errorf("%w: %q is out of range", ErrInvalidValue, text)
	}
	rounded := math.Round(scaled)
	if rounded > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidValue, text)
	}
	result := uint32(rounded)
	if result == 0 {
		return 0, fmt.Errorf("%w: %q is zero", ErrInvalidValue, text)
	}
	if result < sensibleMinimum {
		return 0, fmt.Errorf("%w: %q is below the minimum of %d", ErrInvalidValue, text, sensibleMinimum)
	}
	return result, nil
}

// Lower-case m is milli and upper-case M is mega; the others are case-insensitive.
var prefixes = map[string]float64{
	"µ": micro, // micro sign
	"μ": micro, // greek mu
	"u": micro,
	"U": micro,
	"m": milli,
	"k": kilo,
	"K": kilo,
	"M": mega,
}

// numberPrefix returns the length of the leading decimal number in s.
func numberPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			digits++
			continue
		}
		if c == '.' {
			continue
		}
		break
	}
	if digits == 0 {
		return 0
	}
	return i
}
