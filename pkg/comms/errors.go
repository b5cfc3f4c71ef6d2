package comms

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a payload is shorter than its fixed layout, or not a
	// whole number of samples.
	ErrTruncated = errors.New("truncated payload")

	// ErrNoRanges is returned when a range is requested for a mode that has no range category.
	ErrNoRanges = errors.New("mode has no ranges")

	// ErrInvalidSettings is returned by Validate for settings a service cannot accept.
	ErrInvalidSettings = errors.New("invalid settings")
)

// UnknownEnumError reports a byte that does not match any enumerator of a field.
type UnknownEnumError struct {
	Field string
	Value byte
}

func (e *UnknownEnumError) Error() string {
	return fmt.Sprintf("unknown %s value 0x%02X", e.Field, e.Value)
}

func truncated(what string, got, want int) error {
	return fmt.Errorf("%s: %w: expected %d bytes, got %d", what, ErrTruncated, want, got)
}
