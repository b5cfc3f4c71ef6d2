package comms

import (
	"encoding/binary"
	"fmt"
)

// DecodeSamples parses a reading notification from the DSO or data logger. Each
// little-endian 2-byte chunk is one signed raw sample; scale it with Metadata.Scale.
func DecodeSamples(payload []byte) ([]int16, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("samples: %w: %d bytes is not a whole number of samples", ErrTruncated, len(payload))
	}
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[2*i:]))
	}
	return samples, nil
}

// EncodeSamples is the inverse of DecodeSamples, for the simulated device.
func EncodeSamples(samples []int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}
