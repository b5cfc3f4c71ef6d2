package session

import (
	"context"
	"testing"
	"time"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	metadata  []comms.Metadata
	readings  []Reading
	completed int
	failures  []error
}

func (r *recorder) handler() Handler {
	return Handler{
		OnMetadata: func(md comms.Metadata) { r.metadata = append(r.metadata, md) },
		OnReading:  func(rd Reading) { r.readings = append(r.readings, rd) },
		OnComplete: func(comms.Metadata) { r.completed++ },
		OnFailed:   func(err error) { r.failures = append(r.failures, err) },
	}
}

func dsoMetadata(samples uint16) comms.Metadata {
	return comms.Metadata{
		Service:         comms.ServiceDso,
		Status:          comms.StatusDone,
		Scale:           0.5,
		Mode:            comms.ModeDcVoltage,
		Range:           comms.Voltage2VTo6V,
		SamplingWindow:  1_000_000,
		NumberOfSamples: samples,
		SamplingRate:    10,
	}
}

func TestSessionCompletesOnce(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))

	s.HandleMetadata(dsoMetadata(10))
	assert.Equal(t, Streaming, s.State())
	assert.Equal(t, 10, s.Remaining())

	require.NoError(t, s.HandleSamples([]int16{1, 2, 3, 4, 5}))
	assert.Equal(t, 0, rec.completed)
	assert.Equal(t, 5, s.Remaining())

	require.NoError(t, s.HandleSamples([]int16{6, 7, 8, 9, 10}))
	assert.Equal(t, 1, rec.completed)
	assert.Equal(t, Terminal, s.State())
	require.Len(t, rec.readings, 10)

	for i, r := range rec.readings {
		assert.Equal(t, i+1, r.Index)
		assert.Equal(t, int16(i+1), r.Raw)
		assert.InDelta(t, float64(i+1)*0.5, r.Value, 1e-9)
		assert.Equal(t, "Vdc", r.Unit)
		assert.Equal(t, "2V to 6V", r.RangeLabel())
	}

	// Late frames are ignored and never complete a second time.
	require.NoError(t, s.HandleSamples([]int16{11}))
	assert.Equal(t, 1, rec.completed)
	assert.Len(t, rec.readings, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Wait(ctx))
}

func TestSessionOverrunFloorsAtZero(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))

	s.HandleMetadata(dsoMetadata(3))
	require.NoError(t, s.HandleSamples([]int16{1, 2, 3, 4}))
	assert.Equal(t, 0, s.Remaining())
	assert.Equal(t, 1, rec.completed)
	assert.Len(t, rec.readings, 4)
}

func TestSessionSamplesBeforeMetadata(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))

	err := s.HandleSamples([]int16{1, 2})
	assert.ErrorIs(t, err, ErrOrderingViolation)
	assert.Equal(t, Failed, s.State())
	assert.Empty(t, rec.readings)
	require.Len(t, rec.failures, 1)
	assert.Equal(t, 0, rec.completed)

	// Metadata after failure is ignored.
	s.HandleMetadata(dsoMetadata(2))
	assert.Equal(t, Failed, s.State())
	assert.Empty(t, rec.metadata)

	assert.ErrorIs(t, s.Wait(context.Background()), ErrOrderingViolation)
}

func TestSessionZeroSamples(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))

	s.HandleMetadata(dsoMetadata(0))
	assert.Equal(t, Terminal, s.State())
	assert.Equal(t, 1, rec.completed)
	assert.Len(t, rec.metadata, 1)
}

func TestSessionMetadataOnlyOnce(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))

	s.HandleMetadata(dsoMetadata(4))
	md := dsoMetadata(100)
	md.Scale = 2
	s.HandleMetadata(md)

	assert.Len(t, rec.metadata, 1)
	assert.Equal(t, 4, s.Remaining())
	got, ok := s.Metadata()
	require.True(t, ok)
	assert.Equal(t, float32(0.5), got.Scale)
}

func TestSessionBeginRejectsWhileStreaming(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	first := &recorder{}
	require.NoError(t, s.Begin(first.handler()))
	s.HandleMetadata(dsoMetadata(4))

	second := &recorder{}
	assert.ErrorIs(t, s.Begin(second.handler()), ErrBusy)

	// The running acquisition is undisturbed.
	require.NoError(t, s.HandleSamples([]int16{1, 2, 3, 4}))
	assert.Equal(t, 1, first.completed)
	assert.Empty(t, second.readings)

	// Once terminal, a new acquisition may begin.
	require.NoError(t, s.Begin(second.handler()))
	assert.Equal(t, AwaitingMetadata, s.State())
	s.HandleMetadata(dsoMetadata(1))
	require.NoError(t, s.HandleSamples([]int16{7}))
	require.Len(t, second.readings, 1)
	assert.Equal(t, 1, second.readings[0].Index)
}

func TestSessionReset(t *testing.T) {
	s := New(comms.ServiceLogger, nil)
	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))
	s.HandleMetadata(dsoMetadata(4))
	done := s.Done()
	delivered := len(rec.metadata)

	s.Reset()
	assert.Equal(t, AwaitingMetadata, s.State())
	assert.Equal(t, 0, s.Remaining())
	select {
	case <-done:
	default:
		t.Fatal("reset should end the abandoned acquisition")
	}

	require.NoError(t, s.HandleMetadataFrame(comms.EncodeLoggerMetadata(comms.Metadata{
		Mode:            comms.ModeDcCurrent,
		Range:           comms.Current0To10mA,
		Scale:           1,
		NumberOfSamples: 1,
	})))
	assert.Equal(t, Streaming, s.State())
	assert.Len(t, rec.metadata, delivered, "handler is detached by Reset")
}

func TestSessionAbort(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	s.Abort(ErrDisconnected)
	assert.Equal(t, AwaitingMetadata, s.State(), "nothing to abort before Begin")

	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))
	s.HandleMetadata(dsoMetadata(4))
	require.NoError(t, s.HandleSamples([]int16{1}))

	s.Abort(ErrDisconnected)
	assert.Equal(t, Failed, s.State())
	assert.ErrorIs(t, s.Wait(context.Background()), ErrDisconnected)
	require.Len(t, rec.failures, 1)
	assert.ErrorIs(t, rec.failures[0], ErrDisconnected)

	require.NoError(t, s.HandleSamples([]int16{2, 3, 4}))
	assert.Len(t, rec.readings, 1, "samples after the abort are ignored")

	require.NoError(t, s.Begin(rec.handler()))
	s.Abort(ErrDisconnected)
	assert.Equal(t, Failed, s.State(), "an acquisition waiting for metadata is aborted too")
}

func TestSessionFrames(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))

	require.NoError(t, s.HandleMetadataFrame(comms.EncodeDsoMetadata(dsoMetadata(3))))
	require.NoError(t, s.HandleSamplesFrame([]byte{0x01, 0x00, 0xFF, 0xFF}))

	// A torn frame mid-stream is dropped without ending the acquisition.
	err := s.HandleSamplesFrame([]byte{0x05})
	assert.ErrorIs(t, err, comms.ErrTruncated)
	assert.Equal(t, Streaming, s.State())

	require.NoError(t, s.HandleSamplesFrame([]byte{0x02, 0x00}))
	assert.Equal(t, Terminal, s.State())
	require.Len(t, rec.readings, 3)
	assert.Equal(t, []int16{1, -1, 2}, []int16{rec.readings[0].Raw, rec.readings[1].Raw, rec.readings[2].Raw})
}

func TestSessionBadMetadataFrameFails(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	rec := &recorder{}
	require.NoError(t, s.Begin(rec.handler()))

	err := s.HandleMetadataFrame([]byte{0x00, 0x01})
	assert.ErrorIs(t, err, comms.ErrTruncated)
	assert.Equal(t, Failed, s.State())
	assert.Len(t, rec.failures, 1)
}

func TestSessionWaitContext(t *testing.T) {
	s := New(comms.ServiceDso, nil)
	require.NoError(t, s.Begin(Handler{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}
