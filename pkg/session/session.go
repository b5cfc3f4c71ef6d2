// Package session tracks one DSO or data logger acquisition: the metadata notification that
// announces it, the sample notifications that follow, and when it is complete.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/monitor"
	"github.com/sirupsen/logrus"
)

var (
	// ErrOrderingViolation is returned when samples arrive before the metadata that describes them.
	ErrOrderingViolation = errors.New("samples received before metadata")

	// ErrBusy is returned by Begin while an acquisition is still streaming.
	ErrBusy = errors.New("acquisition already in progress")

	// ErrReset is the result of an acquisition abandoned by Begin or Reset before it finished.
	ErrReset = errors.New("acquisition reset")

	// ErrDisconnected is the result of an acquisition cut short by the device disconnecting.
	ErrDisconnected = errors.New("device disconnected")
)

// State is the acquisition state.
type State int

const (
	AwaitingMetadata State = iota
	Streaming
	Terminal
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitingMetadata:
		return "AwaitingMetadata"
	case Streaming:
		return "Streaming"
	case Terminal:
		return "Terminal"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown State (%d)", int(s))
	}
}

// Reading is one scaled sample.
type Reading struct {
	Index int // 1-based within the acquisition
	Raw   int16
	Value float64
	Unit  string
	Range comms.Range
	Mode  comms.Mode
}

// RangeLabel returns the label of the reading's range, or "N/A".
func (r Reading) RangeLabel() string {
	if r.Range == nil {
		return "N/A"
	}
	return r.Range.String()
}

// Handler receives the events of one acquisition. Any field may be nil. Callbacks are never
// invoked while the session lock is held, so they may call back into the session.
type Handler struct {
	OnMetadata func(comms.Metadata)
	OnReading  func(Reading)
	OnComplete func(comms.Metadata)
	OnFailed   func(error)
}

// Session is the state machine of a single acquisition-capable service. It is safe for
// concurrent use; notifications are typically delivered on the BLE stack's goroutine.
type Session struct {
	service        comms.Service
	decodeMetadata func([]byte) (comms.Metadata, error)
	log            logrus.FieldLogger

	mu        sync.Mutex
	state     State
	handler   Handler
	metadata  comms.Metadata
	remaining int
	index     int
	begun     bool
	acq       *acquisition
}

// acquisition is the outcome of one Begin.
type acquisition struct {
	done chan struct{}
	err  error
}

// New creates a session for the DSO or data logger service, waiting for metadata.
func New(service comms.Service, log logrus.FieldLogger) *Session {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	s := &Session{
		service: service,
		log:     log.WithField("session", service.String()),
		state:   AwaitingMetadata,
		acq:     &acquisition{done: make(chan struct{})},
	}
	switch service {
	case comms.ServiceLogger:
		s.decodeMetadata = comms.DecodeLoggerMetadata
	default:
		s.decodeMetadata = comms.DecodeDsoMetadata
	}
	return s
}

// Begin starts a new acquisition reported to h. It fails with ErrBusy while samples of the
// previous acquisition are still streaming; the running acquisition is not disturbed.
func (s *Session) Begin(h Handler) error {
	s.mu.Lock()
	if s.state == Streaming {
		s.mu.Unlock()
		monitor.Acquisitions.WithLabelValues(s.service.String(), monitor.ResultRejected).Inc()
		return ErrBusy
	}
	s.resetLocked()
	s.handler = h
	s.begun = true
	s.mu.Unlock()
	return nil
}

// Reset abandons whatever the session was doing and waits for new metadata.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.handler = Handler{}
	s.mu.Unlock()
}

func (s *Session) resetLocked() {
	if s.state == AwaitingMetadata || s.state == Streaming {
		s.finishLocked(ErrReset)
	}
	s.state = AwaitingMetadata
	s.metadata = comms.Metadata{}
	s.remaining = 0
	s.index = 0
	s.begun = false
	s.acq = &acquisition{done: make(chan struct{})}
}

// Abort fails the running acquisition with err. Waiters wake up with err and the handler's
// OnFailed is called. It does nothing when no acquisition was begun or streaming.
func (s *Session) Abort(err error) {
	s.mu.Lock()
	if s.state != Streaming && !(s.state == AwaitingMetadata && s.begun) {
		s.mu.Unlock()
		return
	}
	s.state = Failed
	s.finishLocked(err)
	h := s.handler
	s.mu.Unlock()
	s.failed(h, err)
}

// finishLocked records the acquisition result and wakes up waiters.
func (s *Session) finishLocked(err error) {
	select {
	case <-s.acq.done:
	default:
		s.acq.err = err
		close(s.acq.done)
	}
}

// HandleMetadata starts streaming. Metadata is only accepted while waiting for it; a
// repeated or late metadata notification is ignored.
func (s *Session) HandleMetadata(md comms.Metadata) {
	s.mu.Lock()
	if s.state != AwaitingMetadata {
		state := s.state
		s.mu.Unlock()
		s.log.Debugf("ignoring metadata in state %s", state)
		return
	}
	if md.Status == comms.StatusError {
		s.log.Warn("device reported an error status in metadata")
	}
	s.metadata = md
	s.remaining = int(md.NumberOfSamples)
	s.state = Streaming
	h := s.handler
	complete := s.remaining == 0
	if complete {
		s.state = Terminal
		s.finishLocked(nil)
	}
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"mode":    md.Mode.String(),
		"range":   md.RangeLabel(),
		"samples": md.NumberOfSamples,
		"scale":   md.Scale,
	}).Debug("metadata received")

	if h.OnMetadata != nil {
		h.OnMetadata(md)
	}
	if complete {
		s.completed(h, md)
	}
}

// HandleSamples emits one Reading per sample. Samples that arrive before metadata fail the
// acquisition with ErrOrderingViolation; samples after it has ended are ignored.
func (s *Session) HandleSamples(samples []int16) error {
	s.mu.Lock()
	switch s.state {
	case AwaitingMetadata:
		s.state = Failed
		s.finishLocked(ErrOrderingViolation)
		h := s.handler
		s.mu.Unlock()
		s.failed(h, ErrOrderingViolation)
		return ErrOrderingViolation
	case Terminal, Failed:
		s.mu.Unlock()
		return nil
	}

	md := s.metadata
	readings := make([]Reading, len(samples))
	for i, raw := range samples {
		s.index++
		readings[i] = Reading{
			Index: s.index,
			Raw:   raw,
			Value: float64(raw) * float64(md.Scale),
			Unit:  md.Mode.Unit(),
			Range: md.Range,
			Mode:  md.Mode,
		}
	}
	s.remaining -= len(samples)
	if s.remaining < 0 {
		s.remaining = 0
	}
	complete := s.remaining == 0
	if complete {
		s.state = Terminal
		s.finishLocked(nil)
	}
	h := s.handler
	s.mu.Unlock()

	monitor.SamplesDecoded.WithLabelValues(s.service.String(), md.Mode.String()).Add(float64(len(samples)))
	if h.OnReading != nil {
		for _, r := range readings {
			h.OnReading(r)
		}
	}
	if complete {
		s.completed(h, md)
	}
	return nil
}

// HandleMetadataFrame decodes a raw metadata notification. A frame that cannot be decoded
// fails the acquisition.
func (s *Session) HandleMetadataFrame(payload []byte) error {
	if s.State() != AwaitingMetadata {
		return nil
	}
	md, err := s.decodeMetadata(payload)
	if err != nil {
		err = fmt.Errorf("decode %s metadata: %w", s.service, err)
		s.mu.Lock()
		if s.state != AwaitingMetadata {
			s.mu.Unlock()
			return nil
		}
		s.state = Failed
		s.finishLocked(err)
		h := s.handler
		s.mu.Unlock()
		monitor.FramesDropped.WithLabelValues(s.service.String()).Inc()
		s.failed(h, err)
		return err
	}
	s.HandleMetadata(md)
	return nil
}

// HandleSamplesFrame decodes a raw reading notification. A malformed frame in the middle of
// an acquisition is logged and dropped; the acquisition carries on.
func (s *Session) HandleSamplesFrame(payload []byte) error {
	samples, err := comms.DecodeSamples(payload)
	if err != nil {
		switch s.State() {
		case Streaming:
			monitor.FramesDropped.WithLabelValues(s.service.String()).Inc()
			s.log.Warnf("dropping malformed samples frame: %v", err)
			return err
		case AwaitingMetadata:
			return s.HandleSamples(nil)
		default:
			return nil
		}
	}
	return s.HandleSamples(samples)
}

func (s *Session) completed(h Handler, md comms.Metadata) {
	monitor.Acquisitions.WithLabelValues(s.service.String(), monitor.ResultCompleted).Inc()
	s.log.Debug("acquisition complete")
	if h.OnComplete != nil {
		h.OnComplete(md)
	}
}

func (s *Session) failed(h Handler, err error) {
	monitor.Acquisitions.WithLabelValues(s.service.String(), monitor.ResultFailed).Inc()
	s.log.Errorf("acquisition failed: %v", err)
	if h.OnFailed != nil {
		h.OnFailed(err)
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Metadata returns the metadata of the current acquisition, if it has arrived.
func (s *Session) Metadata() (comms.Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata, s.state != AwaitingMetadata && s.state != Failed
}

// Remaining returns the number of samples still expected.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Done is closed when the current acquisition completes, fails or is reset.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acq.done
}

// Wait blocks until the current acquisition ends and returns its error, if any.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	acq := s.acq
	s.mu.Unlock()

	select {
	case <-acq.done:
		return acq.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
