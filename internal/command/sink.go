package command

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mlsorensen/gopokit/internal/storage"
	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/session"
)

// publishQueueLen is how many records may wait for the publisher before new ones are dropped.
const publishQueueLen = 1024

// sink writes the readings of one acquisition to the output and the optional publisher.
// Notifications arrive on the transport's goroutine, so writes are serialized. Records are
// published from a separate goroutine so a slow publisher never holds up notifications.
type sink struct {
	env         *Env
	ctx         context.Context
	service     comms.Service
	acquisition string

	mu      sync.Mutex
	err     error // first output error
	queue   chan storage.Record
	closed  bool
	dropped int
	drained chan struct{}
}

// newSink starts an acquisition's sink. Close must be called when the acquisition ends.
func newSink(ctx context.Context, env *Env, service comms.Service) *sink {
	s := &sink{
		env:         env,
		ctx:         ctx,
		service:     service,
		acquisition: uuid.New().String(),
	}
	env.Log.WithField("acquisition", s.acquisition).Debugf("%s acquisition started", service)
	if env.Publisher != nil {
		s.queue = make(chan storage.Record, publishQueueLen)
		s.drained = make(chan struct{})
		go s.drain()
	}
	return s
}

// drain publishes queued records. Records still queued when the command is interrupted are
// published anyway.
func (s *sink) drain() {
	defer close(s.drained)
	ctx := context.WithoutCancel(s.ctx)
	for r := range s.queue {
		if err := s.env.Publisher.Publish(ctx, r); err != nil {
			s.env.Log.Debugf("failed to publish reading: %v", err)
		}
	}
}

// Close waits for queued records to be published.
func (s *sink) Close() {
	s.mu.Lock()
	if s.queue == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	dropped := s.dropped
	s.mu.Unlock()

	<-s.drained
	if dropped > 0 {
		s.env.Log.Warnf("publisher fell behind, %d readings were not published", dropped)
	}
}

func (s *sink) record() storage.Record {
	return storage.Record{
		Acquisition: s.acquisition,
		Device:      s.env.Device.Name(),
		Service:     s.service.String(),
		Time:        time.Now(),
	}
}

// publish queues r. Called with mu held.
func (s *sink) publish(r storage.Record) {
	if s.queue == nil || s.closed {
		return
	}
	select {
	case s.queue <- r:
	default:
		s.dropped++
	}
}

func (s *sink) fail(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

func (s *sink) metadata(md comms.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail(s.env.Out.Metadata(md))
}

func (s *sink) reading(r session.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail(s.env.Out.Reading(r))

	rec := s.record()
	rec.Index = r.Index
	rec.Value = r.Value
	rec.Unit = r.Unit
	rec.Range = r.RangeLabel()
	rec.Mode = r.Mode.String()
	s.publish(rec)
}

func (s *sink) meter(r comms.MultimeterReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail(s.env.Out.MeterReading(r))

	rec := s.record()
	rec.Value = float64(r.Value)
	rec.Unit = r.Mode.Unit()
	if r.Range != nil {
		rec.Range = r.Range.String()
	}
	rec.Mode = r.Mode.String()
	s.publish(rec)
}

// Err returns the first output error, after flushing.
func (s *sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail(s.env.Out.Flush())
	return s.err
}

// handler reports an acquisition's events to the sink.
func (s *sink) handler() session.Handler {
	return session.Handler{
		OnMetadata: s.metadata,
		OnReading:  s.reading,
		OnFailed: func(err error) {
			s.env.Log.Errorf("%s acquisition failed: %v", s.service, err)
		},
	}
}
