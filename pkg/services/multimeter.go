package services

import (
	"sync"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/monitor"
	"github.com/mlsorensen/gopokit/pkg/transport"
	"github.com/sirupsen/logrus"
)

// MultimeterService configures the multimeter and streams its readings.
type MultimeterService struct {
	base
	notify notifier

	mu        sync.Mutex
	onReading func(comms.MultimeterReading)
}

func NewMultimeterService(conn transport.Connection, log logrus.FieldLogger) *MultimeterService {
	return &MultimeterService{base: newBase(conn, comms.MultimeterServiceUUID, log)}
}

// SetSettings validates and writes new multimeter settings. Setting ModeIdle stops the meter.
func (m *MultimeterService) SetSettings(s comms.MultimeterSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"mode":     s.Mode.String(),
		"interval": s.UpdateInterval,
	}).Info("configuring multimeter")
	return m.write(comms.MultimeterSettingsCharUUID, comms.EncodeMultimeterSettings(s))
}

// Reading reads the current reading without waiting for a notification.
func (m *MultimeterService) Reading() (comms.MultimeterReading, error) {
	value, err := m.read(comms.MultimeterReadingCharUUID)
	if err != nil {
		return comms.MultimeterReading{}, err
	}
	return comms.DecodeMultimeterReading(value)
}

// OnReading registers fn for every reading notification, replacing any previous callback.
// Readings that cannot be decoded are logged and dropped.
func (m *MultimeterService) OnReading(fn func(comms.MultimeterReading)) error {
	m.mu.Lock()
	m.onReading = fn
	m.mu.Unlock()
	return m.notify.enable(&m.base, comms.MultimeterReadingCharUUID, m.handleReading)
}

func (m *MultimeterService) handleReading(buf []byte) {
	r, err := comms.DecodeMultimeterReading(buf)
	if err != nil {
		monitor.FramesDropped.WithLabelValues(comms.ServiceMultimeter.String()).Inc()
		m.log.Warnf("dropping malformed reading: %v", err)
		return
	}
	monitor.MultimeterReadings.WithLabelValues(r.Mode.String()).Inc()

	m.mu.Lock()
	fn := m.onReading
	m.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}
