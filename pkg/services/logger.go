package services

import (
	"fmt"
	"time"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/session"
	"github.com/mlsorensen/gopokit/pkg/transport"
	"github.com/sirupsen/logrus"
)

// DataLoggerService runs long, unattended acquisitions on the device and fetches the
// logged samples afterwards.
type DataLoggerService struct {
	base
	notify  notifier
	session *session.Session
	now     func() time.Time
}

func NewDataLoggerService(conn transport.Connection, log logrus.FieldLogger) *DataLoggerService {
	l := &DataLoggerService{
		base: newBase(conn, comms.LoggerServiceUUID, log),
		now:  time.Now,
	}
	l.session = session.New(comms.ServiceLogger, l.log)
	return l
}

// Session returns the acquisition state machine used by Fetch.
func (l *DataLoggerService) Session() *session.Session {
	return l.session
}

// Start begins logging with settings. The command is forced to Start, and a zero timestamp
// is replaced with the current time.
func (l *DataLoggerService) Start(settings comms.LoggerSettings) error {
	settings.Command = comms.LoggerStart
	if settings.Timestamp == 0 {
		settings.Timestamp = uint32(l.now().Unix())
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{
		"mode":     settings.Mode.String(),
		"interval": settings.UpdateInterval,
	}).Info("starting data logger")
	return l.write(comms.LoggerSettingsCharUUID, comms.EncodeLoggerSettings(settings))
}

// Stop ends logging. Samples already logged stay on the device.
func (l *DataLoggerService) Stop() error {
	l.log.Info("stopping data logger")
	return l.write(comms.LoggerSettingsCharUUID, comms.EncodeLoggerSettings(comms.LoggerSettings{Command: comms.LoggerStop}))
}

// Fetch asks the device to send everything it has logged, reporting it to h. Like
// DsoService.Acquire it returns once the request is written.
func (l *DataLoggerService) Fetch(h session.Handler) error {
	if err := l.session.Begin(h); err != nil {
		return err
	}
	if err := l.enableNotifications(); err != nil {
		l.session.Reset()
		return err
	}
	l.log.Info("fetching logged samples")
	if err := l.write(comms.LoggerSettingsCharUUID, comms.EncodeLoggerSettings(comms.LoggerSettings{Command: comms.LoggerRefresh})); err != nil {
		l.session.Reset()
		return fmt.Errorf("could not fetch logger samples: %w", err)
	}
	return nil
}

// Metadata reads the metadata of the current or most recent logging run.
func (l *DataLoggerService) Metadata() (comms.Metadata, error) {
	value, err := l.read(comms.LoggerMetadataCharUUID)
	if err != nil {
		return comms.Metadata{}, err
	}
	return comms.DecodeLoggerMetadata(value)
}

func (l *DataLoggerService) enableNotifications() error {
	if err := l.notify.enable(&l.base, comms.LoggerMetadataCharUUID, l.handleMetadata); err != nil {
		return err
	}
	return l.notify.enable(&l.base, comms.LoggerReadingCharUUID, l.handleReading)
}

func (l *DataLoggerService) handleMetadata(buf []byte) {
	_ = l.session.HandleMetadataFrame(buf)
}

func (l *DataLoggerService) handleReading(buf []byte) {
	_ = l.session.HandleSamplesFrame(buf)
}
