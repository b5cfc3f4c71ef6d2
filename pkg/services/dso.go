package services

import (
	"fmt"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/session"
	"github.com/mlsorensen/gopokit/pkg/transport"
	"github.com/sirupsen/logrus"
)

// DsoService captures a block of samples with the digital storage oscilloscope.
type DsoService struct {
	base
	notify  notifier
	session *session.Session
}

func NewDsoService(conn transport.Connection, log logrus.FieldLogger) *DsoService {
	d := &DsoService{base: newBase(conn, comms.DsoServiceUUID, log)}
	d.session = session.New(comms.ServiceDso, d.log)
	return d
}

// Session returns the acquisition state machine fed by this service's notifications.
func (d *DsoService) Session() *session.Session {
	return d.session
}

// Acquire starts a capture with settings and reports it to h. It returns once the settings
// are written; use Session().Wait to block until the last sample has arrived. While an earlier
// capture is still streaming Acquire fails with session.ErrBusy and writes nothing.
func (d *DsoService) Acquire(settings comms.DsoSettings, h session.Handler) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := d.session.Begin(h); err != nil {
		return err
	}
	if err := d.enableNotifications(); err != nil {
		d.session.Reset()
		return err
	}

	d.log.WithFields(logrus.Fields{
		"command": settings.Command.String(),
		"mode":    settings.Mode.String(),
		"window":  settings.SamplingWindow,
		"samples": settings.NumberOfSamples,
	}).Info("starting DSO capture")

	if err := d.write(comms.DsoSettingsCharUUID, comms.EncodeDsoSettings(settings)); err != nil {
		d.session.Reset()
		return fmt.Errorf("could not start DSO capture: %w", err)
	}
	return nil
}

// Metadata reads the metadata of the most recent capture.
func (d *DsoService) Metadata() (comms.Metadata, error) {
	value, err := d.read(comms.DsoMetadataCharUUID)
	if err != nil {
		return comms.Metadata{}, err
	}
	return comms.DecodeDsoMetadata(value)
}

func (d *DsoService) enableNotifications() error {
	if err := d.notify.enable(&d.base, comms.DsoMetadataCharUUID, d.handleMetadata); err != nil {
		return err
	}
	return d.notify.enable(&d.base, comms.DsoReadingCharUUID, d.handleReading)
}

func (d *DsoService) handleMetadata(buf []byte) {
	_ = d.session.HandleMetadataFrame(buf)
}

func (d *DsoService) handleReading(buf []byte) {
	_ = d.session.HandleSamplesFrame(buf)
}
