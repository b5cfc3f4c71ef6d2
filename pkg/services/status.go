package services

import (
	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/transport"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// StatusService reads the device's characteristics and status, and renames it. The Pokit
// Meter and Pokit Pro expose it under different service UUIDs.
type StatusService struct {
	base
}

func NewStatusService(conn transport.Connection, serviceUUID bluetooth.UUID, log logrus.FieldLogger) *StatusService {
	return &StatusService{base: newBase(conn, serviceUUID, log)}
}

func (s *StatusService) DeviceCharacteristics() (comms.DeviceCharacteristics, error) {
	value, err := s.read(comms.DeviceCharacteristicsCharUUID)
	if err != nil {
		return comms.DeviceCharacteristics{}, err
	}
	return comms.DecodeDeviceCharacteristics(value)
}

func (s *StatusService) Status() (comms.Status, error) {
	value, err := s.read(comms.StatusCharUUID)
	if err != nil {
		return comms.Status{}, err
	}
	return comms.DecodeStatus(value)
}

func (s *StatusService) DeviceName() (string, error) {
	return s.readString(comms.NameCharUUID)
}

// SetDeviceName renames the device. Names are 1 to 11 bytes of UTF-8.
func (s *StatusService) SetDeviceName(name string) error {
	payload, err := comms.EncodeName(name)
	if err != nil {
		return err
	}
	if err := s.write(comms.NameCharUUID, payload); err != nil {
		return err
	}
	s.log.Infof("device renamed to %q", name)
	return nil
}

// FlashLed blinks the device's LED, to tell several devices apart.
func (s *StatusService) FlashLed() error {
	return s.write(comms.FlashLedCharUUID, comms.FlashLedCommand())
}

// CalibrationService calibrates the device's temperature sensor.
type CalibrationService struct {
	base
}

func NewCalibrationService(conn transport.Connection, log logrus.FieldLogger) *CalibrationService {
	return &CalibrationService{base: newBase(conn, comms.CalibrationServiceUUID, log)}
}

// CalibrateTemperature tells the device the current ambient temperature in °C.
func (c *CalibrationService) CalibrateTemperature(celsius float32) error {
	if err := c.write(comms.CalibrationTemperatureCharUUID, comms.EncodeTemperature(celsius)); err != nil {
		return err
	}
	c.log.Infof("calibrated to %.1f°C", celsius)
	return nil
}

// DeviceInfo is the content of the standard device information service.
type DeviceInfo struct {
	ManufacturerName string
	ModelNumber      string
	HardwareRevision string
	FirmwareRevision string
	SoftwareRevision string
}

// DeviceInfoService reads the standard device information strings.
type DeviceInfoService struct {
	base
}

func NewDeviceInfoService(conn transport.Connection, log logrus.FieldLogger) *DeviceInfoService {
	return &DeviceInfoService{base: newBase(conn, comms.DeviceInfoServiceUUID, log)}
}

func (d *DeviceInfoService) ManufacturerName() (string, error) {
	return d.readString(comms.ManufacturerNameCharUUID)
}

func (d *DeviceInfoService) ModelNumber() (string, error) {
	return d.readString(comms.ModelNumberCharUUID)
}

func (d *DeviceInfoService) HardwareRevision() (string, error) {
	return d.readString(comms.HardwareRevisionCharUUID)
}

func (d *DeviceInfoService) FirmwareRevision() (string, error) {
	return d.readString(comms.FirmwareRevisionCharUUID)
}

func (d *DeviceInfoService) SoftwareRevision() (string, error) {
	return d.readString(comms.SoftwareRevisionCharUUID)
}

// Info reads every string; the first failure aborts.
func (d *DeviceInfoService) Info() (DeviceInfo, error) {
	var info DeviceInfo
	fields := []struct {
		dst  *string
		read func() (string, error)
	}{
		{&info.ManufacturerName, d.ManufacturerName},
		{&info.ModelNumber, d.ModelNumber},
		{&info.HardwareRevision, d.HardwareRevision},
		{&info.FirmwareRevision, d.FirmwareRevision},
		{&info.SoftwareRevision, d.SoftwareRevision},
	}
	for _, f := range fields {
		v, err := f.read()
		if err != nil {
			return DeviceInfo{}, err
		}
		*f.dst = v
	}
	return info, nil
}

// GenericAccessService reads the standard generic access service.
type GenericAccessService struct {
	base
}

func NewGenericAccessService(conn transport.Connection, log logrus.FieldLogger) *GenericAccessService {
	return &GenericAccessService{base: newBase(conn, comms.GenericAccessServiceUUID, log)}
}

func (g *GenericAccessService) DeviceName() (string, error) {
	return g.readString(comms.GenericAccessDeviceNameCharUUID)
}

func (g *GenericAccessService) Appearance() (uint16, error) {
	value, err := g.read(comms.GenericAccessAppearanceCharUUID)
	if err != nil {
		return 0, err
	}
	return comms.DecodeAppearance(value)
}
