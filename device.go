package gopokit

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mlsorensen/gopokit/pkg/monitor"
	"github.com/mlsorensen/gopokit/pkg/services"
	"github.com/mlsorensen/gopokit/pkg/session"
	"github.com/mlsorensen/gopokit/pkg/transport"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned by service accessors while the device has no connection.
var ErrNotConnected = errors.New("device is not connected")

// Capability names one of the services a Device can hand out.
type Capability int

const (
	CapabilityStatus Capability = iota
	CapabilityCalibration
	CapabilityDeviceInfo
	CapabilityDso
	CapabilityMultimeter
	CapabilityDataLogger
	CapabilityGenericAccess
	numCapabilities
)

func (c Capability) String() string {
	switch c {
	case CapabilityStatus:
		return "Status"
	case CapabilityCalibration:
		return "Calibration"
	case CapabilityDeviceInfo:
		return "Device Info"
	case CapabilityDso:
		return "DSO"
	case CapabilityMultimeter:
		return "Multimeter"
	case CapabilityDataLogger:
		return "Data Logger"
	case CapabilityGenericAccess:
		return "Generic Access"
	default:
		return fmt.Sprintf("Unknown Capability (%d)", int(c))
	}
}

// Device is one Pokit device. Service accessors create each service on first use and hand out
// the same instance until the connection changes.
type Device struct {
	name  string
	model Model
	found FoundDevice
	dial  Dialer
	log   logrus.FieldLogger

	mu       sync.Mutex
	conn     transport.Connection
	services [numCapabilities]any
}

// NewDevice creates an unconnected Device for a discovered device, using the driver registered
// for its name.
func NewDevice(found FoundDevice, log logrus.FieldLogger) (*Device, error) {
	d, err := driverFor(found.Name)
	if err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Device{
		name:  found.Name,
		model: d.model,
		found: found,
		dial:  d.dial,
		log:   log.WithField("device", found.Name),
	}, nil
}

func (d *Device) Name() string { return d.name }
func (d *Device) Model() Model { return d.model }

// Address returns the Bluetooth address the device was found at, or "" for virtual devices.
func (d *Device) Address() string { return d.found.ID() }

// Connect dials the device, replacing any existing connection.
func (d *Device) Connect() error {
	if d.dial == nil {
		return fmt.Errorf("%w: no dialer for %s", ErrUnknownDevice, d.name)
	}
	conn, err := d.dial(&d.found, d.log)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", d.name, err)
	}
	d.SetConnection(conn)
	return nil
}

// SetConnection installs conn (which may be nil) as the device's connection. Every service
// handed out so far is forgotten, and any acquisition still running on them fails with
// session.ErrDisconnected.
func (d *Device) SetConnection(conn transport.Connection) {
	d.mu.Lock()
	old := d.swapLocked(conn)
	d.mu.Unlock()
	abandon(old)
}

// Disconnect closes the connection, if any, and forgets every service.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	conn := d.conn
	if conn == nil {
		d.mu.Unlock()
		return nil
	}
	old := d.swapLocked(nil)
	d.mu.Unlock()

	abandon(old)
	return conn.Disconnect()
}

func (d *Device) linkLost(conn transport.Connection) {
	d.mu.Lock()
	if d.conn != conn {
		d.mu.Unlock()
		return
	}
	old := d.swapLocked(nil)
	d.mu.Unlock()

	d.log.Warn("connection lost")
	abandon(old)
}

func (d *Device) swapLocked(conn transport.Connection) [numCapabilities]any {
	if d.conn == nil && conn != nil {
		monitor.ConnectedDevices.Inc()
	} else if d.conn != nil && conn == nil {
		monitor.ConnectedDevices.Dec()
	}
	old := d.services
	d.conn = conn
	d.services = [numCapabilities]any{}
	if w, ok := conn.(transport.LinkWatcher); ok {
		w.OnLinkLost(func() { d.linkLost(conn) })
	}
	return old
}

// abandon fails the acquisitions of services that belonged to a previous connection.
func abandon(old [numCapabilities]any) {
	if dso, ok := old[CapabilityDso].(*services.DsoService); ok {
		dso.Session().Abort(session.ErrDisconnected)
	}
	if logger, ok := old[CapabilityDataLogger].(*services.DataLoggerService); ok {
		logger.Session().Abort(session.ErrDisconnected)
	}
}

// IsConnected reports whether the device has a connection.
func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// service returns the cached service for capability c, building it on first use.
func service[T any](d *Device, c Capability, build func(transport.Connection, logrus.FieldLogger) *T) (*T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil, fmt.Errorf("%s: %w", c, ErrNotConnected)
	}
	if s, ok := d.services[c].(*T); ok {
		return s, nil
	}
	s := build(d.conn, d.log)
	d.services[c] = s
	return s, nil
}

func (d *Device) Status() (*services.StatusService, error) {
	return service(d, CapabilityStatus, func(conn transport.Connection, log logrus.FieldLogger) *services.StatusService {
		return services.NewStatusService(conn, d.model.StatusServiceUUID(), log)
	})
}

func (d *Device) Calibration() (*services.CalibrationService, error) {
	return service(d, CapabilityCalibration, services.NewCalibrationService)
}

func (d *Device) DeviceInfo() (*services.DeviceInfoService, error) {
	return service(d, CapabilityDeviceInfo, services.NewDeviceInfoService)
}

func (d *Device) Dso() (*services.DsoService, error) {
	return service(d, CapabilityDso, services.NewDsoService)
}

func (d *Device) Multimeter() (*services.MultimeterService, error) {
	return service(d, CapabilityMultimeter, services.NewMultimeterService)
}

func (d *Device) DataLogger() (*services.DataLoggerService, error) {
	return service(d, CapabilityDataLogger, services.NewDataLoggerService)
}

func (d *Device) GenericAccess() (*services.GenericAccessService, error) {
	return service(d, CapabilityGenericAccess, services.NewGenericAccessService)
}
