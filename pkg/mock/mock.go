// Package mock provides a simulated Pokit device that implements transport.Connection.
// It is intended for development and testing when no physical device is available.
package mock

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mlsorensen/gopokit"
	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/transport"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// This init function registers the simulated device with the central registry.
// To use it, you must explicitly import this package.
func init() {
	gopokit.RegisterVirtual("MOCK", gopokit.ModelPokitPro, func(device *gopokit.FoundDevice, log logrus.FieldLogger) (transport.Connection, error) {
		return New(WithName(device.Name), WithModel(gopokit.ModelPokitPro), WithInterval(50*time.Millisecond), WithLogger(log)), nil
	})
}

// ErrDisconnected is returned by every operation after Disconnect.
var ErrDisconnected = errors.New("mock device is disconnected")

var (
	_ transport.Connection  = (*Device)(nil)
	_ transport.LinkWatcher = (*Device)(nil)
)

// frameSamples is how many samples fit in one reading notification.
const frameSamples = 10

type key struct {
	service bluetooth.UUID
	char    bluetooth.UUID
}

// Device is a simulated Pokit Meter or Pokit Pro.
type Device struct {
	log      logrus.FieldLogger
	interval time.Duration
	model    gopokit.Model

	mu             sync.Mutex
	connected      bool
	chars          map[key]*characteristic
	name           string
	deviceStatus   comms.DeviceStatus
	batteryVoltage float32
	temperature    float32
	flashes        int
	writeErr       error
	logger         comms.LoggerSettings
	loggedSamples  int
	linkLost       func()

	// Channels to control the simulation goroutines
	stopChan  chan struct{}
	meterStop chan struct{}
}

// Option configures a Device.
type Option func(*Device)

func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

func WithModel(m gopokit.Model) Option {
	return func(d *Device) { d.model = m }
}

// WithInterval delivers notifications from a background goroutine, pausing between frames.
// Without it every notification is delivered before the triggering write returns.
func WithInterval(interval time.Duration) Option {
	return func(d *Device) { d.interval = interval }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Device) {
		if log != nil {
			d.log = log
		}
	}
}

// WithLoggedSamples sets how many samples a data logger fetch returns.
func WithLoggedSamples(n int) Option {
	return func(d *Device) { d.loggedSamples = n }
}

// New creates a connected simulated device.
func New(opts ...Option) *Device {
	l := logrus.New()
	l.SetOutput(io.Discard)
	d := &Device{
		log:            l,
		model:          gopokit.ModelPokitMeter,
		connected:      true,
		chars:          make(map[key]*characteristic),
		name:           "MOCK",
		batteryVoltage: 3.9,
		loggedSamples:  6,
		stopChan:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithField("device", "mock")
	d.build()
	return d
}

// build lays out the GATT table.
func (d *Device) build() {
	status := d.model.StatusServiceUUID()
	d.add(status, comms.DeviceCharacteristicsCharUUID, nil).readFn = d.readDeviceCharacteristics
	d.add(status, comms.StatusCharUUID, nil).readFn = d.readStatus
	d.add(status, comms.NameCharUUID, d.writeName).readFn = d.readName
	d.add(status, comms.FlashLedCharUUID, d.writeFlashLed)

	d.add(comms.CalibrationServiceUUID, comms.CalibrationTemperatureCharUUID, d.writeTemperature)

	d.add(comms.DeviceInfoServiceUUID, comms.ManufacturerNameCharUUID, nil).value = []byte("Pokit Innovations")
	d.add(comms.DeviceInfoServiceUUID, comms.ModelNumberCharUUID, nil).value = []byte(d.model.String())
	d.add(comms.DeviceInfoServiceUUID, comms.HardwareRevisionCharUUID, nil).value = []byte("1.0")
	d.add(comms.DeviceInfoServiceUUID, comms.FirmwareRevisionCharUUID, nil).value = []byte("1.4")
	d.add(comms.DeviceInfoServiceUUID, comms.SoftwareRevisionCharUUID, nil).value = []byte("1.4")

	d.add(comms.GenericAccessServiceUUID, comms.GenericAccessDeviceNameCharUUID, nil).readFn = d.readName
	d.add(comms.GenericAccessServiceUUID, comms.GenericAccessAppearanceCharUUID, nil).value = []byte{0x00, 0x00}

	d.add(comms.MultimeterServiceUUID, comms.MultimeterSettingsCharUUID, d.writeMultimeterSettings)
	d.add(comms.MultimeterServiceUUID, comms.MultimeterReadingCharUUID, nil)

	d.add(comms.DsoServiceUUID, comms.DsoSettingsCharUUID, d.writeDsoSettings)
	d.add(comms.DsoServiceUUID, comms.DsoMetadataCharUUID, nil)
	d.add(comms.DsoServiceUUID, comms.DsoReadingCharUUID, nil)

	d.add(comms.LoggerServiceUUID, comms.LoggerSettingsCharUUID, d.writeLoggerSettings)
	d.add(comms.LoggerServiceUUID, comms.LoggerMetadataCharUUID, nil)
	d.add(comms.LoggerServiceUUID, comms.LoggerReadingCharUUID, nil)
}

func (d *Device) add(service, char bluetooth.UUID, onWrite func([]byte) error) *characteristic {
	c := &characteristic{dev: d, onWrite: onWrite}
	d.chars[key{service: service, char: char}] = c
	return c
}

// Characteristic implements transport.Connection.
func (d *Device) Characteristic(service, char bluetooth.UUID) (transport.Characteristic, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, ErrDisconnected
	}
	c, ok := d.chars[key{service: service, char: char}]
	if !ok {
		return nil, fmt.Errorf("%w: %s in service %s", transport.ErrCharacteristicNotFound, char.String(), service.String())
	}
	return c, nil
}

// Disconnect stops the simulation.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil // Nothing to do
	}
	d.log.Info("disconnecting")
	close(d.stopChan)
	d.meterStop = nil
	d.connected = false
	d.linkLost = nil
	return nil
}

// OnLinkLost implements transport.LinkWatcher.
func (d *Device) OnLinkLost(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkLost = fn
}

// Drop stops the simulation as if the device went out of range.
func (d *Device) Drop() {
	d.mu.Lock()
	fn := d.linkLost
	d.linkLost = nil
	d.mu.Unlock()

	_ = d.Disconnect()
	if fn != nil {
		fn()
	}
}

// IsConnected reports whether Disconnect has not been called yet.
func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Notify delivers payload as a notification of the given characteristic, as if the device
// had sent it. It is a no-op when notifications are not enabled.
func (d *Device) Notify(service, char bluetooth.UUID, payload []byte) {
	d.mu.Lock()
	c := d.chars[key{service: service, char: char}]
	d.mu.Unlock()
	if c != nil {
		c.notify(payload)
	}
}

// Writes returns every payload written to the characteristic so far.
func (d *Device) Writes(service, char bluetooth.UUID) [][]byte {
	d.mu.Lock()
	c := d.chars[key{service: service, char: char}]
	d.mu.Unlock()
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// SetWriteError makes every subsequent write fail with err; nil restores normal operation.
func (d *Device) SetWriteError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}

// Flashes returns how many times the LED was flashed.
func (d *Device) Flashes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flashes
}

// Temperature returns the last calibration temperature.
func (d *Device) Temperature() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.temperature
}

// Name returns the current device name.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

// characteristic is one simulated GATT characteristic.
type characteristic struct {
	dev     *Device
	onWrite func([]byte) error
	readFn  func() []byte

	mu       sync.Mutex
	value    []byte
	writes   [][]byte
	notifyFn func([]byte)
}

func (c *characteristic) Read(data []byte) (int, error) {
	if !c.dev.IsConnected() {
		return 0, ErrDisconnected
	}
	if c.readFn != nil {
		return copy(data, c.readFn()), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return copy(data, c.value), nil
}

func (c *characteristic) Write(p []byte) (int, error) {
	c.dev.mu.Lock()
	connected, writeErr := c.dev.connected, c.dev.writeErr
	c.dev.mu.Unlock()
	if !connected {
		return 0, ErrDisconnected
	}
	if writeErr != nil {
		return 0, writeErr
	}

	payload := append([]byte(nil), p...)
	c.mu.Lock()
	c.writes = append(c.writes, payload)
	if c.onWrite == nil {
		c.value = payload
	}
	c.mu.Unlock()

	if c.onWrite != nil {
		if err := c.onWrite(payload); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (c *characteristic) EnableNotifications(callback func(buf []byte)) error {
	if !c.dev.IsConnected() {
		return ErrDisconnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifyFn = callback
	return nil
}

func (c *characteristic) notify(payload []byte) {
	c.mu.Lock()
	c.value = payload
	fn := c.notifyFn
	c.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}
