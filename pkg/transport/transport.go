// Package transport is the narrow BLE surface the Pokit services need: characteristic
// read, write and notify, looked up by service and characteristic UUID.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// ErrCharacteristicNotFound is returned when a device does not expose a requested characteristic.
var ErrCharacteristicNotFound = errors.New("characteristic not found")

// Characteristic is one GATT characteristic of a connected device.
type Characteristic interface {
	Read(data []byte) (int, error)
	Write(p []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

// Connection is an open link to one device.
type Connection interface {
	Characteristic(service, char bluetooth.UUID) (Characteristic, error)
	Disconnect() error
}

// LinkWatcher is implemented by connections that notice the link dropping on its own.
type LinkWatcher interface {
	// OnLinkLost registers fn to be called once if the link is lost. Disconnect does not call it.
	OnLinkLost(fn func())
}

// bleChar writes without response, the way Pokit devices expect commands.
type bleChar struct {
	*bluetooth.DeviceCharacteristic
}

func (c bleChar) Write(p []byte) (int, error) {
	return c.WriteWithoutResponse(p)
}

var _ Characteristic = bleChar{}

// maxValueSize is the largest attribute value BLE allows.
const maxValueSize = 512

// ReadValue reads the whole current value of c.
func ReadValue(c Characteristic) ([]byte, error) {
	buf := make([]byte, maxValueSize)
	n, err := c.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

type charKey struct {
	service bluetooth.UUID
	char    bluetooth.UUID
}

// BLEConnection is a Connection over tinygo bluetooth. Services are discovered lazily, the
// first time one of their characteristics is requested.
type BLEConnection struct {
	device  bluetooth.Device
	address bluetooth.Address
	log     logrus.FieldLogger

	mu    sync.Mutex
	chars map[charKey]bleChar
	found map[bluetooth.UUID]bool
}

var (
	_ Connection  = (*BLEConnection)(nil)
	_ LinkWatcher = (*BLEConnection)(nil)
)

// The adapter has a single connect handler, so link loss is fanned out by address.
var (
	linksMu sync.Mutex
	links   = make(map[string]func())
	watched = make(map[*bluetooth.Adapter]bool)
)

func watch(adapter *bluetooth.Adapter) {
	linksMu.Lock()
	defer linksMu.Unlock()
	if watched[adapter] {
		return
	}
	watched[adapter] = true
	adapter.SetConnectHandler(linkChanged)
}

// linkChanged runs the link-lost callback registered for a device that disconnected.
func linkChanged(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	linksMu.Lock()
	fn := links[device.Address.String()]
	delete(links, device.Address.String())
	linksMu.Unlock()
	if fn != nil {
		go fn()
	}
}

// Dial connects to the device at address using adapter, which must already be enabled.
func Dial(adapter *bluetooth.Adapter, address bluetooth.Address, log logrus.FieldLogger) (*BLEConnection, error) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	log = log.WithField("address", address.String())

	watch(adapter)
	log.Debug("connecting")
	device, err := adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address.String(), err)
	}
	log.Info("connected")

	return &BLEConnection{
		device:  device,
		address: address,
		log:     log,
		chars:   make(map[charKey]bleChar),
		found:   make(map[bluetooth.UUID]bool),
	}, nil
}

// Characteristic returns the characteristic char of service, discovering the service's
// characteristics on first use.
func (c *BLEConnection) Characteristic(service, char bluetooth.UUID) (Characteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := charKey{service: service, char: char}
	if ch, ok := c.chars[key]; ok {
		return ch, nil
	}
	if !c.found[service] {
		if err := c.discover(service); err != nil {
			return nil, err
		}
	}
	if ch, ok := c.chars[key]; ok {
		return ch, nil
	}
	return nil, fmt.Errorf("%w: %s in service %s", ErrCharacteristicNotFound, char.String(), service.String())
}

func (c *BLEConnection) discover(service bluetooth.UUID) error {
	c.log.Debugf("discovering service %s", service.String())
	services, err := c.device.DiscoverServices([]bluetooth.UUID{service})
	if err != nil {
		return fmt.Errorf("could not discover service %s: %w", service.String(), err)
	}
	if len(services) == 0 {
		return fmt.Errorf("%w: service %s not present", ErrCharacteristicNotFound, service.String())
	}

	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("could not discover characteristics of %s: %w", service.String(), err)
		}
		for i := range chars {
			c.chars[charKey{service: service, char: chars[i].UUID()}] = bleChar{&chars[i]}
		}
		c.log.Debugf("service %s has %d characteristics", service.String(), len(chars))
	}
	c.found[service] = true
	return nil
}

// OnLinkLost implements LinkWatcher.
func (c *BLEConnection) OnLinkLost(fn func()) {
	linksMu.Lock()
	defer linksMu.Unlock()
	links[c.address.String()] = fn
}

// Disconnect closes the link.
func (c *BLEConnection) Disconnect() error {
	linksMu.Lock()
	delete(links, c.address.String())
	linksMu.Unlock()

	c.log.Info("disconnecting")
	return c.device.Disconnect()
}
