// Package gopokit talks to Pokit Meter and Pokit Pro Bluetooth LE multimeters.
//
// A Device is created from a FoundDevice (see Scan) and gives access to the device's
// services: status, calibration, device info, DSO, multimeter, data logger and generic access.
package gopokit

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/transport"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// ErrUnknownDevice is returned when no registered driver matches a device name.
var ErrUnknownDevice = errors.New("no implementation found for device")

// Model is a Pokit hardware model.
type Model uint8

const (
	ModelUnknown Model = iota
	ModelPokitMeter
	ModelPokitPro
)

func (m Model) String() string {
	switch m {
	case ModelPokitMeter:
		return "Pokit Meter"
	case ModelPokitPro:
		return "Pokit Pro"
	default:
		return "Unknown"
	}
}

// StatusServiceUUID returns the UUID of the model's status service.
func (m Model) StatusServiceUUID() bluetooth.UUID {
	if m == ModelPokitPro {
		return comms.StatusServiceUUIDPro
	}
	return comms.StatusServiceUUIDMeter
}

// --- Implementation Registry ---

// Dialer opens a connection to a discovered device.
type Dialer func(device *FoundDevice, log logrus.FieldLogger) (transport.Connection, error)

type driver struct {
	model   Model
	dial    Dialer
	virtual bool
}

var (
	registry = make(map[string]driver)
	regLock  = sync.RWMutex{}
)

func init() {
	Register("PokitMeter", ModelPokitMeter, dialBLE)
	Register("PokitPro", ModelPokitPro, dialBLE)
}

// Register makes a device model available by its advertised name prefix.
// For example, a device named "PokitPro-A23B" matches a registered "PokitPro" prefix.
func Register(namePrefix string, model Model, dial Dialer) {
	register(namePrefix, driver{model: model, dial: dial})
}

// RegisterVirtual registers a device that is never advertised over BLE, such as a simulator.
// Scan reports one FoundDevice named namePrefix for it.
func RegisterVirtual(namePrefix string, model Model, dial Dialer) {
	register(namePrefix, driver{model: model, dial: dial, virtual: true})
}

func register(namePrefix string, d driver) {
	regLock.Lock()
	defer regLock.Unlock()

	if _, found := registry[namePrefix]; found {
		logrus.Warnf("device implementation for prefix '%s' is being overwritten", namePrefix)
	}
	registry[namePrefix] = d
}

// driverFor finds the registered driver for a device name. The longest matching prefix wins.
func driverFor(name string) (driver, error) {
	regLock.RLock()
	defer regLock.RUnlock()

	best, found := "", false
	for prefix := range registry {
		if strings.HasPrefix(name, prefix) && (!found || len(prefix) > len(best)) {
			best, found = prefix, true
		}
	}
	if !found {
		return driver{}, fmt.Errorf("%w '%s'", ErrUnknownDevice, name)
	}
	return registry[best], nil
}

// VirtualDevices returns a FoundDevice for every registered virtual device.
func VirtualDevices() []FoundDevice {
	regLock.RLock()
	defer regLock.RUnlock()

	var devices []FoundDevice
	for prefix, d := range registry {
		if d.virtual {
			devices = append(devices, FoundDevice{Name: prefix})
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// IsVirtual reports whether name belongs to a registered virtual device.
func IsVirtual(name string) bool {
	d, err := driverFor(name)
	return err == nil && d.virtual
}

func dialBLE(device *FoundDevice, log logrus.FieldLogger) (transport.Connection, error) {
	if err := TryEnableAdapter(); err != nil {
		return nil, err
	}
	return transport.Dial(BTAdapter, device.Address, log)
}
