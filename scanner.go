package gopokit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// FoundDevice is a device seen while scanning.
type FoundDevice struct {
	Name    string
	Address bluetooth.Address
	RSSI    int
}

// ID returns the device address as a string; virtual devices have an empty address.
func (f FoundDevice) ID() string {
	if f.Address == (bluetooth.Address{}) {
		return ""
	}
	return f.Address.String()
}

// BTAdapter is the adapter used for scanning and connecting.
var BTAdapter = bluetooth.DefaultAdapter

var (
	enableOnce sync.Once
	enableErr  error
)

// TryEnableAdapter enables BTAdapter once; later calls return the first result.
func TryEnableAdapter() error {
	enableOnce.Do(func() {
		logrus.Debug("enabling Bluetooth adapter")
		enableErr = BTAdapter.Enable()
	})
	return enableErr
}

// ScanStream returns a channel that streams FoundDevice as they are discovered
// and stops scanning when the context is canceled.
func ScanStream(ctx context.Context, log logrus.FieldLogger, customPrefixes ...string) (<-chan FoundDevice, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	prefixesToScan := getPrefixes(customPrefixes...)
	if len(prefixesToScan) == 0 {
		return nil, errors.New("no implementations registered and no custom prefixes provided")
	}
	if err := TryEnableAdapter(); err != nil {
		return nil, err
	}

	deviceChan := make(chan FoundDevice)

	// Start the scan goroutine
	go func() {
		defer close(deviceChan)

		log.Infof("starting BLE scan for devices with prefixes: %v", prefixesToScan)

		handler := func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			name := result.LocalName()
			if name == "" {
				return // Ignore packets without a name.
			}
			if !hasAnyPrefix(name, prefixesToScan) {
				return
			}
			select {
			case deviceChan <- FoundDevice{Name: name, Address: result.Address, RSSI: int(result.RSSI)}:
			case <-ctx.Done():
			}
		}

		scanErr := make(chan error, 1)
		go func() {
			scanErr <- BTAdapter.Scan(handler)
		}()

		// Wait for the context to be canceled
		select {
		case <-ctx.Done():
		case err := <-scanErr:
			if err != nil {
				log.Errorf("error starting scan: %v", err)
			}
			return
		}

		// Stop the scan and clean up
		if err := BTAdapter.StopScan(); err != nil {
			log.Warnf("error stopping scan: %v", err)
		}
		<-scanErr
	}()

	return deviceChan, nil
}

// Scan finds devices whose names start with one of the given prefixes (or any registered
// prefix), blocking for duration. Matching virtual devices are always included.
func Scan(duration time.Duration, log logrus.FieldLogger, customPrefixes ...string) ([]FoundDevice, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	prefixesToScan := getPrefixes(customPrefixes...)
	if len(prefixesToScan) == 0 {
		return nil, errors.New("no implementations registered and no custom prefixes provided")
	}

	var results []FoundDevice
	for _, v := range VirtualDevices() {
		if hasAnyPrefix(v.Name, prefixesToScan) {
			results = append(results, v)
		}
	}
	if onlyVirtual(prefixesToScan) {
		return results, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	devices, err := ScanStream(ctx, log, customPrefixes...)
	if err != nil {
		return nil, err
	}

	foundDevices := make(map[string]FoundDevice)
	for device := range devices {
		if _, seen := foundDevices[device.ID()]; !seen {
			log.Debugf("found a match: %s (%s)", device.Name, device.ID())
		}
		foundDevices[device.ID()] = device
	}

	for _, device := range foundDevices {
		results = append(results, device)
	}

	log.Infof("scan finished, found %d matching device(s)", len(results))
	return results, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// onlyVirtual reports whether every prefix belongs to a virtual device, so no radio scan is needed.
func onlyVirtual(prefixes []string) bool {
	for _, p := range prefixes {
		if !IsVirtual(p) {
			return false
		}
	}
	return true
}

// getPrefixes returns customPrefixes, or every registered prefix when none are given.
func getPrefixes(customPrefixes ...string) []string {
	if len(customPrefixes) > 0 {
		return customPrefixes
	}
	regLock.RLock()
	defer regLock.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}
