package mock

import (
	"math"
	"math/rand"
	"time"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"tinygo.org/x/bluetooth"
)

func (d *Device) readDeviceCharacteristics() []byte {
	return comms.EncodeDeviceCharacteristics(comms.DeviceCharacteristics{
		FirmwareVersion:     comms.FirmwareVersion{Major: 1, Minor: 4},
		MaximumVoltage:      60,
		MaximumCurrent:      2,
		MaximumResistance:   1000,
		MaximumSamplingRate: 1000,
		SamplingBufferSize:  8192,
		CapabilityMask:      0x000F,
		MacAddress:          comms.MacAddress{0x5C, 0x02, 0x72, 0x00, 0x00, 0x01},
	})
}

func (d *Device) readStatus() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	battery := comms.BatteryGood
	return comms.EncodeStatus(comms.Status{
		DeviceStatus:   d.deviceStatus,
		BatteryVoltage: d.batteryVoltage,
		BatteryStatus:  &battery,
	})
}

func (d *Device) readName() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return []byte(d.name)
}

func (d *Device) writeName(payload []byte) error {
	if _, err := comms.EncodeName(string(payload)); err != nil {
		return err
	}
	d.mu.Lock()
	d.name = string(payload)
	d.mu.Unlock()
	d.log.Infof("renamed to %q", string(payload))
	return nil
}

func (d *Device) writeFlashLed(payload []byte) error {
	d.mu.Lock()
	d.flashes++
	d.mu.Unlock()
	d.log.Info("LED flashed")
	return nil
}

func (d *Device) writeTemperature(payload []byte) error {
	t, err := comms.DecodeTemperature(payload)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.temperature = t
	d.mu.Unlock()
	return nil
}

func (d *Device) writeMultimeterSettings(payload []byte) error {
	s, err := comms.DecodeMultimeterSettings(payload)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.meterStop != nil {
		close(d.meterStop)
		d.meterStop = nil
	}
	d.deviceStatus = comms.DeviceStatus(s.Mode)
	var stop chan struct{}
	if s.Mode != comms.ModeIdle && d.interval > 0 {
		stop = make(chan struct{})
		d.meterStop = stop
	}
	d.mu.Unlock()

	if s.Mode == comms.ModeIdle {
		return nil
	}
	if stop == nil {
		d.Notify(comms.MultimeterServiceUUID, comms.MultimeterReadingCharUUID, meterReading(s))
		return nil
	}
	go d.simulateMeter(s, stop)
	return nil
}

// simulateMeter is the core loop that generates fake multimeter readings.
func (d *Device) simulateMeter(s comms.MultimeterSettings, stop <-chan struct{}) {
	defer d.log.Debug("multimeter simulation stopped")

	interval := time.Duration(s.UpdateInterval) * time.Millisecond
	if interval <= 0 {
		interval = d.interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		d.Notify(comms.MultimeterServiceUUID, comms.MultimeterReadingCharUUID, meterReading(s))
		select {
		case <-ticker.C:
		case <-stop: // settings replaced
			return
		case <-d.stopChan: // Disconnect() was called
			return
		}
	}
}

// meterReading fabricates a plausible reading for the settings.
func meterReading(s comms.MultimeterSettings) []byte {
	r := comms.MultimeterReading{Status: comms.MeterAutoRangeOff, Mode: s.Mode, Range: s.Range}
	if s.Range != nil && s.Range.Byte() == comms.AutoRange {
		r.Status = comms.MeterAutoRangeOn
	}
	// Add a small random drift
	drift := float32(rand.Float64()-0.5) * 0.01
	switch s.Mode {
	case comms.ModeDcVoltage:
		r.Value = 3.3 + drift
	case comms.ModeAcVoltage:
		r.Value = 230 + drift
	case comms.ModeDcCurrent, comms.ModeAcCurrent:
		r.Value = 0.15 + drift
	case comms.ModeResistance:
		r.Value = 220 + drift
	case comms.ModeDiode:
		r.Value = 0.6 + drift
	case comms.ModeContinuity:
		r.Status = comms.MeterContinuity
	case comms.ModeTemperature:
		r.Value = 21.5 + drift
	}
	return comms.EncodeMultimeterReading(r)
}

func (d *Device) writeDsoSettings(payload []byte) error {
	s, err := comms.DecodeDsoSettings(payload)
	if err != nil {
		return err
	}
	if s.Mode == comms.ModeIdle {
		return nil
	}

	md := comms.Metadata{
		Status:          comms.StatusDone,
		Scale:           scaleFor(s.Range),
		Mode:            s.Mode,
		Range:           s.Range,
		SamplingWindow:  s.SamplingWindow,
		NumberOfSamples: s.NumberOfSamples,
	}
	if s.SamplingWindow > 0 {
		md.SamplingRate = uint32(uint64(s.NumberOfSamples) * 1_000_000 / uint64(s.SamplingWindow))
	}
	samples := waveform(int(s.NumberOfSamples))

	d.mu.Lock()
	d.deviceStatus = comms.DeviceDsoModeSampling
	d.mu.Unlock()

	d.stream(comms.DsoServiceUUID, comms.DsoMetadataCharUUID, comms.DsoReadingCharUUID, comms.EncodeDsoMetadata(md), samples, func() {
		d.mu.Lock()
		d.deviceStatus = comms.DeviceIdle
		d.mu.Unlock()
	})
	return nil
}

func (d *Device) writeLoggerSettings(payload []byte) error {
	s, err := comms.DecodeLoggerSettings(payload)
	if err != nil {
		return err
	}

	switch s.Command {
	case comms.LoggerStart:
		d.mu.Lock()
		d.logger = s
		d.deviceStatus = comms.DeviceLoggerModeSampling
		d.mu.Unlock()
		d.log.Infof("logging %s every %dms", s.Mode, s.UpdateInterval)
	case comms.LoggerStop:
		d.mu.Lock()
		d.deviceStatus = comms.DeviceIdle
		d.mu.Unlock()
	case comms.LoggerRefresh:
		d.mu.Lock()
		settings := d.logger
		n := d.loggedSamples
		d.mu.Unlock()
		if settings.Mode == comms.ModeIdle {
			n = 0
		}
		md := comms.Metadata{
			Status:          comms.StatusSampling,
			Scale:           scaleFor(settings.Range),
			Mode:            settings.Mode,
			Range:           settings.Range,
			SamplingWindow:  settings.UpdateInterval,
			NumberOfSamples: uint16(n),
			Timestamp:       settings.Timestamp,
		}
		d.stream(comms.LoggerServiceUUID, comms.LoggerMetadataCharUUID, comms.LoggerReadingCharUUID, comms.EncodeLoggerMetadata(md), waveform(n), nil)
	}
	return nil
}

// stream sends a metadata notification followed by the samples in reading-sized frames.
func (d *Device) stream(svc, metadataChar, readingChar bluetooth.UUID, metadata []byte, samples []int16, done func()) {
	send := func(pause func() bool) {
		d.Notify(svc, metadataChar, metadata)
		for start := 0; start < len(samples); start += frameSamples {
			if !pause() {
				return
			}
			end := min(start+frameSamples, len(samples))
			d.Notify(svc, readingChar, comms.EncodeSamples(samples[start:end]))
		}
		if done != nil {
			done()
		}
	}

	if d.interval <= 0 {
		send(func() bool { return true })
		return
	}
	go send(func() bool {
		select {
		case <-time.After(d.interval):
			return true
		case <-d.stopChan:
			return false
		}
	})
}

// scaleFor maps the full int16 span onto the range maximum.
func scaleFor(r comms.Range) float32 {
	if r == nil || r.Max() == 0 {
		return 1
	}
	return float32(r.Max()) / 1000 / math.MaxInt16
}

// waveform is one period of a sine wave at half amplitude.
func waveform(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(math.MaxInt16 / 2 * math.Sin(2*math.Pi*float64(i)/float64(n)))
	}
	return samples
}
