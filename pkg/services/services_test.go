package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/mock"
	"github.com/mlsorensen/gopokit/pkg/services"
	"github.com/mlsorensen/gopokit/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusService(t *testing.T) {
	sim := mock.New()
	status := services.NewStatusService(sim, comms.StatusServiceUUIDMeter, nil)

	chars, err := status.DeviceCharacteristics()
	require.NoError(t, err)
	assert.Equal(t, "1.4", chars.FirmwareVersion.String())
	assert.Equal(t, uint16(60), chars.MaximumVoltage)

	st, err := status.Status()
	require.NoError(t, err)
	assert.Equal(t, comms.DeviceIdle, st.DeviceStatus)
	require.NotNil(t, st.BatteryStatus)

	require.NoError(t, status.SetDeviceName("Bench"))
	name, err := status.DeviceName()
	require.NoError(t, err)
	assert.Equal(t, "Bench", name)
	assert.Equal(t, "Bench", sim.Name())

	assert.ErrorIs(t, status.SetDeviceName("a name that is too long"), comms.ErrInvalidName)
	assert.Len(t, sim.Writes(comms.StatusServiceUUIDMeter, comms.NameCharUUID), 1)

	require.NoError(t, status.FlashLed())
	assert.Equal(t, 1, sim.Flashes())
}

func TestStatusServiceWrongModel(t *testing.T) {
	sim := mock.New()
	status := services.NewStatusService(sim, comms.StatusServiceUUIDPro, nil)
	_, err := status.Status()
	assert.Error(t, err)
}

func TestCalibrationService(t *testing.T) {
	sim := mock.New()
	cal := services.NewCalibrationService(sim, nil)
	require.NoError(t, cal.CalibrateTemperature(22.5))
	assert.Equal(t, float32(22.5), sim.Temperature())
}

func TestDeviceInfoAndGenericAccess(t *testing.T) {
	sim := mock.New(mock.WithName("PokitMeter"))

	info, err := services.NewDeviceInfoService(sim, nil).Info()
	require.NoError(t, err)
	assert.Equal(t, "Pokit Innovations", info.ManufacturerName)
	assert.Equal(t, "Pokit Meter", info.ModelNumber)
	assert.Equal(t, "1.4", info.FirmwareRevision)

	ga := services.NewGenericAccessService(sim, nil)
	name, err := ga.DeviceName()
	require.NoError(t, err)
	assert.Equal(t, "PokitMeter", name)
	appearance, err := ga.Appearance()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), appearance)
}

func TestDsoAcquire(t *testing.T) {
	sim := mock.New()
	dso := services.NewDsoService(sim, nil)

	var readings []session.Reading
	var metadata comms.Metadata
	completed := 0
	settings := comms.DsoSettings{
		Command:         comms.DsoFreeRunning,
		Mode:            comms.ModeDcVoltage,
		Range:           comms.Voltage6VTo12V,
		SamplingWindow:  1_000_000,
		NumberOfSamples: 25,
	}
	err := dso.Acquire(settings, session.Handler{
		OnMetadata: func(md comms.Metadata) { metadata = md },
		OnReading:  func(r session.Reading) { readings = append(readings, r) },
		OnComplete: func(comms.Metadata) { completed++ },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, dso.Session().Wait(ctx))

	assert.Equal(t, 1, completed)
	assert.Equal(t, uint16(25), metadata.NumberOfSamples)
	assert.Equal(t, uint32(25), metadata.SamplingRate)
	require.Len(t, readings, 25)
	assert.Equal(t, 25, readings[24].Index)
	assert.Equal(t, "Vdc", readings[0].Unit)

	written := sim.Writes(comms.DsoServiceUUID, comms.DsoSettingsCharUUID)
	require.Len(t, written, 1)
	assert.Equal(t, comms.EncodeDsoSettings(settings), written[0])

	// A second capture reuses the already enabled notifications.
	require.NoError(t, dso.Acquire(settings, session.Handler{}))
	assert.Equal(t, session.Terminal, dso.Session().State())
}

func TestDsoAcquireRejectsInvalidSettings(t *testing.T) {
	sim := mock.New()
	dso := services.NewDsoService(sim, nil)

	err := dso.Acquire(comms.DsoSettings{Mode: comms.ModeResistance, Range: comms.Resistance0To160}, session.Handler{})
	assert.ErrorIs(t, err, comms.ErrInvalidSettings)
	assert.Empty(t, sim.Writes(comms.DsoServiceUUID, comms.DsoSettingsCharUUID))
}

func TestDsoAcquireBusy(t *testing.T) {
	sim := mock.New()
	dso := services.NewDsoService(sim, nil)
	settings := comms.DsoSettings{Mode: comms.ModeDcCurrent, Range: comms.Current0To10mA, SamplingWindow: 1000, NumberOfSamples: 5}

	// Enable notifications and start streaming by hand.
	require.NoError(t, dso.Acquire(settings, session.Handler{}))
	require.NoError(t, dso.Session().Begin(session.Handler{}))
	md := comms.Metadata{Mode: comms.ModeDcCurrent, Range: comms.Current0To10mA, Scale: 1, NumberOfSamples: 5}
	sim.Notify(comms.DsoServiceUUID, comms.DsoMetadataCharUUID, comms.EncodeDsoMetadata(md))
	require.Equal(t, session.Streaming, dso.Session().State())

	err := dso.Acquire(settings, session.Handler{})
	assert.ErrorIs(t, err, session.ErrBusy)
	assert.Len(t, sim.Writes(comms.DsoServiceUUID, comms.DsoSettingsCharUUID), 1)
}

func TestDsoAcquireWriteFailure(t *testing.T) {
	sim := mock.New()
	dso := services.NewDsoService(sim, nil)
	sim.SetWriteError(errors.New("link lost"))

	err := dso.Acquire(comms.DsoSettings{Mode: comms.ModeDcVoltage, Range: comms.Voltage0To300mV, NumberOfSamples: 1}, session.Handler{})
	assert.ErrorContains(t, err, "link lost")
	assert.Equal(t, session.AwaitingMetadata, dso.Session().State())
}

func TestMultimeter(t *testing.T) {
	sim := mock.New()
	meter := services.NewMultimeterService(sim, nil)

	var got []comms.MultimeterReading
	require.NoError(t, meter.OnReading(func(r comms.MultimeterReading) { got = append(got, r) }))

	require.NoError(t, meter.SetSettings(comms.MultimeterSettings{
		Mode:           comms.ModeDcVoltage,
		Range:          comms.VoltageAutoRange,
		UpdateInterval: 1000,
	}))
	require.Len(t, got, 1)
	assert.Equal(t, comms.ModeDcVoltage, got[0].Mode)
	assert.Equal(t, comms.MeterAutoRangeOn, got[0].Status)
	assert.InDelta(t, 3.3, got[0].Value, 0.01)

	// Malformed notifications are dropped.
	sim.Notify(comms.MultimeterServiceUUID, comms.MultimeterReadingCharUUID, []byte{0x00})
	assert.Len(t, got, 1)

	// The characteristic now holds the malformed value.
	_, err := meter.Reading()
	assert.ErrorIs(t, err, comms.ErrTruncated)

	assert.ErrorIs(t, meter.SetSettings(comms.MultimeterSettings{Mode: comms.ModeDcVoltage, Range: comms.Current0To10mA}), comms.ErrInvalidSettings)
}

func TestDataLogger(t *testing.T) {
	sim := mock.New(mock.WithLoggedSamples(12))
	logger := services.NewDataLoggerService(sim, nil)

	require.NoError(t, logger.Start(comms.LoggerSettings{
		Mode:           comms.ModeDcVoltage,
		Range:          comms.Voltage12VTo30V,
		UpdateInterval: 60_000,
	}))
	written := sim.Writes(comms.LoggerServiceUUID, comms.LoggerSettingsCharUUID)
	require.Len(t, written, 1)
	start, err := comms.DecodeLoggerSettings(written[0])
	require.NoError(t, err)
	assert.Equal(t, comms.LoggerStart, start.Command)
	assert.NotZero(t, start.Timestamp)

	var readings []session.Reading
	require.NoError(t, logger.Fetch(session.Handler{
		OnReading: func(r session.Reading) { readings = append(readings, r) },
	}))
	require.NoError(t, logger.Session().Wait(context.Background()))
	assert.Len(t, readings, 12)

	require.NoError(t, logger.Stop())
	written = sim.Writes(comms.LoggerServiceUUID, comms.LoggerSettingsCharUUID)
	require.Len(t, written, 3)
	assert.Equal(t, byte(comms.LoggerRefresh), written[1][0])
	assert.Equal(t, byte(comms.LoggerStop), written[2][0])

	assert.ErrorIs(t, logger.Start(comms.LoggerSettings{Mode: comms.ModeDcVoltage, Range: comms.Voltage0To300mV}), comms.ErrInvalidSettings)
}

func TestServicesAfterDisconnect(t *testing.T) {
	sim := mock.New()
	status := services.NewStatusService(sim, comms.StatusServiceUUIDMeter, nil)
	require.NoError(t, sim.Disconnect())

	_, err := status.Status()
	assert.ErrorIs(t, err, mock.ErrDisconnected)
}
