package command

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mlsorensen/gopokit"
	"github.com/mlsorensen/gopokit/internal/output"
	"github.com/mlsorensen/gopokit/internal/storage"
	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/mock"
	"github.com/mlsorensen/gopokit/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	records []storage.Record
}

func (p *recordingPublisher) Publish(ctx context.Context, r storage.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, r)
	return nil
}

// blockingPublisher holds every Publish until release is closed.
type blockingPublisher struct {
	recordingPublisher
	release chan struct{}
}

func (p *blockingPublisher) Publish(ctx context.Context, r storage.Record) error {
	<-p.release
	return p.recordingPublisher.Publish(ctx, r)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newEnv connects a Pokit Pro simulation and returns an environment writing to buf.
func newEnv(t *testing.T, format output.Format, opts ...mock.Option) (*Env, *mock.Device, *bytes.Buffer) {
	t.Helper()
	dev, err := gopokit.NewDevice(gopokit.FoundDevice{Name: "MOCK"}, nil)
	require.NoError(t, err)
	sim := mock.New(append([]mock.Option{mock.WithModel(gopokit.ModelPokitPro)}, opts...)...)
	dev.SetConnection(sim)
	t.Cleanup(func() { _ = dev.Disconnect() })

	var buf bytes.Buffer
	return &Env{
		Device:      dev,
		Out:         output.New(&buf, format),
		Log:         quietLogger(),
		ScanTimeout: time.Second,
	}, sim, &buf
}

func prepare(t *testing.T, kind Kind, opts Options) Command {
	t.Helper()
	cmd, errs := Prepare(kind, opts, quietLogger())
	require.Empty(t, errs)
	return cmd
}

func TestPrepareErrors(t *testing.T) {
	_, errs := Prepare(Dso, Options{OptMode: "dc v"}, quietLogger())
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "missing required option: range")

	_, errs = Prepare(Dso, Options{
		OptMode:         "dc v",
		OptRange:        "1mV",
		OptSamples:      "lots",
		OptTriggerLevel: "1V",
	}, quietLogger())
	assert.Len(t, errs, 3, "every problem is reported")

	_, errs = Prepare(SetName, Options{OptNewName: "much too long for a pokit"}, quietLogger())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], comms.ErrInvalidName)

	_, errs = Prepare(Calibrate, Options{OptTemperature: "warm"}, quietLogger())
	assert.Len(t, errs, 1)

	_, errs = Prepare(Meter, Options{OptMode: "dc v", OptInterval: "10ms", OptSamples: "some"}, quietLogger())
	require.Len(t, errs, 2)
	assert.ErrorContains(t, errs[0], "invalid interval value:")
	assert.ErrorContains(t, errs[1], "invalid samples value:")

	cmd, errs := Prepare(FlashLed, Options{OptMode: "ignored"}, quietLogger())
	assert.Empty(t, errs)
	assert.NotNil(t, cmd)
}

func TestDsoSettingsFromOptions(t *testing.T) {
	cmd := prepare(t, Dso, Options{
		OptMode:         "ac c",
		OptRange:        "250mA",
		OptInterval:     "2s",
		OptSamples:      "500",
		OptTriggerLevel: "100mA",
		OptTriggerMode:  "rising",
	}).(*dsoCommand)

	assert.Equal(t, comms.DsoSettings{
		Command:         comms.DsoRisingEdgeTrigger,
		TriggerLevel:    0.1,
		Mode:            comms.ModeAcCurrent,
		Range:           comms.Current150mATo300mA,
		SamplingWindow:  2_000_000,
		NumberOfSamples: 500,
	}, cmd.settings)

	_, errs := Prepare(Dso, Options{OptMode: "dc v", OptRange: "8V", OptInterval: "100ms"}, quietLogger())
	assert.Len(t, errs, 1, "windows under 500ms are rejected")
}

func TestDsoRun(t *testing.T) {
	env, sim, buf := newEnv(t, output.CSV)
	pub := &recordingPublisher{}
	env.Publisher = pub

	cmd := prepare(t, Dso, Options{OptMode: "dc v", OptRange: "8V", OptSamples: "25"})
	require.NoError(t, cmd.Run(context.Background(), env))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 26)
	assert.Equal(t, "sample_number,value,unit,range", lines[0])
	assert.True(t, strings.HasPrefix(lines[25], "25,"), lines[25])
	assert.True(t, strings.HasSuffix(lines[1], ",Vdc,6V to 12V"), lines[1])

	require.Len(t, pub.records, 25)
	assert.NotEmpty(t, pub.records[0].Acquisition)
	assert.Equal(t, pub.records[0].Acquisition, pub.records[24].Acquisition)
	assert.Equal(t, "MOCK", pub.records[0].Device)
	assert.Equal(t, "DSO", pub.records[0].Service)

	written := sim.Writes(comms.DsoServiceUUID, comms.DsoSettingsCharUUID)
	require.Len(t, written, 1)
	settings, err := comms.DecodeDsoSettings(written[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(25), settings.NumberOfSamples)
	assert.Equal(t, comms.Voltage6VTo12V, settings.Range)
}

func TestDsoRunCanceled(t *testing.T) {
	env, _, _ := newEnv(t, output.Text, mock.WithInterval(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	cmd := prepare(t, Dso, Options{OptMode: "dc v", OptRange: "8V"})
	assert.ErrorIs(t, cmd.Run(ctx, env), context.DeadlineExceeded)

	dso, err := env.Device.Dso()
	require.NoError(t, err)
	assert.Equal(t, session.AwaitingMetadata, dso.Session().State())
}

func TestMeterRun(t *testing.T) {
	env, sim, buf := newEnv(t, output.Text)
	cmd := prepare(t, Meter, Options{OptMode: "temperature", OptSamples: "1"})
	require.NoError(t, cmd.Run(context.Background(), env))

	assert.True(t, strings.HasSuffix(buf.String(), " °C\n"), buf.String())

	written := sim.Writes(comms.MultimeterServiceUUID, comms.MultimeterSettingsCharUUID)
	require.Len(t, written, 2)
	last, err := comms.DecodeMultimeterSettings(written[1])
	require.NoError(t, err)
	assert.Equal(t, comms.ModeIdle, last.Mode, "the meter is idled on exit")
}

func TestMeterRunUntilCanceled(t *testing.T) {
	env, _, buf := newEnv(t, output.CSV, mock.WithInterval(time.Millisecond))
	cmd := prepare(t, Meter, Options{OptMode: "dc v", OptInterval: "500ms"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.Run(ctx, env))
	assert.True(t, strings.HasPrefix(buf.String(), "mode,value,unit,status,range\ndc voltage,"), buf.String())
}

func TestLoggerCommands(t *testing.T) {
	env, sim, buf := newEnv(t, output.CSV, mock.WithLoggedSamples(12))

	require.NoError(t, prepare(t, LoggerStart, Options{
		OptMode:      "dc v",
		OptRange:     "20V",
		OptInterval:  "10s",
		OptTimestamp: "1700000000",
	}).Run(context.Background(), env))

	written := sim.Writes(comms.LoggerServiceUUID, comms.LoggerSettingsCharUUID)
	require.Len(t, written, 1)
	start, err := comms.DecodeLoggerSettings(written[0])
	require.NoError(t, err)
	assert.Equal(t, comms.Voltage12VTo30V, start.Range)
	assert.Equal(t, uint32(10_000), start.UpdateInterval)
	assert.Equal(t, uint32(1700000000), start.Timestamp)

	require.NoError(t, prepare(t, LoggerFetch, nil).Run(context.Background(), env))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 13)

	require.NoError(t, prepare(t, LoggerStop, nil).Run(context.Background(), env))
	written = sim.Writes(comms.LoggerServiceUUID, comms.LoggerSettingsCharUUID)
	require.Len(t, written, 3)
	assert.Equal(t, byte(comms.LoggerStop), written[2][0])
}

func TestStatusAndInfo(t *testing.T) {
	env, _, buf := newEnv(t, output.Text)

	require.NoError(t, prepare(t, Status, nil).Run(context.Background(), env))
	assert.Contains(t, buf.String(), "Firmware version:      1.4\n")
	assert.Contains(t, buf.String(), "Device status:         Idle (0)\n")

	buf.Reset()
	require.NoError(t, prepare(t, Info, nil).Run(context.Background(), env))
	assert.Contains(t, buf.String(), "Model number:      Pokit Pro\n")
	assert.NotContains(t, buf.String(), "Device address")
}

func TestDeviceSettingCommands(t *testing.T) {
	env, sim, _ := newEnv(t, output.Text)

	require.NoError(t, prepare(t, SetName, Options{OptNewName: "Bench"}).Run(context.Background(), env))
	assert.Equal(t, "Bench", sim.Name())

	require.NoError(t, prepare(t, FlashLed, nil).Run(context.Background(), env))
	assert.Equal(t, 1, sim.Flashes())

	require.NoError(t, prepare(t, Calibrate, Options{OptTemperature: "23.5C"}).Run(context.Background(), env))
	assert.Equal(t, float32(23.5), sim.Temperature())
}

func TestScanVirtual(t *testing.T) {
	var buf bytes.Buffer
	env := &Env{Out: output.New(&buf, output.CSV), Log: quietLogger(), ScanTimeout: time.Second}

	require.NoError(t, prepare(t, Scan, Options{OptPrefix: "MOCK"}).Run(context.Background(), env))
	assert.Equal(t, "device_name,device_address,rssi,virtual\nMOCK,,0,true\n", buf.String())
}

func TestSinkPublishesInBackground(t *testing.T) {
	env, _, buf := newEnv(t, output.Text)
	pub := &blockingPublisher{release: make(chan struct{})}
	env.Publisher = pub

	out := newSink(context.Background(), env, comms.ServiceDso)
	written := make(chan struct{})
	go func() {
		for i := 1; i <= 3; i++ {
			out.reading(session.Reading{Index: i, Value: float64(i), Unit: "Vdc", Mode: comms.ModeDcVoltage})
		}
		close(written)
	}()

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("readings were held up by the publisher")
	}
	require.NoError(t, out.Err())
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))

	close(pub.release)
	out.Close()
	assert.Len(t, pub.records, 3)
	assert.Equal(t, 3, pub.records[2].Index)

	out.reading(session.Reading{Index: 4})
	out.Close()
	assert.Len(t, pub.records, 3, "nothing is queued after Close")
}

func TestDsoRunLinkLost(t *testing.T) {
	env, sim, _ := newEnv(t, output.Text, mock.WithInterval(time.Hour))
	cmd := prepare(t, Dso, Options{OptMode: "dc v", OptRange: "8V"})

	result := make(chan error, 1)
	go func() { result <- cmd.Run(context.Background(), env) }()

	dso, err := env.Device.Dso()
	require.NoError(t, err)
	require.Eventually(t, func() bool { return dso.Session().State() == session.Streaming },
		time.Second, time.Millisecond)

	sim.Drop()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, session.ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("dso kept waiting after the link was lost")
	}
}
