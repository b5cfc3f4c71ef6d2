// Package command implements the pokit CLI commands. Each command checks and converts its
// options before touching the device, so invalid input never causes a partial write.
package command

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mlsorensen/gopokit"
	"github.com/mlsorensen/gopokit/internal/output"
	"github.com/mlsorensen/gopokit/internal/storage"
	"github.com/sirupsen/logrus"
)

type Kind int

const (
	Info Kind = iota
	Status
	Meter
	Dso
	LoggerStart
	LoggerStop
	LoggerFetch
	Scan
	SetName
	FlashLed
	Calibrate
)

var kindNames = []struct {
	kind Kind
	name string
}{
	{Info, "info"},
	{Status, "status"},
	{Meter, "meter"},
	{Dso, "dso"},
	{LoggerStart, "logger-start"},
	{LoggerStop, "logger-stop"},
	{LoggerFetch, "logger-fetch"},
	{Scan, "scan"},
	{SetName, "set-name"},
	{FlashLed, "flash-led"},
	{Calibrate, "calibrate"},
}

func (k Kind) String() string {
	for _, n := range kindNames {
		if n.kind == k {
			return n.name
		}
	}
	return fmt.Sprintf("Unknown Command (%d)", int(k))
}

// ParseKind looks up a command by its CLI name.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range kindNames {
		if n.name == name {
			return n.kind, nil
		}
	}
	return 0, fmt.Errorf("unknown command: %s", name)
}

// Names lists every command name, in help order.
func Names() []string {
	names := make([]string, len(kindNames))
	for i, n := range kindNames {
		names[i] = n.name
	}
	return names
}

// Option names.
const (
	OptMode         = "mode"
	OptRange        = "range"
	OptInterval     = "interval"
	OptSamples      = "samples"
	OptTriggerLevel = "trigger-level"
	OptTriggerMode  = "trigger-mode"
	OptNewName      = "new-name"
	OptTemperature  = "temperature"
	OptTimestamp    = "timestamp"
	OptPrefix       = "prefix"
)

// Options holds the options given on the command line. A key is present only when the
// option was set.
type Options map[string]string

func (o Options) Has(name string) bool {
	_, ok := o[name]
	return ok
}

// Publisher receives every reading a command produces.
type Publisher interface {
	Publish(ctx context.Context, r storage.Record) error
}

// Env is what a command runs against.
type Env struct {
	Device      *gopokit.Device // nil for Scan
	Out         *output.Writer
	Publisher   Publisher // optional
	Log         logrus.FieldLogger
	ScanTimeout time.Duration
}

type Command interface {
	// RequiredOptions names the options that must be given.
	RequiredOptions() []string
	// SupportedOptions names the options that may be given, required ones included.
	SupportedOptions() []string
	// ProcessOptions checks and converts opts, returning every problem found.
	ProcessOptions(opts Options) []error
	Run(ctx context.Context, env *Env) error
}

// New returns the command of the given kind.
func New(kind Kind) (Command, error) {
	switch kind {
	case Info:
		return &infoCommand{}, nil
	case Status:
		return &statusCommand{}, nil
	case Meter:
		return newMeterCommand(), nil
	case Dso:
		return newDsoCommand(), nil
	case LoggerStart:
		return newLoggerStartCommand(), nil
	case LoggerStop:
		return &loggerStopCommand{}, nil
	case LoggerFetch:
		return &loggerFetchCommand{}, nil
	case Scan:
		return &scanCommand{}, nil
	case SetName:
		return &setNameCommand{}, nil
	case FlashLed:
		return &flashLedCommand{}, nil
	case Calibrate:
		return &calibrateCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown command kind %d", int(kind))
	}
}

// NeedsDevice reports whether commands of this kind talk to a device.
func NeedsDevice(kind Kind) bool {
	return kind != Scan
}

// Prepare creates the command and processes opts. Missing required options are errors;
// unsupported ones are logged and ignored.
func Prepare(kind Kind, opts Options, log logrus.FieldLogger) (Command, []error) {
	cmd, err := New(kind)
	if err != nil {
		return nil, []error{err}
	}

	var errs []error
	for _, name := range cmd.RequiredOptions() {
		if !opts.Has(name) {
			errs = append(errs, fmt.Errorf("missing required option: %s", name))
		}
	}
	supported := cmd.SupportedOptions()
	for name := range opts {
		if !slices.Contains(supported, name) {
			log.Warnf("ignoring option not supported by %s: %s", kind, name)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if errs := cmd.ProcessOptions(opts); len(errs) > 0 {
		return nil, errs
	}
	return cmd, nil
}

// noOptions is embedded by commands that take no options.
type noOptions struct{}

func (noOptions) RequiredOptions() []string      { return nil }
func (noOptions) SupportedOptions() []string     { return nil }
func (noOptions) ProcessOptions(Options) []error { return nil }
