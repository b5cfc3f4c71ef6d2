package command

import (
	"context"
	"fmt"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/units"
)

// meterCommand streams multimeter readings until the requested number has arrived, or
// until the context is canceled when no count was given.
type meterCommand struct {
	settings comms.MultimeterSettings
	samples  int // 0 means until canceled
}

func newMeterCommand() *meterCommand {
	return &meterCommand{settings: comms.MultimeterSettings{UpdateInterval: 1000}}
}

func (c *meterCommand) RequiredOptions() []string { return []string{OptMode} }

func (c *meterCommand) SupportedOptions() []string {
	return []string{OptMode, OptRange, OptInterval, OptSamples}
}

func (c *meterCommand) ProcessOptions(opts Options) []error {
	mode, err := parseMode(opts[OptMode], comms.ServiceMultimeter)
	if err != nil {
		return []error{err}
	}
	c.settings.Mode = mode

	var errs []error
	rangeText := "auto"
	if opts.Has(OptRange) {
		rangeText = opts[OptRange]
	}
	if c.settings.Range, err = parseRange(rangeText, mode, true); err != nil {
		errs = append(errs, err)
	}

	if opts.Has(OptInterval) {
		interval, err := units.ParseMilliValue(opts[OptInterval], "s", minMeterInterval)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid interval value: %w", err))
		} else {
			c.settings.UpdateInterval = interval
		}
	}

	if opts.Has(OptSamples) {
		n, err := units.ParseWholeValue(opts[OptSamples], "S")
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid samples value: %w", err))
		} else {
			c.samples = int(n)
		}
	}
	return errs
}

func (c *meterCommand) Run(ctx context.Context, env *Env) error {
	meter, err := env.Device.Multimeter()
	if err != nil {
		return err
	}

	out := newSink(ctx, env, comms.ServiceMultimeter)
	defer out.Close()
	readings := make(chan comms.MultimeterReading, 16)
	err = meter.OnReading(func(r comms.MultimeterReading) {
		select {
		case readings <- r:
		default:
			env.Log.Warn("output is falling behind, dropping multimeter reading")
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := meter.OnReading(nil); err != nil {
			env.Log.Debugf("failed to detach multimeter readings: %v", err)
		}
	}()

	if err := meter.SetSettings(c.settings); err != nil {
		return err
	}
	defer func() {
		if err := meter.SetSettings(comms.MultimeterSettings{Mode: comms.ModeIdle}); err != nil {
			env.Log.Debugf("failed to idle multimeter: %v", err)
		}
	}()

	count := 0
	for {
		select {
		case <-ctx.Done():
			if c.samples == 0 {
				return out.Err()
			}
			return ctx.Err()
		case r := <-readings:
			out.meter(r)
			count++
			if c.samples > 0 && count >= c.samples {
				return out.Err()
			}
		}
	}
}
