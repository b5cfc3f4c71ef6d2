package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/units"
)

type dsoCommand struct {
	settings comms.DsoSettings
}

func newDsoCommand() *dsoCommand {
	return &dsoCommand{settings: comms.DsoSettings{
		Command:         comms.DsoFreeRunning,
		SamplingWindow:  1_000_000,
		NumberOfSamples: 1000,
	}}
}

func (c *dsoCommand) RequiredOptions() []string { return []string{OptMode, OptRange} }

func (c *dsoCommand) SupportedOptions() []string {
	return []string{OptMode, OptRange, OptInterval, OptSamples, OptTriggerLevel, OptTriggerMode}
}

func (c *dsoCommand) ProcessOptions(opts Options) []error {
	mode, err := parseMode(opts[OptMode], comms.ServiceDso)
	if err != nil {
		return []error{err}
	}
	c.settings.Mode = mode

	var errs []error
	if c.settings.Range, err = parseRange(opts[OptRange], mode, false); err != nil {
		errs = append(errs, err)
	}

	if opts.Has(OptTriggerLevel) != opts.Has(OptTriggerMode) {
		errs = append(errs, fmt.Errorf("if either option is provided, then both must be: %s, %s", OptTriggerLevel, OptTriggerMode))
	}
	if opts.Has(OptTriggerLevel) {
		if c.settings.TriggerLevel, err = parseTriggerLevel(opts[OptTriggerLevel], mode); err != nil {
			errs = append(errs, err)
		}
	}
	if opts.Has(OptTriggerMode) {
		if c.settings.Command, err = parseTriggerMode(opts[OptTriggerMode]); err != nil {
			errs = append(errs, err)
		}
	}

	if opts.Has(OptInterval) {
		window, err := units.ParseMicroValue(opts[OptInterval], "s", minDsoWindow)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid interval value: %w", err))
		} else {
			c.settings.SamplingWindow = window
		}
	}

	if opts.Has(OptSamples) {
		if c.settings.NumberOfSamples, err = parseSampleCount(opts[OptSamples]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (c *dsoCommand) Run(ctx context.Context, env *Env) error {
	dso, err := env.Device.Dso()
	if err != nil {
		return err
	}

	env.Log.Infof("sampling %s, with range %s, %d samples over %dus",
		c.settings.Mode, rangeLabel(c.settings.Range), c.settings.NumberOfSamples, c.settings.SamplingWindow)

	out := newSink(ctx, env, comms.ServiceDso)
	defer out.Close()
	if err := dso.Acquire(c.settings, out.handler()); err != nil {
		return err
	}
	if err := dso.Session().Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			dso.Session().Reset()
		}
		return err
	}
	return out.Err()
}

func rangeLabel(r comms.Range) string {
	if r == nil {
		return "N/A"
	}
	return r.String()
}
