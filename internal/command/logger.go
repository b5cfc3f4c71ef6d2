package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mlsorensen/gopokit/pkg/comms"
	"github.com/mlsorensen/gopokit/pkg/units"
)

type loggerStartCommand struct {
	settings comms.LoggerSettings
}

func newLoggerStartCommand() *loggerStartCommand {
	return &loggerStartCommand{settings: comms.LoggerSettings{
		Command:        comms.LoggerStart,
		UpdateInterval: 60_000,
	}}
}

func (c *loggerStartCommand) RequiredOptions() []string { return []string{OptMode, OptRange} }

func (c *loggerStartCommand) SupportedOptions() []string {
	return []string{OptMode, OptRange, OptInterval, OptTimestamp}
}

func (c *loggerStartCommand) ProcessOptions(opts Options) []error {
	mode, err := parseMode(opts[OptMode], comms.ServiceLogger)
	if err != nil {
		return []error{err}
	}
	c.settings.Mode = mode

	var errs []error
	if c.settings.Range, err = parseRange(opts[OptRange], mode, false); err != nil {
		errs = append(errs, err)
	}

	if opts.Has(OptInterval) {
		interval, err := units.ParseMilliValue(opts[OptInterval], "s", minLoggerInterval)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid interval value: %w", err))
		} else {
			c.settings.UpdateInterval = interval
		}
	}

	if opts.Has(OptTimestamp) {
		ts, err := parseTimestamp(opts[OptTimestamp])
		if err != nil {
			errs = append(errs, err)
		} else {
			c.settings.Timestamp = ts
		}
	}
	return errs
}

// parseTimestamp accepts unix seconds or an RFC 3339 time.
func parseTimestamp(text string) (uint32, error) {
	text = strings.TrimSpace(text)
	if secs, err := strconv.ParseUint(text, 10, 32); err == nil {
		return uint32(secs), nil
	}
	t, err := time.Parse(time.RFC3339, text)
	if err != nil || t.Unix() < 0 || t.Unix() > int64(^uint32(0)) {
		return 0, fmt.Errorf("invalid timestamp value: %s", text)
	}
	return uint32(t.Unix()), nil
}

func (c *loggerStartCommand) Run(ctx context.Context, env *Env) error {
	logger, err := env.Device.DataLogger()
	if err != nil {
		return err
	}
	if err := logger.Start(c.settings); err != nil {
		return fmt.Errorf("failed to start data logger: %w", err)
	}
	env.Log.Infof("logging %s with range %s every %dms", c.settings.Mode, rangeLabel(c.settings.Range), c.settings.UpdateInterval)
	return nil
}

type loggerStopCommand struct{ noOptions }

func (c *loggerStopCommand) Run(ctx context.Context, env *Env) error {
	logger, err := env.Device.DataLogger()
	if err != nil {
		return err
	}
	if err := logger.Stop(); err != nil {
		return fmt.Errorf("failed to stop data logger: %w", err)
	}
	env.Log.Info("data logger stopped")
	return nil
}

type loggerFetchCommand struct{ noOptions }

func (c *loggerFetchCommand) Run(ctx context.Context, env *Env) error {
	logger, err := env.Device.DataLogger()
	if err != nil {
		return err
	}

	out := newSink(ctx, env, comms.ServiceLogger)
	defer out.Close()
	if err := logger.Fetch(out.handler()); err != nil {
		return err
	}
	if err := logger.Session().Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Session().Reset()
		}
		return err
	}
	if md, ok := logger.Session().Metadata(); ok {
		env.Log.Infof("fetched %d samples logged since %s", md.NumberOfSamples, time.Unix(int64(md.Timestamp), 0).Format(time.RFC3339))
	}
	return out.Err()
}
