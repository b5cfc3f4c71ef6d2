package command

import (
	"context"
	"strings"

	"github.com/mlsorensen/gopokit"
)

// scanCommand lists the Pokit devices in range, and any virtual devices.
type scanCommand struct {
	prefixes []string
}

func (c *scanCommand) RequiredOptions() []string  { return nil }
func (c *scanCommand) SupportedOptions() []string { return []string{OptPrefix} }

func (c *scanCommand) ProcessOptions(opts Options) []error {
	for _, p := range strings.Split(opts[OptPrefix], ",") {
		if p = strings.TrimSpace(p); p != "" {
			c.prefixes = append(c.prefixes, p)
		}
	}
	return nil
}

func (c *scanCommand) Run(ctx context.Context, env *Env) error {
	devices, err := gopokit.Scan(env.ScanTimeout, env.Log, c.prefixes...)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		env.Log.Info("no supported devices found, make sure the device is on and in range")
	}
	for _, d := range devices {
		if err := env.Out.Device(d); err != nil {
			return err
		}
	}
	return env.Out.Flush()
}
