package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mlsorensen/gopokit/pkg/comms"
)

type infoCommand struct{ noOptions }

func (c *infoCommand) Run(ctx context.Context, env *Env) error {
	svc, err := env.Device.DeviceInfo()
	if err != nil {
		return err
	}
	info, err := svc.Info()
	if err != nil {
		return fmt.Errorf("failed to read device information: %w", err)
	}
	if err := env.Out.Info(env.Device.Name(), env.Device.Address(), info); err != nil {
		return err
	}
	return env.Out.Flush()
}

type statusCommand struct{ noOptions }

func (c *statusCommand) Run(ctx context.Context, env *Env) error {
	svc, err := env.Device.Status()
	if err != nil {
		return err
	}
	chars, err := svc.DeviceCharacteristics()
	if err != nil {
		return fmt.Errorf("failed to read device characteristics: %w", err)
	}
	status, err := svc.Status()
	if err != nil {
		return fmt.Errorf("failed to read device status: %w", err)
	}
	name, err := svc.DeviceName()
	if err != nil {
		return fmt.Errorf("failed to read device name: %w", err)
	}
	if err := env.Out.Status(name, chars, status); err != nil {
		return err
	}
	return env.Out.Flush()
}

type setNameCommand struct {
	name string
}

func (c *setNameCommand) RequiredOptions() []string  { return []string{OptNewName} }
func (c *setNameCommand) SupportedOptions() []string { return c.RequiredOptions() }

func (c *setNameCommand) ProcessOptions(opts Options) []error {
	name := strings.TrimSpace(opts[OptNewName])
	if _, err := comms.EncodeName(name); err != nil {
		return []error{err}
	}
	c.name = name
	return nil
}

func (c *setNameCommand) Run(ctx context.Context, env *Env) error {
	svc, err := env.Device.Status()
	if err != nil {
		return err
	}
	if err := svc.SetDeviceName(c.name); err != nil {
		return fmt.Errorf("failed to set device name: %w", err)
	}
	env.Log.Infof("device name set to %q, it takes effect after the device restarts", c.name)
	return nil
}

type flashLedCommand struct{ noOptions }

func (c *flashLedCommand) Run(ctx context.Context, env *Env) error {
	svc, err := env.Device.Status()
	if err != nil {
		return err
	}
	if err := svc.FlashLed(); err != nil {
		return fmt.Errorf("failed to flash LED: %w", err)
	}
	env.Log.Info("LED flashed")
	return nil
}

type calibrateCommand struct {
	temperature float32
}

func (c *calibrateCommand) RequiredOptions() []string  { return []string{OptTemperature} }
func (c *calibrateCommand) SupportedOptions() []string { return c.RequiredOptions() }

func (c *calibrateCommand) ProcessOptions(opts Options) []error {
	value := strings.TrimSuffix(strings.TrimSpace(opts[OptTemperature]), "C")
	t, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return []error{fmt.Errorf("invalid temperature value: %s", opts[OptTemperature])}
	}
	c.temperature = float32(t)
	return nil
}

func (c *calibrateCommand) Run(ctx context.Context, env *Env) error {
	svc, err := env.Device.Calibration()
	if err != nil {
		return err
	}
	if err := svc.CalibrateTemperature(c.temperature); err != nil {
		return fmt.Errorf("failed to calibrate temperature: %w", err)
	}
	env.Log.Infof("calibrated to %.1f°C", c.temperature)
	return nil
}
