package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mlsorensen/gopokit"
	"github.com/mlsorensen/gopokit/internal/command"
	"github.com/mlsorensen/gopokit/internal/config"
	"github.com/mlsorensen/gopokit/internal/output"
	"github.com/mlsorensen/gopokit/internal/storage"
	"github.com/mlsorensen/gopokit/pkg/monitor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	// Registers the virtual "MOCK" device, so every command can be tried without hardware.
	_ "github.com/mlsorensen/gopokit/pkg/mock"
)

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// commandOptions are the flags passed through to the selected command.
var commandOptions = []struct {
	name  string
	usage string
}{
	{command.OptMode, "measurement mode: ac v, dc v, ac c, dc c, res, dio, cont or temp"},
	{command.OptRange, "measurement range, e.g. 8V, 300mA or auto"},
	{command.OptInterval, "update interval for meter and logger, or sampling window for dso, e.g. 1s"},
	{command.OptSamples, "number of samples to acquire"},
	{command.OptTriggerLevel, "dso trigger level, e.g. 1.5V"},
	{command.OptTriggerMode, "dso trigger mode: free, rising or falling"},
	{command.OptNewName, "new device name for set-name"},
	{command.OptTemperature, "ambient temperature in °C for calibrate"},
	{command.OptTimestamp, "logger start time, unix seconds or RFC 3339"},
	{command.OptPrefix, "comma separated device name prefixes for scan"},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("pokit", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	showVersion := fs.Bool("version", false, "print the version and exit")
	debug := fs.Bool("debug", false, "enable debug logging")
	device := fs.String("device", "", "device name or address; MOCK selects the simulated device")
	format := fs.String("output", "", "output format: text, csv or json")
	timeout := fs.Duration("timeout", 0, "device discovery scan timeout")
	for _, o := range commandOptions {
		fs.String(o.name, "", o.usage)
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pokit <command> [options]\n\nCommands: %s\n\nOptions:\n", strings.Join(command.Names(), ", "))
		fs.PrintDefaults()
	}

	// The command may come before or after the options.
	var name string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Printf("pokit v%s (Build: %s)\n", Version, BuildTime)
		return 0
	}
	if name == "" && fs.NArg() > 0 {
		name = fs.Arg(0)
	}
	if name == "" {
		fs.Usage()
		return 2
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v, using defaults\n", err)
		} else {
			cfg = loaded
		}
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *device != "" {
		cfg.Device = *device
	}
	if *format != "" {
		cfg.Output = *format
	}
	if *timeout > 0 {
		cfg.ScanTimeout = *timeout
	}

	log := setupLogger(cfg.Log)

	kind, err := command.ParseKind(name)
	if err != nil {
		log.Error(err)
		return 2
	}
	outFormat, err := output.ParseFormat(cfg.Output)
	if err != nil {
		log.Error(err)
		return 2
	}

	opts := command.Options{}
	fs.Visit(func(f *flag.Flag) {
		for _, o := range commandOptions {
			if o.name == f.Name {
				opts[f.Name] = f.Value.String()
			}
		}
	})
	cmd, errs := command.Prepare(kind, opts, log)
	if len(errs) > 0 {
		for _, err := range errs {
			log.Error(err)
		}
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		if err := monitor.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warnf("failed to register metrics: %v", err)
		}
		srv := monitor.Serve(cfg.Metrics.Addr, log)
		defer srv.Close()
	}

	env := &command.Env{
		Out:         output.New(os.Stdout, outFormat),
		Log:         log,
		ScanTimeout: cfg.ScanTimeout,
	}

	if cfg.Redis.Addr != "" {
		pub, err := storage.NewPublisher(ctx, storage.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
			Encoding: storage.Encoding(cfg.Redis.Encoding),
		}, log)
		if err != nil {
			log.Warnf("publishing disabled: %v", err)
		} else {
			defer pub.Close()
			env.Publisher = pub
		}
	}

	if command.NeedsDevice(kind) {
		dev, err := connect(cfg, log)
		if err != nil {
			log.Error(err)
			return 1
		}
		defer func() {
			if err := dev.Disconnect(); err != nil {
				log.Warnf("disconnect failed: %v", err)
			}
		}()
		env.Device = dev
	}

	if err := cmd.Run(ctx, env); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("%s failed: %v", kind, err)
		return 1
	}
	return 0
}

// connect finds the configured device, or the first device found when none is configured,
// and connects to it.
func connect(cfg *config.Config, log logrus.FieldLogger) (*gopokit.Device, error) {
	var found *gopokit.FoundDevice
	if cfg.Device != "" && gopokit.IsVirtual(cfg.Device) {
		found = &gopokit.FoundDevice{Name: cfg.Device}
	} else {
		log.Infof("scanning for %s", describe(cfg.Device))
		devices, err := gopokit.Scan(cfg.ScanTimeout, log, "PokitMeter", "PokitPro")
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		for i, d := range devices {
			if cfg.Device == "" || strings.EqualFold(d.Name, cfg.Device) || strings.EqualFold(d.ID(), cfg.Device) {
				found = &devices[i]
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("no %s found within %s", describe(cfg.Device), cfg.ScanTimeout)
		}
	}

	dev, err := gopokit.NewDevice(*found, log)
	if err != nil {
		return nil, err
	}
	log.Infof("connecting to %s", dev.Name())
	if err := dev.Connect(); err != nil {
		return nil, err
	}
	return dev, nil
}

func describe(device string) string {
	if device == "" {
		return "any Pokit device"
	}
	return fmt.Sprintf("device %q", device)
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.DateTime,
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
		})
	}
	return log
}
