package config

import (
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/foucault/nvfancontrol/internal/errors"
)

const (
	defaultInterval   = 2
	defaultHysteresis = 2
	defaultPort       = 12125
	defaultDBPath     = "/var/lib/nvfancontrol/telemetry.db"
)

// Config holds every user-facing knob. Values are immutable after Load.
type Config struct {
	// Interval between control ticks in seconds.
	Interval int `mapstructure:"interval"`

	// Hysteresis is the takeover threshold against the observed automatic
	// speed, in percentage points.
	Hysteresis int `mapstructure:"hysteresis"`

	// Force asserts manual control immediately instead of waiting for the
	// firmware's speed to drift from the curve.
	Force bool `mapstructure:"force"`

	// GPU restricts control to one GPU index; negative means all GPUs.
	GPU int `mapstructure:"gpu"`

	// MinSpeed and MaxSpeed clamp every commanded speed.
	MinSpeed int `mapstructure:"min-speed"`
	MaxSpeed int `mapstructure:"max-speed"`

	// FlickerMin and FlickerMax bound the flicker-prevention zone. Both
	// zero disables the filter unless the curve file configures one.
	FlickerMin int `mapstructure:"flicker-min"`
	FlickerMax int `mapstructure:"flicker-max"`

	// CurveFile points at the temperature/speed pair file. Empty uses the
	// built-in default curve.
	CurveFile string `mapstructure:"curve"`

	// Server enables the TCP report server on Port.
	Server bool `mapstructure:"server"`
	Port   int  `mapstructure:"port"`

	// JSON dumps a report line to stdout on every tick.
	JSON bool `mapstructure:"json"`

	Telemetry   bool   `mapstructure:"telemetry"`
	TelemetryDB string `mapstructure:"telemetry-db"`

	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`
}

// Load reads flags and the optional TOML settings file
// (/etc/nvfancontrol.conf, overridable through NVFANCONTROL_CONFIG).
// Flags win over file values.
func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	errFactory := errors.New()
	config := &Config{}

	flags := pflag.NewFlagSet("nvfancontrol", pflag.ContinueOnError)
	flags.IntVar(&config.Interval, "interval", defaultInterval, "Seconds between control ticks")
	flags.IntVar(&config.Hysteresis, "hysteresis", defaultHysteresis, "Takeover threshold in percentage points")
	flags.BoolVarP(&config.Force, "force", "f", false, "Always use the custom curve even if the fan is already spinning on auto mode")
	flags.IntVarP(&config.GPU, "gpu", "g", -1, "GPU index to control (-1 for all)")
	limits := curve.DefaultLimits()
	flags.IntVar(&config.MinSpeed, "min-speed", limits.Min, "Minimum allowed fan speed")
	flags.IntVar(&config.MaxSpeed, "max-speed", limits.Max, "Maximum allowed fan speed")
	flags.IntVar(&config.FlickerMin, "flicker-min", 0, "Lower bound of the flicker prevention zone")
	flags.IntVar(&config.FlickerMax, "flicker-max", 0, "Upper bound of the flicker prevention zone")
	flags.StringVarP(&config.CurveFile, "curve", "c", "", "Path to the fan curve file")
	flags.BoolVar(&config.Server, "server", false, "Enable the TCP report server")
	flags.IntVarP(&config.Port, "port", "t", defaultPort, "TCP report server port")
	flags.BoolVarP(&config.JSON, "json", "j", false, "Print a JSON report line on every tick")
	flags.BoolVar(&config.Telemetry, "telemetry", false, "Record cooler telemetry to a database")
	flags.StringVar(&config.TelemetryDB, "telemetry-db", defaultDBPath, "Telemetry database path")
	flags.BoolVarP(&config.Debug, "debug", "d", false, "Enable debugging mode")
	flags.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")

	if err := flags.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	v := viper.New()
	if path := os.Getenv("NVFANCONTROL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nvfancontrol.conf")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	// Flags take precedence over file values
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			v.Set(f.Name, f.Value.String())
		} else {
			v.SetDefault(f.Name, f.Value.String())
		}
	})

	// Flag values arrive as strings; decode them into the typed fields.
	weaklyTyped := func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}
	if err := v.Unmarshal(config, weaklyTyped); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field consistency that flag parsing cannot.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "interval must be positive")
	}
	if c.Hysteresis < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "hysteresis must not be negative")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errFactory.WithData(errors.ErrInvalidConfig, "port out of range")
	}
	if (c.FlickerMin == 0) != (c.FlickerMax == 0) {
		return errFactory.WithData(errors.ErrInvalidConfig, "flicker bounds must be set together")
	}

	return nil
}

// FlickerConfigured reports whether a flicker zone was requested.
func (c *Config) FlickerConfigured() bool {
	return c.FlickerMin != 0 || c.FlickerMax != 0
}
