package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	LocationSourceCard = "card"
	LocationSourceGpsd = "gpsd"

	MotionSourceCard = "card"
	MotionSourceGPIO = "gpio"

	VariantA = "a"
	VariantB = "b"
)

type Config struct {
	ConfigFile string `yaml:"-"`
	Variant    string `yaml:"-"`

	ProductUID   string `yaml:"product"`
	SerialNumber string `yaml:"serial_number"`

	CardPort string `yaml:"card_port"`
	CardBaud int    `yaml:"card_baud"`

	LocationSource  string        `yaml:"location_source"`
	GpsdServer      string        `yaml:"gpsd_server"`
	GPSTimeout      time.Duration `yaml:"gps_timeout"`
	GPSPollInterval time.Duration `yaml:"gps_poll_interval"`

	MotionSource string `yaml:"motion_source"`
	GPIOChip     string `yaml:"gpio_chip"`
	GPIOLine     int    `yaml:"gpio_line"`

	WifiInterface string `yaml:"wifi_interface"`

	I2CBus      string        `yaml:"i2c_bus"`
	I2CAddress  uint16        `yaml:"i2c_address"`
	Samples     int           `yaml:"samples"`
	SampleDelay time.Duration `yaml:"sample_delay"`

	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxCycleFailures int           `yaml:"max_cycle_failures"`

	SeaLevelLookup   bool          `yaml:"sea_level_lookup"`
	WeatherRoute     string        `yaml:"weather_route"`
	WeatherAPIKey    string        `yaml:"weather_api_key"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	DefaultLatitude  float64       `yaml:"default_latitude"`
	DefaultLongitude float64       `yaml:"default_longitude"`

	RedisURL    string `yaml:"redis_url"`
	MetricsAddr string `yaml:"metrics_addr"`

	Verbose bool `yaml:"verbose"`
	Debug   bool `yaml:"debug"`
}

// New registers every setting as a flag on fs with its default
func New(fs *pflag.FlagSet) *Config {
	cfg := &Config{}

	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&cfg.Variant, "variant", "", "Preset: a (60s poll, sea-level lookup) or b (fast poll, no sea-level lookup)")

	fs.StringVar(&cfg.ProductUID, "product", "", "Cloud product UID (env TRACKER_PRODUCT_UID)")
	fs.StringVar(&cfg.SerialNumber, "serial-number", "", "Device serial number reported to the cloud")

	fs.StringVar(&cfg.CardPort, "card-port", "/dev/ttyACM0", "Serial port of the cellular module")
	fs.IntVar(&cfg.CardBaud, "card-baud", 9600, "Serial baud rate")

	fs.StringVar(&cfg.LocationSource, "location-source", LocationSourceCard, "Location source: card or gpsd")
	fs.StringVar(&cfg.GpsdServer, "gpsd-server", "localhost:2947", "GPSD server address")
	fs.DurationVar(&cfg.GPSTimeout, "gps-timeout", 100*time.Second, "Maximum wait for a new GPS fix")
	fs.DurationVar(&cfg.GPSPollInterval, "gps-poll-interval", 2*time.Second, "Interval between GPS fix queries")

	fs.StringVar(&cfg.MotionSource, "motion-source", MotionSourceCard, "Motion source: card or gpio")
	fs.StringVar(&cfg.GPIOChip, "gpio-chip", "gpiochip0", "GPIO chip of the motion interrupt line")
	fs.IntVar(&cfg.GPIOLine, "gpio-line", 0, "GPIO line offset of the motion interrupt")

	fs.StringVar(&cfg.WifiInterface, "wifi-interface", "", "Wi-Fi interface to scan (empty: all)")

	fs.StringVar(&cfg.I2CBus, "i2c-bus", "", "I2C bus of the environmental sensor (empty: first bus)")
	fs.Uint16Var(&cfg.I2CAddress, "i2c-address", 0x77, "I2C address of the environmental sensor")
	fs.IntVar(&cfg.Samples, "samples", 50, "Sensor readings per sampling pass")
	fs.DurationVar(&cfg.SampleDelay, "sample-delay", 100*time.Millisecond, "Pause after each sensor reading")

	fs.DurationVar(&cfg.PollInterval, "poll-interval", 60*time.Second, "Motion poll interval")
	fs.IntVar(&cfg.MaxCycleFailures, "max-cycle-failures", 5, "Consecutive failed cycles before exiting")

	fs.BoolVar(&cfg.SeaLevelLookup, "sea-level-lookup", true, "Fetch sea-level pressure before sampling")
	fs.StringVar(&cfg.WeatherRoute, "weather-route", "weatherInfo", "Cloud proxy route for weather lookups")
	fs.StringVar(&cfg.WeatherAPIKey, "weather-key", "", "Weather service API key (env TRACKER_WEATHER_KEY)")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", 120*time.Second, "Maximum wait for a cloud session before a weather lookup")
	fs.Float64Var(&cfg.DefaultLatitude, "default-latitude", 43.05769554337394, "Latitude used for weather lookups without a fix")
	fs.Float64Var(&cfg.DefaultLongitude, "default-longitude", -89.5070545945101, "Longitude used for weather lookups without a fix")

	fs.StringVar(&cfg.RedisURL, "redis-url", "", "Redis URL for the local state mirror (empty disables)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Address for the /metrics endpoint (empty disables)")

	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	fs.BoolVar(&cfg.Debug, "debug", false, "Trace card and D-Bus traffic")

	return cfg
}

// Load resolves the final configuration once fs has been parsed. Precedence, lowest
// first: flag defaults, variant preset, YAML file, environment, explicitly set flags.
func (c *Config) Load(fs *pflag.FlagSet) error {
	explicit := map[string]string{}
	fs.Visit(func(f *pflag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	if err := c.applyVariant(); err != nil {
		return err
	}

	if c.ConfigFile != "" {
		data, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", c.ConfigFile, err)
		}
	}

	if c.ProductUID == "" {
		c.ProductUID = os.Getenv("TRACKER_PRODUCT_UID")
	}
	if c.WeatherAPIKey == "" {
		c.WeatherAPIKey = os.Getenv("TRACKER_WEATHER_KEY")
	}

	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("failed to reapply --%s: %w", name, err)
		}
	}

	return nil
}

func (c *Config) applyVariant() error {
	switch c.Variant {
	case "":
	case VariantA:
		c.PollInterval = 60 * time.Second
		c.SampleDelay = 100 * time.Millisecond
		c.SeaLevelLookup = true
	case VariantB:
		c.PollInterval = 10 * time.Second
		c.SampleDelay = 50 * time.Millisecond
		c.SeaLevelLookup = false
	default:
		return fmt.Errorf("unknown variant %q", c.Variant)
	}
	return nil
}

// Validate checks settings needed to run the tracking loop
func (c *Config) Validate() error {
	var errs []error

	if c.ProductUID == "" {
		errs = append(errs, errors.New("product UID is required"))
	}
	if c.Samples <= 0 {
		errs = append(errs, fmt.Errorf("samples must be positive, got %d", c.Samples))
	}
	if c.SampleDelay < 0 {
		errs = append(errs, fmt.Errorf("sample delay must not be negative, got %v", c.SampleDelay))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %v", c.PollInterval))
	}
	if c.GPSTimeout <= 0 || c.GPSPollInterval <= 0 {
		errs = append(errs, errors.New("gps timeout and poll interval must be positive"))
	}
	if c.MaxCycleFailures <= 0 {
		errs = append(errs, fmt.Errorf("max cycle failures must be positive, got %d", c.MaxCycleFailures))
	}
	if c.SeaLevelLookup && c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect timeout must be positive when sea-level lookup is enabled"))
	}

	switch c.LocationSource {
	case LocationSourceCard, LocationSourceGpsd:
	default:
		errs = append(errs, fmt.Errorf("unknown location source %q", c.LocationSource))
	}
	switch c.MotionSource {
	case MotionSourceCard, MotionSourceGPIO:
	default:
		errs = append(errs, fmt.Errorf("unknown motion source %q", c.MotionSource))
	}

	return errors.Join(errs...)
}
