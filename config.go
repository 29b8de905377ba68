package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"gregoryjjb/eightled/gpio"
	"gregoryjjb/eightled/modes"
)

const ConfigFileName = "eightled.toml"

var ErrValidation = errors.New("invalid config")

// Flags are the command line overrides; zero values mean "not set".
type Flags struct {
	ConfigPath string
	DryRun     bool
	Backend    string
	LogLevel   string
	Host       string
	Port       string
}

// DelayBounds is the delay policy the selectors apply before calling the
// engine. All values are milliseconds.
type DelayBounds struct {
	Default int `toml:"default"`
	Min     int `toml:"min"`
	Max     int `toml:"max"`
}

// Clamp returns ms as a duration, or the default when ms is outside
// [Min, Max]. The bool reports whether ms was accepted.
func (b DelayBounds) Clamp(ms int) (time.Duration, bool) {
	if ms < b.Min || ms > b.Max {
		return time.Duration(b.Default) * time.Millisecond, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

func (b DelayBounds) DefaultDelay() time.Duration {
	return time.Duration(b.Default) * time.Millisecond
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port string `toml:"port"`
}

type MQTTConfig struct {
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	Topic    string `toml:"topic"`
}

type tomlConfig struct {
	Pinout       []int        `toml:"pinout"`
	PwmPin       *int         `toml:"pwm_pin"`
	Backend      string       `toml:"backend"`
	Chip         string       `toml:"chip"`
	ActiveLow    *bool        `toml:"active_low"`
	BlinkRepeat  int          `toml:"blink_repeat"`
	MaxRepeat    int          `toml:"max_repeat"`
	FlowingOutro bool         `toml:"flowing_outro"`
	Delay        DelayBounds  `toml:"delay"`
	Server       ServerConfig `toml:"server"`
	MQTT         MQTTConfig   `toml:"mqtt"`
	LogLevel     string       `toml:"log_level"`
}

// Config is the merged configuration: flags over environment over the
// TOML file over defaults.
type Config struct {
	toml tomlConfig
	path string
}

const DefaultMaxRepeat = 20

// defaultPinout is wiringPi 7,6,5,4,3,2,1,0 in BCM numbering.
var defaultPinout = []int{4, 25, 24, 23, 22, 27, 18, 17}

func defaultTomlConfig() tomlConfig {
	pwm := modes.DefaultPwmPin
	activeLow := true
	return tomlConfig{
		Pinout:      append([]int(nil), defaultPinout...),
		PwmPin:      &pwm,
		Backend:     string(gpio.BackendRpio),
		Chip:        "gpiochip0",
		ActiveLow:   &activeLow,
		BlinkRepeat: modes.DefaultBlinkRepeat,
		MaxRepeat:   DefaultMaxRepeat,
		Delay: DelayBounds{
			Default: 100,
			Min:     10,
			Max:     2000,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "1225",
		},
		MQTT: MQTTConfig{
			ClientID: "eightled",
			Topic:    "eightled",
		},
		LogLevel: "info",
	}
}

func NewConfig(fsys LedFS, flags Flags, getenv func(string) string) (*Config, error) {
	c := &Config{toml: defaultTomlConfig()}

	path, explicit := flags.ConfigPath, flags.ConfigPath != ""
	if !explicit {
		path = getenv("EIGHTLED_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = findConfigFile(fsys)
	}

	if path != "" {
		if err := c.load(fsys, path); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				path = ""
			} else {
				return nil, err
			}
		}
	}
	c.path = path

	c.applyEnv(getenv)
	c.applyFlags(flags)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// findConfigFile looks in the working directory, then the user config
// dir, then /etc. It returns "" when there is nothing to load.
func findConfigFile(fsys LedFS) string {
	candidates := []string{ConfigFileName}
	if home, err := fsys.HomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "eightled", ConfigFileName))
	}
	candidates = append(candidates, filepath.Join("/etc", ConfigFileName))

	for _, candidate := range candidates {
		abs, err := fsys.Abs(candidate)
		if err != nil {
			continue
		}
		if ok, _ := afero.Exists(fsys, abs); ok {
			return abs
		}
	}
	return ""
}

func (c *Config) load(fsys LedFS, path string) error {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &c.toml); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("HOST"); v != "" {
		c.toml.Server.Host = v
	}
	if v := getenv("PORT"); v != "" {
		c.toml.Server.Port = v
	}
	if v := getenv("EIGHTLED_BACKEND"); v != "" {
		c.toml.Backend = v
	}
	if v := getenv("EIGHTLED_LOG_LEVEL"); v != "" {
		c.toml.LogLevel = v
	}
	if v := getenv("EIGHTLED_MQTT_BROKER"); v != "" {
		c.toml.MQTT.Broker = v
	}
	if v := getenv("EIGHTLED_PINOUT"); v != "" {
		var pins []int
		for _, field := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				pins = nil
				break
			}
			pins = append(pins, n)
		}
		if pins != nil {
			c.toml.Pinout = pins
		}
	}
}

func (c *Config) applyFlags(flags Flags) {
	if flags.Backend != "" {
		c.toml.Backend = flags.Backend
	}
	if flags.DryRun {
		c.toml.Backend = string(gpio.BackendSimulated)
	}
	if flags.LogLevel != "" {
		c.toml.LogLevel = flags.LogLevel
	}
	if flags.Host != "" {
		c.toml.Server.Host = flags.Host
	}
	if flags.Port != "" {
		c.toml.Server.Port = flags.Port
	}
}

func (c *Config) validate() error {
	t := c.toml

	if len(t.Pinout) == 0 {
		return fmt.Errorf("%w: pinout cannot be empty", ErrValidation)
	}
	if len(t.Pinout) > modes.MaxPins {
		return fmt.Errorf("%w: pinout has %d pins, at most %d are supported", ErrValidation, len(t.Pinout), modes.MaxPins)
	}
	seen := make(map[int]bool, len(t.Pinout))
	for _, p := range t.Pinout {
		if p < 0 {
			return fmt.Errorf("%w: negative pin %d", ErrValidation, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: pin %d listed twice", ErrValidation, p)
		}
		seen[p] = true
	}

	switch gpio.Backend(t.Backend) {
	case gpio.BackendRpio, gpio.BackendCdev, gpio.BackendSimulated:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrValidation, t.Backend)
	}

	if t.BlinkRepeat < 3 || t.BlinkRepeat > 5 {
		return fmt.Errorf("%w: blink_repeat must be between 3 and 5, got %d", ErrValidation, t.BlinkRepeat)
	}

	if t.MaxRepeat < t.BlinkRepeat {
		return fmt.Errorf("%w: max_repeat must be at least blink_repeat (%d), got %d", ErrValidation, t.BlinkRepeat, t.MaxRepeat)
	}

	d := t.Delay
	if d.Min <= 0 || d.Max < d.Min || d.Default < d.Min || d.Default > d.Max {
		return fmt.Errorf("%w: delay bounds must satisfy 0 < min <= default <= max, got %d <= %d <= %d", ErrValidation, d.Min, d.Default, d.Max)
	}

	return nil
}

// Path is the config file that was loaded, or "" when running on
// defaults.
func (c *Config) Path() string {
	return c.path
}

func (c *Config) Pinout() modes.PinSet {
	return modes.PinSet(append([]int(nil), c.toml.Pinout...))
}

func (c *Config) PwmPin() int {
	return *c.toml.PwmPin
}

func (c *Config) Backend() gpio.Backend {
	return gpio.Backend(c.toml.Backend)
}

func (c *Config) GPIOOptions() gpio.Options {
	return gpio.Options{
		Pins:      c.toml.Pinout,
		PwmPin:    c.PwmPin(),
		ActiveLow: *c.toml.ActiveLow,
		Chip:      c.toml.Chip,
	}
}

func (c *Config) BlinkRepeat() int {
	return c.toml.BlinkRepeat
}

// MaxRepeat caps the blink count a remote caller may ask for, since a
// blink cannot be stopped part way.
func (c *Config) MaxRepeat() int {
	return c.toml.MaxRepeat
}

func (c *Config) FlowingOutro() bool {
	return c.toml.FlowingOutro
}

func (c *Config) Delay() DelayBounds {
	return c.toml.Delay
}

func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.toml.Server.Host, c.toml.Server.Port)
}

func (c *Config) MQTT() MQTTConfig {
	return c.toml.MQTT
}

func (c *Config) LogLevel() string {
	return c.toml.LogLevel
}
