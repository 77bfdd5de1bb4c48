package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"panoptes/internal/instrument"
)

type Config struct {
	// Permissive lets accesses to memory of unknown status through.
	Permissive bool `yaml:"permissive" toml:"permissive"`
	Instrument struct {
		Spaces []string `yaml:"spaces" toml:"spaces"`
	} `yaml:"instrument" toml:"instrument"`
	Cache struct {
		// Dir enables the on-disk tier when set.
		Dir string `yaml:"dir" toml:"dir"`
	} `yaml:"cache" toml:"cache"`
	Log struct {
		Verbosity int    `yaml:"verbosity" toml:"verbosity"`
		File      string `yaml:"file" toml:"file"`
	} `yaml:"log" toml:"log"`
	Metrics struct {
		Listen string `yaml:"listen" toml:"listen"`
	} `yaml:"metrics" toml:"metrics"`
	Driver struct {
		Devices int `yaml:"devices" toml:"devices"`
	} `yaml:"driver" toml:"driver"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var c Config
	c.Instrument.Spaces = []string{"global", "shared", "local"}
	c.Driver.Devices = 1
	return &c
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return nil, fmt.Errorf("%s: failed to parse YAML: %w", path, err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), c)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q", path, filepath.Ext(path))
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ApplyEnv overrides fields from PANOPTES_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PANOPTES_PERMISSIVE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PANOPTES_PERMISSIVE: %w", err)
		}
		c.Permissive = b
	}
	if v, ok := lookup("PANOPTES_SPACES"); ok {
		c.Instrument.Spaces = splitList(v)
	}
	if v, ok := lookup("PANOPTES_CACHE_DIR"); ok {
		c.Cache.Dir = v
	}
	if v, ok := lookup("PANOPTES_LOG_VERBOSITY"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("PANOPTES_LOG_VERBOSITY: %w", err)
		}
		c.Log.Verbosity = n
	}
	return c.Validate()
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if len(c.Instrument.Spaces) == 0 {
		return fmt.Errorf("instrument.spaces: at least one state space is required")
	}
	if _, err := instrument.ParseSpaces(c.Instrument.Spaces); err != nil {
		return fmt.Errorf("instrument.spaces: %w", err)
	}
	if c.Driver.Devices < 0 {
		return fmt.Errorf("driver.devices: must not be negative, got %d", c.Driver.Devices)
	}
	return nil
}

// InstrumentOptions returns the guard policy described by c.
func (c *Config) InstrumentOptions() (instrument.Options, error) {
	spaces, err := instrument.ParseSpaces(c.Instrument.Spaces)
	if err != nil {
		return instrument.Options{}, err
	}
	return instrument.Options{Permissive: c.Permissive, Spaces: spaces}, nil
}

// LogFile returns the log path for commonlog.Configure, nil for stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	return &c.Log.File
}
