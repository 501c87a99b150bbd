// Package config loads annul configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ANNUL_"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete configuration.
type Config struct {
	Log         Log         `yaml:"log"`
	Compression Compression `yaml:"compression"`
	Unpack      Unpack      `yaml:"unpack"`
	Fetch       Fetch       `yaml:"fetch"`
	Metrics     Metrics     `yaml:"metrics"`
	Registry    Registry    `yaml:"registry"`
}

// Log configures logging.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Compression configures the container compressor.
type Compression struct {
	// Level is the zstd compression level, 1 to 22.
	Level int `yaml:"level"`

	// DictionaryDir optionally holds dictionaries replacing the embedded ones.
	DictionaryDir string `yaml:"dictionary_dir"`
}

// Unpack configures archive expansion.
type Unpack struct {
	MaxDepth int      `yaml:"max_depth"`
	MaxBytes ByteSize `yaml:"max_bytes"`
}

// Fetch configures downloads.
type Fetch struct {
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	UserAgent string        `yaml:"user_agent"`
}

// Metrics configures metrics output.
type Metrics struct {
	// Textfile is a node-exporter textfile path written at the end of a run.
	Textfile string `yaml:"textfile"`
}

// Registry configures pushing published containers.
type Registry struct {
	// Repository is an OCI repository reference such as
	// "ghcr.io/acme/sources". Empty disables pushing.
	Repository string `yaml:"repository"`
	PlainHTTP  bool   `yaml:"plain_http"`
}

// ByteSize is a byte count that may be written as a human-readable size
// such as "8 GiB".
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	n, err := parseBytes(s)
	if err != nil {
		return err
	}
	*b = n
	return nil
}

// String returns the size in IEC units.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(max(b, 0)))
}

// Set parses s as a size. Together with String and Type it lets a ByteSize
// back a command-line flag.
func (b *ByteSize) Set(s string) error {
	n, err := parseBytes(s)
	if err != nil {
		return err
	}
	*b = n
	return nil
}

// Type names the flag value type.
func (b *ByteSize) Type() string {
	return "size"
}

func parseBytes(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	if n > 1<<63-1 {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return ByteSize(n), nil
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Compression: Compression{
			Level: 8,
		},
		Unpack: Unpack{
			MaxDepth: 16,
			MaxBytes: 8 << 30,
		},
		Fetch: Fetch{
			Timeout:   10 * time.Minute,
			Retries:   4,
			UserAgent: "annul",
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := cfg.decode(f); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv applies ANNUL_* overrides found through lookup, which is
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	num("COMPRESSION_LEVEL", &c.Compression.Level)
	str("COMPRESSION_DICTIONARY_DIR", &c.Compression.DictionaryDir)
	num("UNPACK_MAX_DEPTH", &c.Unpack.MaxDepth)
	if v, ok := lookup(EnvPrefix + "UNPACK_MAX_BYTES"); ok {
		n, err := parseBytes(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sUNPACK_MAX_BYTES: %w", EnvPrefix, err))
		} else {
			c.Unpack.MaxBytes = n
		}
	}
	if v, ok := lookup(EnvPrefix + "FETCH_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFETCH_TIMEOUT: %w", EnvPrefix, err))
		} else {
			c.Fetch.Timeout = d
		}
	}
	num("FETCH_RETRIES", &c.Fetch.Retries)
	str("FETCH_USER_AGENT", &c.Fetch.UserAgent)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)
	str("REGISTRY_REPOSITORY", &c.Registry.Repository)
	if v, ok := lookup(EnvPrefix + "REGISTRY_PLAIN_HTTP"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREGISTRY_PLAIN_HTTP: %w", EnvPrefix, err))
		} else {
			c.Registry.PlainHTTP = b
		}
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q: want text or json", ErrInvalid, c.Log.Format))
	}
	if c.Compression.Level < 1 || c.Compression.Level > 22 {
		errs = append(errs, fmt.Errorf("%w: compression.level %d: want 1 to 22", ErrInvalid, c.Compression.Level))
	}
	if c.Unpack.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("%w: unpack.max_depth %d: want at least 1", ErrInvalid, c.Unpack.MaxDepth))
	}
	if c.Unpack.MaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: unpack.max_bytes must be positive", ErrInvalid))
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: fetch.timeout must not be negative", ErrInvalid))
	}
	if c.Fetch.Retries < 0 {
		errs = append(errs, fmt.Errorf("%w: fetch.retries must not be negative", ErrInvalid))
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	return level, nil
}
