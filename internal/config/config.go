package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the master.
type Config struct {
	Server struct {
		HTTPPort    int    `json:"http_port" validate:"gte=0,lte=65535"`
		MetricsPort int    `json:"metrics_port" validate:"gte=0,lte=65535"`
		APIToken    string `json:"api_token"`
	} `json:"server"`

	Log struct {
		Level string `json:"level" validate:"oneof=debug info warn error"`
		JSON  bool   `json:"json"`
	} `json:"log"`

	Scheduler struct {
		// Timezone is an IANA name; empty means the host's local zone.
		Timezone      string   `json:"timezone"`
		MaxWait       Duration `json:"max_wait" validate:"gte=1s"`
		DispatchRetry Duration `json:"dispatch_retry" validate:"gte=10ms"`
		WakeOnUpdate  bool     `json:"wake_on_update"`
	} `json:"scheduler"`

	Store struct {
		Backend         string   `json:"backend" validate:"oneof=memory sqlite"`
		Path            string   `json:"path" validate:"required_if=Backend sqlite"`
		MaxOpenConns    int      `json:"max_open_conns" validate:"min=1"`
		MaxIdleConns    int      `json:"max_idle_conns" validate:"gte=0,ltefield=MaxOpenConns"`
		ConnMaxLifetime Duration `json:"conn_max_lifetime" validate:"gt=0"`
		ConnMaxIdleTime Duration `json:"conn_max_idle_time" validate:"gt=0"`
		BusyTimeout     Duration `json:"busy_timeout" validate:"gt=0"`
	} `json:"store"`

	Queue struct {
		Backend   string `json:"backend" validate:"oneof=memory redis"`
		Addr      string `json:"addr" validate:"required_if=Backend redis"`
		Password  string `json:"password"`
		DB        int    `json:"db" validate:"gte=0"`
		KeyPrefix string `json:"key_prefix"`
	} `json:"queue"`

	// Callables, when present, restrict submissions to these references.
	Callables []Callable `json:"callables" validate:"dive"`
}

// Callable declares a callable reference and its accepted arguments.
type Callable struct {
	Ref       string   `json:"ref" validate:"required"`
	Params    []string `json:"params"`
	Required  int      `json:"required" validate:"gte=0"`
	VarArgs   bool     `json:"var_args"`
	VarKwargs bool     `json:"var_kwargs"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the configuration used for any field a file leaves out.
func Default() *Config {
	var cfg Config
	cfg.Server.HTTPPort = 8080
	cfg.Server.MetricsPort = 9090
	cfg.Log.Level = "info"
	cfg.Scheduler.MaxWait = Duration{4294967 * time.Second}
	cfg.Scheduler.DispatchRetry = Duration{time.Second}
	cfg.Store.Backend = "memory"
	cfg.Store.MaxOpenConns = 4
	cfg.Store.MaxIdleConns = 2
	cfg.Store.ConnMaxLifetime = Duration{time.Hour}
	cfg.Store.ConnMaxIdleTime = Duration{30 * time.Minute}
	cfg.Store.BusyTimeout = Duration{5 * time.Second}
	cfg.Queue.Backend = "memory"
	cfg.Queue.KeyPrefix = "elric:queue:"
	return &cfg
}

// Load reads configuration from a file and overrides with environment variables.
// An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Location resolves Scheduler.Timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Scheduler.Timezone)
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	// Server overrides
	if v := os.Getenv("ELRIC_HTTP_PORT"); v != "" {
		var err error
		c.Server.HTTPPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing ELRIC_HTTP_PORT: %w", err)
		}
	}
	if v := os.Getenv("ELRIC_METRICS_PORT"); v != "" {
		var err error
		c.Server.MetricsPort, err = parseInt(v)
		if err != nil {
			return fmt.Errorf("parsing ELRIC_METRICS_PORT: %w", err)
		}
	}
	if v := os.Getenv("ELRIC_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}

	// LogLevel overrides
	if v := os.Getenv("ELRIC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	// Store overrides
	if v := os.Getenv("ELRIC_STORE_PATH"); v != "" {
		c.Store.Backend = "sqlite"
		c.Store.Path = v
	}

	// Queue overrides
	if v := os.Getenv("ELRIC_REDIS_ADDR"); v != "" {
		c.Queue.Backend = "redis"
		c.Queue.Addr = v
	}
	if v := os.Getenv("ELRIC_REDIS_PASSWORD"); v != "" {
		c.Queue.Password = v
	}

	// Scheduler overrides
	if v := os.Getenv("ELRIC_TIMEZONE"); v != "" {
		c.Scheduler.Timezone = v
	}

	return nil
}

// validate checks the configuration for errors.
func (c *Config) validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// Additional custom validations
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Scheduler.Timezone, err)
	}
	seen := make(map[string]bool, len(c.Callables))
	for _, cb := range c.Callables {
		if seen[cb.Ref] {
			return fmt.Errorf("callable %s declared twice", cb.Ref)
		}
		seen[cb.Ref] = true
		if cb.Required > len(cb.Params) {
			return fmt.Errorf("callable %s requires %d of %d params", cb.Ref, cb.Required, len(cb.Params))
		}
	}

	return nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
