// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads nativehttp client settings from a YAML file, a
// .env file, and NATIVEHTTP_* environment variables, and turns them
// into a ClientBuilder.
//
// Environment keys are the upper-cased setting path with dots replaced
// by underscores, for example NATIVEHTTP_RETRY_TIMES for retry.times.
// Environment variables override the YAML file. A .env file never
// overrides a variable that is already set.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gogama/nativehttp"
	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/backend/callback"
	"github.com/gogama/nativehttp/native/netengine"
	"github.com/gogama/nativehttp/retry"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "NATIVEHTTP"

// Backend names accepted by Config.Backend.
const (
	BackendDefault   = "default"
	BackendNetEngine = "netengine"
)

// Config holds client settings.
type Config struct {
	// Backend selects the native transport: "default" for the
	// platform's native stack, or "netengine" for the portable engine.
	Backend string `mapstructure:"backend" validate:"oneof=default netengine"`
	// Timeout bounds each native phase of a request. Zero keeps the
	// native defaults.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// BufferSize is the transfer buffer size in bytes.
	BufferSize int `mapstructure:"buffer_size" validate:"gte=0"`
	// UserAgent is sent with requests that do not set one.
	UserAgent string `mapstructure:"user_agent"`
	// KeepAlive is the keep-alive interval of pooled connections.
	KeepAlive time.Duration `mapstructure:"keep_alive" validate:"gte=0"`
	// Proxy is an optional proxy URL.
	Proxy string `mapstructure:"proxy" validate:"omitempty,url"`
	// DisablePersistent stops connection reuse where the backend allows.
	DisablePersistent bool `mapstructure:"disable_persistent"`

	RateLimit RateLimit `mapstructure:"rate_limit"`
	Retry     Retry     `mapstructure:"retry"`
	Logging   Logging   `mapstructure:"logging"`
}

// RateLimit throttles attempts. A zero RPS disables throttling.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps" validate:"gte=0"`
	Burst int     `mapstructure:"burst" validate:"gte=0"`
}

// Retry configures the retry policy Client.Do follows. Zero Times
// means no retries.
type Retry struct {
	Times int           `mapstructure:"times" validate:"gte=0"`
	Base  time.Duration `mapstructure:"base" validate:"gt=0"`
	Max   time.Duration `mapstructure:"max" validate:"gtefield=Base"`
	// RetryAfter makes waits honor a Retry-After response header, up
	// to Max.
	RetryAfter bool `mapstructure:"retry_after"`
}

// Logging configures the client logger.
type Logging struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	// Output receives log lines. It defaults to os.Stderr.
	Output io.Writer `mapstructure:"-" validate:"-"`
}

var defaults = map[string]interface{}{
	"backend":            BackendDefault,
	"timeout":            time.Duration(0),
	"buffer_size":        backend.DefaultBufferSize,
	"user_agent":         "",
	"keep_alive":         time.Duration(0),
	"proxy":              "",
	"disable_persistent": false,
	"rate_limit.rps":     0.0,
	"rate_limit.burst":   0,
	"retry.times":        0,
	"retry.base":         50 * time.Millisecond,
	"retry.max":          time.Second,
	"retry.retry_after":  false,
	"logging.level":      "info",
	"logging.format":     "json",
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendDefault
	}
	if c.BufferSize == 0 {
		c.BufferSize = backend.DefaultBufferSize
	}
	if c.Retry.Base == 0 {
		c.Retry.Base = defaults["retry.base"].(time.Duration)
	}
	if c.Retry.Max == 0 {
		c.Retry.Max = defaults["retry.max"].(time.Duration)
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults["logging.level"].(string)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults["logging.format"].(string)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("nativehttp/config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("nativehttp/config: invalid config: %s", strings.Join(msgs, "; "))
}

type loader struct {
	configFile string
	envFile    string
}

// An Option configures Load.
type Option func(*loader)

// WithConfigFile reads settings from a YAML file.
func WithConfigFile(path string) Option {
	return func(l *loader) { l.configFile = path }
}

// WithEnvFile loads a .env file into the environment before
// environment overrides are read.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// Load reads, defaults, and validates a Config.
func Load(opts ...Option) (*Config, error) {
	var l loader
	for _, opt := range opts {
		opt(&l)
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("nativehttp/config: reading %s: %w", l.configFile, err)
		}
	}
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil {
			return nil, fmt.Errorf("nativehttp/config: loading %s: %w", l.envFile, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("nativehttp/config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Logger builds the logger described by c.Logging.
func (c *Config) Logger() (zerolog.Logger, error) {
	out := c.Logging.Output
	if out == nil {
		out = os.Stderr
	}
	level, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("nativehttp/config: %w", err)
	}
	if c.Logging.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Builder returns a ClientBuilder configured by c. Configs not made by
// Load need ApplyDefaults first.
func (c *Config) Builder() (nativehttp.ClientBuilder, error) {
	if err := c.Validate(); err != nil {
		return nativehttp.ClientBuilder{}, err
	}
	log, err := c.Logger()
	if err != nil {
		return nativehttp.ClientBuilder{}, err
	}
	b := nativehttp.ClientBuilder{
		Timeout:           c.Timeout,
		BufferSize:        c.BufferSize,
		UserAgent:         c.UserAgent,
		KeepAlive:         c.KeepAlive,
		DisablePersistent: c.DisablePersistent,
		Logger:            &log,
	}
	if c.Backend == BackendNetEngine {
		b.Backend = callback.New(BackendNetEngine, netengine.New())
	}
	if c.Proxy != "" {
		if b.Proxy, err = url.Parse(c.Proxy); err != nil {
			return nativehttp.ClientBuilder{}, fmt.Errorf("nativehttp/config: %w", err)
		}
	}
	if c.RateLimit.RPS > 0 {
		b.RateLimit = rate.NewLimiter(rate.Limit(c.RateLimit.RPS), c.RateLimit.Burst)
	}
	if c.Retry.Times > 0 {
		var w retry.Waiter = retry.NewExpWaiter(c.Retry.Base, c.Retry.Max, time.Now())
		if c.Retry.RetryAfter {
			w = retry.NewRetryAfterWaiter(w, c.Retry.Max)
		}
		d := retry.Times(c.Retry.Times).
			And(retry.Replayable).
			And(retry.StatusCode(429, 502, 503, 504).Or(retry.TransientErr))
		b.RetryPolicy = retry.NewPolicy(d, w)
	}
	return b, nil
}
