// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gogama/nativehttp/backend"
	"github.com/gogama/nativehttp/request"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := Load()
		require.NoError(t, err)
		assert.Equal(t, BackendDefault, c.Backend)
		assert.Equal(t, backend.DefaultBufferSize, c.BufferSize)
		assert.Equal(t, time.Duration(0), c.Timeout)
		assert.Equal(t, 0, c.Retry.Times)
		assert.Equal(t, 50*time.Millisecond, c.Retry.Base)
		assert.Equal(t, time.Second, c.Retry.Max)
		assert.Equal(t, "info", c.Logging.Level)
		assert.Equal(t, "json", c.Logging.Format)
	})
	t.Run("yaml", func(t *testing.T) {
		path := writeFile(t, "client.yml", `
backend: netengine
timeout: 2s
buffer_size: 4096
user_agent: test/1.0
proxy: http://proxy.test:3128
rate_limit:
  rps: 5
retry:
  times: 3
  base: 100ms
  max: 2s
  retry_after: true
logging:
  level: debug
  format: console
`)
		c, err := Load(WithConfigFile(path))
		require.NoError(t, err)
		assert.Equal(t, BackendNetEngine, c.Backend)
		assert.Equal(t, 2*time.Second, c.Timeout)
		assert.Equal(t, 4096, c.BufferSize)
		assert.Equal(t, "test/1.0", c.UserAgent)
		assert.Equal(t, "http://proxy.test:3128", c.Proxy)
		assert.Equal(t, 5.0, c.RateLimit.RPS)
		assert.Equal(t, 1, c.RateLimit.Burst)
		assert.Equal(t, 3, c.Retry.Times)
		assert.Equal(t, 100*time.Millisecond, c.Retry.Base)
		assert.True(t, c.Retry.RetryAfter)
		assert.Equal(t, "debug", c.Logging.Level)
		assert.Equal(t, "console", c.Logging.Format)
	})
	t.Run("env overrides yaml", func(t *testing.T) {
		path := writeFile(t, "client.yml", "timeout: 2s\nretry:\n  times: 3\n")
		t.Setenv("NATIVEHTTP_TIMEOUT", "750ms")
		t.Setenv("NATIVEHTTP_RETRY_TIMES", "1")
		c, err := Load(WithConfigFile(path))
		require.NoError(t, err)
		assert.Equal(t, 750*time.Millisecond, c.Timeout)
		assert.Equal(t, 1, c.Retry.Times)
	})
	t.Run("env file", func(t *testing.T) {
		path := writeFile(t, ".env", "NATIVEHTTP_USER_AGENT=from-env-file\nNATIVEHTTP_KEEP_ALIVE=45s\n")
		t.Setenv("NATIVEHTTP_KEEP_ALIVE", "10s")
		t.Cleanup(func() {
			_ = os.Unsetenv("NATIVEHTTP_USER_AGENT")
		})
		c, err := Load(WithEnvFile(path))
		require.NoError(t, err)
		assert.Equal(t, "from-env-file", c.UserAgent)
		assert.Equal(t, 10*time.Second, c.KeepAlive)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "none.yml")))
		assert.Error(t, err)
		_, err = Load(WithEnvFile(filepath.Join(t.TempDir(), "none.env")))
		assert.Error(t, err)
	})
	t.Run("invalid", func(t *testing.T) {
		t.Setenv("NATIVEHTTP_BACKEND", "carrier-pigeon")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Config.Backend")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		c := Config{}
		c.ApplyDefaults()
		return c
	}
	testCases := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "Config.Timeout"},
		{"negative buffer", func(c *Config) { c.BufferSize = -1 }, "Config.BufferSize"},
		{"bad proxy", func(c *Config) { c.Proxy = "not a url" }, "Config.Proxy"},
		{"max below base", func(c *Config) { c.Retry.Max = time.Millisecond }, "Config.Retry.Max"},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }, "Config.RateLimit.RPS"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "Config.Logging.Level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "Config.Logging.Format"},
	}
	c := valid()
	require.NoError(t, c.Validate())
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			c := valid()
			testCase.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), testCase.field)
		})
	}
}

func TestConfig_Builder(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := Config{}
		c.ApplyDefaults()
		b, err := c.Builder()
		require.NoError(t, err)
		assert.Nil(t, b.Backend)
		assert.Nil(t, b.RetryPolicy)
		assert.Nil(t, b.RateLimit)
		assert.Nil(t, b.Proxy)
		require.NotNil(t, b.Logger)
	})
	t.Run("everything", func(t *testing.T) {
		c := Config{
			Backend:           BackendNetEngine,
			Timeout:           time.Second,
			UserAgent:         "ua",
			Proxy:             "http://proxy.test:8080",
			DisablePersistent: true,
			RateLimit:         RateLimit{RPS: 10, Burst: 2},
			Retry:             Retry{Times: 2, RetryAfter: true},
		}
		c.ApplyDefaults()
		b, err := c.Builder()
		require.NoError(t, err)
		require.NotNil(t, b.Backend)
		assert.Equal(t, BackendNetEngine, b.Backend.Name())
		assert.Equal(t, time.Second, b.Timeout)
		assert.Equal(t, "ua", b.UserAgent)
		assert.Equal(t, "proxy.test:8080", b.Proxy.Host)
		assert.True(t, b.DisablePersistent)
		require.NotNil(t, b.RateLimit)
		assert.Equal(t, 2, b.RateLimit.Burst())
		require.NotNil(t, b.RetryPolicy)
		assert.True(t, b.RetryPolicy.Decide(&request.Execution{StatusCode: 503}))
		assert.False(t, b.RetryPolicy.Decide(&request.Execution{StatusCode: 503, Attempt: 2}))

		cl, err := b.Build()
		require.NoError(t, err)
		assert.Equal(t, BackendNetEngine, cl.Backend())
		assert.NoError(t, cl.Close())
	})
	t.Run("invalid", func(t *testing.T) {
		c := Config{}
		_, err := c.Builder()
		assert.Error(t, err)
	})
}

func TestConfig_Logger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		c := Config{Logging: Logging{Level: "warn", Format: "json", Output: &buf}}
		log, err := c.Logger()
		require.NoError(t, err)
		log.Info().Msg("hidden")
		log.Warn().Str("k", "v").Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), `"k":"v"`)
		assert.Contains(t, buf.String(), `"message":"shown"`)
	})
	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		c := Config{Logging: Logging{Level: "debug", Format: "console", Output: &buf}}
		log, err := c.Logger()
		require.NoError(t, err)
		log.Debug().Msg("pretty")
		assert.Contains(t, buf.String(), "pretty")
		assert.NotContains(t, buf.String(), `"message"`)
	})
	t.Run("bad level", func(t *testing.T) {
		c := Config{Logging: Logging{Level: "loud"}}
		_, err := c.Logger()
		assert.Error(t, err)
	})
}
