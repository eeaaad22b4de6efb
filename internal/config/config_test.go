// Copyright 2024-2025 Logz.io
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestNewConfig(t *testing.T) {
	t.Run("parses apis and a single output", func(t *testing.T) {
		path := writeManifest(t, `
apis:
  - name: source one
    type: general
    url: https://api.example.com/logs
    scrape_interval: 5
logzio:
  url: https://listener.logz.io:8071
  token: abc123
`)
		cfg, err := NewConfig(viper.New(), path)
		require.NoError(t, err)

		require.Len(t, cfg.APIs, 1)
		assert.Equal(t, "source one", cfg.APIs[0]["name"])
		require.Len(t, cfg.Logzio, 1)
		assert.Equal(t, "https://listener.logz.io:8071", cfg.Logzio[0].URL)
		assert.Equal(t, "abc123", cfg.Logzio[0].Token)
		assert.Empty(t, cfg.Logzio[0].Inputs)
	})

	t.Run("parses an output list with input bindings", func(t *testing.T) {
		path := writeManifest(t, `
apis:
  - name: source one
    type: general
    url: https://api.example.com/logs
logzio:
  - token: token-a
    inputs: [source one]
  - url: https://listener-eu.logz.io:8071
    token: token-b
`)
		cfg, err := NewConfig(viper.New(), path)
		require.NoError(t, err)

		require.Len(t, cfg.Logzio, 2)
		assert.Equal(t, []string{"source one"}, cfg.Logzio[0].Inputs)
		assert.Equal(t, "", cfg.Logzio[0].URL)
		assert.Equal(t, "token-b", cfg.Logzio[1].Token)
	})

	t.Run("expands environment variables", func(t *testing.T) {
		t.Setenv("TEST_LOGZIO_TOKEN", "secret-token")
		path := writeManifest(t, `
apis:
  - type: general
    url: https://api.example.com/logs
logzio:
  token: ${TEST_LOGZIO_TOKEN}
`)
		cfg, err := NewConfig(viper.New(), path)
		require.NoError(t, err)
		assert.Equal(t, "secret-token", cfg.Logzio[0].Token)
	})

	t.Run("defaults", func(t *testing.T) {
		path := writeManifest(t, `
apis:
  - type: general
    url: https://api.example.com/logs
logzio:
  token: abc
`)
		cfg, err := NewConfig(viper.New(), path)
		require.NoError(t, err)
		assert.False(t, cfg.Status.Enabled)
		assert.Equal(t, ":8080", cfg.Status.Addr)
		assert.True(t, cfg.Logging.Enabled)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("missing apis is an error", func(t *testing.T) {
		path := writeManifest(t, `
logzio:
  token: abc
`)
		_, err := NewConfig(viper.New(), path)
		assert.Error(t, err)
	})

	t.Run("missing logzio is an error", func(t *testing.T) {
		path := writeManifest(t, `
apis:
  - type: general
    url: https://api.example.com/logs
`)
		_, err := NewConfig(viper.New(), path)
		assert.Error(t, err)
	})

	t.Run("output without token is rejected", func(t *testing.T) {
		path := writeManifest(t, `
apis:
  - type: general
    url: https://api.example.com/logs
logzio:
  url: https://listener.logz.io:8071
`)
		_, err := NewConfig(viper.New(), path)
		assert.Error(t, err)
	})

	t.Run("invalid log level is rejected", func(t *testing.T) {
		path := writeManifest(t, `
apis:
  - type: general
    url: https://api.example.com/logs
logzio:
  token: abc
logging:
  level: loud
`)
		_, err := NewConfig(viper.New(), path)
		assert.Error(t, err)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := NewConfig(viper.New(), "/does/not/exist.yaml")
		assert.Error(t, err)
	})

	t.Run("viper overrides win", func(t *testing.T) {
		path := writeManifest(t, `
apis:
  - type: general
    url: https://api.example.com/logs
logzio:
  token: abc
`)
		v := viper.New()
		v.Set("logging.level", "debug")
		cfg, err := NewConfig(v, path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})
}
