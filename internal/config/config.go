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

// Package config reads the YAML manifest: the "apis" input list and the
// "logzio" output block, plus process-wide options. Environment variable
// references in the manifest are expanded before parsing.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// OutputConfig is one Logz.io listener binding. An empty Inputs list binds
// the output to every configured source.
type OutputConfig struct {
	URL    string   `mapstructure:"url"`
	Token  string   `mapstructure:"token" validate:"required"`
	Inputs []string `mapstructure:"inputs"`
}

// Config is the parsed manifest. API entries stay as raw maps here; the
// adapters registry decodes and validates each one by its "type".
type Config struct {
	APIs   []map[string]any `mapstructure:"apis"`
	Logzio []OutputConfig   `mapstructure:"logzio" validate:"dive"`

	// Status server options
	Status struct {
		Enabled bool
		Addr    string `validate:"omitempty,hostname_port"`
		GinMode string `mapstructure:"gin-mode" validate:"omitempty,oneof=debug release"`
	}

	// logging options
	Logging struct {
		// enable logging
		Enabled bool

		// log level
		Level string `validate:"oneof=debug info warn error disabled"`

		// log format
		Format string `validate:"oneof=json pretty"`
	}
}

// Validate config
func (cfg *Config) validate() error {
	return validator.New().Struct(cfg)
}

func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Status.Enabled = false
	cfg.Status.Addr = ":8080"
	cfg.Status.GinMode = "release"
	cfg.Logging.Enabled = true
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

// Custom unmarshaler for the "logzio" block: a single output map is treated
// as a one-element list so both manifest shapes parse.
func outputListDecodeHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.Map {
		return data, nil
	}

	if t != reflect.TypeOf([]OutputConfig{}) {
		return data, nil
	}

	return []interface{}{data}, nil
}

func NewConfig(v *viper.Viper, f string) (*Config, error) {
	if f != "" {
		// read contents
		configBytes, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}

		// expand env vars
		configBytes = []byte(os.ExpandEnv(string(configBytes)))

		// load into viper
		v.SetConfigType(filepath.Ext(f)[1:])
		if err := v.ReadConfig(bytes.NewBuffer(configBytes)); err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()

	// unmarshal
	hookFunc := mapstructure.ComposeDecodeHookFunc(
		outputListDecodeHook,
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hookFunc)); err != nil {
		return nil, err
	}

	// validate config
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if len(cfg.APIs) == 0 {
		return nil, fmt.Errorf("no inputs defined; please make sure your API input is configured under 'apis'")
	}
	if len(cfg.Logzio) == 0 {
		return nil, fmt.Errorf("no outputs defined; please make sure your Logzio config is configured under 'logzio'")
	}

	return cfg, nil
}
