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

package adapters

import (
	"github.com/logzio/logzio-api-fetcher/internal/fetch"
	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
)

// OAuthConfig binds a token request to a data request. Both are full fetcher
// configurations; the token response paths default to the OAuth2 standard
// fields.
type OAuthConfig struct {
	Name             string         `mapstructure:"name"`
	TokenRequest     map[string]any `mapstructure:"token_request" validate:"required"`
	DataRequest      map[string]any `mapstructure:"data_request" validate:"required"`
	AdditionalFields map[string]any `mapstructure:"additional_fields"`
	ScrapeInterval   int            `mapstructure:"scrape_interval" validate:"omitempty,gte=1"`
	AccessTokenPath  string         `mapstructure:"access_token_path"`
	ExpiresInPath    string         `mapstructure:"expires_in_path"`
}

// NewOAuth builds an OAuth-bound fetcher: the data request plus a token
// manager that refreshes the access token before each data call.
func NewOAuth(raw map[string]any) (*fetch.Fetcher, error) {
	var cfg OAuthConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	return buildOAuth(cfg)
}

func buildOAuth(cfg OAuthConfig) (*fetch.Fetcher, error) {
	data, err := NewGeneral(cfg.DataRequest)
	if err != nil {
		return nil, err
	}
	tokenRequest, err := NewGeneral(cfg.TokenRequest)
	if err != nil {
		return nil, err
	}

	// Data calls carry JSON bodies unless the manifest says otherwise.
	if _, ok := data.Request.Headers["Content-Type"]; !ok {
		data.Request.Headers["Content-Type"] = "application/json"
	}

	token := fetch.NewTokenManager(tokenRequest)
	if cfg.AccessTokenPath != "" {
		token.AccessTokenPath = jsonpath.ParsePath(cfg.AccessTokenPath)
	}
	if cfg.ExpiresInPath != "" {
		token.ExpiresInPath = jsonpath.ParsePath(cfg.ExpiresInPath)
	}
	data.Token = token

	if cfg.Name != "" {
		data.Name = cfg.Name
	}
	data.SetAdditionalFields(cfg.AdditionalFields)
	if cfg.ScrapeInterval > 0 {
		data.ScrapeIntervalMinutes = cfg.ScrapeInterval
	}
	return data, nil
}
