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
	"encoding/base64"

	"github.com/logzio/logzio-api-fetcher/internal/fetch"
)

const ciscoTokenURL = "https://visibility.amp.cisco.com/iroh/oauth2/token"

// CiscoXDRConfig holds the Cisco XDR manifest fields. The client credentials
// are exchanged for a bearer token through the IROH OAuth2 endpoint.
type CiscoXDRConfig struct {
	Name             string         `mapstructure:"name"`
	ClientID         string         `mapstructure:"cisco_client_id" validate:"required"`
	ClientPassword   string         `mapstructure:"client_password" validate:"required"`
	DataRequest      map[string]any `mapstructure:"data_request" validate:"required"`
	AdditionalFields map[string]any `mapstructure:"additional_fields"`
	ScrapeInterval   int            `mapstructure:"scrape_interval" validate:"omitempty,gte=1"`
}

// NewCiscoXDR builds a fetcher for the Cisco XDR APIs: a client-credentials
// token request against the IROH endpoint plus the user's data request with
// JSON defaults applied.
func NewCiscoXDR(raw map[string]any) (*fetch.Fetcher, error) {
	var cfg CiscoXDRConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	credentials := cfg.ClientID + ":" + cfg.ClientPassword
	tokenRequest := map[string]any{
		"url":    ciscoTokenURL,
		"method": fetch.MethodPost,
		"headers": map[string]string{
			"Content-Type":  "application/x-www-form-urlencoded",
			"Accept":        "application/json",
			"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials)),
		},
		"body": "grant_type=client_credentials",
	}

	// JSON defaults on the data request; explicit manifest headers win.
	dataRequest := cloneRawConfig(cfg.DataRequest)
	headers := map[string]any{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if configured, ok := dataRequest["headers"].(map[string]any); ok {
		for key, value := range configured {
			headers[key] = value
		}
	}
	dataRequest["headers"] = headers

	f, err := buildOAuth(OAuthConfig{
		Name:             cfg.Name,
		TokenRequest:     tokenRequest,
		DataRequest:      dataRequest,
		AdditionalFields: cfg.AdditionalFields,
		ScrapeInterval:   cfg.ScrapeInterval,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		f.Name = "cisco xdr"
	}
	return f, nil
}
