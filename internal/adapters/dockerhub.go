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
	"context"
	"fmt"

	"github.com/logzio/logzio-api-fetcher/internal/fetch"
	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
)

// dockerHubLoginURL is a var so tests can point the login at a local server.
var dockerHubLoginURL = "https://hub.docker.com/v2/users/login"

// DockerHubConfig holds the DockerHub audit logs manifest fields.
type DockerHubConfig struct {
	Name             string         `mapstructure:"name"`
	URL              string         `mapstructure:"url" validate:"required"`
	User             string         `mapstructure:"dockerhub_user" validate:"required"`
	Token            string         `mapstructure:"dockerhub_token" validate:"required"`
	NextURL          string         `mapstructure:"next_url"`
	DaysBackFetch    int            `mapstructure:"days_back_fetch"`
	AdditionalFields map[string]any `mapstructure:"additional_fields"`
	ScrapeInterval   int            `mapstructure:"scrape_interval" validate:"omitempty,gte=1"`
}

// NewDockerHub builds a fetcher for the DockerHub audit logs API. DockerHub
// issues JWTs from a username/token login; the JWT is cached and renewed only
// after the data call rejects it with a 401.
func NewDockerHub(raw map[string]any) (*fetch.Fetcher, error) {
	var cfg DockerHubConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.DaysBackFetch == 0 {
		cfg.DaysBackFetch = 1
	}

	url := cfg.URL + querySeparator(cfg.URL) +
		"from=" + startFetchDate(cfg.DaysBackFetch, microsLayout) + "&page_size=100"

	f := fetch.NewFetcher(cfg.Name, fetch.Request{
		URL:     url,
		Headers: map[string]string{"Content-Type": "application/json"},
	})
	f.ResponseDataPath = jsonpath.ParsePath("logs")
	f.SetAdditionalFields(cfg.AdditionalFields)
	if cfg.ScrapeInterval > 0 {
		f.ScrapeIntervalMinutes = cfg.ScrapeInterval
	}
	if cfg.NextURL != "" {
		f.NextURL = jsonpath.CompileTemplate(cfg.NextURL)
	}

	login := fetch.NewFetcher(f.Name+" login", fetch.Request{
		Method:  fetch.MethodPost,
		URL:     dockerHubLoginURL,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    fmt.Sprintf(`{"username":%q,"password":%q}`, cfg.User, cfg.Token),
	})
	jwtPath := jsonpath.ParsePath("token")

	var jwt string
	f.BeforeCall = func(ctx context.Context, f *fetch.Fetcher) error {
		if jwt == "" {
			res, err := login.CallOnce(ctx)
			if err != nil {
				return fmt.Errorf("get JWT token: %w", err)
			}
			value, ok := jwtPath.Resolve(res)
			if !ok {
				return fmt.Errorf("get JWT token: login response carries no token")
			}
			jwt = jsonpath.Stringify(value)
		}
		f.Request.Headers["Authorization"] = "Bearer " + jwt
		return nil
	}
	f.OnAuthError = func(f *fetch.Fetcher) {
		jwt = ""
	}
	return f, nil
}
