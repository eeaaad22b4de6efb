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

// OnePasswordConfig holds the 1Password Events API manifest fields.
type OnePasswordConfig struct {
	Name             string         `mapstructure:"name"`
	URL              string         `mapstructure:"url" validate:"required"`
	Method           string         `mapstructure:"method" validate:"omitempty,oneof=GET POST"`
	BearerToken      string         `mapstructure:"onepassword_bearer_token" validate:"required"`
	Limit            int            `mapstructure:"onepassword_limit" validate:"omitempty,gte=1,lte=1000"`
	PaginationOff    bool           `mapstructure:"pagination_off"`
	DaysBackFetch    int            `mapstructure:"days_back_fetch"`
	AdditionalFields map[string]any `mapstructure:"additional_fields"`
	ScrapeInterval   int            `mapstructure:"scrape_interval" validate:"omitempty,gte=1"`
}

// NewOnePassword builds a fetcher for the 1Password Events API. The cursor
// lives in the request body: pages chain through the "cursor" field and the
// next tick starts from the newest event's timestamp.
func NewOnePassword(raw map[string]any) (*fetch.Fetcher, error) {
	var cfg OnePasswordConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.Limit == 0 {
		cfg.Limit = 100
	}

	f := fetch.NewFetcher(cfg.Name, fetch.Request{
		Method: cfg.Method,
		URL:    cfg.URL,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + cfg.BearerToken,
		},
	})
	f.ResponseDataPath = jsonpath.ParsePath("items")
	f.SetAdditionalFields(cfg.AdditionalFields)
	if cfg.ScrapeInterval > 0 {
		f.ScrapeIntervalMinutes = cfg.ScrapeInterval
	}

	if err := f.SetBodyField("limit", cfg.Limit); err != nil {
		return nil, err
	}
	if cfg.DaysBackFetch > 0 {
		start := startFetchDate(cfg.DaysBackFetch, microsLayout)
		if err := f.SetBodyField("start_time", start); err != nil {
			return nil, err
		}
	}
	f.NextBody = map[string]any{
		"limit":      cfg.Limit,
		"start_time": "{res.items.[0].timestamp}",
	}

	if !cfg.PaginationOff {
		stop, err := fetch.NewStopPredicate("has_more", fetch.StopConditionEquals, "false")
		if err != nil {
			return nil, err
		}
		f.Pagination = &fetch.PaginationSettings{
			Kind:         fetch.PaginationKindBody,
			BodyTemplate: map[string]any{"cursor": "{res.cursor}"},
			Stop:         stop,
		}
	}

	// The next start_time comes from the final record of the tick rather
	// than the rendered next_body.
	f.AfterTick = advanceBodyStartTime
	return f, nil
}
