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
	"regexp"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/fetch"
	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
)

// sinceFilterPattern captures the date value of the "since" query parameter.
var sinceFilterPattern = regexp.MustCompile(`since=(\S+?)(?:&|$)`)

// CloudflareConfig holds the Cloudflare-specific manifest fields on top of
// the generic ones.
type CloudflareConfig struct {
	Name             string         `mapstructure:"name"`
	URL              string         `mapstructure:"url" validate:"required"`
	AccountID        string         `mapstructure:"cloudflare_account_id" validate:"required"`
	BearerToken      string         `mapstructure:"cloudflare_bearer_token" validate:"required"`
	NextURL          string         `mapstructure:"next_url"`
	PaginationOff    bool           `mapstructure:"pagination_off"`
	DaysBackFetch    int            `mapstructure:"days_back_fetch"`
	AdditionalFields map[string]any `mapstructure:"additional_fields"`
	ScrapeInterval   int            `mapstructure:"scrape_interval" validate:"omitempty,gte=1"`
}

// NewCloudflare builds a fetcher for the Cloudflare audit and security APIs.
// The "{account_id}" marker in the URLs is replaced with the configured
// account, results come back under "result" and pages advance through the
// "page" query parameter until a page returns no results.
func NewCloudflare(raw map[string]any) (*fetch.Fetcher, error) {
	var cfg CloudflareConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}

	url := strings.ReplaceAll(cfg.URL, "{account_id}", cfg.AccountID)
	if cfg.DaysBackFetch > 0 {
		url += querySeparator(url) + "since=" + startFetchDate(cfg.DaysBackFetch, microsLayout)
	}

	f := fetch.NewFetcher(cfg.Name, fetch.Request{
		URL: url,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + cfg.BearerToken,
		},
	})
	f.ResponseDataPath = jsonpath.ParsePath("result")
	f.SetAdditionalFields(cfg.AdditionalFields)
	if cfg.ScrapeInterval > 0 {
		f.ScrapeIntervalMinutes = cfg.ScrapeInterval
	}
	if cfg.NextURL != "" {
		f.NextURL = jsonpath.CompileTemplate(strings.ReplaceAll(cfg.NextURL, "{account_id}", cfg.AccountID))
	}

	if !cfg.PaginationOff {
		stop, err := fetch.NewStopPredicate("result", fetch.StopConditionEmpty, "")
		if err != nil {
			return nil, err
		}
		f.Pagination = &fetch.PaginationSettings{
			Kind:           fetch.PaginationKindURL,
			URLTemplate:    jsonpath.CompileTemplate(querySeparator(cfg.URL) + "page={res.result_info.page+1}"),
			UpdateFirstURL: true,
			Stop:           stop,
		}
	}

	// Every tick bumps the 'since' filter by one second so the boundary
	// record is not delivered twice.
	f.AdvanceOnEmpty = true
	f.AfterTick = func(f *fetch.Fetcher, _ []any) {
		bumpSinceFilter(f)
	}
	return f, nil
}

func bumpSinceFilter(f *fetch.Fetcher) {
	match := sinceFilterPattern.FindStringSubmatch(f.Request.URL)
	if match == nil {
		return
	}
	bumped, err := plusOneSecond(match[1], microsLayout)
	if err != nil {
		zlog.Error().Msgf("Failed to parse api %s date in URL: %s", f.Name, f.Request.URL)
		return
	}
	f.Request.URL = strings.Replace(f.Request.URL, match[1], bumped, 1)
}

// querySeparator picks "?" or "&" depending on whether the URL already has a
// query string.
func querySeparator(url string) string {
	if strings.Contains(url, "?") {
		return "&"
	}
	return "?"
}
