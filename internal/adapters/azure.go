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
	"regexp"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/fetch"
	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
)

const defaultGraphScope = "https://graph.microsoft.com/.default"

// nowDateToken marks the spot in a stored URL that is rewritten to the
// current UTC instant before every call.
const nowDateToken = "NOW_DATE"

// dateFromEndPattern captures the date literal Azure filters keep at the end
// of the URL.
var dateFromEndPattern = regexp.MustCompile(`\S+$`)

// AzureConfig carries the fields shared by the Azure adapters.
type AzureConfig struct {
	Name             string         `mapstructure:"name"`
	TenantID         string         `mapstructure:"azure_ad_tenant_id" validate:"required"`
	ClientID         string         `mapstructure:"azure_ad_client_id" validate:"required"`
	SecretValue      string         `mapstructure:"azure_ad_secret_value" validate:"required"`
	DataRequest      map[string]any `mapstructure:"data_request" validate:"required"`
	DaysBackFetch    int            `mapstructure:"days_back_fetch"`
	DateFilterKey    string         `mapstructure:"date_filter_key"`
	Scope            string         `mapstructure:"scope"`
	AdditionalFields map[string]any `mapstructure:"additional_fields"`
	ScrapeInterval   int            `mapstructure:"scrape_interval" validate:"omitempty,gte=1"`
	AdvanceOnEmpty   bool           `mapstructure:"advance_on_empty"`
}

func (c *AzureConfig) applyDefaults(dateKey string) {
	if c.DaysBackFetch == 0 {
		c.DaysBackFetch = 1
	}
	if c.DateFilterKey == "" {
		c.DateFilterKey = dateKey
	}
	if c.Scope == "" {
		c.Scope = defaultGraphScope
	}
}

// azureTokenRequest builds the client-credentials token call against the
// tenant's Microsoft login endpoint.
func azureTokenRequest(cfg AzureConfig) map[string]any {
	return map[string]any{
		"url":    fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		"method": fetch.MethodPost,
		"headers": map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		"body": fmt.Sprintf("client_id=%s&scope=%s&client_secret=%s&grant_type=client_credentials",
			cfg.ClientID, cfg.Scope, cfg.SecretValue),
	}
}

// NewAzureGraph builds a fetcher for the Microsoft Graph audit APIs.
//
// Example of the URL after initialization:
//
//	https://url/from/input?$filter=createdDateTime gt 2024-05-28T13:08:54Z
//
// Example of next_url after initialization:
//
//	https://url/from/input?$filter=createdDateTime gt {res.value.[0].createdDateTime}
func NewAzureGraph(raw map[string]any) (*fetch.Fetcher, error) {
	var cfg AzureConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults("createdDateTime")

	dataRequest := cloneRawConfig(cfg.DataRequest)
	dataRequest["response_data_path"] = "value"
	dataRequest["pagination"] = map[string]any{
		"type":       "url",
		"url_format": `{res.@odata\.nextLink}`,
		"stop_indication": map[string]any{
			"field":     "value",
			"condition": "empty",
		},
	}

	f, err := buildOAuth(OAuthConfig{
		Name:             cfg.Name,
		TokenRequest:     azureTokenRequest(cfg),
		DataRequest:      dataRequest,
		AdditionalFields: cfg.AdditionalFields,
		ScrapeInterval:   cfg.ScrapeInterval,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		f.Name = "azure graph"
	}

	// Seed the date filter and derive the cursor template from it: the date
	// literal trails the URL, so the next_url simply swaps it for the newest
	// record's timestamp.
	f.Request.URL += fmt.Sprintf("?$filter=%s gt %s", cfg.DateFilterKey,
		startFetchDate(cfg.DaysBackFetch, secondsLayout))
	nextURL := dateFromEndPattern.ReplaceAllString(f.Request.URL,
		fmt.Sprintf("{res.value.[0].%s}", cfg.DateFilterKey))
	f.NextURL = jsonpath.CompileTemplate(nextURL)

	f.AdvanceOnEmpty = cfg.AdvanceOnEmpty
	f.AfterTick = func(f *fetch.Fetcher, _ []any) {
		bumpTrailingURLDate(f, secondsLayout)
	}
	return f, nil
}

// MailReportsConfig extends the Azure config with the end-date filter key
// the Mail Reports API requires.
type MailReportsConfig struct {
	AzureConfig      `mapstructure:",squash"`
	StartDateKey     string `mapstructure:"start_date_filter_key"`
	EndDateFilterKey string `mapstructure:"end_date_filter_key"`
}

// NewAzureMailReports builds a fetcher for the Azure Mail Reports API. The
// URL carries both start and end date literals; the end date is rewritten to
// the current UTC instant before every call.
func NewAzureMailReports(raw map[string]any) (*fetch.Fetcher, error) {
	var cfg MailReportsConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults("StartDate")
	if cfg.StartDateKey != "" {
		cfg.DateFilterKey = cfg.StartDateKey
	}
	if cfg.EndDateFilterKey == "" {
		cfg.EndDateFilterKey = "EndDate"
	}

	dataRequest := cloneRawConfig(cfg.DataRequest)
	dataRequest["response_data_path"] = "d.results"
	dataRequest["pagination"] = map[string]any{
		"type":       "url",
		"url_format": `{res.d.@odata\.nextLink}`,
		"stop_indication": map[string]any{
			"field":     "d.results",
			"condition": "empty",
		},
	}

	f, err := buildOAuth(OAuthConfig{
		Name:             cfg.Name,
		TokenRequest:     azureTokenRequest(cfg.AzureConfig),
		DataRequest:      dataRequest,
		AdditionalFields: cfg.AdditionalFields,
		ScrapeInterval:   cfg.ScrapeInterval,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		f.Name = "azure mail reports"
	}

	// The cursor template reuses the newest record's end date as the next
	// start date; the end date stays symbolic until the pre-request rewrite.
	filter := fmt.Sprintf("?$filter=%s eq datetime '{res.d.results.[0].%s}' and %s eq datetime '%s'",
		cfg.DateFilterKey, cfg.EndDateFilterKey, cfg.EndDateFilterKey, nowDateToken)
	f.NextURL = jsonpath.CompileTemplate(f.Request.URL + filter)

	f.Request.URL += fmt.Sprintf("?$filter=%s eq datetime '%s' and %s eq datetime '%s'",
		cfg.DateFilterKey, startFetchDate(cfg.DaysBackFetch, secondsLayout),
		cfg.EndDateFilterKey, nowDateToken)

	f.BeforeCall = func(_ context.Context, f *fetch.Fetcher) error {
		f.Request.URL = strings.ReplaceAll(f.Request.URL, nowDateToken, nowUTC().Format(secondsLayout))
		return nil
	}
	return f, nil
}

// bumpTrailingURLDate adds one second to the date literal at the end of the
// stored URL so the boundary record is not fetched again.
func bumpTrailingURLDate(f *fetch.Fetcher, layout string) {
	current := dateFromEndPattern.FindString(f.Request.URL)
	bumped, err := plusOneSecond(current, layout)
	if err != nil {
		zlog.Error().Msgf("Failed to parse api %s date in URL: %s", f.Name, f.Request.URL)
		return
	}
	f.Request.URL = dateFromEndPattern.ReplaceAllString(f.Request.URL, bumped)
}

// cloneRawConfig shallow-copies a manifest submap before the adapter injects
// its own settings.
func cloneRawConfig(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		out[key] = value
	}
	return out
}
