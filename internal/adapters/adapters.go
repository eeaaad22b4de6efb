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

// Package adapters specializes the generic fetcher engine for concrete
// vendors. An adapter is a constructor that pre-fills the engine
// configuration and optionally installs the pre-request / post-tick hooks;
// vendor URL literals live here, never in the engine.
package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/logzio/logzio-api-fetcher/internal/fetch"
	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
)

// Constructor builds a configured fetcher from one raw manifest entry.
type Constructor func(raw map[string]any) (*fetch.Fetcher, error)

var registry = map[string]Constructor{
	"general":            NewGeneral,
	"oauth":              NewOAuth,
	"azure_graph":        NewAzureGraph,
	"azure_mail_reports": NewAzureMailReports,
	"cloudflare":         NewCloudflare,
	"1password":          NewOnePassword,
	"dockerhub":          NewDockerHub,
	"google_workspace":   NewGoogleWorkspace,
	"google_activity":    NewGoogleWorkspaceActivity,
	"cisco_xdr":          NewCiscoXDR,
}

// Build dispatches a manifest entry to its adapter by the "type" field.
func Build(raw map[string]any) (*fetch.Fetcher, error) {
	apiType, _ := raw["type"].(string)
	if apiType == "" {
		return nil, fmt.Errorf("api entry is missing the 'type' field")
	}
	constructor, ok := registry[apiType]
	if !ok {
		return nil, fmt.Errorf("unknown api type %q", apiType)
	}
	return constructor(raw)
}

// SupportedTypes lists the registered adapter types.
func SupportedTypes() []string {
	types := make([]string, 0, len(registry))
	for apiType := range registry {
		types = append(types, apiType)
	}
	return types
}

// APIConfig carries the manifest fields the generic engine understands.
// Adapter-specific fields are decoded separately by each adapter.
type APIConfig struct {
	Type             string            `mapstructure:"type"`
	Name             string            `mapstructure:"name"`
	URL              string            `mapstructure:"url" validate:"required"`
	Method           string            `mapstructure:"method" validate:"omitempty,oneof=GET POST"`
	Headers          map[string]string `mapstructure:"headers"`
	Body             any               `mapstructure:"body"`
	NextURL          string            `mapstructure:"next_url"`
	NextBody         any               `mapstructure:"next_body"`
	ResponseDataPath string            `mapstructure:"response_data_path"`
	Pagination       *PaginationConfig `mapstructure:"pagination"`
	AdditionalFields map[string]any    `mapstructure:"additional_fields"`
	ScrapeInterval   int               `mapstructure:"scrape_interval" validate:"omitempty,gte=1"`
	WrapResponse     *bool             `mapstructure:"wrap_response_as_record"`
	AdvanceOnEmpty   bool              `mapstructure:"advance_on_empty"`
}

// PaginationConfig is the manifest shape of pagination settings.
type PaginationConfig struct {
	Type           string            `mapstructure:"type" validate:"required,oneof=url body headers"`
	URLFormat      string            `mapstructure:"url_format"`
	BodyFormat     any               `mapstructure:"body_format"`
	HeadersFormat  map[string]string `mapstructure:"headers_format"`
	UpdateFirstURL bool              `mapstructure:"update_first_url"`
	StopIndication *StopConfig       `mapstructure:"stop_indication"`
	MaxCalls       int               `mapstructure:"max_calls" validate:"omitempty,gte=1"`
}

// StopConfig is the manifest shape of a stop predicate. Value may be any
// scalar (booleans are common) and is compared by its JSON rendering.
type StopConfig struct {
	Field     string `mapstructure:"field" validate:"required"`
	Condition string `mapstructure:"condition" validate:"required,oneof=empty equals contains"`
	Value     any    `mapstructure:"value"`
}

var validate = validator.New()

// decodeConfig unmarshals a raw manifest map into a typed config struct and
// validates it.
func decodeConfig(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("invalid api config: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid api config: %w", err)
	}
	return nil
}

// NewGeneral builds a plain fetcher straight from the manifest fields.
func NewGeneral(raw map[string]any) (*fetch.Fetcher, error) {
	var cfg APIConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	return buildFetcher(cfg)
}

// buildFetcher assembles a fetcher from decoded generic config.
func buildFetcher(cfg APIConfig) (*fetch.Fetcher, error) {
	body, err := formatBody(cfg.Body)
	if err != nil {
		return nil, err
	}

	f := fetch.NewFetcher(cfg.Name, fetch.Request{
		Method:  cfg.Method,
		URL:     cfg.URL,
		Headers: cfg.Headers,
		Body:    body,
	})

	if cfg.NextURL != "" {
		f.NextURL = jsonpath.CompileTemplate(cfg.NextURL)
	}
	f.NextBody = cfg.NextBody
	f.ResponseDataPath = jsonpath.ParsePath(cfg.ResponseDataPath)
	f.SetAdditionalFields(cfg.AdditionalFields)
	if cfg.ScrapeInterval > 0 {
		f.ScrapeIntervalMinutes = cfg.ScrapeInterval
	}
	if cfg.WrapResponse != nil {
		f.WrapResponseAsRecord = *cfg.WrapResponse
	}
	f.AdvanceOnEmpty = cfg.AdvanceOnEmpty

	if cfg.Pagination != nil {
		pagination, err := buildPagination(cfg.Pagination)
		if err != nil {
			return nil, err
		}
		f.Pagination = pagination
	}

	return f, nil
}

func buildPagination(cfg *PaginationConfig) (*fetch.PaginationSettings, error) {
	settings := &fetch.PaginationSettings{
		Kind:           fetch.PaginationKind(cfg.Type),
		UpdateFirstURL: cfg.UpdateFirstURL,
		MaxCalls:       cfg.MaxCalls,
	}

	switch settings.Kind {
	case fetch.PaginationKindURL:
		if cfg.URLFormat == "" {
			return nil, fmt.Errorf("url pagination requires 'url_format'")
		}
		settings.URLTemplate = jsonpath.CompileTemplate(cfg.URLFormat)
	case fetch.PaginationKindBody:
		if cfg.BodyFormat == nil {
			return nil, fmt.Errorf("body pagination requires 'body_format'")
		}
		settings.BodyTemplate = cfg.BodyFormat
	case fetch.PaginationKindHeaders:
		if len(cfg.HeadersFormat) == 0 {
			return nil, fmt.Errorf("headers pagination requires 'headers_format'")
		}
		settings.HeadersTemplate = cfg.HeadersFormat
	}

	if cfg.StopIndication != nil {
		stopValue := ""
		if cfg.StopIndication.Value != nil {
			stopValue = jsonpath.Stringify(cfg.StopIndication.Value)
		}
		stop, err := fetch.NewStopPredicate(cfg.StopIndication.Field,
			fetch.StopCondition(cfg.StopIndication.Condition), stopValue)
		if err != nil {
			return nil, err
		}
		settings.Stop = stop
	}

	return settings, nil
}

// formatBody canonicalizes structured manifest bodies to a JSON string so a
// valid request can be made.
func formatBody(body any) (string, error) {
	switch v := body.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode request body: %w", err)
		}
		return string(encoded), nil
	}
}
