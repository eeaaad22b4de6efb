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

// Package fetch implements the generic API fetcher engine: one scheduled
// tick executes token refresh, the primary request, record extraction,
// pagination and cursor advancement. Vendor adapters specialize the engine
// through configuration and the hook fields, never through subclassing.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
	"github.com/logzio/logzio-api-fetcher/internal/logging"
)

// DefaultType is merged into every record that carries no explicit "type"
// additional field.
const DefaultType = "api-fetcher"

// Fetcher is one configured source: the current request state (which embeds
// the cursor), cursor templates, pagination settings and optional adapter
// hooks. A Fetcher is mutated only by its own scheduler worker.
type Fetcher struct {
	Name    string
	Request Request

	// NextURL / NextBody rewrite the request after a successful tick, using
	// the first response of the tick. This is how the cursor advances.
	NextURL  *jsonpath.Template
	NextBody any

	ResponseDataPath jsonpath.Path

	// WrapResponseAsRecord controls what happens when ResponseDataPath is
	// unset: true treats the whole response as a single record, false emits
	// nothing.
	WrapResponseAsRecord bool

	Pagination            *PaginationSettings
	AdditionalFields      map[string]any
	ScrapeIntervalMinutes int

	// Token handles OAuth acquisition and renewal when the source is
	// OAuth-bound.
	Token *TokenManager

	// BeforeCall runs before the primary request of every tick. Adapters use
	// it for time-window bookkeeping (NOW_DATE rewriting, JWT logins).
	BeforeCall func(ctx context.Context, f *Fetcher) error

	// AfterTick runs after a tick that emitted at least one record, with the
	// records of the tick. Adapters use it to bump stored cursor dates.
	AfterTick func(f *Fetcher, records []any)

	// OnAuthError runs when the primary request fails with a 401. Adapters
	// that cache short-lived credentials use it to force a re-login.
	OnAuthError func(f *Fetcher)

	// AdvanceOnEmpty opts into running AfterTick on ticks that emitted no
	// records, for adapters whose cursor must track wall-clock time.
	AdvanceOnEmpty bool

	httpClient *http.Client
}

// NewFetcher builds a fetcher with engine defaults applied: GET method, the
// source name defaulting to the URL and the default "type" additional field.
func NewFetcher(name string, req Request) *Fetcher {
	if req.Method == "" {
		req.Method = MethodGet
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if name == "" {
		name = req.URL
	}

	return &Fetcher{
		Name:                  name,
		Request:               req,
		WrapResponseAsRecord:  true,
		AdditionalFields:      map[string]any{"type": DefaultType},
		ScrapeIntervalMinutes: 1,
		httpClient:            &http.Client{Timeout: requestTimeout},
	}
}

// SetAdditionalFields merges the configured fields over the defaults;
// explicit fields overwrite.
func (f *Fetcher) SetAdditionalFields(fields map[string]any) {
	for key, value := range fields {
		f.AdditionalFields[key] = value
	}
}

// SetHTTPClient overrides the HTTP client. Used by tests and by adapters
// sharing a client between the token and data requests.
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// FetchLogs executes one tick and returns the emitted records in arrival
// order. On success with at least one record, the cursor templates advance
// the stored request in place.
func (f *Fetcher) FetchLogs(ctx context.Context) ([]any, error) {
	if f.Token != nil {
		token, err := f.Token.EnsureFresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("refresh access token for %s: %w", f.Name, err)
		}
		f.Request.Headers["Authorization"] = "Bearer " + token
	}

	if f.BeforeCall != nil {
		if err := f.BeforeCall(ctx, f); err != nil {
			return nil, fmt.Errorf("pre-request hook for %s: %w", f.Name, err)
		}
	}

	firstReq := f.Request.Clone()
	firstRes, err := doCall(ctx, f.httpClient, firstReq)
	if err != nil {
		if IsAuthError(err) && f.OnAuthError != nil {
			f.OnAuthError(f)
		}
		return nil, err
	}

	records := f.extractRecords(firstRes)
	if len(records) == 0 {
		zlog.Info().Msgf("No new data available from api %s", f.Name)
		if f.AdvanceOnEmpty && f.AfterTick != nil {
			f.AfterTick(f, nil)
		}
		return nil, nil
	}

	if f.Pagination != nil {
		records = append(records, f.paginate(ctx, firstReq, firstRes)...)
	}

	f.advanceCursor(firstRes)

	if f.AfterTick != nil {
		f.AfterTick(f, records)
	}
	return records, nil
}

// extractRecords pulls the records out of a response, honoring the data path.
// A path that yields nothing is expected (no new data) and logged at debug.
func (f *Fetcher) extractRecords(res any) []any {
	if f.ResponseDataPath.IsZero() {
		if f.WrapResponseAsRecord && res != nil {
			return []any{res}
		}
		return nil
	}

	value, ok := f.ResponseDataPath.Resolve(res)
	if !ok || value == nil {
		zlog.Debug().Msgf("Did not find data in path %q for %s", f.ResponseDataPath, f.Name)
		return nil
	}
	if arr, isArr := value.([]any); isArr {
		return arr
	}
	return []any{value}
}

// advanceCursor rewrites the stored URL and body from the first response of
// the tick. A missing reference leaves the cursor unchanged so a transient
// gap in the response does not regress the "since" marker.
func (f *Fetcher) advanceCursor(firstRes any) {
	if f.NextURL != nil {
		url, err := f.NextURL.Render(firstRes)
		if err != nil {
			zlog.Warn().Msgf("Not advancing the URL cursor for %s: %s", f.Name, err)
		} else {
			f.Request.URL = url
		}
	}

	if f.NextBody != nil {
		rendered, err := jsonpath.RenderValue(f.NextBody, firstRes)
		if err != nil {
			zlog.Warn().Msgf("Not advancing the body cursor for %s: %s", f.Name, err)
			return
		}
		body, err := canonicalizeBody(rendered)
		if err != nil {
			zlog.Warn().Msgf("Not advancing the body cursor for %s: %s", f.Name, err)
			return
		}
		f.Request.Body = body
	}
}

// SetBodyField updates one field in the stored JSON body. Adapters use it to
// bump body-held cursors (e.g. start_time) after a tick.
func (f *Fetcher) SetBodyField(key string, value any) error {
	body := map[string]any{}
	if f.Request.Body != "" {
		if err := json.Unmarshal([]byte(f.Request.Body), &body); err != nil {
			return fmt.Errorf("parse request body for %s: %w", f.Name, err)
		}
	}
	body[key] = value

	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	f.Request.Body = string(encoded)
	return nil
}

// CallOnce issues the fetcher's request a single time without pagination or
// cursor handling. The token manager uses it for token endpoints.
func (f *Fetcher) CallOnce(ctx context.Context) (any, error) {
	if f.BeforeCall != nil {
		if err := f.BeforeCall(ctx, f); err != nil {
			return nil, err
		}
	}
	res, err := doCall(ctx, f.httpClient, f.Request)
	if err != nil {
		zlog.Warn().Msgf("Request for %s failed: %s", f.Name, logging.MaskErr(err))
		return nil, err
	}
	return res, nil
}
