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

package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
	"github.com/logzio/logzio-api-fetcher/internal/logging"
)

// Pagination kinds: where the next-page parameters are written.
type PaginationKind string

const (
	PaginationKindURL     PaginationKind = "url"
	PaginationKindBody    PaginationKind = "body"
	PaginationKindHeaders PaginationKind = "headers"
)

// DefaultMaxPaginationCalls bounds a pagination loop when no explicit limit
// is configured.
const DefaultMaxPaginationCalls = 20

// PaginationSettings describes how to derive the next request from the
// current response, and when to stop.
type PaginationSettings struct {
	Kind PaginationKind

	// URLTemplate renders the next URL (or a fragment when UpdateFirstURL
	// is set, in which case it is appended to the first URL of the tick).
	URLTemplate    *jsonpath.Template
	UpdateFirstURL bool

	// BodyTemplate is a structured body (map/array/string) whose string
	// leaves carry placeholders. Rendered bodies are canonicalized to JSON.
	BodyTemplate any

	// HeadersTemplate maps header names to placeholder-carrying values.
	HeadersTemplate map[string]string

	Stop     *StopPredicate
	MaxCalls int
}

func (p *PaginationSettings) maxCalls() int {
	if p.MaxCalls > 0 {
		return p.MaxCalls
	}
	return DefaultMaxPaginationCalls
}

// nextRequest derives the follow-up request from the previous one and the
// latest response. The previous request is not mutated.
func (p *PaginationSettings) nextRequest(prev Request, firstURL string, res any) (Request, error) {
	next := prev.Clone()

	switch p.Kind {
	case PaginationKindURL:
		rendered, err := p.URLTemplate.Render(res)
		if err != nil {
			return Request{}, fmt.Errorf("render next URL: %w", err)
		}
		if p.UpdateFirstURL {
			next.URL = firstURL + rendered
		} else {
			next.URL = rendered
		}

	case PaginationKindBody:
		rendered, err := jsonpath.RenderValue(p.BodyTemplate, res)
		if err != nil {
			return Request{}, fmt.Errorf("render next body: %w", err)
		}
		body, err := canonicalizeBody(rendered)
		if err != nil {
			return Request{}, err
		}
		next.Body = body

	case PaginationKindHeaders:
		for name, tmpl := range p.HeadersTemplate {
			rendered, err := jsonpath.CompileTemplate(tmpl).Render(res)
			if err != nil {
				return Request{}, fmt.Errorf("render next header %q: %w", name, err)
			}
			next.Headers[name] = rendered
		}

	default:
		return Request{}, fmt.Errorf("invalid pagination kind %q", p.Kind)
	}

	return next, nil
}

// canonicalizeBody turns structured (map/array) bodies into a JSON string so
// the request carries a valid payload.
func canonicalizeBody(body any) (string, error) {
	if s, ok := body.(string); ok {
		return s, nil
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode body: %w", err)
	}
	return string(encoded), nil
}

// paginate drives follow-up calls starting from the first response of a tick
// and returns the extracted records in arrival order. The loop stops on the
// stop predicate, on the call limit, on a substitution miss or on any non-2xx
// response; accumulated records are returned in every case. The source
// request is never touched: each follow-up request is derived by value.
func (f *Fetcher) paginate(ctx context.Context, firstReq Request, firstRes any) []any {
	settings := f.Pagination
	zlog.Debug().Msgf("Starting pagination for %s", f.Name)

	var records []any
	req := firstReq
	res := firstRes

	for calls := 0; ; calls++ {
		if calls >= settings.maxCalls() {
			zlog.Debug().Msgf("Reached max pagination calls (%d) for %s", settings.maxCalls(), f.Name)
			break
		}
		if settings.Stop != nil && settings.Stop.ShouldStop(res) {
			break
		}

		next, err := settings.nextRequest(req, firstReq.URL, res)
		if err != nil {
			zlog.Debug().Msgf("Stopping pagination for %s: %s", f.Name, err)
			break
		}

		zlog.Debug().Msgf("Sending pagination call %d for %s", calls+1, f.Name)
		nextRes, err := doCall(ctx, f.httpClient, next)
		if err != nil {
			zlog.Warn().Msgf("Pagination call for %s failed: %s", f.Name, logging.MaskErr(err))
			break
		}

		records = append(records, f.extractRecords(nextRes)...)
		req = next
		res = nextRes
	}

	return records
}
