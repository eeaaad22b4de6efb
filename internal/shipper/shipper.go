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

// Package shipper batches serialized records into size-bounded bulks and
// ships them gzip-compressed to a Logz.io listener with retries.
package shipper

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/logging"
	"github.com/logzio/logzio-api-fetcher/internal/metrics"
)

// Version identifies the integration in the Logzio-Shipper header.
const Version = "0.3.0"

// DefaultListener receives the logs when no listener URL is configured.
const DefaultListener = "https://listener.logz.io:8071"

// Size limitations, in bytes.
const (
	MaxBodySizeBytes = 10 * 1024 * 1024
	MaxBulkSizeBytes = MaxBodySizeBytes / 10
	MaxLogSizeBytes  = 500 * 1000
)

// Retry settings for the shipping request.
const (
	maxRetries        = 3
	retryWaitMin      = 1 * time.Second
	retryWaitMax      = 8 * time.Second
	connectionTimeout = 5 * time.Second
)

// Terminal shipping failures, classified for the scheduler.
var (
	// ErrUnauthorized means the shipping token is missing or invalid.
	ErrUnauthorized = errors.New("shipping token is missing or invalid")

	// ErrBadRequest means the listener rejected the payload as malformed.
	ErrBadRequest = errors.New("listener rejected the logs as bad formatted")

	// ErrRetriesExhausted means the listener stayed unreachable or kept
	// returning retryable statuses.
	ErrRetriesExhausted = errors.New("max retries reached sending logs")
)

// retryStatusCodes force a retry of the shipping request.
var retryStatusCodes = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Shipper accumulates records for one (source, listener) pair. A Shipper is
// private to a single scheduler worker and needs no locking.
type Shipper struct {
	listener string
	client   *retryablehttp.Client

	logs     []string
	bulkSize int
}

// New builds a shipper for a listener URL and shipping token. An empty URL
// falls back to the default Logz.io listener.
func New(listenerURL, token string) *Shipper {
	if listenerURL == "" {
		listenerURL = DefaultListener
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: connectionTimeout}
	client.RetryMax = maxRetries
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.Logger = nil
	client.CheckRetry = checkRetry
	client.Backoff = retryablehttp.DefaultBackoff

	return &Shipper{
		listener: fmt.Sprintf("%s/?token=%s", listenerURL, token),
		client:   client,
	}
}

// checkRetry retries connection errors and {500, 502, 503, 504}; 400 and 401
// are terminal and classified by Flush.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return retryStatusCodes[resp.StatusCode], nil
}

// AddRecord serializes one record, merges the additional fields into it and
// queues it for the next bulk. A record whose serialized form exceeds the
// per-log limit is dropped with an error log; this is not a failure of the
// tick. When the record would overflow the current bulk, the bulk is flushed
// first.
func (s *Shipper) AddRecord(ctx context.Context, record any, additionalFields map[string]any) error {
	enriched, err := enrichRecord(record, additionalFields)
	if err != nil {
		zlog.Error().Msgf("Dropping unserializable record: %s", err)
		return nil
	}

	size := len(enriched)
	if size > MaxLogSizeBytes {
		metrics.OversizedDropped.Inc()
		zlog.Error().Msgf("Dropping record of %d bytes: passing the allowed %d bytes limit", size, MaxLogSizeBytes)
		return nil
	}

	if s.bulkSize+size > MaxBulkSizeBytes {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}

	s.logs = append(s.logs, enriched)
	s.bulkSize += size
	return nil
}

// enrichRecord renders the record as one JSON object with the additional
// fields merged in. Fields already present in the record win, so enrichment
// is idempotent. A record that is itself a JSON string is parsed first; any
// other non-object value is wrapped in a "message" field.
func enrichRecord(record any, additionalFields map[string]any) (string, error) {
	obj, ok := record.(map[string]any)
	if !ok {
		if str, isStr := record.(string); isStr {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(str), &parsed); err == nil {
				obj = parsed
			} else {
				obj = map[string]any{"message": str}
			}
		} else {
			obj = map[string]any{"message": record}
		}
	}

	merged := make(map[string]any, len(obj)+len(additionalFields))
	for key, value := range additionalFields {
		merged[key] = value
	}
	for key, value := range obj {
		merged[key] = value
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// Flush compresses the queued records into one NDJSON bulk and POSTs it to
// the listener. An empty queue is a no-op. On success the queue is cleared;
// terminal failures are returned classified for the scheduler.
func (s *Shipper) Flush(ctx context.Context) error {
	if len(s.logs) == 0 {
		return nil
	}

	payload, err := gzipCompress(strings.Join(s.logs, "\n"))
	if err != nil {
		return fmt.Errorf("compress bulk: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.listener, payload)
	if err != nil {
		return fmt.Errorf("build shipping request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Logzio-Shipper", "logzio-api-fetcher/"+Version)

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ShipFailures.Inc()
		zlog.Error().Msgf("Failed to ship logs to %s: %s", logging.Mask(s.listener), logging.MaskErr(err))
		return fmt.Errorf("%w: %s", ErrRetriesExhausted, logging.MaskErr(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		zlog.Info().Msgf("Successfully sent bulk of %d bytes to Logz.io.", s.bulkSize)
		metrics.BulksShipped.Inc()
		s.reset()
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		metrics.ShipFailures.Inc()
		zlog.Error().Msg("The logs are bad formatted, listener returned 400.")
		return ErrBadRequest
	case resp.StatusCode == http.StatusUnauthorized:
		metrics.ShipFailures.Inc()
		zlog.Error().Msg("Logzio shipping token is missing or invalid, listener returned 401.")
		return ErrUnauthorized
	default:
		metrics.ShipFailures.Inc()
		zlog.Error().Msgf("Failed to ship logs, listener returned %d.", resp.StatusCode)
		return fmt.Errorf("%w: listener returned %d", ErrRetriesExhausted, resp.StatusCode)
	}
}

// PendingLogs reports how many records await the next flush.
func (s *Shipper) PendingLogs() int {
	return len(s.logs)
}

func (s *Shipper) reset() {
	s.logs = s.logs[:0]
	s.bulkSize = 0
}

func gzipCompress(data string) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(data)); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
