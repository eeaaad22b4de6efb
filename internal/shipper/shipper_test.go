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

package shipper

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receivedBulk is one decompressed listener payload split into its NDJSON
// lines.
type receivedBulk struct {
	lines []map[string]any
	token string
}

func newListener(t *testing.T, status int) (*httptest.Server, *[]receivedBulk) {
	t.Helper()
	var bulks []receivedBulk

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "logzio-api-fetcher/"+Version, r.Header.Get("Logzio-Shipper"))

		zr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		raw, err := io.ReadAll(zr)
		require.NoError(t, err)

		bulk := receivedBulk{token: r.URL.Query().Get("token")}
		for _, line := range strings.Split(string(raw), "\n") {
			var obj map[string]any
			require.NoError(t, json.Unmarshal([]byte(line), &obj))
			bulk.lines = append(bulk.lines, obj)
		}
		bulks = append(bulks, bulk)

		w.WriteHeader(status)
	}))

	return server, &bulks
}

func TestShipper(t *testing.T) {
	t.Run("ships records as gzipped NDJSON", func(t *testing.T) {
		server, bulks := newListener(t, http.StatusOK)
		defer server.Close()

		s := New(server.URL, "shipping-token")
		fields := map[string]any{"type": "api-fetcher"}

		require.NoError(t, s.AddRecord(context.Background(), map[string]any{"id": float64(1)}, fields))
		require.NoError(t, s.AddRecord(context.Background(), map[string]any{"id": float64(2)}, fields))
		assert.Equal(t, 2, s.PendingLogs())
		require.NoError(t, s.Flush(context.Background()))
		assert.Equal(t, 0, s.PendingLogs())

		require.Len(t, *bulks, 1)
		bulk := (*bulks)[0]
		assert.Equal(t, "shipping-token", bulk.token)
		require.Len(t, bulk.lines, 2)
		assert.Equal(t, float64(1), bulk.lines[0]["id"])
		assert.Equal(t, "api-fetcher", bulk.lines[0]["type"])
	})

	t.Run("record fields win over additional fields", func(t *testing.T) {
		server, bulks := newListener(t, http.StatusOK)
		defer server.Close()

		s := New(server.URL, "token")
		record := map[string]any{"type": "vendor-type", "id": float64(1)}
		require.NoError(t, s.AddRecord(context.Background(), record, map[string]any{"type": "api-fetcher", "env": "prod"}))
		require.NoError(t, s.Flush(context.Background()))

		line := (*bulks)[0].lines[0]
		assert.Equal(t, "vendor-type", line["type"])
		assert.Equal(t, "prod", line["env"])
	})

	t.Run("string records are parsed or wrapped", func(t *testing.T) {
		server, bulks := newListener(t, http.StatusOK)
		defer server.Close()

		s := New(server.URL, "token")
		require.NoError(t, s.AddRecord(context.Background(), `{"id": 5}`, nil))
		require.NoError(t, s.AddRecord(context.Background(), "plain text", nil))
		require.NoError(t, s.AddRecord(context.Background(), float64(7), nil))
		require.NoError(t, s.Flush(context.Background()))

		lines := (*bulks)[0].lines
		require.Len(t, lines, 3)
		assert.Equal(t, float64(5), lines[0]["id"])
		assert.Equal(t, "plain text", lines[1]["message"])
		assert.Equal(t, float64(7), lines[2]["message"])
	})

	t.Run("oversized record is dropped, not fatal", func(t *testing.T) {
		server, bulks := newListener(t, http.StatusOK)
		defer server.Close()

		s := New(server.URL, "token")
		huge := strings.Repeat("x", MaxLogSizeBytes)
		require.NoError(t, s.AddRecord(context.Background(), map[string]any{"data": huge}, nil))
		assert.Equal(t, 0, s.PendingLogs())

		require.NoError(t, s.AddRecord(context.Background(), map[string]any{"id": float64(1)}, nil))
		require.NoError(t, s.Flush(context.Background()))
		require.Len(t, *bulks, 1)
		assert.Len(t, (*bulks)[0].lines, 1)
	})

	t.Run("overflowing bulk flushes before adding", func(t *testing.T) {
		server, bulks := newListener(t, http.StatusOK)
		defer server.Close()

		s := New(server.URL, "token")
		// each record is ~100KB; the 1MB bulk fits at most 10
		chunk := strings.Repeat("y", 100*1000)
		for i := 0; i < 12; i++ {
			require.NoError(t, s.AddRecord(context.Background(), map[string]any{"data": chunk}, nil))
		}
		require.NoError(t, s.Flush(context.Background()))

		require.GreaterOrEqual(t, len(*bulks), 2)
		total := 0
		for _, bulk := range *bulks {
			total += len(bulk.lines)
		}
		assert.Equal(t, 12, total)
	})

	t.Run("empty flush is a no-op", func(t *testing.T) {
		server, bulks := newListener(t, http.StatusOK)
		defer server.Close()

		s := New(server.URL, "token")
		require.NoError(t, s.Flush(context.Background()))
		assert.Empty(t, *bulks)
	})

	t.Run("401 is terminal", func(t *testing.T) {
		server, _ := newListener(t, http.StatusUnauthorized)
		defer server.Close()

		s := New(server.URL, "bad-token")
		require.NoError(t, s.AddRecord(context.Background(), map[string]any{"id": float64(1)}, nil))
		err := s.Flush(context.Background())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("400 is terminal", func(t *testing.T) {
		server, _ := newListener(t, http.StatusBadRequest)
		defer server.Close()

		s := New(server.URL, "token")
		require.NoError(t, s.AddRecord(context.Background(), map[string]any{"id": float64(1)}, nil))
		err := s.Flush(context.Background())
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("retries 5xx and succeeds", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		s := New(server.URL, "token")
		require.NoError(t, s.AddRecord(context.Background(), map[string]any{"id": float64(1)}, nil))
		require.NoError(t, s.Flush(context.Background()))
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 0, s.PendingLogs())
	})

	t.Run("exhausted retries are reported", func(t *testing.T) {
		attempts := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		s := New(server.URL, "token")
		require.NoError(t, s.AddRecord(context.Background(), map[string]any{"id": float64(1)}, nil))
		err := s.Flush(context.Background())
		assert.ErrorIs(t, err, ErrRetriesExhausted)
		// initial attempt plus 3 retries
		assert.Equal(t, 4, attempts)
	})
}
