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
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
)

func TestTokenManager(t *testing.T) {
	t.Run("fetches and caches the token", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprintf(w, `{"access_token": "tok%d", "expires_in": 3600}`, calls)
		}))
		defer server.Close()

		tokenReq := NewFetcher("token", Request{Method: MethodPost, URL: server.URL})
		tokenReq.SetHTTPClient(server.Client())
		tm := NewTokenManager(tokenReq)

		token, err := tm.EnsureFresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok1", token)

		// second call within the expiry window reuses the cache
		token, err = tm.EnsureFresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok1", token)
		assert.Equal(t, 1, calls)
	})

	t.Run("refreshes inside the expiry skew", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprintf(w, `{"access_token": "tok%d", "expires_in": 3600}`, calls)
		}))
		defer server.Close()

		tokenReq := NewFetcher("token", Request{Method: MethodPost, URL: server.URL})
		tokenReq.SetHTTPClient(server.Client())
		tm := NewTokenManager(tokenReq)

		now := time.Now()
		tm.now = func() time.Time { return now }

		_, err := tm.EnsureFresh(context.Background())
		require.NoError(t, err)

		// 30s before expiry is inside the 60s skew
		now = now.Add(3600*time.Second - 30*time.Second)
		token, err := tm.EnsureFresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok2", token)
		assert.Equal(t, 2, calls)
	})

	t.Run("keeps the cached token on refresh failure", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls > 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"access_token": "tok1", "expires_in": 60}`)
		}))
		defer server.Close()

		tokenReq := NewFetcher("token", Request{Method: MethodPost, URL: server.URL})
		tokenReq.SetHTTPClient(server.Client())
		tm := NewTokenManager(tokenReq)

		now := time.Now()
		tm.now = func() time.Time { return now }

		_, err := tm.EnsureFresh(context.Background())
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		_, err = tm.EnsureFresh(context.Background())
		require.Error(t, err)
		assert.Equal(t, "tok1", tm.token)
	})

	t.Run("custom response paths", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"auth": {"jwt": "custom-tok", "ttl": 120}}`)
		}))
		defer server.Close()

		tokenReq := NewFetcher("token", Request{Method: MethodPost, URL: server.URL})
		tokenReq.SetHTTPClient(server.Client())
		tm := NewTokenManager(tokenReq)
		tm.AccessTokenPath = jsonpath.ParsePath("auth.jwt")
		tm.ExpiresInPath = jsonpath.ParsePath("auth.ttl")

		token, err := tm.EnsureFresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "custom-tok", token)
	})

	t.Run("missing token field is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"expires_in": 3600}`)
		}))
		defer server.Close()

		tokenReq := NewFetcher("token", Request{Method: MethodPost, URL: server.URL})
		tokenReq.SetHTTPClient(server.Client())
		tm := NewTokenManager(tokenReq)

		_, err := tm.EnsureFresh(context.Background())
		assert.Error(t, err)
	})
}

func TestFetchLogsWithToken(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": "tok1", "expires_in": 3600}`)
	})

	var gotAuth string
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"value": [{"id": 1}]}`)
	})

	tokenReq := NewFetcher("token", Request{Method: MethodPost, URL: server.URL + "/token"})
	tokenReq.SetHTTPClient(server.Client())

	f := NewFetcher("data", Request{URL: server.URL + "/data"})
	f.SetHTTPClient(server.Client())
	f.ResponseDataPath = jsonpath.ParsePath("value")
	f.Token = NewTokenManager(tokenReq)

	records, err := f.FetchLogs(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "Bearer tok1", gotAuth)
}
