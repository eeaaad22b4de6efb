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
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
)

// Default response paths for token endpoints.
const (
	DefaultAccessTokenPath = "access_token"
	DefaultExpiresInPath   = "expires_in"
)

// tokenExpirySkew refreshes the token slightly before its server-side expiry
// so a data call never races the deadline.
const tokenExpirySkew = 60 * time.Second

// TokenManager acquires and caches an OAuth access token for one source.
// Acquisition is itself a fetcher pointed at the vendor's token endpoint.
// A TokenManager is mutated only by its source's worker.
type TokenManager struct {
	TokenRequest *Fetcher

	AccessTokenPath jsonpath.Path
	ExpiresInPath   jsonpath.Path

	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewTokenManager wraps a token request with the default response paths.
func NewTokenManager(tokenRequest *Fetcher) *TokenManager {
	return &TokenManager{
		TokenRequest:    tokenRequest,
		AccessTokenPath: jsonpath.ParsePath(DefaultAccessTokenPath),
		ExpiresInPath:   jsonpath.ParsePath(DefaultExpiresInPath),
		now:             time.Now,
	}
}

// EnsureFresh returns a usable access token, refreshing it when less than
// the skew remains before expiry. On a refresh failure the cached token is
// kept: it may still work until its server-side expiry, and the error makes
// the tick abort as transient either way.
func (t *TokenManager) EnsureFresh(ctx context.Context) (string, error) {
	if t.token != "" && t.now().Add(tokenExpirySkew).Before(t.expiresAt) {
		return t.token, nil
	}

	zlog.Debug().Msg("Sending request to update the access token.")
	res, err := t.TokenRequest.CallOnce(ctx)
	if err != nil {
		return "", err
	}

	tokenValue, ok := t.AccessTokenPath.Resolve(res)
	if !ok {
		return "", fmt.Errorf("token response has no %q field", t.AccessTokenPath)
	}
	token, ok := tokenValue.(string)
	if !ok || token == "" {
		return "", fmt.Errorf("token response %q field is not a usable token", t.AccessTokenPath)
	}

	expiresIn, ok := t.ExpiresInPath.Resolve(res)
	if !ok {
		return "", fmt.Errorf("token response has no %q field", t.ExpiresInPath)
	}
	seconds, ok := expiresIn.(float64)
	if !ok {
		return "", fmt.Errorf("token response %q field is not numeric", t.ExpiresInPath)
	}

	t.token = token
	t.expiresAt = t.now().Add(time.Duration(seconds) * time.Second)
	return t.token, nil
}
