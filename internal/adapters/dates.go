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
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/fetch"
)

// Date layouts used in vendor URL filters.
const (
	secondsLayout = "2006-01-02T15:04:05Z"
	microsLayout  = "2006-01-02T15:04:05.000000Z"
)

// nowUTC is swapped out by tests that pin the clock.
var nowUTC = func() time.Time {
	return time.Now().UTC()
}

// startFetchDate returns the initial "since" value for a source that fetches
// daysBack days of history on its first request.
func startFetchDate(daysBack int, layout string) string {
	return nowUTC().AddDate(0, 0, -daysBack).Format(layout)
}

// plusOneSecond bumps a date string by one second to avoid re-delivering the
// boundary record on the next tick.
func plusOneSecond(value, layout string) (string, error) {
	parsed, err := time.Parse(layout, value)
	if err != nil {
		return "", err
	}
	return parsed.Add(time.Second).Format(layout), nil
}

// advanceBodyStartTime sets the body's start_time filter to the timestamp of
// the last record of a tick. The APIs using it (1Password, Google Workspace)
// order the newest event last, so the final record carries the freshest
// timestamp even when pagination appended records from later pages.
func advanceBodyStartTime(f *fetch.Fetcher, records []any) {
	if len(records) == 0 {
		return
	}
	last, ok := records[len(records)-1].(map[string]any)
	if !ok {
		return
	}
	timestamp, exists := last["timestamp"]
	if !exists {
		return
	}
	if err := f.SetBodyField("start_time", timestamp); err != nil {
		zlog.Warn().Msgf("Failed to update 'start_time' filter for %s: %s", f.Name, err)
	}
}
