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

// Package jsonpath resolves dotted key paths against decoded JSON values and
// substitutes "{res.path}" placeholders in request templates.
//
// Path grammar:
//
//   - dot-separated segments: "d.results"
//   - "[N]" indexes into an array, negative N counts from the end: "value.[0].id"
//   - a literal dot inside a key is escaped as "\.": "@odata\.nextLink"
//   - the final segment may carry "+N" or "-N" which is applied when the
//     resolved value is numeric: "result_info.page+1"
package jsonpath

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	zlog "github.com/rs/zerolog/log"
)

// escapedDotToken temporarily stands in for "\." while splitting on dots.
const escapedDotToken = "\x00"

var mathSuffixPattern = regexp.MustCompile(`([+-]\d+)$`)

type segment struct {
	key     string
	index   int
	isIndex bool
}

// Path is a parsed key path. The zero value resolves nothing.
type Path struct {
	raw      string
	segments []segment
	delta    float64
	hasDelta bool
}

// ParsePath compiles a key path so repeated lookups skip string processing.
func ParsePath(raw string) Path {
	if raw == "" {
		return Path{}
	}

	parts := strings.Split(strings.ReplaceAll(raw, `\.`, escapedDotToken), ".")

	p := Path{raw: raw}
	for i, part := range parts {
		part = strings.ReplaceAll(part, escapedDotToken, ".")

		// math suffix is only meaningful on the final segment
		if i == len(parts)-1 {
			if m := mathSuffixPattern.FindString(part); m != "" && len(m) < len(part) {
				if delta, err := strconv.ParseFloat(m, 64); err == nil {
					p.delta = delta
					p.hasDelta = true
					part = part[:len(part)-len(m)]
				}
			}
		}

		if idx, ok := parseIndexSegment(part); ok {
			p.segments = append(p.segments, segment{index: idx, isIndex: true})
		} else {
			p.segments = append(p.segments, segment{key: part})
		}
	}
	return p
}

func parseIndexSegment(part string) (int, bool) {
	if !strings.HasPrefix(part, "[") || !strings.HasSuffix(part, "]") {
		return 0, false
	}
	idx, err := strconv.Atoi(part[1 : len(part)-1])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// IsZero reports whether the path was parsed from an empty string.
func (p Path) IsZero() bool {
	return p.raw == ""
}

// String returns the original path expression.
func (p Path) String() string {
	return p.raw
}

// Resolve walks v along the path. The second return value is false on a miss:
// a missing key, an out-of-range index, indexing a non-array or descending
// into a scalar.
func (p Path) Resolve(v any) (any, bool) {
	if p.IsZero() {
		return nil, false
	}

	current := v
	for _, seg := range p.segments {
		next, ok := resolveSegment(current, seg)
		if !ok {
			return nil, false
		}
		current = next
	}

	if p.hasDelta {
		if n, ok := current.(float64); ok {
			current = n + p.delta
		}
	}
	return current, true
}

func resolveSegment(current any, seg segment) (any, bool) {
	// a value encoded as a JSON string is transparently parsed once
	if s, ok := current.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			zlog.Debug().Msgf("Cannot descend into non-object value at segment %q", seg.describe())
			return nil, false
		}
		current = parsed
	}

	if seg.isIndex {
		arr, ok := current.([]any)
		if !ok {
			zlog.Warn().Msgf("Cannot index segment %q: value is not an array", seg.describe())
			return nil, false
		}
		idx := seg.index
		if idx < 0 {
			idx += len(arr)
		}
		if idx < 0 || idx >= len(arr) {
			zlog.Warn().Msgf("Index %q is out of range (array length %d)", seg.describe(), len(arr))
			return nil, false
		}
		return arr[idx], true
	}

	obj, ok := current.(map[string]any)
	if !ok {
		zlog.Debug().Msgf("Cannot descend into non-object value at segment %q", seg.describe())
		return nil, false
	}
	next, exists := obj[seg.key]
	if !exists {
		zlog.Debug().Msgf("Key %q does not exist in the response", seg.key)
		return nil, false
	}
	return next, true
}

func (s segment) describe() string {
	if s.isIndex {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.key
}

// IsEmpty reports whether v counts as empty for stop-predicate purposes:
// nil, an empty string, an empty array or an empty object.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}
