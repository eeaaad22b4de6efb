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

package jsonpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPathMiss is returned when a template references a response path that is
// missing or null. The whole substitution fails in that case.
var ErrPathMiss = errors.New("referenced response path is missing")

const placeholderPrefix = "{res."

// findPlaceholder locates the next "{res.<path>}" span. Placeholders never
// nest, so a simple scan is enough.
func findPlaceholder(s string) (start, end int, ok bool) {
	start = strings.Index(s, placeholderPrefix)
	if start < 0 {
		return 0, 0, false
	}
	rel := strings.Index(s[start:], "}")
	if rel < 0 {
		return 0, 0, false
	}
	return start, start + rel + 1, true
}

type templatePart struct {
	literal string
	path    Path
	isPath  bool
}

// Template is a string with "{res.path}" placeholders, compiled once into a
// list of literal and path parts.
type Template struct {
	raw   string
	parts []templatePart
}

// CompileTemplate parses the placeholders out of raw. A string without
// placeholders compiles to a single literal part.
func CompileTemplate(raw string) *Template {
	t := &Template{raw: raw}

	rest := raw
	for {
		start, end, ok := findPlaceholder(rest)
		if !ok {
			break
		}
		if start > 0 {
			t.parts = append(t.parts, templatePart{literal: rest[:start]})
		}
		expr := rest[start+len(placeholderPrefix) : end-1]
		t.parts = append(t.parts, templatePart{path: ParsePath(expr), isPath: true})
		rest = rest[end:]
	}
	if rest != "" {
		t.parts = append(t.parts, templatePart{literal: rest})
	}
	return t
}

// String returns the original template text.
func (t *Template) String() string {
	return t.raw
}

// HasPlaceholders reports whether the template references the response.
func (t *Template) HasPlaceholders() bool {
	for _, part := range t.parts {
		if part.isPath {
			return true
		}
	}
	return false
}

// Render substitutes every placeholder with its value from res. If any
// referenced path is missing or null the whole render fails with ErrPathMiss
// and the template is left untouched.
func (t *Template) Render(res any) (string, error) {
	var b strings.Builder
	for _, part := range t.parts {
		if !part.isPath {
			b.WriteString(part.literal)
			continue
		}
		value, ok := part.path.Resolve(res)
		if !ok || value == nil {
			return "", fmt.Errorf("%w: {res.%s}", ErrPathMiss, part.path)
		}
		b.WriteString(Stringify(value))
	}
	return b.String(), nil
}

// RenderValue substitutes placeholders in a structured template: strings are
// rendered, maps and arrays are walked, everything else passes through.
func RenderValue(tmpl any, res any) (any, error) {
	switch v := tmpl.(type) {
	case string:
		return CompileTemplate(v).Render(res)
	case *Template:
		return v.Render(res)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, res)
			if err != nil {
				return nil, err
			}
			out[key] = rendered
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, res)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return tmpl, nil
	}
}

// Stringify formats a resolved value for substitution into a URL, header or
// body string. Numbers render without a trailing ".0" so page counters stay
// integral.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}
