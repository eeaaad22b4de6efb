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
	"fmt"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/logzio/logzio-api-fetcher/internal/jsonpath"
)

// Stop conditions for pagination.
type StopCondition string

const (
	StopConditionEmpty    StopCondition = "empty"
	StopConditionEquals   StopCondition = "equals"
	StopConditionContains StopCondition = "contains"
)

// StopPredicate decides when pagination for a tick terminates, based on a
// field in the latest response.
type StopPredicate struct {
	Field     jsonpath.Path
	Condition StopCondition
	Value     string
}

// NewStopPredicate validates the predicate shape: value is required exactly
// when the condition is equals or contains.
func NewStopPredicate(field string, condition StopCondition, value string) (*StopPredicate, error) {
	switch condition {
	case StopConditionEmpty:
		if value != "" {
			return nil, fmt.Errorf("stop condition %q does not take a value", condition)
		}
	case StopConditionEquals, StopConditionContains:
		if value == "" {
			return nil, fmt.Errorf("stop condition %q requires a value", condition)
		}
	default:
		return nil, fmt.Errorf("invalid stop condition %q", condition)
	}

	return &StopPredicate{
		Field:     jsonpath.ParsePath(field),
		Condition: condition,
		Value:     value,
	}, nil
}

// ShouldStop evaluates the predicate against the latest response.
func (p *StopPredicate) ShouldStop(res any) bool {
	value, ok := p.Field.Resolve(res)

	switch p.Condition {
	case StopConditionEmpty:
		return !ok || jsonpath.IsEmpty(value)
	case StopConditionEquals:
		if !ok {
			return false
		}
		return jsonpath.Stringify(value) == p.Value
	case StopConditionContains:
		if !ok {
			return false
		}
		return strings.Contains(jsonpath.Stringify(value), p.Value)
	}

	zlog.Warn().Msgf("Got invalid stop condition %q, stopping pagination", p.Condition)
	return true
}
