// Licensed to Elasticsearch B.V. under one or more contributor
// license agreements. See the NOTICE file distributed with
// this work for additional information regarding copyright
// ownership. Elasticsearch B.V. licenses this file to you under
// the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package docsearcher

import "time"

// timeNow is overridden in tests.
var timeNow = time.Now

// Direction selects a sort order. Only Ascending and Descending are
// recognised; any other token leaves the query unsorted.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "des"
)

// WindowUnit is the unit of a TimeWindow.
type WindowUnit string

const (
	Hours WindowUnit = "hours"
	Days  WindowUnit = "days"
)

// TermFilter is an exact-match constraint on a field. Filters combine
// conjunctively: a document must satisfy every filter to match.
type TermFilter struct {
	Field string
	Value string
}

// TimeWindow bounds a query to documents whose timestamp field is within
// the trailing window ending now. An Amount of zero is normalised to 1 to
// avoid a degenerate zero-width window.
type TimeWindow struct {
	Unit   WindowUnit
	Amount int
}

func (w TimeWindow) duration() time.Duration {
	amount := w.Amount
	if amount == 0 {
		amount = 1
	}
	switch w.Unit {
	case Days:
		return time.Duration(amount) * 24 * time.Hour
	default:
		return time.Duration(amount) * time.Hour
	}
}

// SortSpec names the exact backend field to sort on. The caller must pass
// the backend field name verbatim (including any keyword suffix); no field
// name inference is performed.
type SortSpec struct {
	Field     string
	Direction Direction
}

// QuerySpec holds the declarative parameters from which a Query is
// composed. The zero value composes to a match-all query.
type QuerySpec struct {
	// MatchField and MatchValue emit a match clause when both are set.
	MatchField string
	MatchValue string

	// Filters emit one term clause each, all required.
	Filters []TermFilter

	// Window emits a range clause on TimestampField with a lower bound of
	// now minus the window, and no upper bound.
	Window *TimeWindow

	// TimestampField overrides the range clause field name. Empty means
	// "timeStamp".
	TimestampField string

	// Sort emits a sort clause. A Direction other than Ascending or
	// Descending is silently ignored.
	Sort *SortSpec
}

// Query is a composed, backend-agnostic query description. It is built
// fresh per request by ComposeQuery and never mutated afterwards.
type Query struct {
	Query map[string]any
	Sort  []map[string]any
}

// ComposeQuery translates spec into a Query. It performs no I/O and never
// fails: malformed sort directions are dropped rather than rejected.
func ComposeQuery(spec QuerySpec) Query {
	var clauses []any
	if spec.MatchField != "" && spec.MatchValue != "" {
		clauses = append(clauses, map[string]any{
			"match": map[string]any{spec.MatchField: spec.MatchValue},
		})
	}
	for _, f := range spec.Filters {
		clauses = append(clauses, map[string]any{
			"term": map[string]any{f.Field: f.Value},
		})
	}
	if spec.Window != nil {
		field := spec.TimestampField
		if field == "" {
			field = defaultTimestampField
		}
		lower := timeNow().UTC().Add(-spec.Window.duration())
		clauses = append(clauses, map[string]any{
			"range": map[string]any{
				field: map[string]any{
					"gte": lower.Format(time.RFC3339),
				},
			},
		})
	}

	q := Query{}
	if len(clauses) == 0 {
		q.Query = map[string]any{"match_all": map[string]any{}}
	} else {
		q.Query = map[string]any{"bool": map[string]any{"must": clauses}}
	}
	if spec.Sort != nil {
		if order, ok := sortOrder(spec.Sort.Direction); ok {
			q.Sort = []map[string]any{
				{spec.Sort.Field: map[string]any{"order": order}},
			}
		}
	}
	return q
}

func sortOrder(d Direction) (string, bool) {
	switch d {
	case Ascending:
		return "asc", true
	case Descending:
		return "desc", true
	}
	return "", false
}
