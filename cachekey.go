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

import (
	"strconv"
	"strings"
	"time"
)

// CacheKeyParams are the effective parameters of a search operation, used
// to derive a memoization key. Zero-value fields contribute an empty
// string to the key, so an unset field and an explicitly empty one derive
// the same key. This is a documented limitation of the scheme, kept for
// compatibility, not a defect.
type CacheKeyParams struct {
	Field          string
	Value          string
	Filters        []TermFilter
	SortField      string
	SortDirection  Direction
	WindowUnit     WindowUnit
	WindowAmount   int
	Scroll         time.Duration
	Index          string
	TimestampField string
	Page           int
	PageSize       int
}

// CacheKey derives a deterministic key for memoizing the result of the
// named operation with the given effective parameters. Identical inputs
// always derive byte-identical keys. The key is an opaque string; callers
// should not parse it.
func CacheKey(op string, p CacheKeyParams) string {
	var b strings.Builder
	b.WriteString(op)
	for _, part := range []string{
		p.Field,
		p.Value,
		joinFilters(p.Filters),
		p.SortField,
		string(p.SortDirection),
		string(p.WindowUnit),
		intPart(p.WindowAmount),
		durationPart(p.Scroll),
		p.Index,
		p.TimestampField,
		intPart(p.Page),
		intPart(p.PageSize),
	} {
		b.WriteByte('|')
		b.WriteString(part)
	}
	return b.String()
}

func joinFilters(filters []TermFilter) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, f.Field+"="+f.Value)
	}
	return strings.Join(parts, ",")
}

func intPart(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func durationPart(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}
