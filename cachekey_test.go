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

package docsearcher_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/elastic/go-docsearcher"
)

func TestCacheKeyDeterministic(t *testing.T) {
	params := docsearcher.CacheKeyParams{
		Field: "title",
		Value: "espresso",
		Filters: []docsearcher.TermFilter{
			{Field: "status", Value: "open"},
			{Field: "region", Value: "eu"},
		},
		SortField:      "createdAt",
		SortDirection:  docsearcher.Descending,
		WindowUnit:     docsearcher.Hours,
		WindowAmount:   6,
		Scroll:         time.Minute,
		Index:          "idx-orders",
		TimestampField: "timeStamp",
		Page:           2,
		PageSize:       50,
	}
	assert.Equal(t,
		docsearcher.CacheKey("SearchAll", params),
		docsearcher.CacheKey("SearchAll", params),
	)
}

func TestCacheKeySensitivity(t *testing.T) {
	base := docsearcher.CacheKeyParams{
		Field:        "title",
		Value:        "espresso",
		Filters:      []docsearcher.TermFilter{{Field: "status", Value: "open"}},
		WindowUnit:   docsearcher.Hours,
		WindowAmount: 6,
		Index:        "idx-orders",
		Page:         2,
		PageSize:     50,
	}
	key := docsearcher.CacheKey("SearchAll", base)

	variants := []docsearcher.CacheKeyParams{}
	for _, mutate := range []func(*docsearcher.CacheKeyParams){
		func(p *docsearcher.CacheKeyParams) { p.Field = "body" },
		func(p *docsearcher.CacheKeyParams) { p.Value = "ristretto" },
		func(p *docsearcher.CacheKeyParams) { p.Filters = nil },
		func(p *docsearcher.CacheKeyParams) { p.SortField = "createdAt" },
		func(p *docsearcher.CacheKeyParams) { p.WindowAmount = 12 },
		func(p *docsearcher.CacheKeyParams) { p.Scroll = time.Minute },
		func(p *docsearcher.CacheKeyParams) { p.Index = "idx-events" },
		func(p *docsearcher.CacheKeyParams) { p.TimestampField = "@timestamp" },
		func(p *docsearcher.CacheKeyParams) { p.Page = 3 },
		func(p *docsearcher.CacheKeyParams) { p.PageSize = 25 },
	} {
		v := base
		mutate(&v)
		variants = append(variants, v)
	}
	for _, v := range variants {
		assert.NotEqual(t, key, docsearcher.CacheKey("SearchAll", v))
	}

	assert.NotEqual(t, key, docsearcher.CacheKey("SearchPage", base))
}

// An unset string parameter and an explicitly empty one derive the same
// key. This mirrors the documented limitation of the scheme.
func TestCacheKeyEmptyEqualsAbsent(t *testing.T) {
	unset := docsearcher.CacheKeyParams{Index: "idx-orders"}
	empty := docsearcher.CacheKeyParams{Index: "idx-orders", Field: "", Value: ""}
	assert.Equal(t,
		docsearcher.CacheKey("SearchAll", unset),
		docsearcher.CacheKey("SearchAll", empty),
	)
}
