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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elastic/go-docsearcher"
)

func TestMemoryCache(t *testing.T) {
	cache, err := docsearcher.NewMemoryCache(1 << 20)
	require.NoError(t, err)
	defer cache.Close()

	key := docsearcher.CacheKey("SearchAll", docsearcher.CacheKeyParams{Index: "idx-orders"})
	stored := docsearcher.CachedResult{
		Blob:    []byte(`[{"v":"a"},{"v":"b"}]`),
		TypeTag: "[]order",
	}
	require.True(t, cache.Set(key, stored))
	cache.Wait()

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, stored, got)

	_, ok = cache.Get("absent")
	assert.False(t, ok)
}
