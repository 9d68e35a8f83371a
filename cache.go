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

import "github.com/dgraph-io/ristretto"

// CachedResult is an opaque serialized result plus a type tag. The caller
// decides the serialization and must match the tag on retrieval before
// decoding the blob; the cache never interprets either.
type CachedResult struct {
	Blob    []byte
	TypeTag string
}

// Cache is the optional collaborator callers may use to memoize search
// results under keys derived with CacheKey. None of the client operations
// read or write a cache themselves.
type Cache interface {
	Get(key string) (CachedResult, bool)
	Set(key string, result CachedResult) bool
}

// MemoryCache is an in-memory, size-bounded Cache.
type MemoryCache struct {
	cache *ristretto.Cache
}

// NewMemoryCache returns a MemoryCache bounded to roughly maxBytes of
// cached blobs.
func NewMemoryCache(maxBytes int64) (*MemoryCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: cache}, nil
}

func (c *MemoryCache) Get(key string) (CachedResult, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return CachedResult{}, false
	}
	result, ok := v.(CachedResult)
	return result, ok
}

func (c *MemoryCache) Set(key string, result CachedResult) bool {
	return c.cache.Set(key, result, int64(len(result.Blob)))
}

// Wait blocks until buffered writes have been applied. Mostly useful in
// tests, as ristretto applies Set asynchronously.
func (c *MemoryCache) Wait() {
	c.cache.Wait()
}

// Close releases the cache's internal resources.
func (c *MemoryCache) Close() {
	c.cache.Close()
}
