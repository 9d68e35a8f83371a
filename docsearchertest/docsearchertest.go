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

// Package docsearchertest provides mock Elasticsearch servers for testing
// go-docsearcher against scripted backend behavior.
package docsearchertest

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// DecodeBulkRequest decodes a /_bulk request's body, returning the decoded
// documents and a response body.
func DecodeBulkRequest(r *http.Request) ([][]byte, esutil.BulkIndexerResponse) {
	body := r.Body
	switch r.Header.Get("Content-Encoding") {
	case "gzip":
		r, err := gzip.NewReader(body)
		if err != nil {
			panic(err)
		}
		defer r.Close()
		body = r
	}

	scanner := bufio.NewScanner(body)
	var indexed [][]byte
	var result esutil.BulkIndexerResponse
	for scanner.Scan() {
		action := make(map[string]interface{})
		if err := json.NewDecoder(strings.NewReader(scanner.Text())).Decode(&action); err != nil {
			panic(err)
		}
		var actionType string
		for actionType = range action {
		}
		if !scanner.Scan() {
			panic("expected source")
		}

		doc := append([]byte{}, scanner.Bytes()...)
		if !json.Valid(doc) {
			panic(fmt.Errorf("invalid JSON: %s", doc))
		}
		indexed = append(indexed, doc)

		item := esutil.BulkIndexerResponseItem{Status: http.StatusCreated}
		result.Items = append(result.Items, map[string]esutil.BulkIndexerResponseItem{actionType: item})
	}
	return indexed, result
}

// NewMockElasticsearchClient starts an httptest.Server configured by
// configure, and returns an elasticsearch.Client pointed at it. The
// server is closed via t.Cleanup.
func NewMockElasticsearchClient(t testing.TB, configure func(mux *http.ServeMux)) *elasticsearch.Client {
	mux := http.NewServeMux()
	configure(mux)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	config := elasticsearch.Config{}
	config.Addresses = []string{srv.URL}
	config.DisableRetry = true
	client, err := elasticsearch.NewClient(config)
	require.NoError(t, err)
	return client
}

// HandleBulk registers bulkHandler with mux for handling /_bulk and
// /{index}/_bulk requests.
func HandleBulk(mux *http.ServeMux, bulkHandler http.HandlerFunc) {
	mux.HandleFunc("/_bulk", bulkHandler)
	mux.HandleFunc("/{index}/_bulk", bulkHandler)
}

// ScrollServer serves search and scroll requests from a fixed sequence of
// pages, counting every request it handles. Page sources are raw JSON
// document bodies; document IDs are synthesized sequentially.
type ScrollServer struct {
	mu    sync.Mutex
	pages [][]string
	next  int

	// OmitScrollID leaves the cursor handle out of every response,
	// simulating a backend that returns no cursor.
	OmitScrollID bool

	// FailAdvance makes the Nth scroll advance fail with a 500 response;
	// zero never fails.
	FailAdvance int

	// Searches, Advances and Clears count the requests handled.
	Searches int
	Advances int
	Clears   int
}

// NewScrollServer returns a ScrollServer serving the given pages in
// order: the first page from the initial search, the rest from scroll
// advances, then empty pages.
func NewScrollServer(pages ...[]string) *ScrollServer {
	return &ScrollServer{pages: pages}
}

// Install registers the server's search, scroll and clear-scroll handlers
// with mux.
func (s *ScrollServer) Install(mux *http.ServeMux) {
	mux.HandleFunc("/{index}/_search", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.Searches++
		s.next = 0
		s.writePage(w, r.PathValue("index"))
	})
	scrollHandler := func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if r.Method == http.MethodDelete {
			s.Clears++
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"succeeded":true,"num_freed":1}`))
			return
		}
		s.Advances++
		if s.FailAdvance > 0 && s.Advances == s.FailAdvance {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"type":"search_phase_execution_exception","reason":"scroll context gone"},"status":500}`))
			return
		}
		s.writePage(w, "scrolled")
	}
	mux.HandleFunc("/_search/scroll", scrollHandler)
	// ClearScrollRequest appends the scroll ID to the path.
	mux.HandleFunc("/_search/scroll/{id}", scrollHandler)
}

func (s *ScrollServer) writePage(w http.ResponseWriter, index string) {
	var hits []map[string]any
	if s.next < len(s.pages) {
		page := s.pages[s.next]
		hits = make([]map[string]any, 0, len(page))
		for i, source := range page {
			hits = append(hits, map[string]any{
				"_id":     fmt.Sprintf("doc-%d-%d", s.next, i),
				"_index":  index,
				"_source": json.RawMessage(source),
			})
		}
	}
	s.next++

	resp := map[string]any{
		"hits": map[string]any{"hits": hits},
	}
	if !s.OmitScrollID {
		resp["_scroll_id"] = "scroll-0"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
