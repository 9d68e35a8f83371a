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
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/elastic/go-docsearcher"
	"github.com/elastic/go-docsearcher/docsearchertest"
)

func TestFind(t *testing.T) {
	client := newTestClient(t, docsearcher.Config{Index: "idx-orders"}, func(mux *http.ServeMux) {
		mux.HandleFunc("/{index}/_doc/{id}", func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "idx-orders", r.PathValue("index"))
			w.Header().Set("Content-Type", "application/json")
			switch r.PathValue("id") {
			case "known":
				w.Write([]byte(`{"_id":"known","_index":"idx-orders","found":true,"_source":{"v":"a"}}`))
			case "boom":
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":{"type":"internal_error","reason":"shard failure"},"status":500}`))
			default:
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"_id":"` + r.PathValue("id") + `","_index":"idx-orders","found":false}`))
			}
		})
	})

	found, err := client.Find(context.Background(), "", "known")
	require.NoError(t, err)
	assert.True(t, found.Found)
	assert.Equal(t, "known", found.Doc.ID)
	assert.JSONEq(t, `{"v":"a"}`, string(found.Doc.Source))

	absent, err := client.Find(context.Background(), "", "unknown")
	require.NoError(t, err)
	assert.False(t, absent.Found)

	_, err = client.Find(context.Background(), "", "boom")
	var berr *docsearcher.BackendError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "internal_error", berr.Type)
}

func TestWriteAndTryWrite(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	client := newTestClient(t, docsearcher.Config{
		Index:          "idx-orders",
		FlushThreshold: 1,
		Logger:         zap.New(core),
	}, func(mux *http.ServeMux) {
		docsearchertest.HandleBulk(mux, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"type":"unavailable","reason":"maintenance"},"status":503}`))
		})
	})

	// The explicit writer propagates the flush failure.
	err := client.Write(context.Background(), docsearcher.Document{ID: "a", Body: struct{}{}}, docsearcher.WriteOptions{})
	var berr *docsearcher.BackendError
	require.ErrorAs(t, err, &berr)

	// The best-effort writer logs and swallows it.
	client.TryWrite(context.Background(), docsearcher.Document{ID: "b", Body: struct{}{}}, docsearcher.WriteOptions{})
	assert.Len(t, observed.FilterMessage("best-effort write failed").All(), 1)

	// Either way the documents stay queued.
	assert.Equal(t, 2, client.Writer().Pending())
}

func TestDeleteIndex(t *testing.T) {
	var deleted []string
	client := newTestClient(t, docsearcher.Config{}, func(mux *http.ServeMux) {
		mux.HandleFunc("DELETE /{index}", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if r.PathValue("index") == "idx-gone" {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`))
				return
			}
			deleted = append(deleted, r.PathValue("index"))
			w.Write([]byte(`{"acknowledged":true}`))
		})
	})

	acknowledged, err := client.DeleteIndex(context.Background(), "idx-orders")
	require.NoError(t, err)
	assert.True(t, acknowledged)
	assert.Equal(t, []string{"idx-orders"}, deleted)

	// Deleting an absent index is not an error.
	acknowledged, err = client.DeleteIndex(context.Background(), "idx-gone")
	require.NoError(t, err)
	assert.False(t, acknowledged)
}

func TestDeleteIndexRefusesSystemPrefix(t *testing.T) {
	var requests int
	client := newTestClient(t, docsearcher.Config{}, func(mux *http.ServeMux) {
		mux.HandleFunc("DELETE /{index}", func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.Write([]byte(`{"acknowledged":true}`))
		})
	})

	_, err := client.DeleteIndex(context.Background(), ".security")
	assert.ErrorIs(t, err, docsearcher.ErrSystemIndex)
	assert.Zero(t, requests)
}

func TestDeleteAllIndices(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	client := newTestClient(t, docsearcher.Config{}, func(mux *http.ServeMux) {
		mux.HandleFunc("/_cat/indices", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]map[string]string{
				{"index": ".security"},
				{"index": "idx-orders"},
				{"index": "idx-events"},
			})
		})
		mux.HandleFunc("DELETE /{index}", func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			deleted = append(deleted, r.PathValue("index"))
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"acknowledged":true}`))
		})
	})

	require.NoError(t, client.DeleteAllIndices(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"idx-orders", "idx-events"}, deleted)
}

func TestListIndices(t *testing.T) {
	client := newTestClient(t, docsearcher.Config{}, func(mux *http.ServeMux) {
		mux.HandleFunc("/_cat/indices", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"index":"idx-a"},{"index":"idx-b"}]`))
		})
	})

	names, err := client.ListIndices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"idx-a", "idx-b"}, names)
}

func TestClientComposeQueryTimestampField(t *testing.T) {
	client := newTestClient(t, docsearcher.Config{TimestampField: "@timestamp"}, func(mux *http.ServeMux) {})

	window := &docsearcher.TimeWindow{Unit: docsearcher.Hours, Amount: 6}
	q := client.ComposeQuery(docsearcher.QuerySpec{Window: window})
	must := q.Query["bool"].(map[string]any)["must"].([]any)
	require.Len(t, must, 1)
	rng := must[0].(map[string]any)["range"].(map[string]any)
	assert.Contains(t, rng, "@timestamp")

	// A field named on the QuerySpec wins over the configured one.
	q = client.ComposeQuery(docsearcher.QuerySpec{Window: window, TimestampField: "created_at"})
	must = q.Query["bool"].(map[string]any)["must"].([]any)
	rng = must[0].(map[string]any)["range"].(map[string]any)
	assert.Contains(t, rng, "created_at")
	assert.NotContains(t, rng, "@timestamp")
}

func TestNewRequiresClient(t *testing.T) {
	_, err := docsearcher.New(nil, docsearcher.Config{})
	require.Error(t, err)
}
