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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.elastic.co/fastjson"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
)

// ErrMissingIndex is returned when a write resolves no target index:
// neither the per-call index nor Config.Index is set.
var ErrMissingIndex = errors.New("missing index name")

// Document is a single record to be written. Body is serialized with JSON
// at flush time. ID is the document identity used for deduplication; an
// empty ID means the document has no identity and is never deduplicated.
type Document struct {
	ID   string
	Body any
}

// WriteOptions control a single write or flush.
type WriteOptions struct {
	// Index overrides Config.Index as the flush destination. When the
	// writer is configured with RollingIndex, the date component is
	// applied on top of this value.
	Index string

	// AllowDuplicates submits every pending document even when several
	// share an ID. When false, documents are deduplicated by ID before
	// submission, the most recently added body winning.
	AllowDuplicates bool
}

// BulkFailureItem is one failed operation from a bulk response.
type BulkFailureItem struct {
	Index    string `json:"_index"`
	Status   int    `json:"status"`
	Position int    `json:"-"`

	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

// BulkFailure reports per-item errors from a bulk request. The pending
// batch is retained when a flush returns a BulkFailure, so every document
// of the batch will be resubmitted on the next flush.
type BulkFailure struct {
	Total int
	Items []BulkFailureItem
}

func (e *BulkFailure) Error() string {
	return fmt.Sprintf("bulk write failed for %d of %d documents", len(e.Items), e.Total)
}

// BulkWriter buffers documents in memory and writes them to Elasticsearch
// in bulk once the pending batch reaches the configured flush threshold.
//
// The pending batch is cleared only on confirmed success: after a partial
// or total failure every document stays queued and is resubmitted on the
// next flush, an at-least-once policy. Callers that must avoid duplicate
// writes on retry should give their documents stable IDs.
//
// BulkWriter serializes Add and FlushRemaining internally, so a single
// instance may be shared by concurrent goroutines.
type BulkWriter struct {
	config  Config
	client  esapi.Transport
	metrics metrics

	mu      sync.Mutex
	pending []Document
	jsonw   fastjson.Writer
	writer  io.Writer
	gzipw   *gzip.Writer
	buf     bytes.Buffer
}

// NewBulkWriter returns a BulkWriter that issues bulk requests to
// Elasticsearch. It is only tested with the v8 go-elasticsearch client.
func NewBulkWriter(client esapi.Transport, cfg Config) (*BulkWriter, error) {
	if client == nil {
		return nil, errors.New("client is nil")
	}
	cfg = DefaultConfig(cfg)
	if cfg.CompressionLevel < -1 || cfg.CompressionLevel > 9 {
		return nil, fmt.Errorf(
			"expected CompressionLevel in range [-1,9], got %d",
			cfg.CompressionLevel,
		)
	}
	ms, err := newMetrics(cfg)
	if err != nil {
		return nil, err
	}
	return newBulkWriter(client, cfg, ms), nil
}

func newBulkWriter(client esapi.Transport, cfg Config, ms metrics) *BulkWriter {
	w := &BulkWriter{
		config:  cfg,
		client:  client,
		metrics: ms,
	}
	if cfg.CompressionLevel != gzip.NoCompression {
		w.gzipw, _ = gzip.NewWriterLevel(&w.buf, cfg.CompressionLevel)
		w.writer = w.gzipw
	} else {
		w.writer = &w.buf
	}
	return w
}

// Add appends doc to the pending batch and flushes the batch if it has
// reached the flush threshold. The flush happens on the caller's
// goroutine before Add returns.
//
// Flush errors leave the batch queued; see BulkFailure.
func (w *BulkWriter) Add(ctx context.Context, doc Document, opts WriteOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, doc)
	w.metrics.docsAdded.Add(context.Background(), 1, metric.WithAttributeSet(w.config.MetricAttributes))
	if len(w.pending) < w.config.FlushThreshold {
		return nil
	}
	return w.flushLocked(ctx, opts)
}

// FlushRemaining submits whatever remains in the pending batch, even
// below the flush threshold. Flushing an empty batch is a no-op.
func (w *BulkWriter) FlushRemaining(ctx context.Context, opts WriteOptions) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx, opts)
}

// Pending returns the number of buffered documents.
func (w *BulkWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *BulkWriter) flushLocked(ctx context.Context, opts WriteOptions) error {
	if len(w.pending) == 0 {
		return nil
	}
	index, err := w.targetIndex(opts.Index)
	if err != nil {
		return err
	}

	batch := w.pending
	if !opts.AllowDuplicates {
		batch = dedupe(batch)
	}
	if err := w.encode(batch); err != nil {
		w.resetBuf()
		return err
	}
	if w.gzipw != nil {
		if err := w.gzipw.Close(); err != nil {
			w.resetBuf()
			return fmt.Errorf("failed closing the gzip writer: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Index:      index,
		Body:       &w.buf,
		Header:     make(http.Header),
		FilterPath: []string{"errors", "items.*._index", "items.*.status", "items.*.error.type", "items.*.error.reason"},
		Pipeline:   w.config.Pipeline,
	}
	if w.gzipw != nil {
		req.Header.Set("Content-Encoding", "gzip")
	}

	attrs := metric.WithAttributeSet(w.config.MetricAttributes)
	t0 := time.Now()
	res, err := req.Do(ctx, w.client)
	w.resetBuf()
	w.metrics.bulkRequests.Add(context.Background(), 1, attrs)
	w.metrics.flushDuration.Record(context.Background(), time.Since(t0).Seconds(), attrs)
	if err != nil {
		// Transport failure: log, keep the batch queued and return the
		// error unchanged. Retrying is the caller's decision.
		w.config.Logger.Error("bulk write request failed",
			zap.String("index", index),
			zap.Int("documents", len(batch)),
			zap.Error(err),
		)
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		berr := backendError(res)
		w.config.Logger.Error("bulk write rejected",
			zap.String("index", index),
			zap.Int("documents", len(batch)),
			zap.Error(berr),
		)
		return berr
	}

	var resp bulkResponse
	if err := jsoniter.NewDecoder(res.Body).Decode(&resp); err != nil {
		return fmt.Errorf("error decoding bulk response: %w", err)
	}
	if failure := resp.failure(len(batch)); failure != nil {
		w.metrics.docsFailed.Add(context.Background(), int64(len(failure.Items)), attrs)
		w.metrics.docsIndexed.Add(context.Background(), int64(failure.Total-len(failure.Items)), attrs)
		w.config.Logger.Error("bulk write reported per-item failures",
			zap.String("index", index),
			zap.Int("documents", len(batch)),
			zap.Any("items", failure.Items),
		)
		return failure
	}

	w.metrics.docsIndexed.Add(context.Background(), int64(len(batch)), attrs)
	w.pending = w.pending[:0]
	w.config.Logger.Debug("bulk write completed",
		zap.String("index", index),
		zap.Int("documents", len(batch)),
	)
	return nil
}

func (w *BulkWriter) targetIndex(hint string) (string, error) {
	base := hint
	if base == "" {
		base = w.config.Index
	}
	if base == "" {
		return "", ErrMissingIndex
	}
	if w.config.RollingIndex {
		return rollingIndexName(base, w.config.RollingIndexPrefix, timeNow()), nil
	}
	return base, nil
}

func (w *BulkWriter) encode(batch []Document) error {
	for _, doc := range batch {
		w.writeMeta(doc.ID)
		body, err := jsoniter.Marshal(doc.Body)
		if err != nil {
			return fmt.Errorf("failed to encode document %q: %w", doc.ID, err)
		}
		if _, err := w.writer.Write(body); err != nil {
			return fmt.Errorf("failed to write bulk item: %w", err)
		}
		if _, err := w.writer.Write([]byte("\n")); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}
	return nil
}

func (w *BulkWriter) writeMeta(documentID string) {
	w.jsonw.RawString(`{"index":{`)
	if documentID != "" {
		w.jsonw.RawString(`"_id":`)
		w.jsonw.String(documentID)
	}
	w.jsonw.RawString("}}\n")
	w.writer.Write(w.jsonw.Bytes())
	w.jsonw.Reset()
}

func (w *BulkWriter) resetBuf() {
	w.buf.Reset()
	if w.gzipw != nil {
		w.gzipw.Reset(&w.buf)
	}
}

// dedupe collapses documents sharing an ID to a single operation, keeping
// the position of the first occurrence and the body of the last.
func dedupe(docs []Document) []Document {
	seen := make(map[string]int, len(docs))
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			out = append(out, d)
			continue
		}
		if i, ok := seen[d.ID]; ok {
			out[i] = d
			continue
		}
		seen[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]BulkFailureItem `json:"items"`
}

// failure extracts the failed items of a bulk response, or nil when every
// operation succeeded.
func (r *bulkResponse) failure(total int) *BulkFailure {
	if !r.Errors {
		return nil
	}
	out := &BulkFailure{Total: total}
	for i, actions := range r.Items {
		for _, item := range actions {
			if item.Error.Type != "" || item.Status > 201 {
				item.Position = i
				out.Items = append(out.Items, item)
			}
		}
	}
	if len(out.Items) == 0 {
		return nil
	}
	return out
}
