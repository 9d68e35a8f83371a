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
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
)

// ErrScrollClosed is returned by Next on a Scroll that has been closed,
// or that never held a cursor.
var ErrScrollClosed = errors.New("scroll closed")

// SearchOptions control a search or scroll. Zero values fall back to the
// Config defaults.
type SearchOptions struct {
	// PageSize is the number of documents requested per page.
	PageSize int

	// TTL is the cursor keep-alive requested from the backend on open
	// and renewed on every advance.
	TTL time.Duration
}

// Scroll is an open cursor over a paged result stream. A Scroll is bound
// to one logical scroll session: it must not be advanced from multiple
// goroutines concurrently, and it must be closed when scrolling ends, by
// exhaustion or otherwise, to release the backend cursor.
type Scroll struct {
	client  esapi.Transport
	config  Config
	metrics metrics
	id      string
	ttl     time.Duration
	closed  bool
}

// Active reports whether the scroll still holds a live cursor.
func (s *Scroll) Active() bool {
	return !s.closed
}

// Next fetches the next page. An empty page means the stream is
// exhausted; it is not an error. A *BackendError means the cursor is
// broken and will not be retried; the caller should still Close.
func (s *Scroll) Next(ctx context.Context) ([]Hit, error) {
	if s.closed {
		return nil, ErrScrollClosed
	}
	req := esapi.ScrollRequest{
		ScrollID: s.id,
		Scroll:   s.ttl,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	out, err := decodeSearchResponse(res)
	if err != nil {
		return nil, err
	}
	if out.ScrollID != "" {
		s.id = out.ScrollID
	}
	if len(out.Hits.Hits) > 0 {
		s.metrics.pagesFetched.Add(context.Background(), 1, metric.WithAttributeSet(s.config.MetricAttributes))
	}
	return out.Hits.Hits, nil
}

// Close releases the backend cursor. Closing an already-closed Scroll is
// a no-op returning nil.
func (s *Scroll) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.id == "" {
		return nil
	}
	req := esapi.ClearScrollRequest{ScrollID: []string{s.id}}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		s.config.Logger.Warn("failed to clear scroll", zap.Error(err))
		return err
	}
	res.Body.Close()
	s.metrics.scrollsClosed.Add(context.Background(), 1, metric.WithAttributeSet(s.config.MetricAttributes))
	return nil
}

// OpenScroll runs q against index and opens a cursor over the result,
// returning the first page. When the backend returns no cursor, or the
// index does not exist, the result is empty and the returned Scroll is
// already closed; this is not an error.
//
// index may be empty to use Config.Index.
func (c *Client) OpenScroll(ctx context.Context, index string, q Query, opts SearchOptions) ([]Hit, *Scroll, error) {
	opts = c.searchOptions(opts)
	out, err := c.runSearch(ctx, index, q, 0, opts.PageSize, opts.TTL)
	if err != nil {
		var berr *BackendError
		if errors.As(err, &berr) && berr.StatusCode == http.StatusNotFound {
			return nil, &Scroll{closed: true, config: c.config}, nil
		}
		return nil, nil, err
	}
	if out.ScrollID == "" {
		// No cursor came back: the destination is missing or empty.
		return nil, &Scroll{closed: true, config: c.config}, nil
	}
	s := &Scroll{
		client:  c.client,
		config:  c.config,
		metrics: c.metrics,
		id:      out.ScrollID,
		ttl:     opts.TTL,
	}
	c.metrics.scrollsOpened.Add(context.Background(), 1, metric.WithAttributeSet(c.config.MetricAttributes))
	return out.Hits.Hits, s, nil
}

// SearchAll drains q against index: it opens a cursor and advances it
// until the stream is exhausted, concatenating every page in arrival
// order. The cursor is released exactly once, also when an advance fails
// mid-stream; in that case the documents collected so far are returned
// together with the error.
func (c *Client) SearchAll(ctx context.Context, index string, q Query, opts SearchOptions) ([]Hit, error) {
	var span trace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "docsearcher.search_all")
		defer span.End()
	}
	recordError := func(err error) {
		if span != nil && span.IsRecording() {
			span.RecordError(err)
			span.SetStatus(codes.Error, "search drain failed")
		}
	}

	hits, scroll, err := c.OpenScroll(ctx, index, q, opts)
	if err != nil {
		recordError(err)
		return nil, err
	}
	// Release the cursor even when the caller's context is already
	// cancelled; a leaked cursor holds backend resources until its TTL.
	defer scroll.Close(context.WithoutCancel(ctx))

	all := hits
	for scroll.Active() {
		page, err := scroll.Next(ctx)
		if err != nil {
			recordError(err)
			return all, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
	}
	if span != nil && span.IsRecording() {
		span.SetAttributes(attribute.Int("documents", len(all)))
		span.SetStatus(codes.Ok, "")
	}
	return all, nil
}

// SearchPage runs q against index and returns a single page of results
// using offset pagination. Page numbers and sizes below 1 are clamped to
// 1. Intended for small, bounded result sets; use SearchAll to retrieve
// unbounded ones.
func (c *Client) SearchPage(ctx context.Context, index string, q Query, page, size int) ([]Hit, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	out, err := c.runSearch(ctx, index, q, (page-1)*size, size, 0)
	if err != nil {
		return nil, err
	}
	return out.Hits.Hits, nil
}

// runSearch is the single page-fetch primitive behind OpenScroll,
// SearchAll and SearchPage. A non-zero scroll duration requests a cursor.
func (c *Client) runSearch(ctx context.Context, index string, q Query, from, size int, scroll time.Duration) (searchResponse, error) {
	idx, err := c.resolveIndex(index)
	if err != nil {
		return searchResponse{}, err
	}
	body := map[string]any{"query": q.Query}
	if len(q.Sort) > 0 {
		body["sort"] = q.Sort
	}
	payload, err := jsoniter.Marshal(body)
	if err != nil {
		return searchResponse{}, err
	}

	req := esapi.SearchRequest{
		Index:  []string{idx},
		Body:   bytes.NewReader(payload),
		From:   esapi.IntPtr(from),
		Size:   esapi.IntPtr(size),
		Scroll: scroll,
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		c.config.Logger.Error("search request failed",
			zap.String("index", idx),
			zap.Error(err),
		)
		return searchResponse{}, err
	}
	out, err := decodeSearchResponse(res)
	if err != nil {
		return searchResponse{}, err
	}
	if len(out.Hits.Hits) > 0 {
		c.metrics.pagesFetched.Add(context.Background(), 1, metric.WithAttributeSet(c.config.MetricAttributes))
	}
	return out, nil
}

func (c *Client) searchOptions(opts SearchOptions) SearchOptions {
	if opts.PageSize <= 0 {
		opts.PageSize = c.config.PageSize
	}
	if opts.TTL <= 0 {
		opts.TTL = c.config.ScrollTTL
	}
	return opts
}
