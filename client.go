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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
)

// ErrSystemIndex is returned by delete operations targeting an index
// with the reserved system prefix.
var ErrSystemIndex = errors.New("refusing to delete system index")

// deleteConcurrency bounds the fan-out of DeleteAllIndices.
const deleteConcurrency = 4

// Client bundles the bulk writer, the scroll engine and the query-driven
// search operations behind one Elasticsearch connection.
type Client struct {
	config  Config
	client  esapi.Transport
	writer  *BulkWriter
	metrics metrics
	tracer  trace.Tracer
}

// New returns a new Client. It is only tested with the v8
// go-elasticsearch client. Use other clients at your own risk.
func New(client elastictransport.Interface, cfg Config) (*Client, error) {
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
	c := &Client{
		config:  cfg,
		client:  client,
		metrics: ms,
	}
	c.writer = newBulkWriter(c.client, cfg, ms)
	if cfg.TracerProvider != nil {
		c.tracer = cfg.TracerProvider.Tracer("github.com/elastic/go-docsearcher")
	}
	return c, nil
}

// Writer returns the client's bulk writer for direct batch control.
func (c *Client) Writer() *BulkWriter {
	return c.writer
}

// ComposeQuery translates spec into a Query, filling an unset
// spec.TimestampField from Config.TimestampField before composing.
func (c *Client) ComposeQuery(spec QuerySpec) Query {
	if spec.TimestampField == "" {
		spec.TimestampField = c.config.TimestampField
	}
	return ComposeQuery(spec)
}

// Write appends doc to the pending batch, flushing when the batch reaches
// the configured threshold. Flush failures are returned to the caller and
// the batch stays queued.
func (c *Client) Write(ctx context.Context, doc Document, opts WriteOptions) error {
	return c.writer.Add(ctx, doc, opts)
}

// TryWrite is the best-effort variant of Write: flush failures are logged
// and swallowed. The failed batch still stays queued, so the documents are
// resubmitted on a later flush.
func (c *Client) TryWrite(ctx context.Context, doc Document, opts WriteOptions) {
	if err := c.writer.Add(ctx, doc, opts); err != nil {
		c.config.Logger.Error("best-effort write failed",
			zap.String("id", doc.ID),
			zap.Error(err),
		)
	}
}

// FlushRemaining submits whatever remains in the pending batch, even
// below the flush threshold.
func (c *Client) FlushRemaining(ctx context.Context, opts WriteOptions) error {
	return c.writer.FlushRemaining(ctx, opts)
}

// GetResult is the outcome of Find. Found distinguishes an absent
// document from a backend error, which Find returns separately.
type GetResult struct {
	Found bool
	Doc   Hit
}

// Find fetches a document by ID. An absent document is not an error:
// the result has Found unset and the returned error is nil.
//
// index may be empty to use Config.Index.
func (c *Client) Find(ctx context.Context, index, id string) (GetResult, error) {
	idx, err := c.resolveIndex(index)
	if err != nil {
		return GetResult{}, err
	}
	req := esapi.GetRequest{
		Index:      idx,
		DocumentID: id,
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return GetResult{}, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return GetResult{}, nil
	}
	if res.IsError() {
		return GetResult{}, backendError(res)
	}

	var out struct {
		ID     string          `json:"_id"`
		Index  string          `json:"_index"`
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := jsoniter.NewDecoder(res.Body).Decode(&out); err != nil {
		return GetResult{}, fmt.Errorf("error decoding get response: %w", err)
	}
	return GetResult{
		Found: out.Found,
		Doc:   Hit{ID: out.ID, Index: out.Index, Source: out.Source},
	}, nil
}

// ListIndices returns the names of all indices known to the backend.
func (c *Client) ListIndices(ctx context.Context) ([]string, error) {
	req := esapi.CatIndicesRequest{
		Format: "json",
		H:      []string{"index"},
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, backendError(res)
	}

	var rows []struct {
		Index string `json:"index"`
	}
	if err := jsoniter.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("error decoding cat indices response: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Index)
	}
	return names, nil
}

// DeleteIndex deletes the named index, reporting whether the backend
// acknowledged the deletion. Deleting an absent index is not an error.
// Names with the reserved system prefix are refused.
func (c *Client) DeleteIndex(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, ErrMissingIndex
	}
	if isSystemIndex(name) {
		return false, fmt.Errorf("%w: %s", ErrSystemIndex, name)
	}
	req := esapi.IndicesDeleteRequest{Index: []string{name}}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, backendError(res)
	}

	var out struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := jsoniter.NewDecoder(res.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("error decoding delete response: %w", err)
	}
	return out.Acknowledged, nil
}

// DeleteAllIndices deletes every non-system index known to the backend.
func (c *Client) DeleteAllIndices(ctx context.Context) error {
	names, err := c.ListIndices(ctx)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, name := range names {
		if isSystemIndex(name) {
			continue
		}
		g.Go(func() error {
			_, err := c.DeleteIndex(ctx, name)
			return err
		})
	}
	return g.Wait()
}

func (c *Client) resolveIndex(hint string) (string, error) {
	if hint != "" {
		return hint, nil
	}
	if c.config.Index != "" {
		return c.config.Index, nil
	}
	return "", ErrMissingIndex
}
