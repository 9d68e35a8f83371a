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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultFlushThreshold = 5
	defaultPageSize       = 100
	defaultScrollTTL      = time.Minute
	defaultTimestampField = "timeStamp"

	// rollingDateLayout formats the UTC date component of a rolling index
	// name, e.g. "idx-orders-2024.03.05".
	rollingDateLayout = "2006.01.02"
)

// Config holds configuration for Client and BulkWriter.
//
// All fields are fixed at construction time; mutating a Config after it has
// been passed to New or NewBulkWriter has no effect.
type Config struct {
	// Logger holds an optional Logger to use for logging write and
	// search requests.
	//
	// All Elasticsearch errors will be logged at error level, including
	// the full per-item error payload of failed bulk requests.
	//
	// If Logger is nil, logging will be disabled.
	Logger *zap.Logger

	// Index holds the default index documents are written to and searches
	// run against, used when no per-call index is given.
	Index string

	// FlushThreshold holds the number of buffered documents that triggers
	// a bulk flush during Add. A threshold of 1 flushes on every Add.
	//
	// If FlushThreshold is zero, the default of 5 will be used; zero does
	// not mean "flush on every Add".
	FlushThreshold int

	// RollingIndex appends a UTC yyyy.MM.dd date component to the index
	// name of every flush, partitioning write volume by day. The date is
	// recomputed per flush, never cached across date boundaries.
	RollingIndex bool

	// RollingIndexPrefix places the date component before the base index
	// name rather than after it. Only meaningful with RollingIndex.
	RollingIndexPrefix bool

	// TimestampField holds the document field name used for time-window
	// range clauses produced by Client.ComposeQuery, unless the QuerySpec
	// names its own field.
	//
	// If TimestampField is empty, "timeStamp" will be used.
	TimestampField string

	// CompressionLevel holds the gzip compression level for bulk request
	// bodies, from 0 (gzip.NoCompression) to 9 (gzip.BestCompression).
	// The special value -1 (gzip.DefaultCompression) selects the default
	// compression level.
	CompressionLevel int

	// Pipeline holds the ingest pipeline ID.
	//
	// If Pipeline is empty, no ingest pipeline will be specified in the
	// Bulk request.
	Pipeline string

	// PageSize holds the default page size for searches and scrolls when
	// SearchOptions does not specify one.
	//
	// If PageSize is zero, the default of 100 will be used.
	PageSize int

	// ScrollTTL holds the default keep-alive requested for scroll cursors
	// when SearchOptions does not specify one.
	//
	// If ScrollTTL is zero, the default of one minute will be used.
	ScrollTTL time.Duration

	// MeterProvider holds the OTel MeterProvider to be used to create and
	// record metrics.
	//
	// If unset, the global OTel MeterProvider will be used, if that is
	// unset, no metrics will be recorded.
	MeterProvider metric.MeterProvider

	// MetricAttributes holds any extra attributes to set in the recorded
	// metrics.
	MetricAttributes attribute.Set

	// TracerProvider holds an optional OTel TracerProvider. When set,
	// bulk flushes and full-drain searches are traced.
	//
	// If TracerProvider is nil, requests will not be traced.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns cfg with unset fields replaced by their defaults.
func DefaultConfig(cfg Config) Config {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = defaultFlushThreshold
	}
	if cfg.TimestampField == "" {
		cfg.TimestampField = defaultTimestampField
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.ScrollTTL <= 0 {
		cfg.ScrollTTL = defaultScrollTTL
	}
	return cfg
}
