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
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	jsoniter "github.com/json-iterator/go"
)

// Hit is a single document returned by a search, scroll or get request.
// Source is the document body as returned by the backend, undecoded.
type Hit struct {
	ID     string          `json:"_id"`
	Index  string          `json:"_index"`
	Source json.RawMessage `json:"_source"`
}

// BackendError reports a response the backend itself marked as failed.
// It is distinct from transport errors, which are returned unchanged,
// and from empty results, which are not errors at all.
type BackendError struct {
	StatusCode int
	Type       string
	Reason     string
}

func (e *BackendError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("elasticsearch returned %d (%s): %s", e.StatusCode, e.Type, e.Reason)
	}
	return fmt.Sprintf("elasticsearch returned %d", e.StatusCode)
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// decodeSearchResponse turns an esapi response into a searchResponse or a
// *BackendError. It is the single decode path shared by search, paged
// search and scroll advancement.
func decodeSearchResponse(res *esapi.Response) (searchResponse, error) {
	defer res.Body.Close()
	if res.IsError() {
		return searchResponse{}, backendError(res)
	}
	var out searchResponse
	if err := jsoniter.NewDecoder(res.Body).Decode(&out); err != nil {
		return searchResponse{}, fmt.Errorf("error decoding search response: %w", err)
	}
	return out, nil
}

// backendError decodes the error payload of a non-2xx response. The body
// is decoded best-effort: an unparseable payload still yields a
// *BackendError carrying the status code.
func backendError(res *esapi.Response) *BackendError {
	var payload errorResponse
	_ = jsoniter.NewDecoder(res.Body).Decode(&payload)
	return &BackendError{
		StatusCode: res.StatusCode,
		Type:       payload.Error.Type,
		Reason:     payload.Error.Reason,
	}
}
