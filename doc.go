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

// Package docsearcher provides a thin client layer over Elasticsearch for
// threshold-buffered bulk writes, scroll-based retrieval of large result
// sets, and declarative query composition.
//
// The package intentionally performs no retries and runs no background
// goroutines: every flush, search and scroll advance happens on the
// caller's goroutine, when the caller invokes it. Retry policy, if any,
// belongs to the caller.
package docsearcher
