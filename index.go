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
	"strings"
	"time"
)

// systemIndexPrefix marks reserved system indices. Delete operations
// refuse to target them.
const systemIndexPrefix = "."

func isSystemIndex(name string) bool {
	return strings.HasPrefix(name, systemIndexPrefix)
}

// rollingIndexName derives a date-partitioned index name from base,
// using the UTC date of now. The date is placed after the base name
// unless prefix is set.
func rollingIndexName(base string, prefix bool, now time.Time) string {
	date := now.UTC().Format(rollingDateLayout)
	if prefix {
		return date + "-" + base
	}
	return base + "-" + date
}
