// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package search ranks indexed chunks against a natural-language query.
//
// The Retriever runs a fixed pipeline:
//   - Embed the query and pull an over-fetched candidate set from the index,
//     honoring optional company and filing-type filters
//   - Convert cosine distance to similarity
//   - Boost candidates whose fiscal year matches a year named in the query
//   - Boost the most recent filings when the query asks for the latest data
//   - Re-sort by similarity and truncate
//
// Every tuning constant lives in Config. A ResultCache, when configured,
// short-circuits repeated queries until the index changes.
package search
