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


// Package cache holds search result caches.
//
// Memory is an in-process TTL cache backed by ristretto. Redis shares cached
// results between processes. Both satisfy search.ResultCache and are keyed
// by Key, a BLAKE2b digest of the normalized search request.
//
// Invalidate must be called after every index write so a cached answer
// never outlives the data it was computed from.
package cache
