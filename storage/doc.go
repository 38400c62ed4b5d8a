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


// Package storage provides the index store abstraction for finrank.
//
// ChunkRepository is the only persisted collection: one record per chunk,
// keyed by the chunk's deterministic id, holding its text, embedding and
// metadata. Upsert overwrites by id, which makes re-ingesting a document
// idempotent.
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces so consumers cannot couple to a
// specific backend:
//
//	repo, err := badger.NewChunkRepository(backend)  // returns storage.ChunkRepository
//
// # Filtering
//
// Query and Fetch accept a Filter, a conjunction of exact-match metadata
// constraints. Only the fields listed in FilterFields are recognized; any
// other key fails with ErrInvalidQuery.
//
//	matches, err := repo.Query(ctx, vector, 60, storage.Filter{
//	    storage.FieldCompany:    "ACME",
//	    storage.FieldFilingType: "10-K",
//	})
//
// # Usage in Tests
//
//	repos, cleanup, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer cleanup()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
