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


// Package reembed rewrites the vector of every stored chunk with the
// current embedder.
//
// Run it after switching embedding models: vectors from different models
// are not comparable, and the index skips candidates whose dimension does
// not match the query vector. Chunk ids, text and metadata are preserved.
//
// Chunks are processed in id order in batches. A failed batch stops the
// run; batches already written keep their new vectors, so rerunning
// completes the job.
package reembed
