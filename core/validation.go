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


package core

import (
	"fmt"
	"strings"
)

// NormalizeMetadata replaces missing metadata values with their sentinels.
// Writes are permissive: nothing is rejected, blanks become UnknownValue
// (or the empty string for Quarter).
func NormalizeMetadata(meta ChunkMetadata) ChunkMetadata {
	meta.Company = orUnknown(meta.Company)
	meta.SourceFile = orUnknown(meta.SourceFile)
	meta.FilingType = orUnknown(meta.FilingType)
	meta.FiscalYear = orUnknown(meta.FiscalYear)
	meta.Quarter = strings.TrimSpace(meta.Quarter)
	return meta
}

// NormalizeDocument applies the metadata sentinels to a document.
func NormalizeDocument(doc Document) Document {
	meta := NormalizeMetadata(ChunkMetadata{
		Company:    doc.Company,
		SourceFile: doc.SourceFile,
		FilingType: doc.FilingType,
		FiscalYear: doc.FiscalYear,
		Quarter:    doc.Quarter,
	})
	doc.Company = meta.Company
	doc.SourceFile = meta.SourceFile
	doc.FilingType = meta.FilingType
	doc.FiscalYear = meta.FiscalYear
	doc.Quarter = meta.Quarter
	return doc
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownValue
	}
	return s
}

// ValidateChunk validates a Chunk before it is written to the index.
//
// Validation rules:
//   - ID must not be empty
//   - Text must not be blank
//   - Vector must not be empty
//   - 0 <= ChunkIndex < TotalChunks
//
// Metadata strings are NOT validated; use NormalizeMetadata.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkID)
	}
	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingVector)
	}
	if chunk.Metadata.ChunkIndex < 0 || chunk.Metadata.ChunkIndex >= chunk.Metadata.TotalChunks {
		return fmt.Errorf("%w: %w: %d of %d", ErrInvalidChunk, ErrInvalidChunkIndex,
			chunk.Metadata.ChunkIndex, chunk.Metadata.TotalChunks)
	}
	return nil
}

// ValidateDocument checks that a document carries text to ingest.
func ValidateDocument(doc Document) error {
	if strings.TrimSpace(doc.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}
	return nil
}
