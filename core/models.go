package core

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// UnknownValue is stored in place of missing company, filing type,
	// fiscal year and source file metadata.
	UnknownValue = "Unknown"
)

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// SanitizeSourceStem reduces a source file name to its stem with every
// character outside [A-Za-z0-9_-] replaced by an underscore.
func SanitizeSourceStem(sourceFile string) string {
	base := filepath.Base(sourceFile)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return unsafeIDChars.ReplaceAllString(stem, "_")
}

// ChunkID builds the deterministic identity of a chunk from its company,
// source file and position. Re-ingesting the same file yields the same ids.
func ChunkID(company, sourceFile string, index int) string {
	return fmt.Sprintf("%s_%s_chunk%04d", company, SanitizeSourceStem(sourceFile), index)
}

// ChunkMetadata describes where a chunk came from.
type ChunkMetadata struct {
	Company     string
	SourceFile  string
	FilingType  string
	FiscalYear  string
	Quarter     string
	ChunkIndex  int
	TotalChunks int
}

// Chunk is a contiguous window of document text together with its embedding.
// It is the only persisted entity.
type Chunk struct {
	ID        string
	Text      string
	Vector    []float32 // Embedding vector (populated by the ingestor)
	Metadata  ChunkMetadata
	IndexedAt time.Time // When the chunk was last written
}

// Document is a normalized plain-text source document handed to ingestion.
type Document struct {
	SourceFile string
	Company    string
	FilingType string
	FiscalYear string
	Quarter    string
	Text       string
}

// Match is a nearest-neighbor candidate returned by the index.
type Match struct {
	Chunk    *Chunk
	Distance float64 // Cosine distance, 1 - cosine similarity
}

// Result is a ranked search hit exposed to downstream consumers.
type Result struct {
	Content    string  `json:"content"`
	Company    string  `json:"company"`
	Source     string  `json:"source"`
	FilingType string  `json:"filing_type"`
	FiscalYear string  `json:"fiscal_year"`
	Quarter    string  `json:"quarter"`
	Similarity float64 `json:"similarity"`
}

// CollectionStats summarizes the contents of the index.
type CollectionStats struct {
	Total       int
	Companies   map[string]int
	FilingTypes map[string]int
}
