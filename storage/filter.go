package storage

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/poiesic/finrank/core"
)

// Recognized filter fields.
const (
	FieldCompany    = "company"
	FieldFilingType = "filing_type"
	FieldFiscalYear = "fiscal_year"
	FieldQuarter    = "quarter"
	FieldSourceFile = "source_file"
)

// FilterFields lists every field a Filter may constrain.
var FilterFields = []string{FieldCompany, FieldFilingType, FieldFiscalYear, FieldQuarter, FieldSourceFile}

// Filter is a conjunction of exact-match metadata constraints. An empty or
// nil Filter matches every chunk.
type Filter map[string]string

// Validate rejects unknown fields.
func (f Filter) Validate() error {
	for field := range f {
		if !slices.Contains(FilterFields, field) {
			return fmt.Errorf("%w: unknown filter field %q", ErrInvalidQuery, field)
		}
	}
	return nil
}

// Matches reports whether meta satisfies every constraint in f.
func (f Filter) Matches(meta core.ChunkMetadata) bool {
	for field, want := range f {
		if metadataField(meta, field) != want {
			return false
		}
	}
	return true
}

// Company returns the company constraint, if any.
func (f Filter) Company() (string, bool) {
	c, ok := f[FieldCompany]
	return c, ok
}

// String renders the filter with sorted keys, suitable for logging and
// cache keys.
func (f Filter) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return strings.Join(parts, ",")
}

func metadataField(meta core.ChunkMetadata, field string) string {
	switch field {
	case FieldCompany:
		return meta.Company
	case FieldFilingType:
		return meta.FilingType
	case FieldFiscalYear:
		return meta.FiscalYear
	case FieldQuarter:
		return meta.Quarter
	case FieldSourceFile:
		return meta.SourceFile
	}
	return ""
}
