package cache

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// Key digests a search request. Query whitespace and case are normalized
// so trivially different spellings share an entry.
func Key(query, company, filingType string, limit int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")

	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	for _, part := range []string{normalized, company, filingType, strconv.Itoa(limit)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cloneResults[T any](in []*T) []*T {
	out := make([]*T, len(in))
	for i, r := range in {
		c := *r
		out[i] = &c
	}
	return out
}
