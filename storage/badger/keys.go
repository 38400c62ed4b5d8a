package badger

// Key prefixes for different data types
const (
	chunkPrefix        = "chk:"
	chunkCompanyPrefix = "chkco:"
)

// makeChunkKey generates the primary key for a chunk.
// Format: chk:<id>
func makeChunkKey(id string) []byte {
	return []byte(chunkPrefix + id)
}

// makeCompanyKey generates a composite key for the company index.
// Format: chkco:<company>\x00<id>
// The NUL separator keeps "ACME" from matching "ACME Holdings".
func makeCompanyKey(company, id string) []byte {
	buf := make([]byte, 0, len(chunkCompanyPrefix)+len(company)+1+len(id))
	buf = append(buf, chunkCompanyPrefix...)
	buf = append(buf, company...)
	buf = append(buf, 0)
	buf = append(buf, id...)
	return buf
}

// makePartialCompanyKey generates the scan prefix for one company.
// Format: chkco:<company>\x00
func makePartialCompanyKey(company string) []byte {
	buf := make([]byte, 0, len(chunkCompanyPrefix)+len(company)+1)
	buf = append(buf, chunkCompanyPrefix...)
	buf = append(buf, company...)
	return append(buf, 0)
}
