package cluster

import (
	"fmt"

	"github.com/hurttlocker/recall/internal/record"
)

// fingerprintVersion prefixes every fingerprint. Bump it when the
// fingerprint scheme or the clustering algorithm changes, which invalidates
// every previously cached result at once.
const fingerprintVersion = "v1"

// Fingerprint derives the cache-invalidation token for a record set:
// "v1:<count>:<firstId>:<lastId>" in the caller's supplied ordering.
//
// This is a coarse signal, not a content hash: a reorder that keeps the
// first and last record in place does not change it. That approximation is
// accepted and documented, not a bug to fix silently.
func Fingerprint(records []record.Record) string {
	if len(records) == 0 {
		return fmt.Sprintf("%s:0::", fingerprintVersion)
	}
	return fmt.Sprintf("%s:%d:%s:%s",
		fingerprintVersion, len(records), records[0].ID, records[len(records)-1].ID)
}
