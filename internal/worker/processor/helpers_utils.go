package processor

import (
	"fmt"
	"strings"
)

// ArchiveKey returns the object key for a batch's finished archive.
func ArchiveKey(batchID string) string {
	return fmt.Sprintf("batches/%s/certificates.zip", batchID)
}

// NullIfEmpty returns nil for blank strings, for nullable DB columns.
func NullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
