package processor

import (
	"os"
	"path/filepath"
)

type Cleanup struct {
	spoolRoot string
}

func NewCleanup(spoolRoot string) *Cleanup {
	return &Cleanup{spoolRoot: spoolRoot}
}

// CleanupBatch removes the local spool directory for a batch. Errors are
// ignored; a leftover spool dir is harmless and reclaimed on the next run.
func (c *Cleanup) CleanupBatch(batchID string) {
	if c.spoolRoot == "" || batchID == "" {
		return
	}
	_ = os.RemoveAll(filepath.Join(c.spoolRoot, "batches", batchID))
}
