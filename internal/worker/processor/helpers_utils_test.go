package processor

import "testing"

func TestArchiveKey(t *testing.T) {
	if got := ArchiveKey("bat_123"); got != "batches/bat_123/certificates.zip" {
		t.Errorf("ArchiveKey = %q", got)
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := NullIfEmpty("  "); v != nil {
		t.Errorf("NullIfEmpty(blank) = %v, want nil", v)
	}
	if v := NullIfEmpty("x"); v != "x" {
		t.Errorf("NullIfEmpty(x) = %v", v)
	}
}
