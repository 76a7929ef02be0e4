// Package archive streams rendered documents into a zip file as they arrive.
// Entries are written straight through to the sink, so the download starts
// before the batch finishes and memory stays flat regardless of batch size.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// Streamer owns the output sink for the duration of one batch. It is not
// safe for concurrent use; the orchestrator serializes entries into it.
type Streamer struct {
	zw     *zip.Writer
	names  map[string]bool
	closed bool
}

// NewStreamer wraps sink in a zip writer. The sink is not closed by the
// streamer; owning it remains the caller's job.
func NewStreamer(sink io.Writer) *Streamer {
	return &Streamer{
		zw:    zip.NewWriter(sink),
		names: make(map[string]bool),
	}
}

// Add writes one complete entry. Names must be unique; use an EntryNamer to
// derive them.
func (s *Streamer) Add(name string, data []byte) error {
	if s.closed {
		return fmt.Errorf("archive already finalized")
	}
	if s.names[name] {
		return fmt.Errorf("duplicate archive entry %q", name)
	}

	w, err := s.zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("create archive entry %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write archive entry %q: %w", name, err)
	}

	s.names[name] = true
	return nil
}

// Close writes the central directory. Until Close succeeds the sink does not
// contain a valid archive, so an aborted batch must not call it.
func (s *Streamer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.zw.Close()
}

// EntryNamer derives deterministic, collision-free entry names for one
// batch. Not safe for concurrent use.
type EntryNamer struct {
	ext  string
	used map[string]int
}

// NewEntryNamer creates a namer appending ext (e.g. ".pdf") to every name.
func NewEntryNamer(ext string) *EntryNamer {
	return &EntryNamer{ext: ext, used: make(map[string]int)}
}

// Name derives the entry name for a row: the sanitized preferred name when
// non-empty, otherwise certificate_<rowIndex+1>. The second and later rows
// that sanitize to the same base get a numeric suffix, so the same input
// batch always produces the same names.
func (n *EntryNamer) Name(preferred string, rowIndex int) string {
	base := Sanitize(preferred)
	if base == "" {
		base = fmt.Sprintf("certificate_%d", rowIndex+1)
	}

	n.used[base]++
	final := base
	if c := n.used[base]; c > 1 {
		final = fmt.Sprintf("%s_%d", base, c)
	}
	// A suffixed name can still collide with a row literally named that
	// way; keep counting until the name is free.
	for n.used[final] > 0 && final != base {
		n.used[base]++
		final = fmt.Sprintf("%s_%d", base, n.used[base])
	}
	if final != base {
		n.used[final]++
	}
	return final + n.ext
}

// Sanitize reduces a name to the safe filename character set: letters,
// digits and underscore. Everything else becomes an underscore.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
