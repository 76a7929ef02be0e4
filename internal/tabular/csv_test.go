package tabular

import (
	"strings"
	"testing"
)

func TestReadRows(t *testing.T) {
	t.Run("header plus rows", func(t *testing.T) {
		input := "Name,Course,Date\nAlice,Go 101,2026-01-15\nBob,Go 102,2026-02-01\n"

		rows, columns, err := ReadRows(strings.NewReader(input))
		if err != nil {
			t.Fatalf("ReadRows failed: %v", err)
		}
		if len(columns) != 3 || columns[0] != "Name" {
			t.Errorf("columns = %v", columns)
		}
		if len(rows) != 2 {
			t.Fatalf("rows = %d, want 2", len(rows))
		}
		if got := rows[0].Get("Name"); got != "Alice" {
			t.Errorf("row 0 Name = %q, want Alice", got)
		}
		if got := rows[1].Get("Course"); got != "Go 102" {
			t.Errorf("row 1 Course = %q, want Go 102", got)
		}
	})

	t.Run("short records leave columns unset", func(t *testing.T) {
		rows, _, err := ReadRows(strings.NewReader("Name,Course\nAlice\n"))
		if err != nil {
			t.Fatalf("ReadRows failed: %v", err)
		}
		if got := rows[0].Get("Course"); got != "" {
			t.Errorf("Course = %q, want empty", got)
		}
	})

	t.Run("cell values are trimmed on Get", func(t *testing.T) {
		rows, _, err := ReadRows(strings.NewReader("Name\n  Alice  \n"))
		if err != nil {
			t.Fatalf("ReadRows failed: %v", err)
		}
		if got := rows[0].Get("Name"); got != "Alice" {
			t.Errorf("Name = %q, want Alice", got)
		}
	})

	t.Run("quoted cells with commas", func(t *testing.T) {
		rows, _, err := ReadRows(strings.NewReader("Name,Title\nAlice,\"Engineer, Staff\"\n"))
		if err != nil {
			t.Fatalf("ReadRows failed: %v", err)
		}
		if got := rows[0].Get("Title"); got != "Engineer, Staff" {
			t.Errorf("Title = %q", got)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		_, _, err := ReadRows(strings.NewReader(""))
		if err == nil || !strings.Contains(err.Error(), "empty") {
			t.Errorf("error = %v, want empty-file error", err)
		}
	})

	t.Run("header only gives zero rows", func(t *testing.T) {
		rows, columns, err := ReadRows(strings.NewReader("Name,Course\n"))
		if err != nil {
			t.Fatalf("ReadRows failed: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("rows = %d, want 0", len(rows))
		}
		if len(columns) != 2 {
			t.Errorf("columns = %v", columns)
		}
	})

	t.Run("missing column Get returns empty", func(t *testing.T) {
		rows, _, err := ReadRows(strings.NewReader("Name\nAlice\n"))
		if err != nil {
			t.Fatalf("ReadRows failed: %v", err)
		}
		if got := rows[0].Get("Nope"); got != "" {
			t.Errorf("Get(Nope) = %q, want empty", got)
		}
	})
}
