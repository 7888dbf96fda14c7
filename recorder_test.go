package amrsweep

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDataTableFlush(t *testing.T) {
	t.Run("round trip keeps order", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DataTableFile)
		table := newDataTable(false)
		in := []DataRow{{Angle: -10, Resistance: 100.5}, {Angle: 0, Resistance: 101.25}, {Angle: 10, Resistance: 99.75}}
		for _, r := range in {
			table.Append(r)
		}
		if err := table.Flush(path); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}

		out, err := ReadDataTable(path)
		if err != nil {
			t.Fatalf("ReadDataTable failed: %v", err)
		}
		if len(out) != len(in) {
			t.Fatalf("expected %d rows, got %d", len(in), len(out))
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("row %d = %+v, want %+v", i, out[i], in[i])
			}
		}
	})

	t.Run("header and std column", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DataTableFile)
		table := newDataTable(true)
		table.Append(DataRow{Angle: 5, Resistance: 12, StdDev: 0.5})
		if err := table.Flush(path); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(b)), "\n")
		if lines[0] != "# Angle\t\tR\t\tStd" {
			t.Errorf("header = %q", lines[0])
		}
		if lines[1] != "5.00000000e+00\t1.20000000e+01\t5.00000000e-01" {
			t.Errorf("row = %q", lines[1])
		}
	})

	t.Run("written only once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DataTableFile)
		table := newDataTable(false)
		table.Append(DataRow{Angle: 1, Resistance: 2})
		if err := table.Flush(path); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		if err := table.Flush(path); !errors.Is(err, ErrAlreadyFlushed) {
			t.Errorf("expected ErrAlreadyFlushed, got %v", err)
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DataTableFile)
		if err := os.WriteFile(path, []byte("old\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		table := newDataTable(false)
		if err := table.Flush(path); err == nil {
			t.Error("expected error for existing file")
		}
	})

	t.Run("missing directory", func(t *testing.T) {
		table := newDataTable(false)
		if err := table.Flush(filepath.Join(t.TempDir(), "nope", DataTableFile)); err == nil {
			t.Error("expected error for missing directory")
		}
	})

	t.Run("empty table writes header only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DataTableFile)
		if err := newDataTable(false).Flush(path); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		rows, err := ReadDataTable(path)
		if err != nil {
			t.Fatalf("ReadDataTable failed: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("expected no rows, got %d", len(rows))
		}
	})
}

func TestDataTableRowsIsCopy(t *testing.T) {
	table := newDataTable(false)
	table.Append(DataRow{Angle: 1, Resistance: 2})
	rows := table.Rows()
	rows[0].Resistance = 99
	if table.Rows()[0].Resistance != 2 {
		t.Error("Rows should return a copy")
	}
}

func TestReadDataTableRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), DataTableFile)
	if err := os.WriteFile(path, []byte("# Angle\t\tR\n1.0\tabc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadDataTable(path); err == nil {
		t.Error("expected parse error")
	}
}
