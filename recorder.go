package amrsweep

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	DataTableFile = "data_table.txt"
	rowFormat     = "%.8e"
)

var (
	ErrAlreadyFlushed = errors.New("data table already written")
	ErrEmptyTable     = errors.New("data table has no rows")
)

// dataTable accumulates rows in measurement order and writes them out once.
type dataTable struct {
	withStd bool

	mu      sync.Mutex
	rows    []DataRow
	flushed bool
}

func newDataTable(withStd bool) *dataTable {
	return &dataTable{withStd: withStd}
}

func (t *dataTable) Append(row DataRow) {
	t.mu.Lock()
	t.rows = append(t.rows, row)
	t.mu.Unlock()
}

func (t *dataTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Rows returns a copy of the recorded rows.
func (t *dataTable) Rows() []DataRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DataRow, len(t.rows))
	copy(out, t.rows)
	return out
}

func (t *dataTable) header() string {
	cols := []string{"Angle", "R"}
	if t.withStd {
		cols = append(cols, "Std")
	}
	return "# " + strings.Join(cols, "\t\t")
}

// Flush writes every row to path. The file must not exist yet and its directory must.
func (t *dataTable) Flush(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.flushed {
		return ErrAlreadyFlushed
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating data table: %w", err)
	}
	t.flushed = true

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, t.header())
	for _, r := range t.rows {
		fields := []string{fmt.Sprintf(rowFormat, r.Angle), fmt.Sprintf(rowFormat, r.Resistance)}
		if t.withStd {
			fields = append(fields, fmt.Sprintf(rowFormat, r.StdDev))
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing data table: %w", err)
	}
	return f.Close()
}

// ReadDataTable loads a table written by Flush. Lines starting with # are skipped.
func ReadDataTable(path string) ([]DataRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []DataRow
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected at least 2 columns, got %d", path, line, len(fields))
		}
		vals := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			vals[i] = v
		}
		row := DataRow{Angle: vals[0], Resistance: vals[1]}
		if len(vals) > 2 {
			row.StdDev = vals[2]
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}
