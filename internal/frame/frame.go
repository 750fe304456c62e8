// Package frame holds the in-memory tabular buffer produced by transform
// capabilities and the cleaning engine applied to it. Cells are always
// text; a key absent from a record is a null cell.
package frame

import (
	"io"
	"strings"
)

// Record is one row, keyed by column name. Missing keys are null cells.
type Record map[string]string

// Frame is an ordered-column tabular buffer. It is owned by a single
// transform run and never shared across jobs.
type Frame struct {
	Columns []string
	Records []Record
}

// New builds an empty frame with the given column order.
func New(columns ...string) *Frame {
	return &Frame{Columns: columns}
}

// Append adds one record. Keys outside the frame's columns are ignored by
// every operation, so callers should stick to declared columns.
func (f *Frame) Append(rec Record) {
	f.Records = append(f.Records, rec)
}

// AppendValues adds one record from values aligned to the frame's columns.
// Extra values are dropped; missing trailing values become null cells.
func (f *Frame) AppendValues(values ...string) {
	rec := make(Record, len(f.Columns))
	for i, col := range f.Columns {
		if i >= len(values) {
			break
		}
		rec[col] = values[i]
	}
	f.Records = append(f.Records, rec)
}

// Len is the number of records.
func (f *Frame) Len() int { return len(f.Records) }

// HasColumn reports whether the frame declares the column.
func (f *Frame) HasColumn(name string) bool {
	for _, col := range f.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// ColumnIndex returns the position of a column, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, col := range f.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Value reads one cell; ok is false for null cells and unknown columns.
func (f *Frame) Value(row int, column string) (string, bool) {
	if row < 0 || row >= len(f.Records) {
		return "", false
	}
	v, ok := f.Records[row][column]
	return v, ok
}

// Concat unions the frames in input order: columns first-seen, records
// appended. Cleaning applied afterwards therefore sees the whole set, not
// each source individually.
func Concat(frames ...*Frame) *Frame {
	out := &Frame{}
	seen := make(map[string]bool)
	for _, f := range frames {
		if f == nil {
			continue
		}
		for _, col := range f.Columns {
			if !seen[col] {
				seen[col] = true
				out.Columns = append(out.Columns, col)
			}
		}
		out.Records = append(out.Records, f.Records...)
	}
	return out
}

// renameHeaders rewrites every column through mapper and re-keys records.
// When two headers collapse to the same name the first column keeps the
// cell.
func (f *Frame) renameHeaders(mapper func(string) string) {
	renames := make(map[string]string, len(f.Columns))
	seen := make(map[string]bool, len(f.Columns))
	newCols := make([]string, 0, len(f.Columns))
	for _, col := range f.Columns {
		name := mapper(col)
		renames[col] = name
		if !seen[name] {
			seen[name] = true
			newCols = append(newCols, name)
		}
	}

	for i, rec := range f.Records {
		moved := make(Record, len(rec))
		for _, col := range f.Columns {
			v, ok := rec[col]
			if !ok {
				continue
			}
			name := renames[col]
			if _, exists := moved[name]; !exists {
				moved[name] = v
			}
		}
		f.Records[i] = moved
	}
	f.Columns = newCols
}

// DropColumns removes the named columns and their cells. Names the frame
// does not carry are ignored.
func (f *Frame) DropColumns(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[name] = true
	}
	kept := f.Columns[:0]
	for _, col := range f.Columns {
		if !drop[col] {
			kept = append(kept, col)
		}
	}
	f.Columns = kept
	for _, rec := range f.Records {
		for name := range drop {
			delete(rec, name)
		}
	}
}

// WriteCSV writes the frame with a header row, every field quoted. Null
// cells render as empty fields.
func (f *Frame) WriteCSV(w io.Writer) error {
	writeRow := func(fields []string) error {
		quoted := make([]string, len(fields))
		for i, field := range fields {
			quoted[i] = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
		}
		_, err := io.WriteString(w, strings.Join(quoted, ",")+"\n")
		return err
	}

	if err := writeRow(f.Columns); err != nil {
		return err
	}
	row := make([]string, len(f.Columns))
	for _, rec := range f.Records {
		for i, col := range f.Columns {
			row[i] = rec[col]
		}
		if err := writeRow(row); err != nil {
			return err
		}
	}
	return nil
}
