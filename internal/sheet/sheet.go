// Package sheet reads rate-list workbooks into plain row/cell grids.
package sheet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrSheetNotFound is returned when the requested sheet is not in the workbook.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrInvalidWorkbook is returned when the bytes cannot be opened as a workbook.
	ErrInvalidWorkbook = errors.New("invalid workbook")
)

// RawSheet is an ordered grid of cells. A cell is nil (absent), a string or
// a float64.
type RawSheet struct {
	Name string
	Rows [][]any
}

// Workbook wraps an opened spreadsheet file.
type Workbook struct {
	file *excelize.File
}

// Open parses raw workbook bytes.
func Open(data []byte) (*Workbook, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidWorkbook)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	return &Workbook{file: f}, nil
}

// Close releases the workbook's temporary resources.
func (w *Workbook) Close() error {
	return w.file.Close()
}

// SheetNames lists the workbook's sheets in tab order.
func (w *Workbook) SheetNames() []string {
	return w.file.GetSheetList()
}

// Sheet reads one sheet by name. The name must match a sheet exactly.
func (w *Workbook) Sheet(name string) (*RawSheet, error) {
	resolved, ok := w.resolveName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}

	rows, err := w.file.Rows(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open rows of sheet %q: %w", resolved, err)
	}
	defer rows.Close()

	out := &RawSheet{Name: resolved}
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d of sheet %q: %w", len(out.Rows)+1, resolved, err)
		}
		row := make([]any, len(cols))
		for i, c := range cols {
			if c != "" {
				row[i] = c
			}
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate sheet %q: %w", resolved, err)
	}
	return out, nil
}

func (w *Workbook) resolveName(name string) (string, bool) {
	names := w.file.GetSheetList()
	for _, n := range names {
		if n == name {
			return n, true
		}
	}
	return "", false
}

// ReadSheet opens data and reads sheetName from it. An empty sheetName
// selects the first sheet.
func ReadSheet(data []byte, sheetName string) (*RawSheet, error) {
	wb, err := Open(data)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	if sheetName == "" {
		names := wb.SheetNames()
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: workbook has no sheets", ErrSheetNotFound)
		}
		sheetName = names[0]
	}
	return wb.Sheet(sheetName)
}
