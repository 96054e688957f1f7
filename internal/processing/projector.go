package processing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jjckrbbt/labcatalog/internal/normalize"
	"github.com/jjckrbbt/labcatalog/internal/sheet"
)

// ErrHeaderRowOutOfRange is returned when the configured header row lies
// beyond the last row of the sheet.
var ErrHeaderRowOutOfRange = errors.New("header row out of range")

// PrintableSource says where a row's printable text came from.
type PrintableSource string

const (
	PrintableFromSheet     PrintableSource = "sheet"
	PrintableFromGenerated PrintableSource = "generated"
)

// Reasons a row is dropped during projection.
const (
	SkipReasonEmptyTestName = "empty_test_name"
	SkipReasonSkipGroup     = "skip_group"
)

// NormalizedRow is one rate-list row after transforms and normalization.
type NormalizedRow struct {
	RowNumber           int             `json:"row_number"`
	ServiceName         string          `json:"service_name"`
	SubVertical         *string         `json:"sub_vertical,omitempty"`
	Group               *string         `json:"group,omitempty"`
	TestName            string          `json:"test_name"`
	Method              *string         `json:"method,omitempty"`
	Unit                *string         `json:"unit,omitempty"`
	TATDays             *int            `json:"tat_days,omitempty"`
	AccreditationStatus *string         `json:"accreditation_status,omitempty"`
	Department          *string         `json:"department,omitempty"`
	PrintableText       string          `json:"printable_text"`
	PrintableSource     PrintableSource `json:"printable_source"`
}

// SkippedRow records a row dropped by policy during projection.
type SkippedRow struct {
	RowNumber int     `json:"row_number"`
	TestName  *string `json:"test_name,omitempty"`
	Group     *string `json:"group,omitempty"`
	Reason    string  `json:"reason"`
}

// Projection is the filtered, normalized row set of one sheet.
type Projection struct {
	Rows        []NormalizedRow
	SkippedRows []SkippedRow
	// LastScannedRow is the 1-based sheet row where scanning stopped.
	LastScannedRow int
}

// Skipped is the number of rows dropped by policy.
func (p *Projection) Skipped() int {
	return len(p.SkippedRows)
}

// Projector turns a raw sheet into normalized rows using one mapping.
type Projector struct {
	config MappingConfig
}

// NewProjector creates a new projector with a specific configuration
func NewProjector(config MappingConfig) *Projector {
	return &Projector{config: config}
}

// Project resolves the header row and projects every data row below it.
// Scanning stops for good at the first row whose cells are all blank.
func (p *Projector) Project(raw *sheet.RawSheet) (*Projection, error) {
	headerIdx := p.config.HeaderRowIndex - 1
	if headerIdx < 0 || headerIdx >= len(raw.Rows) {
		return nil, fmt.Errorf("%w: header row %d, sheet %q has %d rows", ErrHeaderRowOutOfRange, p.config.HeaderRowIndex, raw.Name, len(raw.Rows))
	}

	header := raw.Rows[headerIdx]
	index := ResolveHeaders(header, p.config.Columns)
	subVerticalCol := ResolveColumn(header, p.config.SubVerticalColumnName)
	printableCols := make([]int, 0, len(p.config.PrintableColumnPriority))
	for _, name := range p.config.PrintableColumnPriority {
		if col := ResolveColumn(header, name); col >= 0 {
			printableCols = append(printableCols, col)
		}
	}

	for _, field := range Fields {
		if index.Column(field) < 0 {
			slog.Debug("Mapping field not present in header", "service", p.config.ServiceName, "field", field)
		}
	}

	result := &Projection{LastScannedRow: headerIdx + 1}
	for i := headerIdx + 1; i < len(raw.Rows); i++ {
		record := raw.Rows[i]
		if isRowBlank(record) {
			break
		}
		result.LastScannedRow = i + 1

		row := p.projectRow(record, index, subVerticalCol, printableCols)
		row.RowNumber = i + 1

		if row.TestName == "" {
			result.SkippedRows = append(result.SkippedRows, SkippedRow{
				RowNumber: row.RowNumber,
				Group:     row.Group,
				Reason:    SkipReasonEmptyTestName,
			})
			continue
		}
		if row.Group != nil && p.config.SkipsGroup(*row.Group) {
			name := row.TestName
			result.SkippedRows = append(result.SkippedRows, SkippedRow{
				RowNumber: row.RowNumber,
				TestName:  &name,
				Group:     row.Group,
				Reason:    SkipReasonSkipGroup,
			})
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	slog.Debug("Projection complete",
		"service", p.config.ServiceName,
		"sheet", raw.Name,
		"projected", len(result.Rows),
		"skipped", result.Skipped(),
		"last_scanned_row", result.LastScannedRow,
	)
	return result, nil
}

// projectRow extracts, transforms and normalizes one non-blank row.
func (p *Projector) projectRow(record []any, index HeaderIndex, subVerticalCol int, printableCols []int) NormalizedRow {
	value := func(f Field) any {
		return applyTransform(p.config.TransformFor(f), cellAt(record, index.Column(f)))
	}

	row := NormalizedRow{
		ServiceName:         p.config.ServiceName,
		SubVertical:         normalize.StringOrNull(cellAt(record, subVerticalCol)),
		Method:              normalize.StringOrNull(value(FieldMethod)),
		Department:          normalize.StringOrNull(value(FieldDepartment)),
		TATDays:             normalize.IntOrNull(value(FieldTATDays)),
		AccreditationStatus: normalizeWith(value(FieldAccreditationStatus), normalize.NormalizeAccreditation),
		Group:               normalizeWith(value(FieldGroup), normalize.NormalizeGroup),
		Unit:                normalizeWith(value(FieldUnit), normalize.NormalizeUnit),
	}
	if name := normalize.StringOrNull(value(FieldTestName)); name != nil {
		row.TestName = *name
	}
	if row.TATDays != nil && *row.TATDays < 0 {
		row.TATDays = nil
	}

	row.PrintableSource = PrintableFromGenerated
	for _, col := range printableCols {
		if text := normalize.StringOrNull(cellAt(record, col)); text != nil {
			row.PrintableText = *text
			row.PrintableSource = PrintableFromSheet
			break
		}
	}
	if row.PrintableSource == PrintableFromGenerated {
		if row.Method != nil {
			row.PrintableText = *row.Method
		} else {
			row.PrintableText = row.TestName
		}
	}
	return row
}

// --- Helper functions ---

func normalizeWith(v any, fn func(string) *string) *string {
	s := normalize.StringOrNull(v)
	if s == nil {
		return nil
	}
	return fn(*s)
}

func cellAt(record []any, col int) any {
	if col < 0 || col >= len(record) {
		return nil
	}
	return record[col]
}

func isRowBlank(record []any) bool {
	for _, cell := range record {
		if normalize.StringOrNull(cell) != nil {
			return false
		}
	}
	return true
}
