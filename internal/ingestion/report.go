package ingestion

import (
	"time"

	"github.com/google/uuid"
	"github.com/jjckrbbt/labcatalog/internal/processing"
)

// RowError records one projected row that could not be written.
type RowError struct {
	RowNumber int     `json:"row_number"`
	TestName  string  `json:"test_name"`
	Group     *string `json:"group,omitempty"`
	Message   string  `json:"message"`
}

// Report is the outcome of one ingestion run. Skipped rows, failed rows and
// written entries can each be reconstructed from it independently.
type Report struct {
	RunID              uuid.UUID                  `json:"run_id"`
	DryRun             bool                       `json:"dry_run"`
	Projected          int                        `json:"projected"`
	Processed          int                        `json:"processed"`
	Skipped            int                        `json:"skipped"`
	Inserted           int                        `json:"inserted"`
	Refreshed          int                        `json:"refreshed"`
	Errors             []RowError                 `json:"errors"`
	AffectedEntryIDs   []uuid.UUID                `json:"affected_entry_ids"`
	SkippedRows        []processing.SkippedRow    `json:"skipped_rows,omitempty"`
	Sample             []processing.NormalizedRow `json:"sample,omitempty"`
	SheetNameUsed      string                     `json:"sheet_name_used"`
	MappingVariantUsed string                     `json:"mapping_variant_used"`
	ArchiveURI         string                     `json:"archive_uri,omitempty"`
	StartedAt          time.Time                  `json:"started_at"`
	FinishedAt         time.Time                  `json:"finished_at"`
}

// State is a step of the ingestion state machine.
type State string

const (
	StateIdle             State = "idle"
	StateMappingResolved  State = "mapping_resolved"
	StateProjected        State = "projected"
	StateDryRunComplete   State = "dry_run_complete"
	StateServiceResolved  State = "service_resolved"
	StateRowLoop          State = "row_loop"
	StateReportReady      State = "report_ready"
	StateAbortedAtMapping State = "aborted_at_mapping"
	StateAbortedAtSheet   State = "aborted_at_sheet"
)
