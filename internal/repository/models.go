package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Service is a service registry entry.
type Service struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Source is the provenance of a catalog entry's latest refresh.
type Source struct {
	File         string `json:"file"`
	Sheet        string `json:"sheet"`
	VersionStamp string `json:"version_stamp"`
}

// CatalogEntry is one deduplicated test definition.
type CatalogEntry struct {
	ID                  uuid.UUID        `json:"id"`
	ServiceID           uuid.UUID        `json:"service_id"`
	ServiceName         string           `json:"service_name"`
	SubVertical         *string          `json:"sub_vertical"`
	TestGroup           *string          `json:"group"`
	TestName            string           `json:"test_name"`
	Method              *string          `json:"method"`
	Unit                *string          `json:"unit"`
	TATDays             *int             `json:"tat_days"`
	AccreditationStatus *string          `json:"accreditation_status"`
	Department          *string          `json:"department"`
	PrintableText       string           `json:"printable_text"`
	PrintableSource     string           `json:"printable_source"`
	Source              Source           `json:"source"`
	Fingerprint         string           `json:"fingerprint"`
	Embedding           *pgvector.Vector `json:"-"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// IngestRun is the stored outcome of one non-dry ingestion run.
type IngestRun struct {
	ID             uuid.UUID       `json:"id"`
	ServiceName    string          `json:"service_name"`
	SheetName      string          `json:"sheet_name"`
	MappingVariant string          `json:"mapping_variant"`
	VersionStamp   string          `json:"version_stamp"`
	SourceFile     string          `json:"source_file"`
	Projected      int32           `json:"projected"`
	Processed      int32           `json:"processed"`
	Skipped        int32           `json:"skipped"`
	ErrorCount     int32           `json:"error_count"`
	Report         json.RawMessage `json:"report"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}
