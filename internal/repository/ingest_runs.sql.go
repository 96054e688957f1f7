package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const createIngestRun = `-- name: CreateIngestRun :one
INSERT INTO ingest_runs (
    id, service_name, sheet_name, mapping_variant, version_stamp, source_file,
    projected, processed, skipped, error_count, report, started_at, finished_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
)
RETURNING id, service_name, sheet_name, mapping_variant, version_stamp, source_file,
          projected, processed, skipped, error_count, report, started_at, finished_at
`

type CreateIngestRunParams struct {
	ID             uuid.UUID
	ServiceName    string
	SheetName      string
	MappingVariant string
	VersionStamp   string
	SourceFile     string
	Projected      int32
	Processed      int32
	Skipped        int32
	ErrorCount     int32
	Report         json.RawMessage
	StartedAt      time.Time
	FinishedAt     time.Time
}

func (q *Queries) CreateIngestRun(ctx context.Context, arg CreateIngestRunParams) (IngestRun, error) {
	row := q.db.QueryRow(ctx, createIngestRun,
		arg.ID,
		arg.ServiceName,
		arg.SheetName,
		arg.MappingVariant,
		arg.VersionStamp,
		arg.SourceFile,
		arg.Projected,
		arg.Processed,
		arg.Skipped,
		arg.ErrorCount,
		arg.Report,
		arg.StartedAt,
		arg.FinishedAt,
	)
	return scanIngestRun(row)
}

const listIngestRuns = `-- name: ListIngestRuns :many
SELECT id, service_name, sheet_name, mapping_variant, version_stamp, source_file,
       projected, processed, skipped, error_count, report, started_at, finished_at
FROM ingest_runs
WHERE ($1::text IS NULL OR lower(service_name) = lower($1::text))
ORDER BY started_at DESC
LIMIT $2 OFFSET $3
`

type ListIngestRunsParams struct {
	ServiceName *string
	Limit       int32
	Offset      int32
}

func (q *Queries) ListIngestRuns(ctx context.Context, arg ListIngestRunsParams) ([]IngestRun, error) {
	rows, err := q.db.Query(ctx, listIngestRuns, arg.ServiceName, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []IngestRun
	for rows.Next() {
		i, err := scanIngestRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanIngestRun(row scanner) (IngestRun, error) {
	var i IngestRun
	err := row.Scan(
		&i.ID,
		&i.ServiceName,
		&i.SheetName,
		&i.MappingVariant,
		&i.VersionStamp,
		&i.SourceFile,
		&i.Projected,
		&i.Processed,
		&i.Skipped,
		&i.ErrorCount,
		&i.Report,
		&i.StartedAt,
		&i.FinishedAt,
	)
	return i, err
}
