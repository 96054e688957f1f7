package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

const catalogEntryColumns = `id, service_id, service_name, sub_vertical, test_group, test_name, method, unit, tat_days,
       accreditation_status, department, printable_text, printable_source,
       source_file, source_sheet, source_version, fingerprint, embedding, created_at, updated_at`

const upsertCatalogEntry = `-- name: UpsertCatalogEntry :one
INSERT INTO catalog_entries (
    id, service_id, service_name, sub_vertical, test_group, test_name, method, unit, tat_days,
    accreditation_status, department, printable_text, printable_source,
    source_file, source_sheet, source_version, fingerprint, embedding
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
)
ON CONFLICT (fingerprint) DO UPDATE SET
    test_group           = EXCLUDED.test_group,
    method               = EXCLUDED.method,
    unit                 = EXCLUDED.unit,
    tat_days             = EXCLUDED.tat_days,
    accreditation_status = EXCLUDED.accreditation_status,
    department           = EXCLUDED.department,
    printable_text       = EXCLUDED.printable_text,
    printable_source     = EXCLUDED.printable_source,
    source_file          = EXCLUDED.source_file,
    source_sheet         = EXCLUDED.source_sheet,
    source_version       = EXCLUDED.source_version,
    embedding            = COALESCE(EXCLUDED.embedding, catalog_entries.embedding),
    updated_at           = now()
RETURNING id, (xmax = 0) AS inserted
`

type UpsertCatalogEntryParams struct {
	ID                  uuid.UUID
	ServiceID           uuid.UUID
	ServiceName         string
	SubVertical         *string
	TestGroup           *string
	TestName            string
	Method              *string
	Unit                *string
	TATDays             *int
	AccreditationStatus *string
	Department          *string
	PrintableText       string
	PrintableSource     string
	SourceFile          string
	SourceSheet         string
	SourceVersion       string
	Fingerprint         string
	Embedding           *pgvector.Vector
}

type UpsertCatalogEntryRow struct {
	ID       uuid.UUID
	Inserted bool
}

// UpsertCatalogEntry inserts a new entry or, when the fingerprint already
// exists, refreshes its mutable fields. Identity columns, service_id and
// created_at are never touched on refresh.
func (q *Queries) UpsertCatalogEntry(ctx context.Context, arg UpsertCatalogEntryParams) (UpsertCatalogEntryRow, error) {
	row := q.db.QueryRow(ctx, upsertCatalogEntry,
		arg.ID,
		arg.ServiceID,
		arg.ServiceName,
		arg.SubVertical,
		arg.TestGroup,
		arg.TestName,
		arg.Method,
		arg.Unit,
		arg.TATDays,
		arg.AccreditationStatus,
		arg.Department,
		arg.PrintableText,
		arg.PrintableSource,
		arg.SourceFile,
		arg.SourceSheet,
		arg.SourceVersion,
		arg.Fingerprint,
		arg.Embedding,
	)
	var i UpsertCatalogEntryRow
	err := row.Scan(&i.ID, &i.Inserted)
	return i, err
}

const getCatalogEntry = `-- name: GetCatalogEntry :one
SELECT ` + catalogEntryColumns + `
FROM catalog_entries
WHERE id = $1
`

func (q *Queries) GetCatalogEntry(ctx context.Context, id uuid.UUID) (CatalogEntry, error) {
	row := q.db.QueryRow(ctx, getCatalogEntry, id)
	return scanCatalogEntry(row)
}

const listCatalogEntries = `-- name: ListCatalogEntries :many
SELECT ` + catalogEntryColumns + `
FROM catalog_entries
WHERE ($1::text IS NULL OR lower(service_name) = lower($1::text))
  AND ($2::text IS NULL OR test_name ILIKE '%' || $2::text || '%' OR printable_text ILIKE '%' || $2::text || '%')
ORDER BY lower(service_name), lower(test_name), id
LIMIT $3 OFFSET $4
`

type ListCatalogEntriesParams struct {
	ServiceName *string
	Search      *string
	Limit       int32
	Offset      int32
}

func (q *Queries) ListCatalogEntries(ctx context.Context, arg ListCatalogEntriesParams) ([]CatalogEntry, error) {
	rows, err := q.db.Query(ctx, listCatalogEntries,
		arg.ServiceName,
		arg.Search,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CatalogEntry
	for rows.Next() {
		i, err := scanCatalogEntry(rows)
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

const countCatalogEntries = `-- name: CountCatalogEntries :one
SELECT count(*)
FROM catalog_entries
WHERE ($1::text IS NULL OR lower(service_name) = lower($1::text))
  AND ($2::text IS NULL OR test_name ILIKE '%' || $2::text || '%' OR printable_text ILIKE '%' || $2::text || '%')
`

type CountCatalogEntriesParams struct {
	ServiceName *string
	Search      *string
}

func (q *Queries) CountCatalogEntries(ctx context.Context, arg CountCatalogEntriesParams) (int64, error) {
	row := q.db.QueryRow(ctx, countCatalogEntries, arg.ServiceName, arg.Search)
	var count int64
	err := row.Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCatalogEntry(row scanner) (CatalogEntry, error) {
	var i CatalogEntry
	err := row.Scan(
		&i.ID,
		&i.ServiceID,
		&i.ServiceName,
		&i.SubVertical,
		&i.TestGroup,
		&i.TestName,
		&i.Method,
		&i.Unit,
		&i.TATDays,
		&i.AccreditationStatus,
		&i.Department,
		&i.PrintableText,
		&i.PrintableSource,
		&i.Source.File,
		&i.Source.Sheet,
		&i.Source.VersionStamp,
		&i.Fingerprint,
		&i.Embedding,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
