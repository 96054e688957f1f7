package repository

import (
	"context"

	"github.com/google/uuid"
)

// Querier is the storage surface used by the ingestion pipeline and the
// HTTP API. Both the pgx-backed Queries and the in-memory MemoryStore
// implement it.
type Querier interface {
	GetServiceByName(ctx context.Context, name string) (Service, error)
	CreateServiceIfAbsent(ctx context.Context, arg CreateServiceParams) (int64, error)
	ListServices(ctx context.Context) ([]Service, error)

	UpsertCatalogEntry(ctx context.Context, arg UpsertCatalogEntryParams) (UpsertCatalogEntryRow, error)
	GetCatalogEntry(ctx context.Context, id uuid.UUID) (CatalogEntry, error)
	ListCatalogEntries(ctx context.Context, arg ListCatalogEntriesParams) ([]CatalogEntry, error)
	CountCatalogEntries(ctx context.Context, arg CountCatalogEntriesParams) (int64, error)

	CreateIngestRun(ctx context.Context, arg CreateIngestRunParams) (IngestRun, error)
	ListIngestRuns(ctx context.Context, arg ListIngestRunsParams) ([]IngestRun, error)
}

var (
	_ Querier = (*Queries)(nil)
	_ Querier = (*MemoryStore)(nil)
)
