package repository

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MemoryStore is an in-process Querier for local runs and tests. It enforces
// the same uniqueness rules as the Postgres schema: one service per
// lower-cased name and one catalog entry per fingerprint. Lookups that find
// nothing return pgx.ErrNoRows so callers handle both stores alike.
type MemoryStore struct {
	mu            sync.RWMutex
	services      map[uuid.UUID]Service
	servicesByKey map[string]uuid.UUID
	entries       map[uuid.UUID]CatalogEntry
	byFingerprint map[string]uuid.UUID
	runs          []IngestRun
	now           func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services:      make(map[uuid.UUID]Service),
		servicesByKey: make(map[string]uuid.UUID),
		entries:       make(map[uuid.UUID]CatalogEntry),
		byFingerprint: make(map[string]uuid.UUID),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func serviceKey(name string) string {
	return strings.ToLower(name)
}

func (m *MemoryStore) GetServiceByName(_ context.Context, name string) (Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.servicesByKey[serviceKey(name)]
	if !ok {
		return Service{}, pgx.ErrNoRows
	}
	return m.services[id], nil
}

func (m *MemoryStore) CreateServiceIfAbsent(_ context.Context, arg CreateServiceParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := serviceKey(arg.Name)
	if _, exists := m.servicesByKey[key]; exists {
		return 0, nil
	}
	m.services[arg.ID] = Service{
		ID:        arg.ID,
		Name:      arg.Name,
		Category:  arg.Category,
		IsActive:  arg.IsActive,
		CreatedAt: m.now(),
	}
	m.servicesByKey[key] = arg.ID
	return 1, nil
}

func (m *MemoryStore) ListServices(context.Context) ([]Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Service, 0, len(m.services))
	for _, s := range m.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return serviceKey(out[i].Name) < serviceKey(out[j].Name)
	})
	return out, nil
}

func (m *MemoryStore) UpsertCatalogEntry(_ context.Context, arg UpsertCatalogEntryParams) (UpsertCatalogEntryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	if id, exists := m.byFingerprint[arg.Fingerprint]; exists {
		e := m.entries[id]
		e.TestGroup = arg.TestGroup
		e.Method = arg.Method
		e.Unit = arg.Unit
		e.TATDays = arg.TATDays
		e.AccreditationStatus = arg.AccreditationStatus
		e.Department = arg.Department
		e.PrintableText = arg.PrintableText
		e.PrintableSource = arg.PrintableSource
		e.Source = Source{File: arg.SourceFile, Sheet: arg.SourceSheet, VersionStamp: arg.SourceVersion}
		if arg.Embedding != nil {
			e.Embedding = arg.Embedding
		}
		e.UpdatedAt = now
		m.entries[id] = e
		return UpsertCatalogEntryRow{ID: id, Inserted: false}, nil
	}

	m.entries[arg.ID] = CatalogEntry{
		ID:                  arg.ID,
		ServiceID:           arg.ServiceID,
		ServiceName:         arg.ServiceName,
		SubVertical:         arg.SubVertical,
		TestGroup:           arg.TestGroup,
		TestName:            arg.TestName,
		Method:              arg.Method,
		Unit:                arg.Unit,
		TATDays:             arg.TATDays,
		AccreditationStatus: arg.AccreditationStatus,
		Department:          arg.Department,
		PrintableText:       arg.PrintableText,
		PrintableSource:     arg.PrintableSource,
		Source:              Source{File: arg.SourceFile, Sheet: arg.SourceSheet, VersionStamp: arg.SourceVersion},
		Fingerprint:         arg.Fingerprint,
		Embedding:           arg.Embedding,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	m.byFingerprint[arg.Fingerprint] = arg.ID
	return UpsertCatalogEntryRow{ID: arg.ID, Inserted: true}, nil
}

func (m *MemoryStore) GetCatalogEntry(_ context.Context, id uuid.UUID) (CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return CatalogEntry{}, pgx.ErrNoRows
	}
	return e, nil
}

func (m *MemoryStore) filterEntries(serviceName, search *string) []CatalogEntry {
	var out []CatalogEntry
	for _, e := range m.entries {
		if serviceName != nil && serviceKey(e.ServiceName) != serviceKey(*serviceName) {
			continue
		}
		if search != nil {
			needle := strings.ToLower(*search)
			if !strings.Contains(strings.ToLower(e.TestName), needle) &&
				!strings.Contains(strings.ToLower(e.PrintableText), needle) {
				continue
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ka, kb := serviceKey(a.ServiceName), serviceKey(b.ServiceName); ka != kb {
			return ka < kb
		}
		if ta, tb := strings.ToLower(a.TestName), strings.ToLower(b.TestName); ta != tb {
			return ta < tb
		}
		return a.ID.String() < b.ID.String()
	})
	return out
}

func (m *MemoryStore) ListCatalogEntries(_ context.Context, arg ListCatalogEntriesParams) ([]CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return page(m.filterEntries(arg.ServiceName, arg.Search), arg.Limit, arg.Offset), nil
}

func (m *MemoryStore) CountCatalogEntries(_ context.Context, arg CountCatalogEntriesParams) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.filterEntries(arg.ServiceName, arg.Search))), nil
}

func (m *MemoryStore) CreateIngestRun(_ context.Context, arg CreateIngestRunParams) (IngestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := IngestRun{
		ID:             arg.ID,
		ServiceName:    arg.ServiceName,
		SheetName:      arg.SheetName,
		MappingVariant: arg.MappingVariant,
		VersionStamp:   arg.VersionStamp,
		SourceFile:     arg.SourceFile,
		Projected:      arg.Projected,
		Processed:      arg.Processed,
		Skipped:        arg.Skipped,
		ErrorCount:     arg.ErrorCount,
		Report:         append(json.RawMessage(nil), arg.Report...),
		StartedAt:      arg.StartedAt,
		FinishedAt:     arg.FinishedAt,
	}
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *MemoryStore) ListIngestRuns(_ context.Context, arg ListIngestRunsParams) ([]IngestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []IngestRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		r := m.runs[i]
		if arg.ServiceName != nil && serviceKey(r.ServiceName) != serviceKey(*arg.ServiceName) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return page(out, arg.Limit, arg.Offset), nil
}

func page[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit >= 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}
