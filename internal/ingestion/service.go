package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jjckrbbt/labcatalog/internal/catalog"
	"github.com/jjckrbbt/labcatalog/internal/embedding"
	"github.com/jjckrbbt/labcatalog/internal/lock"
	"github.com/jjckrbbt/labcatalog/internal/processing"
	"github.com/jjckrbbt/labcatalog/internal/repository"
	"github.com/jjckrbbt/labcatalog/internal/sheet"
	"github.com/pgvector/pgvector-go"
)

const (
	DefaultWorkers    = 4
	DefaultRowTimeout = 30 * time.Second
	DefaultSampleSize = 5
)

// Store is the persistence the orchestrator writes through.
type Store interface {
	catalog.ServiceStore
	UpsertCatalogEntry(ctx context.Context, arg repository.UpsertCatalogEntryParams) (repository.UpsertCatalogEntryRow, error)
	CreateIngestRun(ctx context.Context, arg repository.CreateIngestRunParams) (repository.IngestRun, error)
}

// MappingSource looks up the mapping registered for a service name.
type MappingSource interface {
	GetConfig(serviceName string) (processing.MappingConfig, bool)
}

// Archiver keeps a copy of the raw upload.
type Archiver interface {
	Archive(ctx context.Context, runID uuid.UUID, serviceName, filename string, data []byte) (string, error)
}

// Request is one ingestion call.
type Request struct {
	Data         []byte
	ServiceName  string
	SheetName    string
	VersionStamp string
	SourcePath   string
	DryRun       bool
}

// Service runs rate-list ingestions against a catalog store.
type Service struct {
	store      Store
	mappings   MappingSource
	resolver   *catalog.ServiceResolver
	locker     lock.Locker
	embedder   embedding.Func
	archiver   Archiver
	workers    int
	rowTimeout time.Duration
	sampleSize int
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Service)

// WithLocker replaces the in-process fingerprint lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithEmbedder enables printable-text embeddings.
func WithEmbedder(fn embedding.Func) Option {
	return func(s *Service) { s.embedder = fn }
}

// WithArchiver enables archiving of raw uploads for non-dry runs.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithRowTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rowTimeout = d
		}
	}
}

func WithSampleSize(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.sampleSize = n
		}
	}
}

func NewService(store Store, mappings MappingSource, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		mappings:   mappings,
		resolver:   catalog.NewServiceResolver(store, logger),
		locker:     lock.NewKeyedMutex(),
		workers:    DefaultWorkers,
		rowTimeout: DefaultRowTimeout,
		sampleSize: DefaultSampleSize,
		logger:     logger.With("component", "ingestion_service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest reads one sheet of a workbook and merges its rows into the catalog.
//
// Configuration and structural problems abort the run before any write and
// no report is returned. Once the service is resolved every row succeeds or
// fails on its own, and failures are listed in the report. A dry run stops
// after projection and touches no storage.
func (s *Service) Ingest(ctx context.Context, req Request) (*Report, error) {
	runID := uuid.New()
	startedAt := s.now()
	runLogger := s.logger.With("run_id", runID.String(), "service", req.ServiceName, "dry_run", req.DryRun)

	state := StateIdle
	transition := func(next State, args ...any) {
		runLogger.InfoContext(ctx, "Ingestion state change", append([]any{"from", state, "to", next}, args...)...)
		state = next
	}

	cfg, ok := s.mappings.GetConfig(req.ServiceName)
	if !ok {
		transition(StateAbortedAtMapping)
		return nil, &ConfigError{ServiceName: req.ServiceName, Err: ErrUnknownMapping}
	}
	transition(StateMappingResolved, "variant", cfg.Variant)

	sheetName := req.SheetName
	if sheetName == "" {
		sheetName = cfg.DefaultSheet
	}
	raw, err := sheet.ReadSheet(req.Data, sheetName)
	if err != nil {
		transition(StateAbortedAtSheet, "error", err)
		return nil, &StructuralError{SheetName: sheetName, Err: err}
	}

	projection, err := processing.NewProjector(cfg).Project(raw)
	if err != nil {
		transition(StateAbortedAtSheet, "error", err)
		return nil, &StructuralError{SheetName: raw.Name, Err: err}
	}
	transition(StateProjected, "sheet", raw.Name, "projected", len(projection.Rows), "skipped", projection.Skipped())

	report := &Report{
		RunID:              runID,
		DryRun:             req.DryRun,
		Projected:          len(projection.Rows),
		Errors:             []RowError{},
		AffectedEntryIDs:   []uuid.UUID{},
		SheetNameUsed:      raw.Name,
		MappingVariantUsed: cfg.Variant,
		StartedAt:          startedAt,
	}

	if req.DryRun {
		n := min(s.sampleSize, len(projection.Rows))
		report.Sample = append([]processing.NormalizedRow(nil), projection.Rows[:n]...)
		report.FinishedAt = s.now()
		transition(StateDryRunComplete)
		return report, nil
	}

	report.Skipped = projection.Skipped()
	report.SkippedRows = projection.SkippedRows

	if s.archiver != nil {
		uri, err := s.archiver.Archive(ctx, runID, cfg.ServiceName, path.Base(req.SourcePath), req.Data)
		if err != nil {
			runLogger.WarnContext(ctx, "Raw file archive failed, continuing without it", "error", err)
		} else {
			report.ArchiveURI = uri
		}
	}

	svc, err := s.resolver.Resolve(ctx, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve service: %w", err)
	}
	transition(StateServiceResolved, "service_id", svc.ID.String())

	transition(StateRowLoop, "workers", s.workers)
	if err := s.runRows(ctx, projection.Rows, svc, raw.Name, req, report); err != nil {
		return nil, err
	}

	report.FinishedAt = s.now()
	s.recordRun(ctx, runLogger, req, report)
	transition(StateReportReady,
		"processed", report.Processed,
		"inserted", report.Inserted,
		"refreshed", report.Refreshed,
		"errors", len(report.Errors),
	)
	return report, nil
}

// shardBuffer lets the feeder run ahead of a busy worker.
const shardBuffer = 16

// shardFor picks a worker from the leading hex digits of a fingerprint.
func shardFor(fingerprint string, n int) int {
	if n <= 1 || len(fingerprint) < 8 {
		return 0
	}
	v, err := strconv.ParseUint(fingerprint[:8], 16, 32)
	if err != nil {
		return 0
	}
	return int(v % uint64(n))
}

type rowResult struct {
	id  uuid.UUID
	err error
}

// runRows upserts rows through a bounded worker pool. Rows are sharded by
// fingerprint, so every occurrence of one fingerprint goes to the same worker
// in sheet order and the last occurrence is the last write. Results are
// written per row slot so errors and affected ids come out in sheet order.
func (s *Service) runRows(ctx context.Context, rows []processing.NormalizedRow, svc repository.Service, sheetName string, req Request, report *Report) error {
	results := make([]rowResult, len(rows))
	fingerprints := make([]string, len(rows))
	for i, row := range rows {
		fingerprints[i] = catalog.Fingerprint(row)
	}
	var processed, inserted, refreshed atomic.Int64

	shards := make([]chan int, s.workers)
	var wg sync.WaitGroup
	for w := range shards {
		shards[w] = make(chan int, shardBuffer)
		wg.Add(1)
		go func(jobs <-chan int) {
			defer wg.Done()
			for i := range jobs {
				res, wasInserted := s.processRow(ctx, rows[i], fingerprints[i], svc, sheetName, req)
				results[i] = res
				if res.err != nil {
					continue
				}
				processed.Add(1)
				if wasInserted {
					inserted.Add(1)
				} else {
					refreshed.Add(1)
				}
			}
		}(shards[w])
	}

feed:
	for i := range rows {
		jobs := shards[shardFor(fingerprints[i], len(shards))]
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	for _, jobs := range shards {
		close(jobs)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	report.Processed = int(processed.Load())
	report.Inserted = int(inserted.Load())
	report.Refreshed = int(refreshed.Load())

	seen := make(map[uuid.UUID]bool, len(rows))
	for i, res := range results {
		if res.err != nil {
			report.Errors = append(report.Errors, RowError{
				RowNumber: rows[i].RowNumber,
				TestName:  rows[i].TestName,
				Group:     rows[i].Group,
				Message:   res.err.Error(),
			})
			continue
		}
		if !seen[res.id] {
			seen[res.id] = true
			report.AffectedEntryIDs = append(report.AffectedEntryIDs, res.id)
		}
	}
	return nil
}

// processRow upserts one row under its fingerprint lock. A panic is turned into the
// row's error so sibling rows are unaffected.
func (s *Service) processRow(ctx context.Context, row processing.NormalizedRow, fingerprint string, svc repository.Service, sheetName string, req Request) (res rowResult, inserted bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Recovered panic while processing row", "row", row.RowNumber, "panic", r)
			res = rowResult{err: fmt.Errorf("internal error: %v", r)}
			inserted = false
		}
	}()

	rowCtx, cancel := context.WithTimeout(ctx, s.rowTimeout)
	defer cancel()

	vector := s.embed(rowCtx, row)

	unlock, err := s.locker.Lock(rowCtx, fingerprint)
	if err != nil {
		return rowResult{err: fmt.Errorf("failed to acquire fingerprint lock: %w", err)}, false
	}
	defer unlock()

	out, err := s.store.UpsertCatalogEntry(rowCtx, repository.UpsertCatalogEntryParams{
		ID:                  uuid.New(),
		ServiceID:           svc.ID,
		ServiceName:         row.ServiceName,
		SubVertical:         row.SubVertical,
		TestGroup:           row.Group,
		TestName:            row.TestName,
		Method:              row.Method,
		Unit:                row.Unit,
		TATDays:             row.TATDays,
		AccreditationStatus: row.AccreditationStatus,
		Department:          row.Department,
		PrintableText:       row.PrintableText,
		PrintableSource:     string(row.PrintableSource),
		SourceFile:          req.SourcePath,
		SourceSheet:         sheetName,
		SourceVersion:       req.VersionStamp,
		Fingerprint:         fingerprint,
		Embedding:           vector,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Row upsert failed", "row", row.RowNumber, "test_name", row.TestName, "error", err)
		return rowResult{err: fmt.Errorf("failed to upsert catalog entry: %w", err)}, false
	}
	return rowResult{id: out.ID}, out.Inserted
}

// embed returns nil when embeddings are disabled or fail; a missing vector
// never fails the row.
func (s *Service) embed(ctx context.Context, row processing.NormalizedRow) *pgvector.Vector {
	if s.embedder == nil || row.PrintableText == "" {
		return nil
	}
	values, err := s.embedder(ctx, row.PrintableText)
	if err != nil {
		s.logger.WarnContext(ctx, "Embedding failed, storing row without it", "row", row.RowNumber, "error", err)
		return nil
	}
	if len(values) == 0 || len(values) > embedding.MaxDimensions {
		s.logger.WarnContext(ctx, "Embedding has unexpected dimensions, nullifying", "row", row.RowNumber, "dims", len(values))
		return nil
	}
	vec := pgvector.NewVector(values)
	return &vec
}

// recordRun stores the run in the history table. Failure is logged only; the
// catalog writes have already happened and the report is still valid.
func (s *Service) recordRun(ctx context.Context, runLogger *slog.Logger, req Request, report *Report) {
	payload, err := json.Marshal(report)
	if err != nil {
		runLogger.ErrorContext(ctx, "Failed to marshal ingest report", "error", err)
		return
	}
	_, err = s.store.CreateIngestRun(ctx, repository.CreateIngestRunParams{
		ID:             report.RunID,
		ServiceName:    req.ServiceName,
		SheetName:      report.SheetNameUsed,
		MappingVariant: report.MappingVariantUsed,
		VersionStamp:   req.VersionStamp,
		SourceFile:     req.SourcePath,
		Projected:      int32(report.Projected),
		Processed:      int32(report.Processed),
		Skipped:        int32(report.Skipped),
		ErrorCount:     int32(len(report.Errors)),
		Report:         payload,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		runLogger.ErrorContext(ctx, "Failed to record ingest run", "error", err)
	}
}
