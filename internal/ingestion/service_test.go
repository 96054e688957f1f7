package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jjckrbbt/labcatalog/internal/processing"
	"github.com/jjckrbbt/labcatalog/internal/repository"
	"github.com/jjckrbbt/labcatalog/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const envService = "Environmental Testing"

var header = []any{"Parameter", "Group", "Method", "Unit", "TAT (Days)", "NABL", "Department", "Matrix"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMappings(t *testing.T) *processing.ConfigLoader {
	t.Helper()
	loader, err := processing.NewConfigLoaderFromConfigs(processing.MappingConfig{
		ServiceName:    envService,
		Variant:        "environment-test",
		DefaultSheet:   "Water",
		HeaderRowIndex: 1,
		Columns: map[processing.Field][]string{
			processing.FieldTestName:            {"Parameter"},
			processing.FieldGroup:               {"Group"},
			processing.FieldMethod:              {"Method"},
			processing.FieldUnit:                {"Unit"},
			processing.FieldTATDays:             {"TAT (Days)"},
			processing.FieldAccreditationStatus: {"NABL"},
			processing.FieldDepartment:          {"Department"},
		},
		Transforms: map[processing.Field]processing.Transform{
			processing.FieldTestName: processing.TransformTrim,
			processing.FieldTATDays:  processing.TransformToInt,
		},
		SubVerticalColumnName: "Matrix",
		SkipGroups:            []string{"Sampling And Transportation Cost"},
	})
	require.NoError(t, err)
	return loader
}

type testSheet struct {
	name string
	rows [][]any
}

func buildWorkbook(t *testing.T, sheets ...testSheet) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(s.name, cell, &values))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// scenarioWorkbook holds rows A and B, which normalize to the same identity,
// and row C, which has no test name.
func scenarioWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, testSheet{name: "Water", rows: [][]any{
		header,
		{"Lead", "chemical parameters", "AAS", "mg l-1", 5, "N/A", "Chemistry", "Water"},
		{"Lead", "Chemical Parameters", "AAS", "mgL-1", 5, "N/A", "Chemistry", "Water"},
		{"", "Chemical Parameters", "AAS", "mg/L"},
	}})
}

func newTestService(t *testing.T, store Store, opts ...Option) *Service {
	return NewService(store, testMappings(t), discardLogger(), opts...)
}

func countEntries(t *testing.T, store *repository.MemoryStore) int64 {
	t.Helper()
	n, err := store.CountCatalogEntries(context.Background(), repository.CountCatalogEntriesParams{})
	require.NoError(t, err)
	return n
}

func TestIngestEndToEndScenario(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store)

	report, err := svc.Ingest(context.Background(), Request{
		Data:         scenarioWorkbook(t),
		ServiceName:  envService,
		SheetName:    "Water",
		VersionStamp: "2026-Q1",
		SourcePath:   "uploads/rates.xlsx",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Projected)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.Refreshed)
	assert.Empty(t, report.Errors)
	require.Len(t, report.AffectedEntryIDs, 1)
	assert.Equal(t, "Water", report.SheetNameUsed)
	assert.Equal(t, "environment-test", report.MappingVariantUsed)
	assert.Empty(t, report.Sample)
	require.Len(t, report.SkippedRows, 1)
	assert.Equal(t, 4, report.SkippedRows[0].RowNumber)
	assert.EqualValues(t, 1, countEntries(t, store))

	entry, err := store.GetCatalogEntry(context.Background(), report.AffectedEntryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Lead", entry.TestName)
	assert.Equal(t, "mg/L", *entry.Unit)
	assert.Equal(t, "Chemical Parameters", *entry.TestGroup)
	assert.Equal(t, "NA", *entry.AccreditationStatus)
	assert.Equal(t, 5, *entry.TATDays)
	assert.Equal(t, "Water", *entry.SubVertical)
	assert.Equal(t, repository.Source{File: "uploads/rates.xlsx", Sheet: "Water", VersionStamp: "2026-Q1"}, entry.Source)
	assert.Len(t, entry.Fingerprint, 64)

	services, err := store.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, envService, services[0].Name)
	assert.Equal(t, services[0].ID, entry.ServiceID)
}

func TestIngestIsIdempotent(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store)
	data := buildWorkbook(t, testSheet{name: "Water", rows: [][]any{
		header,
		{"Lead", "Heavy Metals", "AAS", "mg/L"},
		{"Zinc", "Heavy Metals", "AAS", "mg/L"},
		{"PM10", "Air", "Gravimetric", "ug/m3", nil, nil, nil, "Ambient Air"},
	}})
	req := Request{Data: data, ServiceName: envService, VersionStamp: "v1", SourcePath: "rates.xlsx"}

	first, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Inserted)
	assert.EqualValues(t, 3, countEntries(t, store))

	second, err := svc.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.Refreshed)
	assert.ElementsMatch(t, first.AffectedEntryIDs, second.AffectedEntryIDs)
	assert.EqualValues(t, 3, countEntries(t, store), "second run creates nothing new")
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestIngestRefreshesNonIdentityFields(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	first, err := svc.Ingest(ctx, Request{
		Data: buildWorkbook(t, testSheet{name: "Water", rows: [][]any{
			header,
			{"Lead", "trace elements", "AAS", "mg/L", 3, "yes", "Chemistry"},
		}}),
		ServiceName:  envService,
		VersionStamp: "v1",
	})
	require.NoError(t, err)
	require.Len(t, first.AffectedEntryIDs, 1)
	before, err := store.GetCatalogEntry(ctx, first.AffectedEntryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Trace Elements", *before.TestGroup)

	second, err := svc.Ingest(ctx, Request{
		Data: buildWorkbook(t, testSheet{name: "Water", rows: [][]any{
			header,
			{"lead ", "toxic metals", "AAS", "mg l-1", 7, "no", "Instrumentation"},
		}}),
		ServiceName:  envService,
		VersionStamp: "v2",
	})
	require.NoError(t, err)
	assert.Equal(t, first.AffectedEntryIDs, second.AffectedEntryIDs)
	assert.EqualValues(t, 1, countEntries(t, store))

	entry, err := store.GetCatalogEntry(ctx, first.AffectedEntryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Toxic Metals", *entry.TestGroup)
	assert.Equal(t, "Instrumentation", *entry.Department)
	assert.Equal(t, 7, *entry.TATDays)
	assert.Equal(t, "No", *entry.AccreditationStatus)
	assert.Equal(t, "v2", entry.Source.VersionStamp)
	assert.Equal(t, "Lead", entry.TestName, "first-seen test name is kept")
}

func TestIngestDryRunIsPure(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store)

	rows := [][]any{header}
	for i := 0; i < 8; i++ {
		rows = append(rows, []any{fmt.Sprintf("Test %d", i), "Heavy Metals", "AAS", "mg/L"})
	}
	rows = append(rows, []any{"Pickup", "sampling and transportation cost"})

	report, err := svc.Ingest(context.Background(), Request{
		Data:        buildWorkbook(t, testSheet{name: "Water", rows: rows}),
		ServiceName: envService,
		DryRun:      true,
	})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 8, report.Projected)
	assert.Len(t, report.Sample, DefaultSampleSize)
	assert.Equal(t, "Test 0", report.Sample[0].TestName)
	assert.Zero(t, report.Processed)
	assert.Empty(t, report.AffectedEntryIDs)
	assert.Empty(t, report.Errors)
	assert.Equal(t, "Water", report.SheetNameUsed)

	services, err := store.ListServices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, services, "no service is registered by a dry run")
	assert.Zero(t, countEntries(t, store))
	runs, err := store.ListIngestRuns(context.Background(), repository.ListIngestRunsParams{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestIngestUnknownMapping(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store)

	report, err := svc.Ingest(context.Background(), Request{
		Data:        scenarioWorkbook(t),
		ServiceName: "environmental testing",
	})
	assert.Nil(t, report)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMapping)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "environmental testing", cfgErr.ServiceName)
}

func TestIngestStructuralErrors(t *testing.T) {
	testCases := []struct {
		name      string
		data      func(t *testing.T) []byte
		sheetName string
		sentinel  error
	}{
		{
			name:      "sheet not found",
			data:      scenarioWorkbook,
			sheetName: "Soil",
			sentinel:  sheet.ErrSheetNotFound,
		},
		{
			name:     "default sheet missing",
			data:     func(t *testing.T) []byte { return buildWorkbook(t, testSheet{name: "Air", rows: [][]any{header}}) },
			sentinel: sheet.ErrSheetNotFound,
		},
		{
			name:      "header row out of range",
			data:      func(t *testing.T) []byte { return buildWorkbook(t, testSheet{name: "Water"}) },
			sheetName: "Water",
			sentinel:  processing.ErrHeaderRowOutOfRange,
		},
		{
			name:     "not a workbook",
			data:     func(t *testing.T) []byte { return []byte("name,unit\nLead,mg/L\n") },
			sentinel: sheet.ErrInvalidWorkbook,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			svc := newTestService(t, store)

			report, err := svc.Ingest(context.Background(), Request{
				Data:        tc.data(t),
				ServiceName: envService,
				SheetName:   tc.sheetName,
			})
			assert.Nil(t, report)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)

			var structErr *StructuralError
			assert.True(t, errors.As(err, &structErr))

			services, err := store.ListServices(context.Background())
			require.NoError(t, err)
			assert.Empty(t, services, "nothing is written before the sheet is validated")
		})
	}
}

func TestIngestDefaultSheetFallback(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store)

	data := buildWorkbook(t,
		testSheet{name: "Cover", rows: [][]any{{"Rate list 2026"}}},
		testSheet{name: "Water", rows: [][]any{header, {"Lead", "Heavy Metals", "AAS", "mg/L"}}},
	)
	report, err := svc.Ingest(context.Background(), Request{Data: data, ServiceName: envService})
	require.NoError(t, err)
	assert.Equal(t, "Water", report.SheetNameUsed)
	assert.Equal(t, 1, report.Processed)
}

// flakyStore fails or panics on selected test names.
type flakyStore struct {
	*repository.MemoryStore
	failOn  string
	panicOn string
}

func (f *flakyStore) UpsertCatalogEntry(ctx context.Context, arg repository.UpsertCatalogEntryParams) (repository.UpsertCatalogEntryRow, error) {
	switch arg.TestName {
	case f.failOn:
		return repository.UpsertCatalogEntryRow{}, errors.New("deadlock detected")
	case f.panicOn:
		panic("nil map write")
	}
	return f.MemoryStore.UpsertCatalogEntry(ctx, arg)
}

func TestIngestPartialFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: repository.NewMemoryStore(), failOn: "Zinc", panicOn: "Copper"}
	svc := newTestService(t, store, WithWorkers(2))

	report, err := svc.Ingest(context.Background(), Request{
		Data: buildWorkbook(t, testSheet{name: "Water", rows: [][]any{
			header,
			{"Lead", "Heavy Metals", "AAS", "mg/L"},
			{"Zinc", "Heavy Metals", "AAS", "mg/L"},
			{"Copper", "Heavy Metals", "AAS", "mg/L"},
			{"Iron", "Heavy Metals", "AAS", "mg/L"},
		}}),
		ServiceName: envService,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Projected)
	assert.Equal(t, 2, report.Processed)
	assert.Len(t, report.AffectedEntryIDs, 2)
	require.Len(t, report.Errors, 2)

	assert.Equal(t, 3, report.Errors[0].RowNumber)
	assert.Equal(t, "Zinc", report.Errors[0].TestName)
	assert.Equal(t, "Heavy Metals", *report.Errors[0].Group)
	assert.Contains(t, report.Errors[0].Message, "deadlock detected")

	assert.Equal(t, 4, report.Errors[1].RowNumber)
	assert.Equal(t, "Copper", report.Errors[1].TestName)
	assert.Contains(t, report.Errors[1].Message, "nil map write")

	runs, err := store.ListIngestRuns(context.Background(), repository.ListIngestRunsParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.EqualValues(t, 2, runs[0].ErrorCount)
	assert.EqualValues(t, 2, runs[0].Processed)
}

func TestIngestConcurrentRowsShareOneEntry(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store, WithWorkers(8))

	rows := [][]any{header}
	units := []string{"mg/L", "mg l-1", "mgL-1", "MG/L"}
	for i := 0; i < 40; i++ {
		rows = append(rows, []any{"Lead", "Heavy Metals", "AAS", units[i%len(units)]})
	}

	report, err := svc.Ingest(context.Background(), Request{
		Data:        buildWorkbook(t, testSheet{name: "Water", rows: rows}),
		ServiceName: envService,
	})
	require.NoError(t, err)
	assert.Equal(t, 40, report.Processed)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 39, report.Refreshed)
	assert.Len(t, report.AffectedEntryIDs, 1)
	assert.EqualValues(t, 1, countEntries(t, store))
}

func TestIngestLastDuplicateRowWins(t *testing.T) {
	rows := [][]any{header}
	for i := 0; i < 39; i++ {
		rows = append(rows, []any{"Lead", "Heavy Metals", "AAS", "mg/L", i, "yes", fmt.Sprintf("Dept %d", i)})
	}
	rows = append(rows, []any{"Lead", "Heavy Metals", "AAS", "mg/L", 99, "no", "Last"})
	for i := 0; i < 20; i++ {
		rows = append(rows, []any{fmt.Sprintf("Other %d", i), "Heavy Metals", "AAS", "mg/L"})
	}
	data := buildWorkbook(t, testSheet{name: "Water", rows: rows})

	for attempt := 0; attempt < 25; attempt++ {
		store := repository.NewMemoryStore()
		svc := newTestService(t, store, WithWorkers(8))

		report, err := svc.Ingest(context.Background(), Request{Data: data, ServiceName: envService})
		require.NoError(t, err)
		require.Equal(t, 60, report.Processed)

		entry, err := store.GetCatalogEntry(context.Background(), report.AffectedEntryIDs[0])
		require.NoError(t, err)
		require.Equal(t, "Lead", entry.TestName)
		require.Equal(t, "Last", *entry.Department, "attempt %d", attempt)
		require.Equal(t, 99, *entry.TATDays, "attempt %d", attempt)
		require.Equal(t, "No", *entry.AccreditationStatus, "attempt %d", attempt)
	}
}

func TestShardFor(t *testing.T) {
	fp := strings.Repeat("ab", 32)
	first := shardFor(fp, 4)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, shardFor(fp, 4), "same fingerprint maps to the same shard")
	}
	assert.Equal(t, 0, shardFor(fp, 1))
	assert.Equal(t, 0, shardFor("short", 4))
	assert.Equal(t, 0, shardFor("zzzzzzzz", 4))

	seen := make(map[int]bool)
	for i := 0; i < 64; i++ {
		n := shardFor(fmt.Sprintf("%08x", i), 4)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 4)
		seen[n] = true
	}
	assert.Len(t, seen, 4, "fingerprints spread across every shard")
}

func TestIngestRecordsRunHistory(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store)

	report, err := svc.Ingest(context.Background(), Request{
		Data:         scenarioWorkbook(t),
		ServiceName:  envService,
		VersionStamp: "2026-Q1",
		SourcePath:   "rates.xlsx",
	})
	require.NoError(t, err)

	runs, err := store.ListIngestRuns(context.Background(), repository.ListIngestRunsParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, report.RunID, run.ID)
	assert.Equal(t, "environment-test", run.MappingVariant)
	assert.Equal(t, "Water", run.SheetName)
	assert.EqualValues(t, 2, run.Projected)
	assert.EqualValues(t, 1, run.Skipped)
	assert.Contains(t, string(run.Report), report.AffectedEntryIDs[0].String())
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

type fakeArchiver struct {
	calls int
	err   error
}

func (f *fakeArchiver) Archive(_ context.Context, runID uuid.UUID, serviceName, filename string, _ []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("gs://bucket/%s/%s-%s", serviceName, runID, filename), nil
}

func TestIngestArchivesAndEmbeds(t *testing.T) {
	store := repository.NewMemoryStore()
	archiver := &fakeArchiver{}
	var embedded []string
	embedder := func(_ context.Context, text string) ([]float32, error) {
		embedded = append(embedded, text)
		return []float32{0.5, 0.25}, nil
	}
	svc := newTestService(t, store, WithArchiver(archiver), WithEmbedder(embedder), WithWorkers(1))

	report, err := svc.Ingest(context.Background(), Request{
		Data:        buildWorkbook(t, testSheet{name: "Water", rows: [][]any{header, {"Lead", "Heavy Metals", "AAS", "mg/L"}}}),
		ServiceName: envService,
		SourcePath:  "uploads/rates.xlsx",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, archiver.calls)
	assert.Contains(t, report.ArchiveURI, "rates.xlsx")
	assert.Equal(t, []string{"AAS"}, embedded)

	entry, err := store.GetCatalogEntry(context.Background(), report.AffectedEntryIDs[0])
	require.NoError(t, err)
	require.NotNil(t, entry.Embedding)
	assert.Equal(t, []float32{0.5, 0.25}, entry.Embedding.Slice())

	dry, err := svc.Ingest(context.Background(), Request{
		Data:        buildWorkbook(t, testSheet{name: "Water", rows: [][]any{header, {"Lead"}}}),
		ServiceName: envService,
		DryRun:      true,
	})
	require.NoError(t, err)
	assert.Empty(t, dry.ArchiveURI)
	assert.Equal(t, 1, archiver.calls, "dry runs are not archived")
}

func TestIngestSurvivesArchiveAndEmbeddingFailures(t *testing.T) {
	store := repository.NewMemoryStore()
	archiver := &fakeArchiver{err: errors.New("bucket not found")}
	embedder := func(context.Context, string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}
	svc := newTestService(t, store, WithArchiver(archiver), WithEmbedder(embedder))

	report, err := svc.Ingest(context.Background(), Request{
		Data:        buildWorkbook(t, testSheet{name: "Water", rows: [][]any{header, {"Lead", "Heavy Metals", "AAS", "mg/L"}}}),
		ServiceName: envService,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.ArchiveURI)

	entry, err := store.GetCatalogEntry(context.Background(), report.AffectedEntryIDs[0])
	require.NoError(t, err)
	assert.Nil(t, entry.Embedding)
}

func TestIngestCancelledContext(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.Ingest(ctx, Request{Data: scenarioWorkbook(t), ServiceName: envService})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
}
