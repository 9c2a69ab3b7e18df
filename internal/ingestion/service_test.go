package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/unidata/internal/domain"
	"github.com/rpattn/unidata/internal/repository"
	"github.com/rpattn/unidata/internal/repository/sqlite"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type countingDetector struct {
	inner Detector
	calls atomic.Int32
}

func (d *countingDetector) Detect(columns []string) (domain.RecordFamily, error) {
	d.calls.Add(1)
	return d.inner.Detect(columns)
}

type countingNormalizer struct {
	Normalizer
	calls atomic.Int32
}

func (n *countingNormalizer) Normalize(ctx context.Context, rows []domain.RawRow) ([]domain.NormalizedRecord, error) {
	n.calls.Add(1)
	return n.Normalizer.Normalize(ctx, rows)
}

// failingStore lets the first failAfter records of a bulk insert through, then fails.
type failingStore struct {
	repository.Store
	failAfter int
}

func (s *failingStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(&failingStore{Store: tx, failAfter: s.failAfter})
	})
}

func (s *failingStore) Records() repository.RecordRepository {
	return &failingRecords{RecordRepository: s.Store.Records(), failAfter: s.failAfter}
}

type failingRecords struct {
	repository.RecordRepository
	failAfter int
}

func (r *failingRecords) BulkInsert(ctx context.Context, records []domain.NormalizedRecord, batchSize int) (int, error) {
	n, err := r.RecordRepository.BulkInsert(ctx, records[:min(r.failAfter, len(records))], batchSize)
	if err != nil {
		return n, err
	}
	return n, errors.New("connection reset by peer")
}

type fixture struct {
	store      *sqlite.Store
	service    *Service
	detector   *countingDetector
	normalizer *countingNormalizer
	clock      *stepClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store, err := sqlite.Open(context.Background(), sqlite.MemoryPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		store:    store,
		detector: &countingDetector{inner: NewSignatureDetector()},
		clock:    &stepClock{t: time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)},
	}
	normalizers := DefaultNormalizers(4)
	f.normalizer = &countingNormalizer{Normalizer: normalizers[domain.FamilyPublication]}
	normalizers[domain.FamilyPublication] = f.normalizer

	cfg := DefaultConfig()
	cfg.BatchSize = 3
	base := []Option{
		WithLogger(logger),
		WithClock(f.clock.now),
		WithDetector(f.detector),
		WithNormalizers(normalizers),
	}
	f.service = NewService(store, cfg, append(base, opts...)...)
	return f
}

// publicationCSV builds n data rows; blankRow (a sheet row number, header is row 1)
// gets an empty college when positive.
func publicationCSV(n int, blankRow int) []byte {
	var b strings.Builder
	b.WriteString("논문ID,게재일,단과대학,학과,논문제목\n")
	for i := 0; i < n; i++ {
		college := "공과대학"
		if i+2 == blankRow {
			college = ""
		}
		fmt.Fprintf(&b, "P%03d,2024-03-%02d,%s,컴퓨터공학과,Title %d\n", i, i+1, college, i)
	}
	return []byte(b.String())
}

func (f *fixture) count(t *testing.T, family domain.RecordFamily) int64 {
	t.Helper()
	n, err := f.store.Records().Count(context.Background(), domain.RecordFilter{Family: family})
	require.NoError(t, err)
	return n
}

func (f *fixture) ingestPublications(t *testing.T, n int) Result {
	t.Helper()
	result, err := f.service.Ingest(context.Background(), Request{
		Data:            publicationCSV(n, 0),
		Filename:        "papers.csv",
		UploaderID:      1,
		ContentType:     "text/csv",
		ReplaceExisting: true,
	})
	require.NoError(t, err)
	return result
}

func TestIngestReplacesFamilySnapshot(t *testing.T) {
	f := newFixture(t)
	f.ingestPublications(t, 5)
	require.EqualValues(t, 5, f.count(t, domain.FamilyPublication))

	result := f.ingestPublications(t, 10)

	assert.Equal(t, domain.UploadSuccess, result.Status)
	assert.Equal(t, domain.FamilyPublication, result.Family)
	assert.Equal(t, 10, result.TotalRecords)
	assert.Equal(t, 10, result.ProcessedRecords)
	assert.EqualValues(t, 5, result.DeletedRecords)
	assert.Equal(t, "10 publication records uploaded successfully", result.Message)
	assert.EqualValues(t, 10, f.count(t, domain.FamilyPublication))

	log, err := f.store.UploadLogs().GetByID(context.Background(), result.UploadLogID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadSuccess, log.Status)
	require.NotNil(t, log.TotalRecords)
	require.NotNil(t, log.ProcessedRecords)
	assert.Equal(t, 10, *log.TotalRecords)
	assert.Equal(t, 10, *log.ProcessedRecords)
	assert.Nil(t, log.ErrorMessage)

	records, err := f.service.ListRecords(context.Background(), domain.RecordFilter{UploadLogID: result.UploadLogID}, 100, 0)
	require.NoError(t, err)
	assert.Len(t, records, 10)
}

func TestIngestWithoutReplaceAppends(t *testing.T) {
	f := newFixture(t)
	f.ingestPublications(t, 5)

	_, err := f.service.Ingest(context.Background(), Request{
		Data:       publicationCSV(4, 0),
		Filename:   "more.csv",
		UploaderID: 1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 9, f.count(t, domain.FamilyPublication))
}

func TestIngestFailsOnEmptyRequiredField(t *testing.T) {
	f := newFixture(t)
	f.ingestPublications(t, 5)

	result, err := f.service.Ingest(context.Background(), Request{
		Data:            publicationCSV(10, 7),
		Filename:        "papers.csv",
		UploaderID:      1,
		ReplaceExisting: true,
	})
	require.Error(t, err)

	var failed *domain.IngestionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, result.UploadLogID, failed.UploadLogID)

	var missing *domain.MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 7, missing.Row)
	assert.Equal(t, domain.ColCollege, missing.Field)

	log, getErr := f.store.UploadLogs().GetByID(context.Background(), failed.UploadLogID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.UploadFailed, log.Status)
	require.NotNil(t, log.ErrorMessage)
	assert.Contains(t, *log.ErrorMessage, "row 7")
	assert.Contains(t, *log.ErrorMessage, domain.ColCollege)
	assert.Nil(t, log.TotalRecords)

	assert.EqualValues(t, 5, f.count(t, domain.FamilyPublication))
	assert.Equal(t, domain.UploadFailed, result.Status)
}

func TestIngestRejectsOversizedFileBeforeParsing(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Ingest(context.Background(), Request{
		Data:       publicationCSV(2, 0),
		Filename:   "huge.csv",
		FileSize:   60 * 1024 * 1024,
		UploaderID: 9,
	})

	var fileErr *domain.FileValidationError
	require.ErrorAs(t, err, &fileErr)
	assert.Contains(t, fileErr.Error(), "50 MiB")
	assert.Zero(t, f.detector.calls.Load())
	assert.Zero(t, f.normalizer.calls.Load())

	page, err := f.service.ListLogs(context.Background(), nil, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Logs, 1)
	assert.Equal(t, domain.UploadFailed, page.Logs[0].Status)
	assert.EqualValues(t, 60*1024*1024, page.Logs[0].FileSize)
}

func TestIngestRejectsUnsupportedExtension(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Ingest(context.Background(), Request{Data: []byte("a,b\n1,2\n"), Filename: "data.txt", UploaderID: 1})
	var fileErr *domain.FileValidationError
	require.ErrorAs(t, err, &fileErr)
	assert.Zero(t, f.detector.calls.Load())

	_, err = f.service.Ingest(context.Background(), Request{Filename: "empty.csv", UploaderID: 1})
	require.ErrorAs(t, err, &fileErr)
}

func TestIngestUnrecognizedFormat(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Ingest(context.Background(), Request{
		Data:       []byte("name,score\nkim,3\n"),
		Filename:   "scores.csv",
		UploaderID: 1,
	})

	var unrecognized *domain.UnrecognizedFormatError
	require.ErrorAs(t, err, &unrecognized)
	var parsing *domain.DataParsingError
	require.ErrorAs(t, err, &parsing)
	assert.Equal(t, []string{"name", "score"}, unrecognized.Columns)
	assert.Zero(t, f.normalizer.calls.Load())
}

func TestIngestRollsBackPartialPersistence(t *testing.T) {
	f := newFixture(t)
	f.ingestPublications(t, 5)

	broken := NewService(&failingStore{Store: f.store, failAfter: 4}, Config{BatchSize: 3},
		WithLogger(f.service.log), WithClock(f.clock.now))

	_, err := broken.Ingest(context.Background(), Request{
		Data:            publicationCSV(10, 0),
		Filename:        "papers.csv",
		UploaderID:      1,
		ReplaceExisting: true,
	})
	var failed *domain.IngestionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Contains(t, err.Error(), "connection reset")

	assert.EqualValues(t, 5, f.count(t, domain.FamilyPublication))
	leaked, err := f.store.Records().Count(context.Background(), domain.RecordFilter{UploadLogID: failed.UploadLogID})
	require.NoError(t, err)
	assert.Zero(t, leaked)

	log, err := f.store.UploadLogs().GetByID(context.Background(), failed.UploadLogID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadFailed, log.Status)
}

func TestIngestRunsRecordValidator(t *testing.T) {
	f := newFixture(t)

	payload := "학번,이름,단과대학,학과,입학년도,학년\n" +
		"2023001,김민준,공과대학,전자공학과,2023,2\n" +
		"2023002,이서연,공과대학,전자공학과,2023,9\n"
	_, err := f.service.Ingest(context.Background(), Request{Data: []byte(payload), Filename: "students.csv", UploaderID: 1})

	var invalid *domain.RecordValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 3, invalid.Row)
	assert.Zero(t, f.count(t, domain.FamilyStudent))
}

func TestIngestKPIWorkbook(t *testing.T) {
	f := newFixture(t)
	payload := xlsxFixture(t,
		[]any{"평가년도", "학기", "단과대학", "학과", "취업률", "신입생충원율"},
		[]any{2024, "1학기", "공과대학", "기계공학과", 71.5, 98},
		[]any{2024, "1학기", "공과대학", "전자공학과", "NaN", 100},
	)

	result, err := f.service.Ingest(context.Background(), Request{
		Data:        payload,
		Filename:    "kpi.xlsx",
		UploaderID:  2,
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FamilyKPI, result.Family)

	records, err := f.service.ListRecords(context.Background(), domain.RecordFilter{Family: domain.FamilyKPI, Department: "전자공학과"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2024, records[0].Year)
	assert.Equal(t, "1학기", *records[0].Semester)
	assert.True(t, records[0].Metadata["취업률"].IsNull())
	assert.Equal(t, domain.Number(100), records[0].Metadata["신입생충원율"])
}

func TestDeleteUploadCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.DeleteUpload(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)

	first := f.ingestPublications(t, 3)
	second, err := f.service.Ingest(ctx, Request{Data: publicationCSV(2, 0), Filename: "b.csv", UploaderID: 1})
	require.NoError(t, err)

	deleted, err := f.service.DeleteUpload(ctx, first.UploadLogID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	remaining, err := f.service.CountRecords(ctx, domain.RecordFilter{UploadLogID: first.UploadLogID})
	require.NoError(t, err)
	assert.Zero(t, remaining)
	_, err = f.store.UploadLogs().GetByID(ctx, first.UploadLogID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	kept, err := f.service.CountRecords(ctx, domain.RecordFilter{UploadLogID: second.UploadLogID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, kept)
}

func TestListLogsAndStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.ingestPublications(t, i+1)
	}
	_, err := f.service.Ingest(ctx, Request{Data: []byte("x\n1\n"), Filename: "bad.csv", UploaderID: 2})
	require.Error(t, err)

	page, err := f.service.ListLogs(ctx, nil, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 4, page.Total)
	require.Len(t, page.Logs, 2)
	assert.Equal(t, "bad.csv", page.Logs[0].Filename)
	assert.Equal(t, domain.UploadFailed, page.Logs[0].Status)

	uploader := int64(1)
	page, err = f.service.ListLogs(ctx, &uploader, 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Logs, 1)

	stats, err := f.service.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.FamilyStatistics{
		{Family: domain.FamilyKPI, Count: 0},
		{Family: domain.FamilyPublication, Count: 3},
		{Family: domain.FamilyResearch, Count: 0},
		{Family: domain.FamilyStudent, Count: 0},
	}, stats)
}

func TestReconcileStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stuck := domain.NewUploadLog(4, "stuck.csv", 10, f.clock.t.Add(-2*time.Hour))
	require.NoError(t, f.store.UploadLogs().Create(ctx, stuck))
	fresh := domain.NewUploadLog(4, "fresh.csv", 10, f.clock.t)
	require.NoError(t, f.store.UploadLogs().Create(ctx, fresh))

	reconciled, err := f.service.ReconcileStale(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, reconciled, 1)
	assert.Equal(t, stuck.ID, reconciled[0].ID)

	log, err := f.store.UploadLogs().GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadFailed, log.Status)
	require.NotNil(t, log.ErrorMessage)
	assert.Contains(t, *log.ErrorMessage, "abandoned")

	log, err = f.store.UploadLogs().GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadPending, log.Status)

	reconciled, err = f.service.ReconcileStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, reconciled)
}
