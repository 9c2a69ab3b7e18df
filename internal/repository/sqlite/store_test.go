package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/unidata/internal/domain"
	"github.com/rpattn/unidata/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger, _ := test.NewNullLogger()
	store, err := Open(context.Background(), MemoryPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecords(logID uuid.UUID, family domain.RecordFamily, n int, now time.Time) []domain.NormalizedRecord {
	records := make([]domain.NormalizedRecord, n)
	for i := range records {
		records[i] = domain.NormalizedRecord{
			ID:          uuid.New(),
			UploadLogID: logID,
			Family:      family,
			Year:        2024,
			College:     domain.StringPtr("공과대학"),
			Department:  domain.StringPtr(fmt.Sprintf("학과%d", i%3)),
			Metadata:    domain.Metadata{"seq": domain.Int(int64(i)), "note": domain.Null()},
			RowNumber:   i + 2,
			CreatedAt:   now,
		}
	}
	return records
}

func TestUploadLogLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	log := domain.NewUploadLog(7, "kpi.xlsx", 1024, now)
	require.NoError(t, store.UploadLogs().Create(ctx, log))

	done, err := log.Succeed(3, 3, now.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, store.UploadLogs().Finalize(ctx, done))

	stored, err := store.UploadLogs().GetByID(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadSuccess, stored.Status)
	require.NotNil(t, stored.TotalRecords)
	assert.Equal(t, 3, *stored.TotalRecords)
	assert.Nil(t, stored.ErrorMessage)
	assert.True(t, stored.CreatedAt.Equal(now))

	failed, err := log.Fail("late failure", now.Add(2*time.Second))
	require.NoError(t, err)
	err = store.UploadLogs().Finalize(ctx, failed)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	var transition *domain.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, domain.UploadSuccess, transition.From)

	missing := domain.NewUploadLog(7, "x.csv", 1, now)
	missing, _ = missing.Fail("boom", now)
	require.ErrorIs(t, store.UploadLogs().Finalize(ctx, missing), domain.ErrNotFound)
}

func TestUploadLogListingNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		uploader := int64(1 + i%2)
		log := domain.NewUploadLog(uploader, fmt.Sprintf("f%d.csv", i), 10, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.UploadLogs().Create(ctx, log))
	}

	logs, err := store.UploadLogs().List(ctx, domain.UploadLogFilter{}, 2, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "f4.csv", logs[0].Filename)
	assert.Equal(t, "f3.csv", logs[1].Filename)

	uploader := int64(2)
	filter := domain.UploadLogFilter{UploaderID: &uploader}
	logs, err = store.UploadLogs().List(ctx, filter, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "f3.csv", logs[0].Filename)

	total, err := store.UploadLogs().Count(ctx, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	pending, err := store.UploadLogs().ListPendingBefore(ctx, base.Add(150*time.Second))
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestRecordsBulkInsertInBatches(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	logID := uuid.New()

	inserted, err := store.Records().BulkInsert(ctx, sampleRecords(logID, domain.FamilyStudent, 23, now), 5)
	require.NoError(t, err)
	assert.Equal(t, 23, inserted)

	count, err := store.Records().Count(ctx, domain.RecordFilter{Family: domain.FamilyStudent, Department: "학과1"})
	require.NoError(t, err)
	assert.EqualValues(t, 8, count)

	records, err := store.Records().List(ctx, domain.RecordFilter{UploadLogID: logID}, 3, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, domain.FamilyStudent, records[0].Family)
	assert.True(t, records[0].Metadata["note"].IsNull())
	_, isNumber := records[0].Metadata["seq"].AsNumber()
	assert.True(t, isNumber)

	counts, err := store.Records().CountByFamily(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.RecordFamily]int64{domain.FamilyStudent: 23}, counts)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := store.Records().BulkInsert(ctx, sampleRecords(uuid.New(), domain.FamilyKPI, 4, now), 0)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.LockFamily(ctx, domain.FamilyKPI))
		deleted, err := tx.Records().DeleteByFamily(ctx, domain.FamilyKPI)
		require.NoError(t, err)
		assert.EqualValues(t, 4, deleted)
		return boom
	})
	require.ErrorIs(t, err, boom)

	count, err := store.Records().Count(ctx, domain.RecordFilter{Family: domain.FamilyKPI})
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)

	require.Error(t, store.LockFamily(ctx, domain.FamilyKPI))
}

func TestDeleteMissingUploadLog(t *testing.T) {
	store := openTestStore(t)
	err := store.UploadLogs().Delete(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
