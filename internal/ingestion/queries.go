package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rpattn/unidata/internal/domain"
	"github.com/rpattn/unidata/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// LogPage is one page of upload logs, newest first.
type LogPage struct {
	Logs  []domain.UploadLog `json:"logs"`
	Total int64              `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// ListLogs pages through upload logs. A nil uploaderID lists every uploader.
func (s *Service) ListLogs(ctx context.Context, uploaderID *int64, page, limit int) (LogPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	filter := domain.UploadLogFilter{UploaderID: uploaderID}
	logs, err := s.store.UploadLogs().List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return LogPage{}, err
	}
	total, err := s.store.UploadLogs().Count(ctx, filter)
	if err != nil {
		return LogPage{}, err
	}
	return LogPage{Logs: logs, Total: total, Page: page, Limit: limit}, nil
}

// Statistics returns the stored record count of every family, including empty ones.
func (s *Service) Statistics(ctx context.Context) ([]domain.FamilyStatistics, error) {
	counts, err := s.store.Records().CountByFamily(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]domain.FamilyStatistics, 0, len(domain.AllFamilies()))
	for _, family := range domain.AllFamilies() {
		stats = append(stats, domain.FamilyStatistics{Family: family, Count: counts[family]})
	}
	return stats, nil
}

// DeleteUpload removes an upload log together with every record it produced.
// It returns the number of records removed.
func (s *Service) DeleteUpload(ctx context.Context, id uuid.UUID) (int64, error) {
	var deleted int64
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.UploadLogs().GetByID(ctx, id); err != nil {
			return err
		}
		n, err := tx.Records().DeleteByUploadLog(ctx, id)
		if err != nil {
			return err
		}
		deleted = n
		return tx.UploadLogs().Delete(ctx, id)
	})
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{"upload_log_id": id, "deleted": deleted}).Info("upload deleted")
	return deleted, nil
}

// ListRecords is the read boundary used by dashboards.
func (s *Service) ListRecords(ctx context.Context, filter domain.RecordFilter, limit, offset int) ([]domain.NormalizedRecord, error) {
	return s.store.Records().List(ctx, filter, limit, offset)
}

// CountRecords counts the records matching filter.
func (s *Service) CountRecords(ctx context.Context, filter domain.RecordFilter) (int64, error) {
	return s.store.Records().Count(ctx, filter)
}

// ReconcileStale fails every pending log older than olderThan (the configured pending
// timeout when olderThan is not positive). Logs that reach a terminal state concurrently
// are skipped.
func (s *Service) ReconcileStale(ctx context.Context, olderThan time.Duration) ([]domain.UploadLog, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.PendingTimeout
	}
	now := s.now()
	stale, err := s.store.UploadLogs().ListPendingBefore(ctx, now.Add(-olderThan))
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("abandoned: no terminal status recorded within %s", olderThan)
	reconciled := make([]domain.UploadLog, 0, len(stale))
	for _, log := range stale {
		failed, err := log.Fail(message, now)
		if err != nil {
			return reconciled, err
		}
		if err := s.store.UploadLogs().Finalize(ctx, failed); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return reconciled, err
		}
		reconciled = append(reconciled, failed)
		uploadsTotal.WithLabelValues(familyLabel(""), string(domain.UploadFailed)).Inc()
	}

	if len(reconciled) > 0 {
		s.log.WithFields(logrus.Fields{"count": len(reconciled), "older_than": olderThan}).Warn("reconciled stale pending uploads")
	}
	return reconciled, nil
}
