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
	"github.com/rpattn/unidata/pkg/validator"
)

// Config tunes the ingestion pipeline.
type Config struct {
	MaxFileSize    int64         `mapstructure:"max_file_size" validate:"min=1"`
	BatchSize      int           `mapstructure:"batch_size" validate:"min=1,max=500"`
	Workers        int           `mapstructure:"workers" validate:"min=1,max=64"`
	PendingTimeout time.Duration `mapstructure:"pending_timeout" validate:"min=0"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxFileSize:    DefaultMaxFileSize,
		BatchSize:      repository.DefaultBatchSize,
		Workers:        4,
		PendingTimeout: 30 * time.Minute,
	}
}

// RecordChecker is the semantic validation pass run on every normalized record.
type RecordChecker interface {
	Validate(family domain.RecordFamily, record validator.Record, row int) error
}

// Service runs the ingestion pipeline and owns the upload log state machine.
type Service struct {
	store       repository.Store
	cfg         Config
	parser      TableParser
	detector    Detector
	normalizers map[domain.RecordFamily]Normalizer
	validator   RecordChecker
	log         logrus.FieldLogger
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithParser replaces the spreadsheet parser.
func WithParser(p TableParser) Option { return func(s *Service) { s.parser = p } }

// WithDetector replaces the family detector.
func WithDetector(d Detector) Option { return func(s *Service) { s.detector = d } }

// WithNormalizers replaces the per-family normalizers.
func WithNormalizers(n map[domain.RecordFamily]Normalizer) Option {
	return func(s *Service) { s.normalizers = n }
}

// WithValidator replaces the record validator.
func WithValidator(v RecordChecker) Option { return func(s *Service) { s.validator = v } }

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Service) { s.log = l } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a new ingestion service.
func NewService(store repository.Store, cfg Config, opts ...Option) *Service {
	defaults := DefaultConfig()
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaults.MaxFileSize
	}
	cfg.BatchSize = repository.ClampBatchSize(cfg.BatchSize)
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = defaults.PendingTimeout
	}

	s := &Service{
		store:       store,
		cfg:         cfg,
		parser:      NewSpreadsheetParser(),
		detector:    NewSignatureDetector(),
		normalizers: DefaultNormalizers(cfg.Workers),
		validator:   validator.NewRecordValidator(),
		log:         logrus.StandardLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes the ingestion input.
type Request struct {
	Data     []byte
	Filename string
	// FileSize is the size declared by the transport. When zero, len(Data) is used.
	FileSize        int64
	UploaderID      int64
	ContentType     string
	ReplaceExisting bool
}

// Result summarises an ingestion attempt.
type Result struct {
	UploadLogID      uuid.UUID           `json:"upload_log_id"`
	Status           domain.UploadStatus `json:"status"`
	Family           domain.RecordFamily `json:"data_type,omitempty"`
	TotalRecords     int                 `json:"total_records"`
	ProcessedRecords int                 `json:"processed_records"`
	DeletedRecords   int64               `json:"deleted_records"`
	Message          string              `json:"message"`
}

// Ingest parses, classifies, normalizes and validates the file, then replaces (optionally)
// and inserts the family's records in one transaction. Every failure is recorded on the
// upload log and returned as a *domain.IngestionFailedError.
func (s *Service) Ingest(ctx context.Context, req Request) (Result, error) {
	started := s.now()
	size := max(req.FileSize, int64(len(req.Data)))

	log := domain.NewUploadLog(req.UploaderID, req.Filename, size, started)
	if err := s.store.UploadLogs().Create(ctx, log); err != nil {
		return Result{}, fmt.Errorf("failed to create upload log: %w", err)
	}

	entry := s.log.WithFields(logrus.Fields{
		"upload_log_id": log.ID,
		"filename":      req.Filename,
		"uploader_id":   req.UploaderID,
		"file_size":     size,
	})

	result, err := s.run(ctx, log, req, size, entry)
	elapsed := s.now().Sub(started)
	if err != nil {
		s.markFailed(ctx, log, err, entry)
		uploadsTotal.WithLabelValues(familyLabel(string(result.Family)), string(domain.UploadFailed)).Inc()
		ingestDuration.WithLabelValues(string(domain.UploadFailed)).Observe(elapsed.Seconds())
		entry.WithError(err).WithFields(logrus.Fields{
			"family":   result.Family,
			"duration": elapsed,
		}).Warn("ingestion failed")

		result.UploadLogID = log.ID
		result.Status = domain.UploadFailed
		result.Message = err.Error()
		return result, &domain.IngestionFailedError{UploadLogID: log.ID, Err: err}
	}

	uploadsTotal.WithLabelValues(string(result.Family), string(domain.UploadSuccess)).Inc()
	recordsIngested.WithLabelValues(string(result.Family)).Add(float64(result.ProcessedRecords))
	ingestDuration.WithLabelValues(string(domain.UploadSuccess)).Observe(elapsed.Seconds())
	entry.WithFields(logrus.Fields{
		"family":   result.Family,
		"records":  result.ProcessedRecords,
		"deleted":  result.DeletedRecords,
		"duration": elapsed,
	}).Info("ingestion succeeded")
	return result, nil
}

// run performs everything after the pending log exists. The returned Result carries the
// detected family even on failure.
func (s *Service) run(ctx context.Context, log domain.UploadLog, req Request, size int64, entry logrus.FieldLogger) (Result, error) {
	result := Result{UploadLogID: log.ID}

	if err := checkFile(req.Filename, size, s.cfg.MaxFileSize); err != nil {
		return result, err
	}
	if len(req.Data) == 0 {
		return result, &domain.FileValidationError{Reason: "file is empty"}
	}
	if !knownContentType(req.ContentType) {
		entry.WithField("content_type", req.ContentType).Warn("unexpected content type, continuing with sniffed format")
	}

	table, err := s.parser.Parse(req.Filename, req.Data)
	if err != nil {
		return result, asParsingError(err)
	}

	family, err := s.detector.Detect(table.Columns)
	if err != nil {
		return result, asParsingError(err)
	}
	result.Family = family

	normalizer, err := normalizerFor(s.normalizers, family)
	if err != nil {
		return result, asParsingError(err)
	}
	records, err := normalizer.Normalize(ctx, table.Rows)
	if err != nil {
		return result, asParsingError(err)
	}

	for _, record := range records {
		if err := s.validator.Validate(family, record, record.RowNumber); err != nil {
			return result, err
		}
	}

	now := s.now()
	for i := range records {
		records[i].ID = uuid.New()
		records[i].UploadLogID = log.ID
		records[i].CreatedAt = now
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.LockFamily(ctx, family); err != nil {
			return err
		}

		if req.ReplaceExisting {
			deleted, err := tx.Records().DeleteByFamily(ctx, family)
			if err != nil {
				return err
			}
			result.DeletedRecords = deleted
			if deleted > 0 {
				entry.WithFields(logrus.Fields{"family": family, "deleted": deleted}).Info("replacing existing records")
			}
		}

		inserted, err := tx.Records().BulkInsert(ctx, records, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if inserted != len(records) {
			return fmt.Errorf("inserted %d of %d records", inserted, len(records))
		}

		done, err := log.Succeed(len(records), inserted, s.now())
		if err != nil {
			return err
		}
		return tx.UploadLogs().Finalize(ctx, done)
	})
	if err != nil {
		return result, err
	}

	recordsReplaced.WithLabelValues(string(family)).Add(float64(result.DeletedRecords))
	result.Status = domain.UploadSuccess
	result.TotalRecords = len(records)
	result.ProcessedRecords = len(records)
	result.Message = fmt.Sprintf("%d %s records uploaded successfully", len(records), family)
	return result, nil
}

// markFailed records the failure outside the data transaction, so it survives the rollback.
func (s *Service) markFailed(ctx context.Context, log domain.UploadLog, cause error, entry logrus.FieldLogger) {
	failed, err := log.Fail(cause.Error(), s.now())
	if err != nil {
		entry.WithError(err).Error("failed to mark upload log as failed")
		return
	}
	if err := s.store.UploadLogs().Finalize(context.WithoutCancel(ctx), failed); err != nil {
		entry.WithError(err).Error("failed to mark upload log as failed")
	}
}

func asParsingError(err error) error {
	var parsing *domain.DataParsingError
	if errors.As(err, &parsing) {
		return err
	}
	return &domain.DataParsingError{Err: err}
}
