package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/unidata/internal/db"
	"github.com/rpattn/unidata/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	conn *db.Connection
	q    querier
	inTx bool
}

// NewPostgresStore wires a store backed by the connection pool.
func NewPostgresStore(conn *db.Connection) *PostgresStore {
	return &PostgresStore{conn: conn, q: conn.Pool}
}

func (s *PostgresStore) UploadLogs() UploadLogRepository {
	return &uploadLogRepository{q: s.q}
}

func (s *PostgresStore) Records() RecordRepository {
	return &recordRepository{q: s.q}
}

// WithTx runs fn in a READ COMMITTED transaction. Same-family replacements are kept apart
// by LockFamily rather than by a stricter isolation level: a REPEATABLE READ snapshot would
// be taken before the lock wait and miss rows committed by the previous holder.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if s.conn == nil {
		return errors.New("postgres store not initialized")
	}
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&PostgresStore{conn: s.conn, q: tx, inTx: true})
	})
}

// LockFamily takes a transaction-scoped advisory lock keyed by the family name.
func (s *PostgresStore) LockFamily(ctx context.Context, family domain.RecordFamily) error {
	if !s.inTx {
		return errors.New("family lock requires a transaction")
	}
	if _, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "uploaded_data:"+family.String()); err != nil {
		return fmt.Errorf("failed to lock %s records: %w", family, err)
	}
	return nil
}
