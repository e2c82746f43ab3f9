// Package db implements store.Store on Postgres.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"budgee-sync/src/db"
	"budgee-sync/src/store"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	q     dbtx
	cache *db.CategoryCache
}

func New(pool *pgxpool.Pool, cache *db.CategoryCache) *Store {
	return &Store{q: pool, cache: cache}
}

// WithTx runs fn inside a transaction. Nested calls become savepoints.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return pgx.BeginFunc(ctx, s.q, func(tx pgx.Tx) error {
		return fn(&Store{q: tx, cache: s.cache})
	})
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func requireRow(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// batchIDs sends b and reads one RETURNING id per queued query.
func (s *Store) batchIDs(ctx context.Context, b *pgx.Batch) ([]string, error) {
	results := s.q.SendBatch(ctx, b)
	ids := make([]string, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		var id string
		if err := results.QueryRow().Scan(&id); err != nil {
			results.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, results.Close()
}

func (s *Store) execBatch(ctx context.Context, b *pgx.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	return s.q.SendBatch(ctx, b).Close()
}

var _ store.Store = (*Store)(nil)
