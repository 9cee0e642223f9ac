// Package pgstore provides a Postgres-backed dataset so a crawl frontier or
// result set survives process restarts.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spindleworks/spindle"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is a FIFO dataset over a two-column table (bigserial id, jsonb
// payload). Pop uses SKIP LOCKED so concurrent consumers never hand out the
// same row twice.
type Store[T any] struct {
	db      DB
	popSQL  string
	pushSQL string
}

// New builds a Store over the named table. The table name must be a plain
// lowercase identifier since it is interpolated into the statements.
func New[T any](db DB, table string) (*Store[T], error) {
	if db == nil {
		return nil, spindle.Errorf(spindle.KindDataset, "pgstore requires a database")
	}
	if !identPattern.MatchString(table) {
		return nil, spindle.Errorf(spindle.KindDataset, "invalid table name %q", table)
	}
	return &Store[T]{
		db:      db,
		pushSQL: fmt.Sprintf(`INSERT INTO %s (payload) VALUES ($1)`, table),
		popSQL: fmt.Sprintf(
			`DELETE FROM %s WHERE id = (
				SELECT id FROM %s ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED
			) RETURNING payload`, table, table),
	}, nil
}

// Push inserts the JSON-encoded item.
func (s *Store[T]) Push(ctx context.Context, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return spindle.Errorf(spindle.KindDataset, "encode item: %w", err)
	}
	if _, err := s.db.Exec(ctx, s.pushSQL, data); err != nil {
		return spindle.Errorf(spindle.KindDataset, "insert item: %w", err)
	}
	return nil
}

// Pop deletes and returns the oldest item. An empty table is not an error.
func (s *Store[T]) Pop(ctx context.Context) (T, bool, error) {
	var zero T
	var data []byte
	err := s.db.QueryRow(ctx, s.popSQL).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, spindle.Errorf(spindle.KindDataset, "pop item: %w", err)
	}
	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return zero, false, spindle.Errorf(spindle.KindDataset, "decode item: %w", err)
	}
	return item, true, nil
}
