package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultQueryTimeout = 10 * time.Second
	exportTimeout       = 2 * time.Minute
)

// baseRepository carries the bun handle and the per-call timeout every
// repository applies.
type baseRepository struct {
	db      *bun.DB
	timeout time.Duration
}

func newBaseRepository(db *bun.DB) baseRepository {
	return baseRepository{db: db, timeout: defaultQueryTimeout}
}

func (b baseRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b baseRepository) withCustomTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parsePlayerID never fails: malformed ids decode to uuid.Nil and are logged.
func parsePlayerID(raw, table string) uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		slog.Warn("Malformed player id in row",
			slog.String("type", "db"),
			slog.String("table", table),
			slog.String("value", raw),
			slog.Any("error", err))
		return uuid.Nil
	}
	return id
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

// RepositoryError names the operation and entity a store call failed on.
type RepositoryError struct {
	Operation string
	Entity    string
	Err       error
}

func (re *RepositoryError) Error() string {
	return fmt.Sprintf("repository error during %s for %s: %v", re.Operation, re.Entity, re.Err)
}

func (re *RepositoryError) Unwrap() error {
	return re.Err
}

func wrapErr(operation, entity string, err error) error {
	return &RepositoryError{Operation: operation, Entity: entity, Err: err}
}
