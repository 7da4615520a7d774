package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/charmbracelet/log"
)

const slowQueryThreshold = 100 * time.Millisecond

// dbHandle is satisfied by *sql.DB and *queryLogger. Store methods go through
// it so slow statements are reported in one place.
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type queryLogger struct {
	inner *sql.DB
	log   *log.Logger
}

func (q *queryLogger) observe(start time.Time, query string) {
	d := time.Since(start)
	if d < slowQueryThreshold {
		return
	}
	l := q.log
	if l == nil {
		l = log.Default()
	}
	l.Warn("slow query", "duration", d.Round(time.Millisecond), "query", truncateQuery(query))
}

func (q *queryLogger) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer q.observe(time.Now(), query)
	return q.inner.ExecContext(ctx, query, args...)
}

func (q *queryLogger) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer q.observe(time.Now(), query)
	return q.inner.QueryContext(ctx, query, args...)
}

func (q *queryLogger) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer q.observe(time.Now(), query)
	return q.inner.QueryRowContext(ctx, query, args...)
}

func (q *queryLogger) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return q.inner.BeginTx(ctx, opts)
}

func (q *queryLogger) Close() error {
	return q.inner.Close()
}

func truncateQuery(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
