package storage

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type Run struct {
	ID               string
	Period           string
	Status           string
	RowsWritten      int64
	InvoicesAssigned int64
	LinksUpdated     int64
	EmailsWritten    int64
	Error            string
	StartedAt        time.Time
	FinishedAt       time.Time
}

const insertRun = `-- name: InsertRun :exec
INSERT INTO runs (
    id, period, status, rows_written, invoices_assigned,
    links_updated, emails_written, error, started_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertRun(ctx context.Context, r Run) error {
	_, err := q.db.ExecContext(ctx, insertRun,
		r.ID,
		r.Period,
		r.Status,
		r.RowsWritten,
		r.InvoicesAssigned,
		r.LinksUpdated,
		r.EmailsWritten,
		r.Error,
		r.StartedAt,
		r.FinishedAt,
	)
	return err
}

const countRunsByStatus = `-- name: CountRunsByStatus :one
SELECT COUNT(*) FROM runs WHERE period = ? AND status = ?
`

func (q *Queries) CountRunsByStatus(ctx context.Context, period, status string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countRunsByStatus, period, status)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listRuns = `-- name: ListRuns :many
SELECT id, period, status, rows_written, invoices_assigned,
       links_updated, emails_written, error, started_at, finished_at
FROM runs
ORDER BY started_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.Period,
			&i.Status,
			&i.RowsWritten,
			&i.InvoicesAssigned,
			&i.LinksUpdated,
			&i.EmailsWritten,
			&i.Error,
			&i.StartedAt,
			&i.FinishedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
