package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"invoicer/internal/core"

	_ "modernc.org/sqlite"
)

// StatusOK is the run status that marks a period as processed.
const StatusOK = "ok"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// RecordRun stores the outcome of one period run.
func (r *SQLiteRepository) RecordRun(ctx context.Context, run core.RunRecord) error {
	err := r.queries.InsertRun(ctx, Run{
		ID:               run.ID,
		Period:           run.Period,
		Status:           run.Status,
		RowsWritten:      int64(run.RowsWritten),
		InvoicesAssigned: int64(run.InvoicesAssigned),
		LinksUpdated:     int64(run.LinksUpdated),
		EmailsWritten:    int64(run.EmailsWritten),
		Error:            run.Error,
		StartedAt:        run.StartedAt.UTC(),
		FinishedAt:       run.FinishedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	slog.InfoContext(ctx, "Run recorded",
		"run_id", run.ID,
		"period", run.Period,
		"status", run.Status)
	return nil
}

// HasSuccessfulRun reports whether period has a run with status ok.
func (r *SQLiteRepository) HasSuccessfulRun(ctx context.Context, period string) (bool, error) {
	n, err := r.queries.CountRunsByStatus(ctx, period, StatusOK)
	if err != nil {
		return false, fmt.Errorf("count runs for %s: %w", period, err)
	}
	return n > 0, nil
}

// ListRuns returns up to limit runs, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]core.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.queries.ListRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]core.RunRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.RunRecord{
			ID:               row.ID,
			Period:           row.Period,
			Status:           row.Status,
			RowsWritten:      int(row.RowsWritten),
			InvoicesAssigned: int(row.InvoicesAssigned),
			LinksUpdated:     int(row.LinksUpdated),
			EmailsWritten:    int(row.EmailsWritten),
			Error:            row.Error,
			StartedAt:        row.StartedAt,
			FinishedAt:       row.FinishedAt,
		})
	}
	return out, nil
}
