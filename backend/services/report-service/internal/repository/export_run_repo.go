package repository

import (
	"context"
	"database/sql"

	"sessionexport/backend/services/report-service/internal/models"
)

const defaultListLimit = 50

// ExportRunRepository persists the export audit trail.
type ExportRunRepository struct {
	db *sql.DB
}

// NewExportRunRepository returns repository.
func NewExportRunRepository(db *sql.DB) *ExportRunRepository {
	return &ExportRunRepository{db: db}
}

// EnsureSchema creates the audit table when it does not exist yet.
func (r *ExportRunRepository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS export_runs (
			id            UUID PRIMARY KEY,
			export_id     TEXT NOT NULL,
			start_date    DATE NOT NULL,
			end_date      DATE NOT NULL,
			requested_by  TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			error_kind    TEXT NOT NULL DEFAULT '',
			error_detail  TEXT NOT NULL DEFAULT '',
			row_count     INTEGER NOT NULL DEFAULT 0,
			total_kwh     NUMERIC NOT NULL DEFAULT 0,
			unit_price    NUMERIC NOT NULL DEFAULT 0,
			payout        NUMERIC NOT NULL DEFAULT 0,
			duration_ms   BIGINT NOT NULL DEFAULT 0,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS export_runs_created_at_idx ON export_runs (created_at DESC);
	`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts an audit record.
func (r *ExportRunRepository) Create(ctx context.Context, run *models.ExportRun) error {
	const query = `
		INSERT INTO export_runs (
			id, export_id, start_date, end_date, requested_by, status, error_kind, error_detail,
			row_count, total_kwh, unit_price, payout, duration_ms, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.ExportID,
		run.StartDate,
		run.EndDate,
		run.RequestedBy,
		run.Status,
		run.ErrorKind,
		run.ErrorDetail,
		run.Rows,
		run.TotalKWh,
		run.UnitPrice,
		run.Payout,
		run.DurationMS,
		run.CreatedAt,
	)
	return err
}

// List returns the latest audit records, newest first.
func (r *ExportRunRepository) List(ctx context.Context, limit int) ([]models.ExportRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	const query = `
		SELECT id, export_id, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
		       requested_by, status, error_kind, error_detail, row_count, total_kwh, unit_price, payout,
		       duration_ms, created_at
		FROM export_runs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]models.ExportRun, 0)
	for rows.Next() {
		var run models.ExportRun
		if err := rows.Scan(
			&run.ID,
			&run.ExportID,
			&run.StartDate,
			&run.EndDate,
			&run.RequestedBy,
			&run.Status,
			&run.ErrorKind,
			&run.ErrorDetail,
			&run.Rows,
			&run.TotalKWh,
			&run.UnitPrice,
			&run.Payout,
			&run.DurationMS,
			&run.CreatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
