package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	libdb "sessionexport/backend/libs/db"
	"sessionexport/backend/services/report-service/internal/models"
)

// openTestDB connects to REPORT_TEST_POSTGRES_DSN or skips.
func openTestDB(t *testing.T) *ExportRunRepository {
	t.Helper()
	dsn := os.Getenv("REPORT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REPORT_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sqlDB, err := libdb.OpenPostgres(ctx, dsn, libdb.Options{})
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewExportRunRepository(sqlDB)
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	// Running it twice must be harmless.
	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema (second run): %v", err)
	}
	return repo
}

func TestExportRunRepositoryCreateAndList(t *testing.T) {
	repo := openTestDB(t)
	ctx := context.Background()
	exportID := "test-" + uuid.NewString()

	t.Cleanup(func() {
		_, _ = repo.db.ExecContext(context.Background(), `DELETE FROM export_runs WHERE export_id = $1`, exportID)
	})

	created := time.Now().UTC().Truncate(time.Millisecond)
	runs := []*models.ExportRun{
		{
			ID: uuid.NewString(), ExportID: exportID, StartDate: "2024-01-01", EndDate: "2024-01-31",
			RequestedBy: "ops-7", Status: models.ExportStatusCompleted, Rows: 2,
			TotalKWh: decimal.RequireFromString("15.75"), UnitPrice: decimal.RequireFromString("0.30"),
			Payout: decimal.RequireFromString("4.725"), DurationMS: 120, CreatedAt: created.Add(-time.Second),
		},
		{
			ID: uuid.NewString(), ExportID: exportID, StartDate: "2024-02-01", EndDate: "2024-02-29",
			Status: models.ExportStatusFailed, ErrorKind: "upstream", ErrorDetail: "fetch page 2: status 500",
			UnitPrice: decimal.RequireFromString("0.30"), CreatedAt: created,
		},
	}
	for _, run := range runs {
		if err := repo.Create(ctx, run); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	listed, err := repo.List(ctx, 500)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var mine []models.ExportRun
	for _, run := range listed {
		if run.ExportID == exportID {
			mine = append(mine, run)
		}
	}
	if len(mine) != 2 {
		t.Fatalf("listed %d runs for %s, want 2", len(mine), exportID)
	}

	failed, completed := mine[0], mine[1]
	if failed.Status != models.ExportStatusFailed || failed.ErrorKind != "upstream" || failed.EndDate != "2024-02-29" {
		t.Errorf("newest run = %+v, want the failed February export first", failed)
	}
	if completed.StartDate != "2024-01-01" || completed.Rows != 2 || completed.RequestedBy != "ops-7" {
		t.Errorf("older run = %+v", completed)
	}
	if !completed.TotalKWh.Equal(decimal.RequireFromString("15.75")) || !completed.Payout.Equal(decimal.RequireFromString("4.725")) {
		t.Errorf("totals = %s / %s", completed.TotalKWh, completed.Payout)
	}
	if !completed.CreatedAt.Equal(runs[0].CreatedAt) {
		t.Errorf("created_at = %v, want %v", completed.CreatedAt, runs[0].CreatedAt)
	}
}
