package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Export run statuses.
const (
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// ExportRun is the audit trail of one export. It never carries credentials or session data.
type ExportRun struct {
	ID          string          `json:"id"`
	ExportID    string          `json:"export_id"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	RequestedBy string          `json:"requested_by,omitempty"`
	Status      string          `json:"status"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Rows        int             `json:"rows"`
	TotalKWh    decimal.Decimal `json:"total_kwh"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Payout      decimal.Decimal `json:"payout"`
	DurationMS  int64           `json:"duration_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}
