package models

import (
	"fmt"
	"time"
)

// DateLayout is the calendar date format used on both the inbound and the upstream API.
const DateLayout = "2006-01-02"

// Upstream field names of a charging session record.
const (
	FieldSessionID   = "chargingSessionId"
	FieldStartedTime = "chargingStartedTime"
	FieldEndedTime   = "chargingEndedTime"
	FieldMeterStart  = "meterValueStart"
	FieldMeterEnd    = "meterValueEnd"
	FieldEnergyKWh   = "activeEnergyConsumed"
)

// Credentials identify the station operator against the upstream API.
type Credentials struct {
	Identifier string
	Secret     string
}

// String never prints the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Identifier: %q, Secret: [redacted]}", c.Identifier)
}

// GoString keeps %#v from leaking the secret.
func (c Credentials) GoString() string { return c.String() }

// AuthToken is the bearer token issued by the upstream login endpoint.
type AuthToken string

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q", start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q", end)
	}
	return DateRange{Start: s, End: e}, nil
}

// FormatStart returns the start date as YYYY-MM-DD.
func (r DateRange) FormatStart() string { return r.Start.Format(DateLayout) }

// FormatEnd returns the end date as YYYY-MM-DD.
func (r DateRange) FormatEnd() string { return r.End.Format(DateLayout) }

// PreviousMonth returns the first to last day of the calendar month before now. The month is
// taken from now's own location, so callers passing time.Now get the server's local calendar
// (set TZ to pin it). The returned dates carry no zone and are stored as UTC midnights.
func PreviousMonth(now time.Time) DateRange {
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return DateRange{
		Start: firstOfThisMonth.AddDate(0, -1, 0),
		End:   firstOfThisMonth.AddDate(0, 0, -1),
	}
}

// PagingInfo is the upstream paging metadata.
type PagingInfo struct {
	NumOfRows int `json:"numOfRows"`
	PageCount int `json:"pageCount"`
}

// SessionPage is one page of the upstream session listing.
type SessionPage struct {
	Content    []RawSessionRecord `json:"content"`
	PagingInfo *PagingInfo        `json:"pagingInfo"`
}

// RawSessionRecord is a session exactly as the upstream API returned it.
type RawSessionRecord map[string]any

// ReportRow is the fixed report schema. Nil numbers are values missing upstream.
type ReportRow struct {
	SessionID  string
	StartedAt  string
	EndedAt    string
	MeterStart *float64
	MeterEnd   *float64
	EnergyKWh  *float64
}
