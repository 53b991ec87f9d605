package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"sessionexport/backend/services/report-service/internal/models"
)

// Project copies the six report fields out of a raw upstream record and drops the rest.
// Missing or non-numeric meter and energy values become nil.
func Project(raw models.RawSessionRecord) models.ReportRow {
	return models.ReportRow{
		SessionID:  text(raw[models.FieldSessionID]),
		StartedAt:  text(raw[models.FieldStartedTime]),
		EndedAt:    text(raw[models.FieldEndedTime]),
		MeterStart: number(raw[models.FieldMeterStart]),
		MeterEnd:   number(raw[models.FieldMeterEnd]),
		EnergyKWh:  number(raw[models.FieldEnergyKWh]),
	}
}

// ProjectAll projects every record, preserving order.
func ProjectAll(raws []models.RawSessionRecord) []models.ReportRow {
	rows := make([]models.ReportRow, len(raws))
	for i, raw := range raws {
		rows[i] = Project(raw)
	}
	return rows
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func number(v any) *float64 {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return nil
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
