package handlers

import (
	"encoding/json"
	"net/http"

	"sessionexport/backend/services/report-service/internal/apperr"
)

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// writeAppError renders err as {error, details} with the status of its kind.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, StatusForKind(kind), errorBody{Error: string(kind), Details: apperr.DetailOf(err)})
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidRequest:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
