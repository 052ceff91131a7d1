package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/tracking"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}

func respondInternalError(w http.ResponseWriter, err error) {
	log.WithError(err).Error("Internal server error")
	respondError(w, http.StatusInternalServerError, "internal", "Internal server error")
}

// respondTrackingError maps the tracking error taxonomy onto HTTP statuses:
// lookup failures to 404, state-machine conflicts to 400, the rest to 500.
func respondTrackingError(w http.ResponseWriter, err error) {
	switch {
	case tracking.IsNotFound(err):
		respondError(w, http.StatusNotFound, tracking.Code(err), err.Error())
	case tracking.IsConflict(err):
		respondError(w, http.StatusBadRequest, tracking.Code(err), err.Error())
	default:
		respondInternalError(w, err)
	}
}

// pagination reads limit/page query params with the defaults and clamp the
// API has always used: limit defaults to 5 and never exceeds 10.
func pagination(r *http.Request) (limit, page, skip int64) {
	limit = 5
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 10 {
		limit = 10
	}
	page = 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			page = n
		}
	}
	skip = (page - 1) * limit
	return limit, page, skip
}

func totalPages(total, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
