package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/perundhu/platform/pkg/common/logger"
)

type HTTPHandler struct {
	repo *Repository
}

func NewHTTPHandler(repo *Repository) *HTTPHandler {
	return &HTTPHandler{repo: repo}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/contributions/{id}/skips", h.handleByContribution).Methods(http.MethodGet)
	router.HandleFunc("/skips", h.handleQuery).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleByContribution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	records, err := h.repo.ListByContribution(r.Context(), vars["id"])
	if err != nil {
		logger.Log.WithError(err).Error("failed to list skip records")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, records)
}

func (h *HTTPHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	if rawReason := r.URL.Query().Get("reason"); rawReason != "" {
		reason, ok := ParseSkipReason(rawReason)
		if !ok {
			http.Error(w, "unknown skip reason", http.StatusBadRequest)
			return
		}
		records, err := h.repo.ListByReason(r.Context(), reason, limit)
		if err != nil {
			logger.Log.WithError(err).Error("failed to list skip records by reason")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, records)
		return
	}

	from, ok := parseTimeParam(w, r.URL.Query().Get("from"))
	if !ok {
		return
	}
	to, ok := parseTimeParam(w, r.URL.Query().Get("to"))
	if !ok {
		return
	}

	records, err := h.repo.ListByDateRange(r.Context(), from, to, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list skip records by date")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func parseTimeParam(w http.ResponseWriter, raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		http.Error(w, "timestamps must be RFC3339", http.StatusBadRequest)
		return time.Time{}, false
	}
	return parsed, true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
