package contribution

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/perundhu/platform/pkg/common/logger"
	"github.com/perundhu/platform/pkg/common/models"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/contributions", h.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/contributions", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/contributions/{id}", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/contributions/{id}/review", h.handleReview).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req models.SubmitContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid contribution payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Submit(r.Context(), req)
	if err != nil {
		if IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Log.WithError(err).Error("failed to accept contribution")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	c, err := h.service.Status(r.Context(), vars["id"])
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "contribution not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to fetch contribution")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	var (
		list []Contribution
		err  error
	)
	switch {
	case r.URL.Query().Get("submitter") != "":
		list, err = h.service.ListBySubmitter(r.Context(), r.URL.Query().Get("submitter"), limit)
	case r.URL.Query().Get("status") != "":
		list, err = h.service.ListByStatus(r.Context(), Status(r.URL.Query().Get("status")), limit)
	default:
		http.Error(w, "submitter or status filter required", http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to list contributions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func (h *HTTPHandler) handleReview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.service.Review(r.Context(), vars["id"], req)
	if err != nil {
		if IsValidationError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "contribution not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to apply review")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(c)
}
