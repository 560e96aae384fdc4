package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"fitness-whoop-sync/internal/config"
	"fitness-whoop-sync/internal/database"
)

// validJobTypes are the sync job types that can be requested over the API
var validJobTypes = map[string]bool{
	"sync_all":      true,
	"sync_profile":  true,
	"sync_cycle":    true,
	"sync_sleep":    true,
	"sync_recovery": true,
	"sync_workout":  true,
}

// SyncHandler handles sync trigger and status endpoints
type SyncHandler struct {
	db     *database.DB
	config *config.Config
	logger *slog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(db *database.DB, cfg *config.Config) *SyncHandler {
	return &SyncHandler{
		db:     db,
		config: cfg,
		logger: slog.Default(),
	}
}

func (h *SyncHandler) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+h.config.InternalAPIKey
}

// HandleTrigger handles POST /sync: enqueues a sync job for a connected user.
// Body: {"user_id": 123, "job_type": "sync_all"} (job_type optional).
//
// Authentication: Requires Authorization header
func (h *SyncHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		h.logger.Warn("Unauthorized sync trigger", "has_auth", r.Header.Get("Authorization") != "")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		UserID  int64  `json:"user_id"`
		JobType string `json:"job_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == 0 {
		http.Error(w, "Missing user_id", http.StatusBadRequest)
		return
	}
	if req.JobType == "" {
		req.JobType = "sync_all"
	}
	if !validJobTypes[req.JobType] {
		http.Error(w, "Invalid job_type", http.StatusBadRequest)
		return
	}

	conn, err := h.db.GetConnection(req.UserID, database.ProviderWhoop)
	if err != nil {
		h.logger.Error("Failed to look up connection", "error", err, "user_id", req.UserID)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if conn == nil {
		http.Error(w, "User is not connected", http.StatusNotFound)
		return
	}

	jobID, err := h.db.EnqueueSyncJob(req.UserID, req.JobType)
	if err != nil {
		h.logger.Error("Failed to enqueue sync job", "error", err, "user_id", req.UserID)
		http.Error(w, "Failed to enqueue sync job", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Enqueued sync job via API", "job_id", jobID, "user_id", req.UserID, "job_type", req.JobType)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"job_id":   jobID,
		"user_id":  req.UserID,
		"job_type": req.JobType,
	})
}

// HandleStatus handles GET /sync-status?user_id=N: returns queue depth and
// the user's recent sync pass history.
//
// Authentication: Requires Authorization header
func (h *SyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		http.Error(w, "Missing user_id parameter", http.StatusBadRequest)
		return
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid user_id parameter", http.StatusBadRequest)
		return
	}

	history, err := h.db.ListSyncHistory(userID, 20)
	if err != nil {
		h.logger.Error("Failed to list sync history", "error", err, "user_id", userID)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []*database.SyncHistoryEntry{}
	}

	queued, err := h.db.GetReadySyncJobQueueLength()
	if err != nil {
		h.logger.Error("Failed to get queue length", "error", err)
		queued = -1
	}

	type passStatus struct {
		PassID     string  `json:"pass_id"`
		Kind       string  `json:"kind"`
		Inserted   int     `json:"inserted"`
		Error      *string `json:"error,omitempty"`
		StartedAt  int64   `json:"started_at"`
		DurationMs int64   `json:"duration_ms"`
	}

	passes := make([]passStatus, len(history))
	for i, e := range history {
		passes[i] = passStatus{
			PassID:     e.PassID,
			Kind:       e.Kind,
			Inserted:   e.Inserted,
			Error:      e.Error,
			StartedAt:  e.StartedAt.Unix(),
			DurationMs: e.DurationMs,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"user_id":      userID,
		"queued_jobs":  queued,
		"recent_syncs": passes,
	}); err != nil {
		h.logger.Error("Failed to encode sync status response", "error", err)
	}
}

// HandleHealth handles GET /health
func (h *SyncHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Health(); err != nil {
		h.logger.Error("Health check failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
