package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fitness-whoop-sync/internal/config"
	"fitness-whoop-sync/internal/database"
)

func setupSyncHandlerTest(t *testing.T) (*SyncHandler, *database.DB) {
	t.Helper()

	db, err := database.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		InternalAPIKey: "test_api_key",
	}

	return NewSyncHandler(db, cfg), db
}

func connectUser(t *testing.T, db *database.DB, userID int64) {
	t.Helper()

	now := time.Now().Unix()
	conn := &database.OAuthConnection{
		UserID:         userID,
		Provider:       database.ProviderWhoop,
		ProviderUserID: userID,
		AccessToken:    "access_token",
		RefreshToken:   "refresh_token",
		ExpiresAt:      now + 3600,
		Scope:          "offline",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.UpsertConnection(conn); err != nil {
		t.Fatalf("Failed to insert connection: %v", err)
	}
}

func TestHandleTrigger(t *testing.T) {
	handler, db := setupSyncHandlerTest(t)
	connectUser(t, db, 10129)

	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(`{"user_id": 10129}`))
	req.Header.Set("Authorization", "Bearer test_api_key")
	rec := httptest.NewRecorder()

	handler.HandleTrigger(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		JobID   int64  `json:"job_id"`
		UserID  int64  `json:"user_id"`
		JobType string `json:"job_type"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.JobID == 0 {
		t.Error("Expected non-zero job id")
	}
	if resp.JobType != "sync_all" {
		t.Errorf("Expected default job_type sync_all, got %s", resp.JobType)
	}

	// Job is actually queued
	length, err := db.GetSyncJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get queue length: %v", err)
	}
	if length != 1 {
		t.Errorf("Expected 1 queued job, got %d", length)
	}
}

func TestHandleTrigger_Unauthorized(t *testing.T) {
	handler, _ := setupSyncHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(`{"user_id": 10129}`))
	req.Header.Set("Authorization", "Bearer wrong_key")
	rec := httptest.NewRecorder()

	handler.HandleTrigger(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestHandleTrigger_UnknownUser(t *testing.T) {
	handler, _ := setupSyncHandlerTest(t)

	req := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(`{"user_id": 99999}`))
	req.Header.Set("Authorization", "Bearer test_api_key")
	rec := httptest.NewRecorder()

	handler.HandleTrigger(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unconnected user, got %d", rec.Code)
	}
}

func TestHandleTrigger_InvalidJobType(t *testing.T) {
	handler, db := setupSyncHandlerTest(t)
	connectUser(t, db, 10129)

	req := httptest.NewRequest(http.MethodPost, "/sync",
		strings.NewReader(`{"user_id": 10129, "job_type": "sync_everything"}`))
	req.Header.Set("Authorization", "Bearer test_api_key")
	rec := httptest.NewRecorder()

	handler.HandleTrigger(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	handler, db := setupSyncHandlerTest(t)

	errMsg := "sync cycle for user 10129: boom"
	entries := []*database.SyncHistoryEntry{
		{PassID: "pass-1", UserID: 10129, Kind: "cycle", Inserted: 12, StartedAt: time.Unix(1700000000, 0), DurationMs: 200},
		{PassID: "pass-2", UserID: 10129, Kind: "sleep", Inserted: 0, Error: &errMsg, StartedAt: time.Unix(1700000100, 0), DurationMs: 50},
	}
	for _, e := range entries {
		if err := db.InsertSyncHistory(e); err != nil {
			t.Fatalf("Failed to insert history: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/sync-status?user_id=10129", nil)
	req.Header.Set("Authorization", "Bearer test_api_key")
	rec := httptest.NewRecorder()

	handler.HandleStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		UserID      int64 `json:"user_id"`
		QueuedJobs  int   `json:"queued_jobs"`
		RecentSyncs []struct {
			PassID   string  `json:"pass_id"`
			Kind     string  `json:"kind"`
			Inserted int     `json:"inserted"`
			Error    *string `json:"error"`
		} `json:"recent_syncs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.UserID != 10129 {
		t.Errorf("Expected user_id 10129, got %d", resp.UserID)
	}
	if len(resp.RecentSyncs) != 2 {
		t.Fatalf("Expected 2 recent syncs, got %d", len(resp.RecentSyncs))
	}
	if resp.RecentSyncs[0].PassID != "pass-2" {
		t.Errorf("Expected most recent pass first, got %s", resp.RecentSyncs[0].PassID)
	}
	if resp.RecentSyncs[0].Error == nil {
		t.Error("Expected failed pass to carry its error")
	}
}

func TestHandleStatus_MissingUserID(t *testing.T) {
	handler, _ := setupSyncHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/sync-status", nil)
	req.Header.Set("Authorization", "Bearer test_api_key")
	rec := httptest.NewRecorder()

	handler.HandleStatus(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	handler, _ := setupSyncHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.HandleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}
