package database

import (
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testCycle(id, userID, updatedAt int64) *Cycle {
	end := updatedAt
	strain := 12.5
	return &Cycle{
		ID:             id,
		UserID:         userID,
		Start:          updatedAt - 86_400_000,
		End:            &end,
		TimezoneOffset: "-08:00",
		ScoreState:     "SCORED",
		RawJSON:        `{}`,
		Strain:         &strain,

		ProviderCreatedAt: updatedAt,
		UpdatedAt:         updatedAt,
	}
}

func testSleep(id, userID, updatedAt int64) *Sleep {
	return &Sleep{
		ID:             id,
		UserID:         userID,
		Start:          updatedAt - 28_800_000,
		End:            updatedAt,
		TimezoneOffset: "-08:00",
		ScoreState:     "SCORED",
		RawJSON:        `{}`,

		ProviderCreatedAt: updatedAt,
		UpdatedAt:         updatedAt,
	}
}

func TestConnectionOperations(t *testing.T) {
	db := openTestDB(t)

	now := time.Now().Unix()
	conn := &OAuthConnection{
		UserID:         12345,
		Provider:       ProviderWhoop,
		ProviderUserID: 12345,
		AccessToken:    "test_access_token",
		RefreshToken:   "test_refresh_token",
		ExpiresAt:      now + 3600,
		Scope:          "offline read:profile",
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := db.UpsertConnection(conn); err != nil {
		t.Fatalf("Failed to upsert connection: %v", err)
	}

	retrieved, err := db.GetConnection(12345, ProviderWhoop)
	if err != nil {
		t.Fatalf("Failed to get connection: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected connection to be found")
	}
	if retrieved.AccessToken != conn.AccessToken {
		t.Errorf("Expected access token %s, got %s", conn.AccessToken, retrieved.AccessToken)
	}

	missing, err := db.GetConnection(99999, ProviderWhoop)
	if err != nil {
		t.Fatalf("Failed to get missing connection: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for unknown user")
	}

	t.Run("UpdateTokens", func(t *testing.T) {
		err := db.UpdateConnectionTokens(12345, ProviderWhoop, "new_access", "new_refresh", now+7200)
		if err != nil {
			t.Fatalf("Failed to update tokens: %v", err)
		}

		updated, err := db.GetConnection(12345, ProviderWhoop)
		if err != nil {
			t.Fatalf("Failed to get connection: %v", err)
		}
		if updated.AccessToken != "new_access" || updated.RefreshToken != "new_refresh" {
			t.Errorf("Tokens not updated: %s / %s", updated.AccessToken, updated.RefreshToken)
		}
		if updated.ExpiresAt != now+7200 {
			t.Errorf("Expected expires_at %d, got %d", now+7200, updated.ExpiresAt)
		}
	})

	t.Run("UpdateTokensUnknownUser", func(t *testing.T) {
		err := db.UpdateConnectionTokens(99999, ProviderWhoop, "a", "r", now)
		if err == nil {
			t.Error("Expected error updating tokens for unknown user")
		}
	})
}

func TestSubjectUpsert(t *testing.T) {
	db := openTestDB(t)

	height := 1.80
	subject := &Subject{
		UserID:      12345,
		Email:       "user@example.com",
		FirstName:   "Test",
		LastName:    "User",
		HeightMeter: &height,
	}

	if err := db.UpsertSubject(subject); err != nil {
		t.Fatalf("Failed to upsert subject: %v", err)
	}

	// Second upsert updates profile fields in place
	weight := 75.0
	subject.Email = "changed@example.com"
	subject.WeightKilogram = &weight
	if err := db.UpsertSubject(subject); err != nil {
		t.Fatalf("Failed to re-upsert subject: %v", err)
	}

	retrieved, err := db.GetSubject(12345)
	if err != nil {
		t.Fatalf("Failed to get subject: %v", err)
	}
	if retrieved == nil {
		t.Fatal("Expected subject to be found")
	}
	if retrieved.Email != "changed@example.com" {
		t.Errorf("Expected updated email, got %s", retrieved.Email)
	}
	if retrieved.WeightKilogram == nil || *retrieved.WeightKilogram != 75.0 {
		t.Error("Expected weight to be updated")
	}
	if retrieved.HeightMeter == nil || *retrieved.HeightMeter != 1.80 {
		t.Error("Expected height to be preserved")
	}
}

func TestCycleInsertOnly(t *testing.T) {
	db := openTestDB(t)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	defer tx.Rollback()

	c := testCycle(100, 12345, 1700000000000)

	inserted, err := db.InsertCycleTx(tx, c)
	if err != nil {
		t.Fatalf("Failed to insert cycle: %v", err)
	}
	if !inserted {
		t.Fatal("Expected first insert to report a new row")
	}

	exists, err := db.CycleExistsTx(tx, 100)
	if err != nil {
		t.Fatalf("Failed to check existence: %v", err)
	}
	if !exists {
		t.Error("Expected cycle to exist")
	}

	// Re-inserting the same id with different data leaves the row untouched
	changed := testCycle(100, 12345, 1700009999999)
	newStrain := 99.9
	changed.Strain = &newStrain

	inserted, err = db.InsertCycleTx(tx, changed)
	if err != nil {
		t.Fatalf("Failed to re-insert cycle: %v", err)
	}
	if inserted {
		t.Error("Expected duplicate insert to be a no-op")
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	retrieved, err := db.GetCycle(100)
	if err != nil {
		t.Fatalf("Failed to get cycle: %v", err)
	}
	if retrieved.Strain == nil || *retrieved.Strain != 12.5 {
		t.Error("Expected original strain to survive duplicate insert")
	}
	if retrieved.UpdatedAt != 1700000000000 {
		t.Errorf("Expected original updated_at, got %d", retrieved.UpdatedAt)
	}
}

func TestWatermark(t *testing.T) {
	db := openTestDB(t)

	wm, err := db.MaxUpdatedAt("cycle", 12345)
	if err != nil {
		t.Fatalf("Failed to read watermark: %v", err)
	}
	if wm != nil {
		t.Error("Expected nil watermark for empty table")
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	for i, updatedAt := range []int64{1700000000000, 1700000300000, 1700000100000} {
		if _, err := db.InsertCycleTx(tx, testCycle(int64(i+1), 12345, updatedAt)); err != nil {
			t.Fatalf("Failed to insert cycle: %v", err)
		}
	}
	// Another user's rows must not affect the watermark
	if _, err := db.InsertCycleTx(tx, testCycle(50, 67890, 1799999999999)); err != nil {
		t.Fatalf("Failed to insert cycle: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	wm, err = db.MaxUpdatedAt("cycle", 12345)
	if err != nil {
		t.Fatalf("Failed to read watermark: %v", err)
	}
	if wm == nil || *wm != 1700000300000 {
		t.Fatalf("Expected watermark 1700000300000, got %v", wm)
	}

	// Watermarks are per kind
	wm, err = db.MaxUpdatedAt("sleep", 12345)
	if err != nil {
		t.Fatalf("Failed to read sleep watermark: %v", err)
	}
	if wm != nil {
		t.Error("Expected nil sleep watermark")
	}

	if _, err := db.MaxUpdatedAt("bogus", 12345); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

func TestRecoveryForeignKeys(t *testing.T) {
	db := openTestDB(t)

	recovery := &Recovery{
		CycleID:    200,
		SleepID:    300,
		UserID:     12345,
		ScoreState: "SCORED",
		RawJSON:    `{}`,

		ProviderCreatedAt: 1700000000000,
		UpdatedAt:         1700000000000,
	}

	// Without the referenced cycle and sleep the insert must fail
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	if _, err := db.InsertRecoveryTx(tx, recovery); err == nil {
		t.Error("Expected foreign key violation")
	}
	tx.Rollback()

	tx, err = db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin tx: %v", err)
	}
	if _, err := db.InsertCycleTx(tx, testCycle(200, 12345, 1700000000000)); err != nil {
		t.Fatalf("Failed to insert cycle: %v", err)
	}
	if _, err := db.InsertSleepTx(tx, testSleep(300, 12345, 1700000000000)); err != nil {
		t.Fatalf("Failed to insert sleep: %v", err)
	}
	inserted, err := db.InsertRecoveryTx(tx, recovery)
	if err != nil {
		t.Fatalf("Failed to insert recovery: %v", err)
	}
	if !inserted {
		t.Error("Expected recovery to be inserted")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	retrieved, err := db.GetRecovery(200)
	if err != nil {
		t.Fatalf("Failed to get recovery: %v", err)
	}
	if retrieved == nil || retrieved.SleepID != 300 {
		t.Error("Expected recovery keyed by cycle with sleep reference")
	}
}

func TestSyncJobQueue(t *testing.T) {
	db := openTestDB(t)

	id, err := db.EnqueueSyncJob(12345, "sync_all")
	if err != nil {
		t.Fatalf("Failed to enqueue sync job: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected non-zero job id")
	}

	length, err := db.GetSyncJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get queue length: %v", err)
	}
	if length != 1 {
		t.Errorf("Expected queue length 1, got %d", length)
	}

	ready, err := db.GetReadySyncJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get ready length: %v", err)
	}
	if ready != 1 {
		t.Errorf("Expected ready length 1, got %d", ready)
	}

	job, err := db.ClaimSyncJob()
	if err != nil {
		t.Fatalf("Failed to claim sync job: %v", err)
	}
	if job == nil {
		t.Fatal("Expected job to be claimed")
	}
	if job.UserID != 12345 || job.JobType != "sync_all" {
		t.Errorf("Unexpected job: %+v", job)
	}
	if job.ProcessingStartedAt == nil {
		t.Error("Expected processing_started_at to be set")
	}

	// Claimed job is invisible to other workers
	second, err := db.ClaimSyncJob()
	if err != nil {
		t.Fatalf("Failed to claim: %v", err)
	}
	if second != nil {
		t.Error("Expected no job available while claimed")
	}

	processing, err := db.GetProcessingSyncJobQueueLength()
	if err != nil {
		t.Fatalf("Failed to get processing length: %v", err)
	}
	if processing != 1 {
		t.Errorf("Expected processing length 1, got %d", processing)
	}

	t.Run("ReleaseWithBackoff", func(t *testing.T) {
		released, err := db.ReleaseSyncJob(job.ID, job.RetryCount, "transient failure")
		if err != nil {
			t.Fatalf("Failed to release sync job: %v", err)
		}
		if !released {
			t.Fatal("Expected job to be released for retry")
		}

		// Backoff pushes next_retry_at into the future, so nothing is ready
		reclaimed, err := db.ClaimSyncJob()
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if reclaimed != nil {
			t.Error("Expected no job ready during backoff window")
		}
	})

	t.Run("DropAfterMaxRetries", func(t *testing.T) {
		released, err := db.ReleaseSyncJob(job.ID, MaxRetries, "still failing")
		if err != nil {
			t.Fatalf("Failed to release sync job: %v", err)
		}
		if released {
			t.Error("Expected job to be dropped after max retries")
		}

		length, err := db.GetSyncJobQueueLength()
		if err != nil {
			t.Fatalf("Failed to get queue length: %v", err)
		}
		if length != 0 {
			t.Errorf("Expected empty queue, got %d", length)
		}
	})

	t.Run("StaleLockReclaimed", func(t *testing.T) {
		id, err := db.EnqueueSyncJob(12345, "sync_sleep")
		if err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		if job, err := db.ClaimSyncJob(); err != nil || job == nil {
			t.Fatalf("Failed to claim: job=%v err=%v", job, err)
		}

		// Backdate the lock past the stale threshold, as if the holder died
		stale := time.Now().Add(-StaleLockTimeout - time.Minute).Unix()
		if _, err := db.Conn().Exec(
			`UPDATE sync_jobs SET processing_started_at = ? WHERE id = ?`, stale, id); err != nil {
			t.Fatalf("Failed to backdate lock: %v", err)
		}

		reclaimed, err := db.ClaimSyncJob()
		if err != nil {
			t.Fatalf("Failed to claim: %v", err)
		}
		if reclaimed == nil || reclaimed.ID != id {
			t.Errorf("Expected stale job %d to be reclaimable, got %+v", id, reclaimed)
		}

		if err := db.DeleteSyncJob(id); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		id, err := db.EnqueueSyncJob(12345, "sync_cycle")
		if err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		if err := db.DeleteSyncJob(id); err != nil {
			t.Fatalf("Failed to delete: %v", err)
		}

		length, _ := db.GetSyncJobQueueLength()
		if length != 0 {
			t.Errorf("Expected empty queue, got %d", length)
		}
	})
}

func TestSyncHistory(t *testing.T) {
	db := openTestDB(t)

	errMsg := "whoop api request failed with status 500: boom"
	entries := []*SyncHistoryEntry{
		{PassID: "pass-1", UserID: 12345, Kind: "cycle", Inserted: 10, StartedAt: time.Unix(1700000000, 0), DurationMs: 150},
		{PassID: "pass-2", UserID: 12345, Kind: "sleep", Inserted: 0, Error: &errMsg, StartedAt: time.Unix(1700000060, 0), DurationMs: 90},
		{PassID: "pass-3", UserID: 67890, Kind: "cycle", Inserted: 3, StartedAt: time.Unix(1700000120, 0), DurationMs: 40},
	}
	for _, e := range entries {
		if err := db.InsertSyncHistory(e); err != nil {
			t.Fatalf("Failed to insert sync history: %v", err)
		}
	}

	history, err := db.ListSyncHistory(12345, 10)
	if err != nil {
		t.Fatalf("Failed to list sync history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 entries for user, got %d", len(history))
	}

	// Most recent first
	if history[0].PassID != "pass-2" {
		t.Errorf("Expected pass-2 first, got %s", history[0].PassID)
	}
	if history[0].Error == nil || *history[0].Error != errMsg {
		t.Error("Expected error message to round-trip")
	}
	if history[1].Inserted != 10 {
		t.Errorf("Expected inserted 10, got %d", history[1].Inserted)
	}
}
