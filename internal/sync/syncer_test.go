package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fitness-whoop-sync/internal/config"
	"fitness-whoop-sync/internal/database"
	"fitness-whoop-sync/internal/whoop"
)

func setupSyncTest(t *testing.T, mux *http.ServeMux) (*Syncer, *database.DB) {
	t.Helper()

	db, err := database.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		WhoopClientID:     "test_client_id",
		WhoopClientSecret: "test_client_secret",
		WhoopRedirectURI:  "http://localhost/oauth-callback",
		WhoopTokenURL:     server.URL + "/oauth/oauth2/token",
		WhoopAPIBaseURL:   server.URL + "/developer",
	}

	client := whoop.NewClient(cfg, db)
	s := NewSyncer(db, client)

	now := time.Now().Unix()
	conn := &database.OAuthConnection{
		UserID:         10129,
		Provider:       database.ProviderWhoop,
		ProviderUserID: 10129,
		AccessToken:    "access_token",
		RefreshToken:   "refresh_token",
		ExpiresAt:      now + 3600,
		Scope:          "offline read:profile",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.UpsertConnection(conn); err != nil {
		t.Fatalf("Failed to insert connection: %v", err)
	}

	return s, db
}

func cycleRecord(id int64, updatedAt string) string {
	return fmt.Sprintf(`{
		"id": %d,
		"user_id": 10129,
		"created_at": "2022-04-24T11:25:44.774Z",
		"updated_at": %q,
		"start": "2022-04-24T02:25:44.774Z",
		"end": "2022-04-24T10:25:44.774Z",
		"timezone_offset": "-05:00",
		"score_state": "SCORED",
		"score": {"strain": 5.2, "kilojoule": 8288.2, "average_heart_rate": 68, "max_heart_rate": 141}
	}`, id, updatedAt)
}

func TestSyncKind_InitialThenIncremental(t *testing.T) {
	var starts []string

	mux := http.NewServeMux()
	mux.HandleFunc("/developer/v1/cycle", func(w http.ResponseWriter, r *http.Request) {
		starts = append(starts, r.URL.Query().Get("start"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"records": [%s, %s], "next_token": null}`,
			cycleRecord(1, "2022-04-24T14:25:44.774Z"),
			cycleRecord(2, "2022-04-25T14:25:44.774Z"))
	})

	s, db := setupSyncTest(t, mux)

	inserted, err := s.SyncKind(context.Background(), 10129, KindCycle, nil)
	if err != nil {
		t.Fatalf("Failed initial sync: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", inserted)
	}
	if starts[0] != "" {
		t.Errorf("Expected no start bound on first sync, got %q", starts[0])
	}

	// Second pass resumes from the stored watermark and re-inserts nothing
	inserted, err = s.SyncKind(context.Background(), 10129, KindCycle, nil)
	if err != nil {
		t.Fatalf("Failed incremental sync: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 inserted on repeat sync, got %d", inserted)
	}
	if len(starts) != 2 || starts[1] != "2022-04-25T14:25:44.774Z" {
		t.Errorf("Expected watermark start bound, got %q", starts[1])
	}

	wm, err := db.MaxUpdatedAt("cycle", 10129)
	if err != nil {
		t.Fatalf("Failed to read watermark: %v", err)
	}
	if wm == nil || *wm != 1650896744774 {
		t.Fatalf("Expected watermark 1650896744774, got %v", wm)
	}

	// History records both passes
	history, err := db.ListSyncHistory(10129, 10)
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(history))
	}
	if history[0].Inserted != 0 || history[1].Inserted != 2 {
		t.Errorf("Unexpected inserted counts: %d, %d", history[0].Inserted, history[1].Inserted)
	}
	if history[0].PassID == history[1].PassID {
		t.Error("Expected distinct pass ids")
	}
}

func TestSyncKind_ExplicitStartOverridesWatermark(t *testing.T) {
	var gotStart string

	mux := http.NewServeMux()
	mux.HandleFunc("/developer/v1/cycle", func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"records": [], "next_token": null}`)
	})

	s, _ := setupSyncTest(t, mux)

	explicit := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.SyncKind(context.Background(), 10129, KindCycle, &explicit); err != nil {
		t.Fatalf("Failed sync: %v", err)
	}
	if gotStart != "2022-01-01T00:00:00.000Z" {
		t.Errorf("Expected explicit start bound, got %q", gotStart)
	}
}

func TestSyncKind_RollbackOnMalformedRecord(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/developer/v1/cycle", func(w http.ResponseWriter, r *http.Request) {
		// Second record is missing required fields
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"records": [%s, {"id": 7}], "next_token": null}`,
			cycleRecord(6, "2022-04-24T14:25:44.774Z"))
	})

	s, db := setupSyncTest(t, mux)

	_, err := s.SyncKind(context.Background(), 10129, KindCycle, nil)
	if err == nil {
		t.Fatal("Expected malformed record to fail the pass")
	}

	var payloadErr *whoop.PayloadError
	if !errors.As(err, &payloadErr) {
		t.Fatalf("Expected PayloadError cause, got %v", err)
	}
	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Kind != KindCycle {
		t.Fatalf("Expected sync Error with kind cycle, got %v", err)
	}

	// The valid record from the same pass must have been rolled back
	c, err := db.GetCycle(6)
	if err != nil {
		t.Fatalf("Failed to get cycle: %v", err)
	}
	if c != nil {
		t.Error("Expected transaction rollback to discard the valid record")
	}

	// Watermark unchanged, so the next pass re-fetches everything
	wm, err := db.MaxUpdatedAt("cycle", 10129)
	if err != nil {
		t.Fatalf("Failed to read watermark: %v", err)
	}
	if wm != nil {
		t.Error("Expected nil watermark after rolled-back pass")
	}

	// Failed pass is recorded with its error
	history, err := db.ListSyncHistory(10129, 10)
	if err != nil {
		t.Fatalf("Failed to list history: %v", err)
	}
	if len(history) != 1 || history[0].Error == nil {
		t.Error("Expected failed pass in history with error message")
	}
}

func TestSyncKind_SingleFlight(t *testing.T) {
	s, _ := setupSyncTest(t, http.NewServeMux())

	// Simulate a pass already running for this user
	s.mu.Lock()
	s.active[10129] = true
	s.mu.Unlock()

	_, err := s.SyncKind(context.Background(), 10129, KindCycle, nil)
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("Expected ErrSyncInProgress, got %v", err)
	}

	// Other users are unaffected by the lock; lock release lets the user retry
	s.mu.Lock()
	delete(s.active, 10129)
	s.mu.Unlock()

	if !s.tryLock(10129) {
		t.Error("Expected lock to be acquirable after release")
	}
	s.unlock(10129)
}

func TestSyncAll(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/developer/v1/user/profile/basic", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id": 10129, "email": "jsmith123@whoop.com", "first_name": "John", "last_name": "Smith"}`))
	})
	mux.HandleFunc("/developer/v1/user/measurement/body", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"height_meter": 1.8288, "weight_kilogram": 90.7185, "max_heart_rate": 200}`))
	})
	mux.HandleFunc("/developer/v1/cycle", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"records": [%s], "next_token": null}`, cycleRecord(93845, "2022-04-24T14:25:44.774Z"))
	})
	mux.HandleFunc("/developer/v1/activity/sleep", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"records": [{
			"id": 10235,
			"user_id": 10129,
			"created_at": "2022-04-24T11:25:44.774Z",
			"updated_at": "2022-04-24T14:25:44.774Z",
			"start": "2022-04-24T02:25:44.774Z",
			"end": "2022-04-24T10:25:44.774Z",
			"timezone_offset": "-05:00",
			"nap": false,
			"score_state": "SCORED"
		}], "next_token": null}`)
	})
	// Two pages of workouts
	mux.HandleFunc("/developer/v1/activity/workout", func(w http.ResponseWriter, r *http.Request) {
		workout := func(id int64) string {
			return fmt.Sprintf(`{
				"id": %d,
				"user_id": 10129,
				"created_at": "2022-04-24T11:25:44.774Z",
				"updated_at": "2022-04-24T14:25:44.774Z",
				"start": "2022-04-24T02:25:44.774Z",
				"end": "2022-04-24T03:25:44.774Z",
				"timezone_offset": "-05:00",
				"sport_id": 1,
				"score_state": "SCORED"
			}`, id)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("nextToken") == "" {
			fmt.Fprintf(w, `{"records": [%s, %s], "next_token": "more"}`, workout(1), workout(2))
		} else {
			fmt.Fprintf(w, `{"records": [%s], "next_token": null}`, workout(3))
		}
	})
	mux.HandleFunc("/developer/v1/recovery", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"records": [{
			"cycle_id": 93845,
			"sleep_id": 10235,
			"user_id": 10129,
			"created_at": "2022-04-24T11:25:44.774Z",
			"updated_at": "2022-04-24T14:25:44.774Z",
			"score_state": "SCORED",
			"score": {"recovery_score": 44.0}
		}], "next_token": null}`)
	})

	s, db := setupSyncTest(t, mux)

	counts, err := s.SyncAll(context.Background(), 10129)
	if err != nil {
		t.Fatalf("Failed full sync: %v", err)
	}

	expected := map[Kind]int{
		KindProfile:  1,
		KindCycle:    1,
		KindSleep:    1,
		KindWorkout:  3,
		KindRecovery: 1,
	}
	for kind, want := range expected {
		if counts[kind] != want {
			t.Errorf("Expected %d %s, got %d", want, kind, counts[kind])
		}
	}

	// Subject includes body measurements
	subject, err := db.GetSubject(10129)
	if err != nil {
		t.Fatalf("Failed to get subject: %v", err)
	}
	if subject == nil || subject.HeightMeter == nil {
		t.Error("Expected subject with body measurements")
	}

	// Recovery landed after its cycle and sleep references
	recovery, err := db.GetRecovery(93845)
	if err != nil {
		t.Fatalf("Failed to get recovery: %v", err)
	}
	if recovery == nil || recovery.SleepID != 10235 {
		t.Error("Expected recovery row referencing cycle and sleep")
	}

	workouts, err := db.CountWorkouts(10129)
	if err != nil {
		t.Fatalf("Failed to count workouts: %v", err)
	}
	if workouts != 3 {
		t.Errorf("Expected 3 workouts across pages, got %d", workouts)
	}

	// A full repeat inserts nothing new
	counts, err = s.SyncAll(context.Background(), 10129)
	if err != nil {
		t.Fatalf("Failed repeat sync: %v", err)
	}
	for _, kind := range EntityKinds {
		if counts[kind] != 0 {
			t.Errorf("Expected 0 new %s on repeat, got %d", kind, counts[kind])
		}
	}
}

func TestSyncAll_ContinuesPastFailedPass(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/developer/v1/user/profile/basic", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_id": 10129, "email": "jsmith123@whoop.com", "first_name": "John", "last_name": "Smith"}`))
	})
	mux.HandleFunc("/developer/v1/user/measurement/body", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})
	// Cycles fail outright
	mux.HandleFunc("/developer/v1/cycle", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
	})
	empty := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"records": [], "next_token": null}`)
	}
	mux.HandleFunc("/developer/v1/activity/sleep", empty)
	mux.HandleFunc("/developer/v1/activity/workout", empty)
	mux.HandleFunc("/developer/v1/recovery", empty)

	s, db := setupSyncTest(t, mux)

	counts, err := s.SyncAll(context.Background(), 10129)
	if err == nil {
		t.Fatal("Expected error from failed cycle pass")
	}

	var syncErr *Error
	if !errors.As(err, &syncErr) || syncErr.Kind != KindCycle {
		t.Fatalf("Expected cycle pass error, got %v", err)
	}

	// Profile succeeded without body measurements, other passes still ran
	if counts[KindProfile] != 1 {
		t.Error("Expected profile pass to succeed")
	}
	if _, ok := counts[KindSleep]; !ok {
		t.Error("Expected sleep pass to run despite cycle failure")
	}

	subject, err := db.GetSubject(10129)
	if err != nil {
		t.Fatalf("Failed to get subject: %v", err)
	}
	if subject == nil || subject.HeightMeter != nil {
		t.Error("Expected subject without body measurements")
	}
}

func TestSyncAll_NoConnection(t *testing.T) {
	s, _ := setupSyncTest(t, http.NewServeMux())

	_, err := s.SyncAll(context.Background(), 99999)
	if err == nil {
		t.Fatal("Expected error for unconnected user")
	}
	if !whoop.IsCredentialError(err) {
		t.Errorf("Expected credential error, got %v", err)
	}
}
