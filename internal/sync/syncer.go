package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fitness-whoop-sync/internal/database"
	"fitness-whoop-sync/internal/metrics"
	"fitness-whoop-sync/internal/whoop"
)

// Syncer pulls WHOOP data incrementally into local storage. Each entity pass
// runs inside a single transaction: either every new record from the pass
// lands, or none do and the watermark is unchanged.
type Syncer struct {
	db     *database.DB
	client *whoop.Client
	logger *slog.Logger

	// Single-flight guard: at most one sync pass per user at a time
	mu     sync.Mutex
	active map[int64]bool
}

// NewSyncer creates a new Syncer
func NewSyncer(db *database.DB, client *whoop.Client) *Syncer {
	return &Syncer{
		db:     db,
		client: client,
		logger: slog.Default(),
		active: make(map[int64]bool),
	}
}

func (s *Syncer) tryLock(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[userID] {
		return false
	}
	s.active[userID] = true
	return true
}

func (s *Syncer) unlock(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, userID)
}

// SyncKind runs one incremental pass for a single entity kind. When
// explicitStart is nil the pass starts from the stored watermark, the max
// updated_at already synced for this user and kind; a nil watermark means
// full history. Returns the number of newly inserted records.
func (s *Syncer) SyncKind(ctx context.Context, userID int64, kind Kind, explicitStart *time.Time) (int, error) {
	if !s.tryLock(userID) {
		return 0, fmt.Errorf("%w: user %d", ErrSyncInProgress, userID)
	}
	defer s.unlock(userID)

	if kind == KindProfile {
		return s.syncProfile(ctx, userID)
	}
	return s.syncKind(ctx, userID, kind, explicitStart)
}

// SyncAll runs a full sync for the user: profile first, then cycles, sleeps
// and workouts, then recoveries (which reference the other two). Each pass is
// independent; a failed pass does not stop the remaining ones, and all pass
// errors are joined into the returned error.
func (s *Syncer) SyncAll(ctx context.Context, userID int64) (map[Kind]int, error) {
	if !s.tryLock(userID) {
		return nil, fmt.Errorf("%w: user %d", ErrSyncInProgress, userID)
	}
	defer s.unlock(userID)

	counts := make(map[Kind]int)
	var errs []error

	if n, err := s.syncProfile(ctx, userID); err != nil {
		errs = append(errs, err)
		// Credential failures will hit every pass; stop early
		if whoop.IsCredentialError(err) {
			return counts, errors.Join(errs...)
		}
	} else {
		counts[KindProfile] = n
	}

	for _, kind := range EntityKinds {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		n, err := s.syncKind(ctx, userID, kind, nil)
		if err != nil {
			errs = append(errs, err)
			if whoop.IsCredentialError(err) {
				break
			}
			continue
		}
		counts[kind] = n
	}

	return counts, errors.Join(errs...)
}

// syncProfile refreshes the subject row from the profile and body
// measurement endpoints. A body measurement failure is tolerated so a
// measurement endpoint outage does not block profile sync.
func (s *Syncer) syncProfile(ctx context.Context, userID int64) (int, error) {
	passID := uuid.NewString()
	start := time.Now()

	s.logger.Info("Starting sync pass", "pass_id", passID, "user_id", userID, "kind", KindProfile)

	profileRaw, err := s.client.GetProfile(ctx, userID)
	if err != nil {
		return 0, s.finishPass(passID, userID, KindProfile, 0, start, err)
	}

	measurementRaw, err := s.client.GetBodyMeasurement(ctx, userID)
	if err != nil {
		if whoop.IsCredentialError(err) {
			return 0, s.finishPass(passID, userID, KindProfile, 0, start, err)
		}
		s.logger.Warn("Body measurement fetch failed, syncing profile only",
			"pass_id", passID, "user_id", userID, "error", err)
		measurementRaw = nil
	}

	subject, err := whoop.NormalizeSubject(profileRaw, measurementRaw)
	if err != nil {
		return 0, s.finishPass(passID, userID, KindProfile, 0, start, err)
	}

	if err := s.db.UpsertSubject(subject); err != nil {
		return 0, s.finishPass(passID, userID, KindProfile, 0, start, err)
	}

	return 1, s.finishPass(passID, userID, KindProfile, 1, start, nil)
}

// idEnvelope extracts just the identity of a raw record, so already-synced
// records can be skipped without normalizing them
type idEnvelope struct {
	ID      *int64 `json:"id"`
	CycleID *int64 `json:"cycle_id"`
}

func (s *Syncer) syncKind(ctx context.Context, userID int64, kind Kind, explicitStart *time.Time) (int, error) {
	passID := uuid.NewString()
	start := time.Now()

	startBound, err := s.startBound(userID, kind, explicitStart)
	if err != nil {
		return 0, s.finishPass(passID, userID, kind, 0, start, err)
	}

	s.logger.Info("Starting sync pass",
		"pass_id", passID,
		"user_id", userID,
		"kind", kind,
		"incremental", startBound != nil)

	records, err := s.fetch(ctx, userID, kind, startBound)
	if err != nil {
		return 0, s.finishPass(passID, userID, kind, 0, start, err)
	}

	inserted, err := s.insertRecords(userID, kind, records)
	if err != nil {
		return 0, s.finishPass(passID, userID, kind, 0, start, err)
	}

	return inserted, s.finishPass(passID, userID, kind, inserted, start, nil)
}

// startBound resolves the lower time bound for a pass: an explicit override
// wins, otherwise the stored watermark, otherwise nil for full history
func (s *Syncer) startBound(userID int64, kind Kind, explicitStart *time.Time) (*time.Time, error) {
	if explicitStart != nil {
		return explicitStart, nil
	}

	watermark, err := s.db.MaxUpdatedAt(string(kind), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}
	if watermark == nil {
		return nil, nil
	}

	t := time.UnixMilli(*watermark).UTC()
	return &t, nil
}

func (s *Syncer) fetch(ctx context.Context, userID int64, kind Kind, start *time.Time) ([]json.RawMessage, error) {
	switch kind {
	case KindCycle:
		return s.client.ListCycles(ctx, userID, start, nil)
	case KindSleep:
		return s.client.ListSleeps(ctx, userID, start, nil)
	case KindRecovery:
		return s.client.ListRecoveries(ctx, userID, start, nil)
	case KindWorkout:
		return s.client.ListWorkouts(ctx, userID, start, nil)
	default:
		return nil, fmt.Errorf("unknown sync kind %q", kind)
	}
}

// insertRecords writes all new records from one pass in a single transaction.
// Records whose id already exists are skipped without normalizing; any error
// rolls back the whole pass.
func (s *Syncer) insertRecords(userID int64, kind Kind, records []json.RawMessage) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, raw := range records {
		var env idEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return 0, &whoop.PayloadError{Kind: string(kind), Err: err}
		}

		recordID := env.ID
		if kind == KindRecovery {
			recordID = env.CycleID
		}
		if recordID == nil {
			return 0, &whoop.PayloadError{Kind: string(kind), Field: "id"}
		}

		exists, err := s.exists(tx, kind, *recordID)
		if err != nil {
			return 0, err
		}
		if exists {
			continue
		}

		ok, err := s.normalizeAndInsert(tx, userID, kind, raw)
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

func (s *Syncer) exists(tx *sql.Tx, kind Kind, id int64) (bool, error) {
	switch kind {
	case KindCycle:
		return s.db.CycleExistsTx(tx, id)
	case KindSleep:
		return s.db.SleepExistsTx(tx, id)
	case KindRecovery:
		return s.db.RecoveryExistsTx(tx, id)
	case KindWorkout:
		return s.db.WorkoutExistsTx(tx, id)
	default:
		return false, fmt.Errorf("unknown sync kind %q", kind)
	}
}

func (s *Syncer) normalizeAndInsert(tx *sql.Tx, userID int64, kind Kind, raw json.RawMessage) (bool, error) {
	switch kind {
	case KindCycle:
		c, err := whoop.NormalizeCycle(raw)
		if err != nil {
			return false, err
		}
		c.UserID = userID
		return s.db.InsertCycleTx(tx, c)
	case KindSleep:
		sl, err := whoop.NormalizeSleep(raw)
		if err != nil {
			return false, err
		}
		sl.UserID = userID
		return s.db.InsertSleepTx(tx, sl)
	case KindRecovery:
		r, err := whoop.NormalizeRecovery(raw)
		if err != nil {
			return false, err
		}
		r.UserID = userID
		return s.db.InsertRecoveryTx(tx, r)
	case KindWorkout:
		w, err := whoop.NormalizeWorkout(raw)
		if err != nil {
			return false, err
		}
		w.UserID = userID
		return s.db.InsertWorkoutTx(tx, w)
	default:
		return false, fmt.Errorf("unknown sync kind %q", kind)
	}
}

// finishPass records the pass outcome in sync_history and metrics. When
// passErr is non-nil it is wrapped and returned so callers see the kind and
// user that failed.
func (s *Syncer) finishPass(passID string, userID int64, kind Kind, inserted int, start time.Time, passErr error) error {
	duration := time.Since(start)

	entry := &database.SyncHistoryEntry{
		PassID:     passID,
		UserID:     userID,
		Kind:       string(kind),
		Inserted:   inserted,
		StartedAt:  start,
		DurationMs: duration.Milliseconds(),
	}

	result := metrics.ResultSuccess
	if passErr != nil {
		result = metrics.ResultFailure
		msg := passErr.Error()
		entry.Error = &msg
	}

	if err := s.db.InsertSyncHistory(entry); err != nil {
		s.logger.Error("Failed to record sync history", "pass_id", passID, "error", err)
	}

	metrics.SyncPassesTotal.WithLabelValues(string(kind), result).Inc()
	if passErr == nil {
		metrics.SyncRecordsInsertedTotal.WithLabelValues(string(kind)).Add(float64(inserted))
		metrics.SyncPassInsertedCount.WithLabelValues(string(kind)).Observe(float64(inserted))

		s.logger.Info("Sync pass complete",
			"pass_id", passID,
			"user_id", userID,
			"kind", kind,
			"inserted", inserted,
			"duration_ms", duration.Milliseconds())
		return nil
	}

	s.logger.Error("Sync pass failed",
		"pass_id", passID,
		"user_id", userID,
		"kind", kind,
		"duration_ms", duration.Milliseconds(),
		"error", passErr)

	return &Error{Kind: kind, UserID: userID, Err: passErr}
}
