package whoop

import (
	"encoding/json"
	"time"

	"fitness-whoop-sync/internal/database"
)

// Normalizers map one raw WHOOP JSON record into a flat typed row. They are
// pure: no I/O, no state. Required top-level fields fail fast; everything
// under the optional score object defaults to NULL when absent, since score
// data can legitimately be incomplete (score_state = PENDING_SCORE).

// parseTimestamp parses a WHOOP ISO-8601 timestamp (trailing Z, UTC) into
// Unix milliseconds
func parseTimestamp(kind, field string, v *string) (int64, error) {
	if v == nil {
		return 0, &PayloadError{Kind: kind, Field: field}
	}
	t, err := time.Parse(time.RFC3339Nano, *v)
	if err != nil {
		return 0, &PayloadError{Kind: kind, Field: field, Err: err}
	}
	return t.UTC().UnixMilli(), nil
}

// NormalizeCycle maps a raw cycle record into a Cycle row
func NormalizeCycle(raw json.RawMessage) (*database.Cycle, error) {
	var rc rawCycle
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, &PayloadError{Kind: "cycle", Err: err}
	}

	if rc.ID == nil {
		return nil, &PayloadError{Kind: "cycle", Field: "id"}
	}
	if rc.UserID == nil {
		return nil, &PayloadError{Kind: "cycle", Field: "user_id"}
	}
	if rc.TimezoneOffset == nil {
		return nil, &PayloadError{Kind: "cycle", Field: "timezone_offset"}
	}
	if rc.ScoreState == nil {
		return nil, &PayloadError{Kind: "cycle", Field: "score_state"}
	}

	createdAt, err := parseTimestamp("cycle", "created_at", rc.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp("cycle", "updated_at", rc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	start, err := parseTimestamp("cycle", "start", rc.Start)
	if err != nil {
		return nil, err
	}

	c := &database.Cycle{
		ID:                *rc.ID,
		UserID:            *rc.UserID,
		Start:             start,
		TimezoneOffset:    *rc.TimezoneOffset,
		ScoreState:        *rc.ScoreState,
		RawJSON:           string(raw),
		ProviderCreatedAt: createdAt,
		UpdatedAt:         updatedAt,
	}

	// end is null while the cycle is ongoing
	if rc.End != nil {
		end, err := parseTimestamp("cycle", "end", rc.End)
		if err != nil {
			return nil, err
		}
		c.End = &end
	}

	if score := rc.Score; score != nil {
		c.Strain = score.Strain
		c.Kilojoule = score.Kilojoule
		c.AverageHeartRate = score.AverageHeartRate
		c.MaxHeartRate = score.MaxHeartRate
	}

	return c, nil
}

// NormalizeSleep maps a raw sleep record into a Sleep row
func NormalizeSleep(raw json.RawMessage) (*database.Sleep, error) {
	var rs rawSleep
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, &PayloadError{Kind: "sleep", Err: err}
	}

	if rs.ID == nil {
		return nil, &PayloadError{Kind: "sleep", Field: "id"}
	}
	if rs.UserID == nil {
		return nil, &PayloadError{Kind: "sleep", Field: "user_id"}
	}
	if rs.TimezoneOffset == nil {
		return nil, &PayloadError{Kind: "sleep", Field: "timezone_offset"}
	}
	if rs.Nap == nil {
		return nil, &PayloadError{Kind: "sleep", Field: "nap"}
	}
	if rs.ScoreState == nil {
		return nil, &PayloadError{Kind: "sleep", Field: "score_state"}
	}

	createdAt, err := parseTimestamp("sleep", "created_at", rs.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp("sleep", "updated_at", rs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	start, err := parseTimestamp("sleep", "start", rs.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseTimestamp("sleep", "end", rs.End)
	if err != nil {
		return nil, err
	}

	s := &database.Sleep{
		ID:                *rs.ID,
		UserID:            *rs.UserID,
		Start:             start,
		End:               end,
		TimezoneOffset:    *rs.TimezoneOffset,
		Nap:               *rs.Nap,
		ScoreState:        *rs.ScoreState,
		RawJSON:           string(raw),
		ProviderCreatedAt: createdAt,
		UpdatedAt:         updatedAt,
	}

	if score := rs.Score; score != nil {
		if stages := score.StageSummary; stages != nil {
			s.TotalInBedTimeMilli = stages.TotalInBedTimeMilli
			s.TotalAwakeTimeMilli = stages.TotalAwakeTimeMilli
			s.TotalNoDataTimeMilli = stages.TotalNoDataTimeMilli
			s.TotalLightSleepTimeMilli = stages.TotalLightSleepTimeMilli
			s.TotalSlowWaveSleepTimeMilli = stages.TotalSlowWaveSleepTimeMilli
			s.TotalRemSleepTimeMilli = stages.TotalRemSleepTimeMilli
			s.SleepCycleCount = stages.SleepCycleCount
			s.DisturbanceCount = stages.DisturbanceCount
		}
		if needed := score.SleepNeeded; needed != nil {
			s.BaselineMilli = needed.BaselineMilli
			s.NeedFromSleepDebtMilli = needed.NeedFromSleepDebtMilli
			s.NeedFromRecentStrainMilli = needed.NeedFromRecentStrainMilli
			s.NeedFromRecentNapMilli = needed.NeedFromRecentNapMilli
		}
		s.RespiratoryRate = score.RespiratoryRate
		s.SleepPerformancePercentage = score.SleepPerformancePercentage
		s.SleepConsistencyPercentage = score.SleepConsistencyPercentage
		s.SleepEfficiencyPercentage = score.SleepEfficiencyPercentage
	}

	return s, nil
}

// NormalizeRecovery maps a raw recovery record into a Recovery row. A
// recovery has no id of its own: it is keyed by the owning cycle.
func NormalizeRecovery(raw json.RawMessage) (*database.Recovery, error) {
	var rr rawRecovery
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, &PayloadError{Kind: "recovery", Err: err}
	}

	if rr.CycleID == nil {
		return nil, &PayloadError{Kind: "recovery", Field: "cycle_id"}
	}
	if rr.SleepID == nil {
		return nil, &PayloadError{Kind: "recovery", Field: "sleep_id"}
	}
	if rr.UserID == nil {
		return nil, &PayloadError{Kind: "recovery", Field: "user_id"}
	}
	if rr.ScoreState == nil {
		return nil, &PayloadError{Kind: "recovery", Field: "score_state"}
	}

	createdAt, err := parseTimestamp("recovery", "created_at", rr.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp("recovery", "updated_at", rr.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r := &database.Recovery{
		CycleID:           *rr.CycleID,
		SleepID:           *rr.SleepID,
		UserID:            *rr.UserID,
		ScoreState:        *rr.ScoreState,
		RawJSON:           string(raw),
		ProviderCreatedAt: createdAt,
		UpdatedAt:         updatedAt,
	}

	if score := rr.Score; score != nil {
		r.UserCalibrating = score.UserCalibrating
		r.RecoveryScore = score.RecoveryScore
		r.RestingHeartRate = score.RestingHeartRate
		r.HrvRmssdMilli = score.HrvRmssdMilli
		r.Spo2Percentage = score.Spo2Percentage
		r.SkinTempCelsius = score.SkinTempCelsius
	}

	return r, nil
}

// NormalizeWorkout maps a raw workout record into a Workout row. Sport codes
// are stored verbatim; unknown codes never block ingestion.
func NormalizeWorkout(raw json.RawMessage) (*database.Workout, error) {
	var rw rawWorkout
	if err := json.Unmarshal(raw, &rw); err != nil {
		return nil, &PayloadError{Kind: "workout", Err: err}
	}

	if rw.ID == nil {
		return nil, &PayloadError{Kind: "workout", Field: "id"}
	}
	if rw.UserID == nil {
		return nil, &PayloadError{Kind: "workout", Field: "user_id"}
	}
	if rw.SportID == nil {
		return nil, &PayloadError{Kind: "workout", Field: "sport_id"}
	}
	if rw.TimezoneOffset == nil {
		return nil, &PayloadError{Kind: "workout", Field: "timezone_offset"}
	}
	if rw.ScoreState == nil {
		return nil, &PayloadError{Kind: "workout", Field: "score_state"}
	}

	createdAt, err := parseTimestamp("workout", "created_at", rw.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := parseTimestamp("workout", "updated_at", rw.UpdatedAt)
	if err != nil {
		return nil, err
	}
	start, err := parseTimestamp("workout", "start", rw.Start)
	if err != nil {
		return nil, err
	}
	end, err := parseTimestamp("workout", "end", rw.End)
	if err != nil {
		return nil, err
	}

	w := &database.Workout{
		ID:                *rw.ID,
		UserID:            *rw.UserID,
		SportID:           *rw.SportID,
		Start:             start,
		End:               end,
		TimezoneOffset:    *rw.TimezoneOffset,
		ScoreState:        *rw.ScoreState,
		RawJSON:           string(raw),
		ProviderCreatedAt: createdAt,
		UpdatedAt:         updatedAt,
	}

	if score := rw.Score; score != nil {
		w.Strain = score.Strain
		w.AverageHeartRate = score.AverageHeartRate
		w.MaxHeartRate = score.MaxHeartRate
		w.Kilojoule = score.Kilojoule
		w.PercentRecorded = score.PercentRecorded
		w.DistanceMeter = score.DistanceMeter
		w.AltitudeGainMeter = score.AltitudeGainMeter
		w.AltitudeChangeMeter = score.AltitudeChangeMeter

		if zones := score.ZoneDuration; zones != nil {
			w.ZoneZeroMilli = zones.ZoneZeroMilli
			w.ZoneOneMilli = zones.ZoneOneMilli
			w.ZoneTwoMilli = zones.ZoneTwoMilli
			w.ZoneThreeMilli = zones.ZoneThreeMilli
			w.ZoneFourMilli = zones.ZoneFourMilli
			w.ZoneFiveMilli = zones.ZoneFiveMilli
		}
	}

	return w, nil
}

// NormalizeSubject maps the profile and body measurement payloads into a
// Subject row. Profile fields are required; body measurements are optional
// so a measurement endpoint outage does not block profile sync.
func NormalizeSubject(profile, measurement json.RawMessage) (*database.Subject, error) {
	var rp rawProfile
	if err := json.Unmarshal(profile, &rp); err != nil {
		return nil, &PayloadError{Kind: "profile", Err: err}
	}

	if rp.UserID == nil {
		return nil, &PayloadError{Kind: "profile", Field: "user_id"}
	}
	if rp.Email == nil {
		return nil, &PayloadError{Kind: "profile", Field: "email"}
	}
	if rp.FirstName == nil {
		return nil, &PayloadError{Kind: "profile", Field: "first_name"}
	}
	if rp.LastName == nil {
		return nil, &PayloadError{Kind: "profile", Field: "last_name"}
	}

	s := &database.Subject{
		UserID:    *rp.UserID,
		Email:     *rp.Email,
		FirstName: *rp.FirstName,
		LastName:  *rp.LastName,
	}

	if len(measurement) > 0 {
		var rm rawBodyMeasurement
		if err := json.Unmarshal(measurement, &rm); err != nil {
			return nil, &PayloadError{Kind: "body_measurement", Err: err}
		}
		s.HeightMeter = rm.HeightMeter
		s.WeightKilogram = rm.WeightKilogram
		s.MaxHeartRate = rm.MaxHeartRate
	}

	return s, nil
}
