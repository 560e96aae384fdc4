package whoop

// Score states reported by WHOOP. Stored verbatim; PENDING_SCORE records can
// legitimately carry no score data.
const (
	ScoreStateScored     = "SCORED"
	ScoreStatePending    = "PENDING_SCORE"
	ScoreStateUnscorable = "UNSCORABLE"
)

// TokenResponse is the WHOOP token endpoint response for both
// authorization_code and refresh_token grants
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

// Raw payload shapes as returned by the WHOOP API. Required top-level fields
// are pointers so the normalizers can distinguish absent from zero; score
// subtrees are optional throughout.

type rawProfile struct {
	UserID    *int64  `json:"user_id"`
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

type rawBodyMeasurement struct {
	HeightMeter    *float64 `json:"height_meter"`
	WeightKilogram *float64 `json:"weight_kilogram"`
	MaxHeartRate   *int64   `json:"max_heart_rate"`
}

type rawCycle struct {
	ID             *int64         `json:"id"`
	UserID         *int64         `json:"user_id"`
	CreatedAt      *string        `json:"created_at"`
	UpdatedAt      *string        `json:"updated_at"`
	Start          *string        `json:"start"`
	End            *string        `json:"end"` // null while the cycle is ongoing
	TimezoneOffset *string        `json:"timezone_offset"`
	ScoreState     *string        `json:"score_state"`
	Score          *rawCycleScore `json:"score"`
}

type rawCycleScore struct {
	Strain           *float64 `json:"strain"`
	Kilojoule        *float64 `json:"kilojoule"`
	AverageHeartRate *int64   `json:"average_heart_rate"`
	MaxHeartRate     *int64   `json:"max_heart_rate"`
}

type rawSleep struct {
	ID             *int64         `json:"id"`
	UserID         *int64         `json:"user_id"`
	CreatedAt      *string        `json:"created_at"`
	UpdatedAt      *string        `json:"updated_at"`
	Start          *string        `json:"start"`
	End            *string        `json:"end"`
	TimezoneOffset *string        `json:"timezone_offset"`
	Nap            *bool          `json:"nap"`
	ScoreState     *string        `json:"score_state"`
	Score          *rawSleepScore `json:"score"`
}

type rawSleepScore struct {
	StageSummary *rawStageSummary `json:"stage_summary"`
	SleepNeeded  *rawSleepNeeded  `json:"sleep_needed"`

	RespiratoryRate            *float64 `json:"respiratory_rate"`
	SleepPerformancePercentage *float64 `json:"sleep_performance_percentage"`
	SleepConsistencyPercentage *float64 `json:"sleep_consistency_percentage"`
	SleepEfficiencyPercentage  *float64 `json:"sleep_efficiency_percentage"`
}

type rawStageSummary struct {
	TotalInBedTimeMilli         *int64 `json:"total_in_bed_time_milli"`
	TotalAwakeTimeMilli         *int64 `json:"total_awake_time_milli"`
	TotalNoDataTimeMilli        *int64 `json:"total_no_data_time_milli"`
	TotalLightSleepTimeMilli    *int64 `json:"total_light_sleep_time_milli"`
	TotalSlowWaveSleepTimeMilli *int64 `json:"total_slow_wave_sleep_time_milli"`
	TotalRemSleepTimeMilli      *int64 `json:"total_rem_sleep_time_milli"`
	SleepCycleCount             *int64 `json:"sleep_cycle_count"`
	DisturbanceCount            *int64 `json:"disturbance_count"`
}

type rawSleepNeeded struct {
	BaselineMilli             *int64 `json:"baseline_milli"`
	NeedFromSleepDebtMilli    *int64 `json:"need_from_sleep_debt_milli"`
	NeedFromRecentStrainMilli *int64 `json:"need_from_recent_strain_milli"`
	NeedFromRecentNapMilli    *int64 `json:"need_from_recent_nap_milli"`
}

type rawRecovery struct {
	CycleID    *int64            `json:"cycle_id"`
	SleepID    *int64            `json:"sleep_id"`
	UserID     *int64            `json:"user_id"`
	CreatedAt  *string           `json:"created_at"`
	UpdatedAt  *string           `json:"updated_at"`
	ScoreState *string           `json:"score_state"`
	Score      *rawRecoveryScore `json:"score"`
}

type rawRecoveryScore struct {
	UserCalibrating  *bool    `json:"user_calibrating"`
	RecoveryScore    *float64 `json:"recovery_score"`
	RestingHeartRate *float64 `json:"resting_heart_rate"`
	HrvRmssdMilli    *float64 `json:"hrv_rmssd_milli"`
	Spo2Percentage   *float64 `json:"spo2_percentage"`
	SkinTempCelsius  *float64 `json:"skin_temp_celsius"`
}

type rawWorkout struct {
	ID             *int64           `json:"id"`
	UserID         *int64           `json:"user_id"`
	SportID        *int64           `json:"sport_id"`
	CreatedAt      *string          `json:"created_at"`
	UpdatedAt      *string          `json:"updated_at"`
	Start          *string          `json:"start"`
	End            *string          `json:"end"`
	TimezoneOffset *string          `json:"timezone_offset"`
	ScoreState     *string          `json:"score_state"`
	Score          *rawWorkoutScore `json:"score"`
}

type rawWorkoutScore struct {
	Strain              *float64         `json:"strain"`
	AverageHeartRate    *int64           `json:"average_heart_rate"`
	MaxHeartRate        *int64           `json:"max_heart_rate"`
	Kilojoule           *float64         `json:"kilojoule"`
	PercentRecorded     *float64         `json:"percent_recorded"`
	DistanceMeter       *float64         `json:"distance_meter"`
	AltitudeGainMeter   *float64         `json:"altitude_gain_meter"`
	AltitudeChangeMeter *float64         `json:"altitude_change_meter"`
	ZoneDuration        *rawZoneDuration `json:"zone_duration"`
}

type rawZoneDuration struct {
	ZoneZeroMilli  *int64 `json:"zone_zero_milli"`
	ZoneOneMilli   *int64 `json:"zone_one_milli"`
	ZoneTwoMilli   *int64 `json:"zone_two_milli"`
	ZoneThreeMilli *int64 `json:"zone_three_milli"`
	ZoneFourMilli  *int64 `json:"zone_four_milli"`
	ZoneFiveMilli  *int64 `json:"zone_five_milli"`
}
