package database

// Schema contains all SQL statements for creating tables and indexes.
//
// Provider timestamps (start, end, updated_at, provider_created_at) are stored
// as Unix milliseconds since WHOOP reports sub-second precision. Local row
// metadata (synced_at, created_at) is Unix seconds.
const Schema = `
-- OAuth connections: one row per (user, provider) pair. The provider column
-- discriminates connection types instead of one table per provider.
CREATE TABLE IF NOT EXISTS oauth_connections (
    user_id INTEGER NOT NULL,
    provider TEXT NOT NULL,
    provider_user_id INTEGER NOT NULL,

    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    expires_at INTEGER NOT NULL,
    scope TEXT NOT NULL,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,

    PRIMARY KEY (user_id, provider)
);

-- Subjects: WHOOP-side user identity with profile and body measurements.
-- Created on first profile sync, updated on every subsequent sync.
CREATE TABLE IF NOT EXISTS subjects (
    user_id INTEGER PRIMARY KEY,
    email TEXT NOT NULL,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,

    height_meter REAL,
    weight_kilogram REAL,
    max_heart_rate INTEGER,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Cycles: one physiological "day". end is NULL while the cycle is ongoing.
CREATE TABLE IF NOT EXISTS cycles (
    id INTEGER PRIMARY KEY,
    user_id INTEGER NOT NULL,

    start INTEGER NOT NULL,
    end INTEGER,
    timezone_offset TEXT NOT NULL,
    score_state TEXT NOT NULL,
    raw_json TEXT NOT NULL,

    strain REAL,
    kilojoule REAL,
    average_heart_rate INTEGER,
    max_heart_rate INTEGER,

    provider_created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    synced_at INTEGER NOT NULL
);

-- Sleeps: sleep episodes, including naps.
CREATE TABLE IF NOT EXISTS sleeps (
    id INTEGER PRIMARY KEY,
    user_id INTEGER NOT NULL,

    start INTEGER NOT NULL,
    end INTEGER NOT NULL,
    timezone_offset TEXT NOT NULL,
    nap BOOLEAN NOT NULL,
    score_state TEXT NOT NULL,
    raw_json TEXT NOT NULL,

    -- Stage summary (milliseconds)
    total_in_bed_time_milli INTEGER,
    total_awake_time_milli INTEGER,
    total_no_data_time_milli INTEGER,
    total_light_sleep_time_milli INTEGER,
    total_slow_wave_sleep_time_milli INTEGER,
    total_rem_sleep_time_milli INTEGER,
    sleep_cycle_count INTEGER,
    disturbance_count INTEGER,

    -- Sleep needed (milliseconds)
    baseline_milli INTEGER,
    need_from_sleep_debt_milli INTEGER,
    need_from_recent_strain_milli INTEGER,
    need_from_recent_nap_milli INTEGER,

    respiratory_rate REAL,
    sleep_performance_percentage REAL,
    sleep_consistency_percentage REAL,
    sleep_efficiency_percentage REAL,

    provider_created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    synced_at INTEGER NOT NULL
);

-- Recoveries: keyed by owning cycle. Requires both cycle and sleep rows.
CREATE TABLE IF NOT EXISTS recoveries (
    cycle_id INTEGER PRIMARY KEY,
    sleep_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,

    score_state TEXT NOT NULL,
    raw_json TEXT NOT NULL,

    user_calibrating BOOLEAN,
    recovery_score REAL,
    resting_heart_rate REAL,
    hrv_rmssd_milli REAL,
    spo2_percentage REAL,
    skin_temp_celsius REAL,

    provider_created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    synced_at INTEGER NOT NULL,

    FOREIGN KEY (cycle_id) REFERENCES cycles(id),
    FOREIGN KEY (sleep_id) REFERENCES sleeps(id)
);

-- Workouts: discrete exercise sessions.
CREATE TABLE IF NOT EXISTS workouts (
    id INTEGER PRIMARY KEY,
    user_id INTEGER NOT NULL,
    sport_id INTEGER NOT NULL,

    start INTEGER NOT NULL,
    end INTEGER NOT NULL,
    timezone_offset TEXT NOT NULL,
    score_state TEXT NOT NULL,
    raw_json TEXT NOT NULL,

    strain REAL,
    average_heart_rate INTEGER,
    max_heart_rate INTEGER,
    kilojoule REAL,
    percent_recorded REAL,
    distance_meter REAL,
    altitude_gain_meter REAL,
    altitude_change_meter REAL,

    -- Heart rate zone durations (milliseconds)
    zone_zero_milli INTEGER,
    zone_one_milli INTEGER,
    zone_two_milli INTEGER,
    zone_three_milli INTEGER,
    zone_four_milli INTEGER,
    zone_five_milli INTEGER,

    provider_created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    synced_at INTEGER NOT NULL
);

-- Sync jobs: durable queue processed by the background worker
CREATE TABLE IF NOT EXISTS sync_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    job_type TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    next_retry_at INTEGER,
    processing_started_at INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

-- Sync history: one row per completed or failed sync pass
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pass_id TEXT NOT NULL,
    user_id INTEGER NOT NULL,
    kind TEXT NOT NULL,
    inserted INTEGER NOT NULL,
    error TEXT,
    started_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL
);

-- Watermark lookup indexes
CREATE INDEX IF NOT EXISTS idx_cycles_user_updated ON cycles(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_sleeps_user_updated ON sleeps(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_recoveries_user_updated ON recoveries(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_workouts_user_updated ON workouts(user_id, updated_at);

-- Foreign key and listing indexes
CREATE INDEX IF NOT EXISTS idx_cycles_user_start ON cycles(user_id, start DESC);
CREATE INDEX IF NOT EXISTS idx_sleeps_user_start ON sleeps(user_id, start DESC);
CREATE INDEX IF NOT EXISTS idx_workouts_user_start ON workouts(user_id, start DESC);
CREATE INDEX IF NOT EXISTS idx_recoveries_sleep ON recoveries(sleep_id);

-- Queue indexes
CREATE INDEX IF NOT EXISTS idx_sync_jobs_next_retry ON sync_jobs(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_sync_history_user ON sync_history(user_id, started_at DESC);
`
