package repository

// Both schemas are idempotent. Timestamps are written by the application so
// no statement depends on a dialect-specific clock function.

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS employees (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    code        TEXT,
    number      TEXT,
    deleted_at  DATETIME,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS timesheet_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    dedup_key   TEXT NOT NULL UNIQUE,
    employee_id INTEGER NOT NULL REFERENCES employees(id),
    direction   TEXT NOT NULL CHECK (direction IN ('in','out')),
    event_date  TEXT NOT NULL,
    event_time  TEXT NOT NULL,
    photo       TEXT,
    status      TEXT NOT NULL DEFAULT 'success',
    remote_id   TEXT,
    sync_error  TEXT,
    created_at  DATETIME NOT NULL,
    synced_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_timesheet_events_pending
    ON timesheet_events (status, created_at) WHERE remote_id IS NULL;

CREATE INDEX IF NOT EXISTS idx_timesheet_events_date ON timesheet_events (event_date);

CREATE TABLE IF NOT EXISTS sync_runs (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    sync_type         TEXT NOT NULL CHECK (sync_type IN ('pull','push')),
    status            TEXT NOT NULL,
    records_processed INTEGER NOT NULL DEFAULT 0,
    records_success   INTEGER NOT NULL DEFAULT 0,
    records_failed    INTEGER NOT NULL DEFAULT 0,
    error_message     TEXT,
    metadata          TEXT,
    started_at        DATETIME NOT NULL,
    completed_at      DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs (started_at);

CREATE TABLE IF NOT EXISTS endpoint_config (
    id                     INTEGER PRIMARY KEY CHECK (id = 1),
    onprem_host            TEXT NOT NULL DEFAULT '',
    onprem_username        TEXT NOT NULL DEFAULT '',
    onprem_password        TEXT NOT NULL DEFAULT '',
    onprem_token           TEXT NOT NULL DEFAULT '',
    onprem_token_issued_at DATETIME,
    cloud_url              TEXT NOT NULL DEFAULT '',
    cloud_username         TEXT NOT NULL DEFAULT '',
    cloud_password         TEXT NOT NULL DEFAULT '',
    cloud_token            TEXT NOT NULL DEFAULT '',
    cloud_token_metadata   TEXT,
    cloud_token_issued_at  DATETIME,
    pull_interval_minutes  INTEGER NOT NULL DEFAULT 30,
    push_interval_minutes  INTEGER NOT NULL DEFAULT 15,
    last_pull_at           DATETIME,
    last_push_at           DATETIME,
    updated_at             DATETIME NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS employees (
    id          BIGSERIAL PRIMARY KEY,
    external_id TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    code        TEXT,
    number      TEXT,
    deleted_at  TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS timesheet_events (
    id          BIGSERIAL PRIMARY KEY,
    dedup_key   TEXT NOT NULL UNIQUE,
    employee_id BIGINT NOT NULL REFERENCES employees(id),
    direction   TEXT NOT NULL CHECK (direction IN ('in','out')),
    event_date  TEXT NOT NULL,
    event_time  TEXT NOT NULL,
    photo       TEXT,
    status      TEXT NOT NULL DEFAULT 'success',
    remote_id   TEXT,
    sync_error  TEXT,
    created_at  TIMESTAMPTZ NOT NULL,
    synced_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_timesheet_events_pending
    ON timesheet_events (status, created_at) WHERE remote_id IS NULL;

CREATE INDEX IF NOT EXISTS idx_timesheet_events_date ON timesheet_events (event_date);

CREATE TABLE IF NOT EXISTS sync_runs (
    id                BIGSERIAL PRIMARY KEY,
    sync_type         TEXT NOT NULL CHECK (sync_type IN ('pull','push')),
    status            TEXT NOT NULL,
    records_processed INTEGER NOT NULL DEFAULT 0,
    records_success   INTEGER NOT NULL DEFAULT 0,
    records_failed    INTEGER NOT NULL DEFAULT 0,
    error_message     TEXT,
    metadata          TEXT,
    started_at        TIMESTAMPTZ NOT NULL,
    completed_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs (started_at);

CREATE TABLE IF NOT EXISTS endpoint_config (
    id                     INTEGER PRIMARY KEY CHECK (id = 1),
    onprem_host            TEXT NOT NULL DEFAULT '',
    onprem_username        TEXT NOT NULL DEFAULT '',
    onprem_password        TEXT NOT NULL DEFAULT '',
    onprem_token           TEXT NOT NULL DEFAULT '',
    onprem_token_issued_at TIMESTAMPTZ,
    cloud_url              TEXT NOT NULL DEFAULT '',
    cloud_username         TEXT NOT NULL DEFAULT '',
    cloud_password         TEXT NOT NULL DEFAULT '',
    cloud_token            TEXT NOT NULL DEFAULT '',
    cloud_token_metadata   TEXT,
    cloud_token_issued_at  TIMESTAMPTZ,
    pull_interval_minutes  INTEGER NOT NULL DEFAULT 30,
    push_interval_minutes  INTEGER NOT NULL DEFAULT 15,
    last_pull_at           TIMESTAMPTZ,
    last_push_at           TIMESTAMPTZ,
    updated_at             TIMESTAMPTZ NOT NULL
);
`
