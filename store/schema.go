package store

// schema is the persistent data shape of the engine. Constraints
// mirror the domain invariants so a misbehaving writer cannot record
// an impossible state. The users table exists for the external API
// surface; the engine never reads it.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id         BIGSERIAL PRIMARY KEY,
    email      TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sources (
    id                         BIGSERIAL PRIMARY KEY,
    country                    TEXT NOT NULL CHECK (char_length(country) = 2 AND country = upper(country)),
    visa_type                  TEXT NOT NULL,
    url                        TEXT NOT NULL,
    name                       TEXT NOT NULL,
    fetch_type                 TEXT NOT NULL CHECK (fetch_type IN ('html', 'pdf')),
    check_frequency            TEXT NOT NULL CHECK (check_frequency IN ('daily', 'weekly', 'custom')),
    is_active                  BOOLEAN NOT NULL DEFAULT TRUE,
    last_checked_at            TIMESTAMPTZ,
    last_change_detected_at    TIMESTAMPTZ,
    config                     JSONB NOT NULL DEFAULT '{}'::jsonb,
    consecutive_fetch_failures INTEGER NOT NULL DEFAULT 0 CHECK (consecutive_fetch_failures >= 0),
    consecutive_email_failures INTEGER NOT NULL DEFAULT 0 CHECK (consecutive_email_failures >= 0),
    last_fetch_error           TEXT,
    last_email_error           TEXT,
    created_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at                 TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (url, country, visa_type)
);

CREATE TABLE IF NOT EXISTS policy_versions (
    id             BIGSERIAL PRIMARY KEY,
    source_id      BIGINT NOT NULL REFERENCES sources (id) ON DELETE CASCADE,
    content_hash   TEXT NOT NULL CHECK (content_hash ~ '^[0-9a-f]{64}$'),
    raw_text       TEXT NOT NULL,
    fetched_at     TIMESTAMPTZ NOT NULL,
    normalized_at  TIMESTAMPTZ NOT NULL,
    content_length INTEGER NOT NULL CHECK (content_length >= 0),
    fetch_duration BIGINT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_policy_versions_source_latest
    ON policy_versions (source_id, id DESC);

CREATE TABLE IF NOT EXISTS policy_changes (
    id             BIGSERIAL PRIMARY KEY,
    source_id      BIGINT NOT NULL REFERENCES sources (id) ON DELETE CASCADE,
    old_version_id BIGINT REFERENCES policy_versions (id),
    new_version_id BIGINT NOT NULL REFERENCES policy_versions (id),
    old_hash       TEXT NOT NULL CHECK (old_hash ~ '^[0-9a-f]{64}$'),
    new_hash       TEXT NOT NULL CHECK (new_hash ~ '^[0-9a-f]{64}$'),
    diff           TEXT NOT NULL,
    diff_length    INTEGER NOT NULL CHECK (diff_length >= 0),
    detected_at    TIMESTAMPTZ NOT NULL,
    alert_sent_at  TIMESTAMPTZ,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    CHECK (old_hash <> new_hash)
);

CREATE INDEX IF NOT EXISTS idx_policy_changes_source
    ON policy_changes (source_id, detected_at DESC);

CREATE TABLE IF NOT EXISTS route_subscriptions (
    id                  BIGSERIAL PRIMARY KEY,
    origin_country      TEXT NOT NULL CHECK (char_length(origin_country) = 2 AND origin_country = upper(origin_country)),
    destination_country TEXT NOT NULL CHECK (char_length(destination_country) = 2 AND destination_country = upper(destination_country)),
    visa_type           TEXT NOT NULL,
    email               TEXT NOT NULL CHECK (email ~* '^[^@[:space:]]+@[^@[:space:]]+\.[^@[:space:]]+$'),
    is_active           BOOLEAN NOT NULL DEFAULT TRUE,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (origin_country, destination_country, visa_type, email)
);
`
