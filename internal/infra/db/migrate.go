package db

import (
	"context"
	"database/sql"
	"fmt"
)

// The recipients, recipient_phones, events and invitations tables belong to the guest
// management side; they are created here only if missing so the engine can run standalone.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
    id                  BIGSERIAL PRIMARY KEY,
    name                TEXT NOT NULL,
    starts_at           TIMESTAMPTZ,
    location            TEXT NOT NULL DEFAULT '',
    host_name           TEXT NOT NULL DEFAULT '',
    chat_cloud_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
    chat_cloud_token    TEXT NOT NULL DEFAULT '',
    chat_cloud_phone_id TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS recipients (
    id       BIGSERIAL PRIMARY KEY,
    event_id BIGINT NOT NULL REFERENCES events(id),
    name     TEXT NOT NULL,
    email    TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS recipient_phones (
    id           BIGSERIAL PRIMARY KEY,
    recipient_id BIGINT NOT NULL REFERENCES recipients(id) ON DELETE CASCADE,
    number       TEXT NOT NULL,
    is_primary   BOOLEAN NOT NULL DEFAULT FALSE,
    category     TEXT NOT NULL DEFAULT '',
    label        TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS invitations (
    id            BIGSERIAL PRIMARY KEY,
    event_id      BIGINT NOT NULL REFERENCES events(id),
    title         TEXT NOT NULL DEFAULT '',
    body          TEXT NOT NULL DEFAULT '',
    content_type  VARCHAR(20) NOT NULL DEFAULT 'TEXT',
    template_name TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS delivery_queue (
    id                    BIGSERIAL PRIMARY KEY,
    message_id            TEXT NOT NULL UNIQUE,
    kind                  VARCHAR(20) NOT NULL,
    recipient_id          BIGINT NOT NULL,
    event_id              BIGINT NOT NULL DEFAULT 0,
    sender_id             TEXT NOT NULL DEFAULT '',
    title                 TEXT NOT NULL DEFAULT '',
    body                  TEXT NOT NULL DEFAULT '',
    template_name         TEXT NOT NULL DEFAULT '',
    preferred_channel     VARCHAR(20) NOT NULL DEFAULT '',
    delivered_channel     VARCHAR(20) NOT NULL DEFAULT '',
    status                VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    provider_status       TEXT NOT NULL DEFAULT '',
    error_message         TEXT NOT NULL DEFAULT '',
    retry_count           INTEGER NOT NULL DEFAULT 0,
    max_retries           INTEGER NOT NULL DEFAULT 3,
    priority              SMALLINT NOT NULL DEFAULT 5 CHECK (priority BETWEEN 1 AND 10),
    created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
    scheduled_at          TIMESTAMPTZ,
    processing_started_at TIMESTAMPTZ,
    processed_at          TIMESTAMPTZ,
    next_retry_at         TIMESTAMPTZ
)`,
	`CREATE TABLE IF NOT EXISTS invitation_ledger (
    id                 BIGSERIAL PRIMARY KEY,
    invitation_id      BIGINT NOT NULL,
    recipient_id       BIGINT NOT NULL,
    status             VARCHAR(20) NOT NULL,
    method             VARCHAR(20) NOT NULL,
    method_description TEXT NOT NULL DEFAULT '',
    channel            VARCHAR(20) NOT NULL DEFAULT '',
    provider_id        TEXT NOT NULL DEFAULT '',
    error_message      TEXT NOT NULL DEFAULT '',
    sent_by            TEXT NOT NULL DEFAULT '',
    sent_at            TIMESTAMPTZ,
    delivered_at       TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (invitation_id, recipient_id)
)`,
	`CREATE TABLE IF NOT EXISTS phone_contact_records (
    id              BIGSERIAL PRIMARY KEY,
    ledger_entry_id BIGINT NOT NULL REFERENCES invitation_ledger(id) ON DELETE CASCADE,
    phone           TEXT NOT NULL,
    was_primary     BOOLEAN NOT NULL DEFAULT FALSE,
    category        TEXT NOT NULL DEFAULT '',
    method          VARCHAR(20) NOT NULL,
    status          VARCHAR(20) NOT NULL,
    contacted_at    TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS notices (
    id           TEXT PRIMARY KEY,
    message_id   TEXT NOT NULL,
    recipient_id BIGINT NOT NULL,
    event_id     BIGINT NOT NULL DEFAULT 0,
    title        TEXT NOT NULL DEFAULT '',
    body         TEXT NOT NULL DEFAULT '',
    channel      VARCHAR(20) NOT NULL,
    status       TEXT NOT NULL,
    error        TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (message_id, recipient_id)
)`,
}

var indexes = []string{
	// claim order: priority DESC, created_at ASC over claimable rows
	`CREATE INDEX IF NOT EXISTS idx_delivery_queue_claim ON delivery_queue(priority DESC, created_at ASC) WHERE status IN ('PENDING', 'RETRY')`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_queue_processing ON delivery_queue(processing_started_at) WHERE status = 'PROCESSING'`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_queue_recipient ON delivery_queue(recipient_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_delivery_queue_event ON delivery_queue(event_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_phone_contact_records_entry ON phone_contact_records(ledger_entry_id)`,
	`CREATE INDEX IF NOT EXISTS idx_recipient_phones_recipient ON recipient_phones(recipient_id)`,
}

// MigrateUp creates the schema. Every statement is idempotent.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// MigrateDown drops the tables owned by the delivery engine. Directory tables are left alone.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`DROP TABLE IF EXISTS phone_contact_records`,
		`DROP TABLE IF EXISTS invitation_ledger`,
		`DROP TABLE IF EXISTS delivery_queue`,
		`DROP TABLE IF EXISTS notices`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ready reports whether the delivery tables exist; the worker waits on it at startup.
func Ready(ctx context.Context, db *sql.DB) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (
    SELECT 1 FROM information_schema.tables WHERE table_name = 'delivery_queue'
)`).Scan(&exists)
	return exists, err
}
