package repository

import (
	"context"
	"fmt"
)

// schema は台帳(Ledger)の3テーブルを定義します
// 予約は(court_name, starts_at)ごとに有効なものを1件までに制限します
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                  BIGSERIAL PRIMARY KEY,
	phone_number        TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL DEFAULT '',
	strikes             INTEGER NOT NULL DEFAULT 0 CHECK (strikes >= 0),
	requires_prepayment BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reservations (
	id                BIGSERIAL PRIMARY KEY,
	user_id           BIGINT NOT NULL REFERENCES users (id),
	booking_key       TEXT NOT NULL,
	court_name        TEXT NOT NULL,
	starts_at         TIMESTAMPTZ NOT NULL,
	duration_minutes  INTEGER NOT NULL DEFAULT 60,
	calendar_event_id TEXT,
	calendar_link     TEXT,
	status            TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'completed', 'cancelled', 'no_show')),
	confirmed         BOOLEAN NOT NULL DEFAULT FALSE,
	reminder_24h_sent BOOLEAN NOT NULL DEFAULT FALSE,
	reminder_3h_sent  BOOLEAN NOT NULL DEFAULT FALSE,
	name              TEXT NOT NULL DEFAULT '',
	notes             TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT reservations_booking_key_key UNIQUE (booking_key),
	CONSTRAINT reservations_confirmed_has_event CHECK (status <> 'confirmed' OR (confirmed AND calendar_event_id IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS reservations_active_slot_idx
	ON reservations (court_name, starts_at)
	WHERE status IN ('pending', 'confirmed');

CREATE INDEX IF NOT EXISTS reservations_status_starts_at_idx
	ON reservations (status, starts_at);

CREATE TABLE IF NOT EXISTS conversation_states (
	phone_number TEXT PRIMARY KEY,
	state        TEXT NOT NULL DEFAULT 'idle',
	context      JSONB NOT NULL DEFAULT '{}'::jsonb,
	version      BIGINT NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate はテーブルが存在しない場合に作成します
func Migrate(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
