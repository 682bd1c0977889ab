package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// The partial unique indexes on payments are what enforce the per-round
// accounting invariants: one payout row per (rosca, round) and one
// contribution row per (rosca, round, user).
const schema = `
CREATE TABLE IF NOT EXISTS roscas (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    total_amount INTEGER NOT NULL,
    contribution_amount INTEGER NOT NULL,
    frequency TEXT NOT NULL,
    rounds INTEGER NOT NULL,
    max_participants INTEGER NOT NULL,
    current_participants INTEGER NOT NULL DEFAULT 0,
    current_round INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'forming',
    start_date INTEGER NOT NULL,
    end_date INTEGER NOT NULL DEFAULT 0,
    admin_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    CHECK (current_participants <= max_participants)
);

CREATE TABLE IF NOT EXISTS participations (
    id TEXT PRIMARY KEY,
    rosca_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    payout_round INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'active',
    total_contributed INTEGER NOT NULL DEFAULT 0,
    total_received INTEGER NOT NULL DEFAULT 0,
    joined_at INTEGER NOT NULL,
    UNIQUE (rosca_id, user_id),
    UNIQUE (rosca_id, position),
    FOREIGN KEY (rosca_id) REFERENCES roscas(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS payments (
    id TEXT PRIMARY KEY,
    rosca_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    amount INTEGER NOT NULL,
    round_number INTEGER NOT NULL,
    tx_ref TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    fail_reason TEXT NOT NULL DEFAULT '',
    due_date INTEGER NOT NULL,
    paid_date INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (rosca_id) REFERENCES roscas(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_one_payout_per_round
    ON payments(rosca_id, round_number) WHERE kind = 'payout';
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_one_contribution_per_member
    ON payments(rosca_id, round_number, user_id) WHERE kind = 'contribution';

CREATE TABLE IF NOT EXISTS notifications (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    message TEXT NOT NULL,
    type TEXT NOT NULL,
    read INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_participations_rosca_id ON participations(rosca_id);
CREATE INDEX IF NOT EXISTS idx_participations_user_id ON participations(user_id);
CREATE INDEX IF NOT EXISTS idx_payments_rosca_round ON payments(rosca_id, round_number);
CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
