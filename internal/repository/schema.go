package repository

import (
	"context"
	"fmt"
)

// schema is idempotent; Migrate can run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- append-only ledger
CREATE TABLE IF NOT EXISTS statements (
	seq             BIGSERIAL UNIQUE,
	id              UUID PRIMARY KEY,
	user_id         UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE ON UPDATE CASCADE,
	counterparty_id UUID REFERENCES users (id) ON DELETE CASCADE ON UPDATE CASCADE,
	type            TEXT NOT NULL CHECK (type IN ('deposit', 'withdraw', 'transfer')),
	direction       TEXT NOT NULL DEFAULT '' CHECK (direction IN ('', 'in', 'out')),
	amount          NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
	description     TEXT NOT NULL CHECK (description <> ''),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	CHECK ((type = 'transfer') = (counterparty_id IS NOT NULL)),
	CHECK ((type = 'transfer') = (direction <> ''))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email));
CREATE INDEX IF NOT EXISTS idx_statements_user_seq ON statements (user_id, seq);
CREATE INDEX IF NOT EXISTS idx_statements_counterparty_seq ON statements (counterparty_id, seq);
`

// Migrate creates the tables and indexes if they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.q.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
