package ledger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/billingops/payment-orchestrator/internal/domain"
)

// schema holds the ledger tables. Applied idempotently at startup when the
// durable backing is enabled; there is no separate migration tooling because
// the ledger owns exactly three tables.
const schema = `
CREATE TABLE IF NOT EXISTS payment_attempts (
	attempt_id             TEXT PRIMARY KEY,
	order_id               TEXT NOT NULL,
	invoice_id             TEXT NOT NULL,
	method                 TEXT NOT NULL,
	state                  TEXT NOT NULL,
	gateway_transaction_id TEXT NOT NULL DEFAULT '',
	amount                 NUMERIC(18,4) NOT NULL,
	currency               TEXT NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_attempts_invoice
	ON payment_attempts (invoice_id, created_at DESC);

CREATE TABLE IF NOT EXISTS capture_records (
	attempt_id      TEXT PRIMARY KEY REFERENCES payment_attempts (attempt_id),
	invoice_id      TEXT NOT NULL,
	transaction_id  TEXT NOT NULL,
	previous_status TEXT NOT NULL,
	current_status  TEXT NOT NULL,
	captured_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS verification_outcomes (
	id            BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	invoice_id    TEXT NOT NULL,
	status        TEXT NOT NULL,
	is_paid       BOOLEAN NOT NULL,
	date_paid     TIMESTAMPTZ,
	attempts_used INT NOT NULL,
	timed_out     BOOLEAN NOT NULL,
	recorded_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verification_outcomes_invoice
	ON verification_outcomes (invoice_id, recorded_at DESC);
`

// Migrate creates the ledger tables if they do not exist
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return domain.WrapError(domain.ErrorCodeLedgerError, "apply ledger schema", err)
	}
	return nil
}
