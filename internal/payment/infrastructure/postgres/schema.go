package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id           TEXT PRIMARY KEY,
	mul_no       TEXT UNIQUE,
	amount       BIGINT NOT NULL CHECK (amount > 0),
	phone        TEXT NOT NULL,
	product_name TEXT NOT NULL,
	memo         TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	pay_state    TEXT,
	var1         TEXT NOT NULL DEFAULT '',
	var2         TEXT NOT NULL DEFAULT '',
	pay_type     TEXT NOT NULL DEFAULT '',
	pay_date     TEXT NOT NULL DEFAULT '',
	card_name    TEXT NOT NULL DEFAULT '',
	vbank        TEXT NOT NULL DEFAULT '',
	vbank_no     TEXT NOT NULL DEFAULT '',
	pay_memo     TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_status_created_idx ON orders (status, created_at DESC);

CREATE TABLE IF NOT EXISTS subscriptions (
	rebill_no      TEXT PRIMARY KEY,
	order_id       TEXT NOT NULL UNIQUE,
	cycle_type     TEXT NOT NULL,
	cycle_value    INT NOT NULL DEFAULT 0,
	expire_date    DATE NOT NULL,
	amount         BIGINT NOT NULL CHECK (amount > 0),
	phone          TEXT NOT NULL,
	email          TEXT NOT NULL DEFAULT '',
	product_name   TEXT NOT NULL,
	memo           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	last_mul_no    TEXT NOT NULL DEFAULT '',
	last_pay_state TEXT NOT NULL DEFAULT '',
	last_paid_at   TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	type           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	headers        JSONB NOT NULL DEFAULT '{}',
	traceparent    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	relay_id       TEXT,
	lease_until    TIMESTAMPTZ,
	retry_count    INT NOT NULL DEFAULT 0,
	last_error     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, id);
`

// Migrate creates the tables when they are missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
