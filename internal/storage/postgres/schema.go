package postgres

// Schema is applied by EnsureSchema. Amounts use NUMERIC(78,0), wide
// enough for any 256-bit value.
const Schema = `
CREATE TABLE IF NOT EXISTS pools (
	pair              TEXT PRIMARY KEY,
	first_asset       TEXT NOT NULL,
	second_asset      TEXT NOT NULL,
	first_reserve     NUMERIC(78,0) NOT NULL,
	second_reserve    NUMERIC(78,0) NOT NULL,
	invariant         NUMERIC(78,0) NOT NULL,
	total_shares      NUMERIC(78,0) NOT NULL,
	last_update_time  BIGINT NOT NULL,
	price1_cumulative NUMERIC(78,0) NOT NULL,
	price2_cumulative NUMERIC(78,0) NOT NULL,
	version           BIGINT NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE pools ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS pool_shares (
	pair   TEXT NOT NULL REFERENCES pools (pair) ON DELETE CASCADE,
	owner  TEXT NOT NULL,
	shares NUMERIC(78,0) NOT NULL,
	PRIMARY KEY (pair, owner)
);

CREATE TABLE IF NOT EXISTS balances (
	account    TEXT NOT NULL,
	asset      TEXT NOT NULL,
	amount     NUMERIC(78,0) NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (account, asset)
);

CREATE TABLE IF NOT EXISTS pool_events (
	id         BIGSERIAL PRIMARY KEY,
	pair       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	account    TEXT NOT NULL,
	ts         BIGINT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS pool_events_pair_ts ON pool_events (pair, ts);

CREATE TABLE IF NOT EXISTS pool_window_metrics (
	pair                TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts     TIMESTAMPTZ NOT NULL,
	window_end_ts       TIMESTAMPTZ NOT NULL,
	swap_count          BIGINT NOT NULL,
	invest_count        BIGINT NOT NULL,
	divest_count        BIGINT NOT NULL,
	volume_first        NUMERIC NOT NULL,
	volume_second       NUMERIC NOT NULL,
	fee_first           NUMERIC NOT NULL,
	fee_second          NUMERIC NOT NULL,
	treasury_first      NUMERIC NOT NULL,
	treasury_second     NUMERIC NOT NULL,
	reserve_first       NUMERIC NOT NULL,
	reserve_second      NUMERIC NOT NULL,
	fee_rate_first      NUMERIC,
	fee_rate_second     NUMERIC,
	apr                 NUMERIC,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pair, window_size_seconds, window_start_ts)
);

CREATE TABLE IF NOT EXISTS report_state (
	name              TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
