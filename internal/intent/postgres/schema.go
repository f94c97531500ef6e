package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transaction_queue (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	player_sui_address TEXT,
	game_id TEXT,
	player_id TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	payload JSONB NOT NULL,
	error TEXT,
	retries INTEGER NOT NULL DEFAULT 0,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ,

	CONSTRAINT transaction_queue_kind CHECK (kind IN ('create_game','make_move','end_game','mint_badge')),
	CONSTRAINT transaction_queue_status CHECK (status IN ('pending','processing','completed','failed','waiting_for_object_id')),
	CONSTRAINT transaction_queue_retries_nonneg CHECK (retries >= 0)
);

CREATE INDEX IF NOT EXISTS transaction_queue_claim_idx ON transaction_queue (status, player_sui_address, created_at);
CREATE INDEX IF NOT EXISTS transaction_queue_status_idx ON transaction_queue (status);
CREATE INDEX IF NOT EXISTS transaction_queue_actor_idx ON transaction_queue (player_sui_address);
CREATE INDEX IF NOT EXISTS transaction_queue_created_at_idx ON transaction_queue (created_at);
`
