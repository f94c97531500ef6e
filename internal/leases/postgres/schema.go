package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS maintenance_leases (
	name TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT maintenance_leases_owner_nonempty CHECK (owner <> '')
);

CREATE INDEX IF NOT EXISTS maintenance_leases_expires_at_idx ON maintenance_leases (expires_at);
`
