package repository

// Schema definitions for the Kestrel policy store.
// Compatible with both SQLite and PostgreSQL.

const schemaPolicies = `
CREATE TABLE IF NOT EXISTS policies (
    id TEXT PRIMARY KEY,
    payment_status TEXT NOT NULL,
    expiry_date TIMESTAMP NOT NULL,
    last_payment_date TIMESTAMP NOT NULL,
    restrictions TEXT NOT NULL DEFAULT '[]',
    coverage_limit TEXT NOT NULL DEFAULT '0',
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policies_payment_status ON policies(payment_status);
CREATE INDEX IF NOT EXISTS idx_policies_expiry ON policies(expiry_date);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPolicies,
	}
}
