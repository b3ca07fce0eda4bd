package repository

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
)

// Timestamps are unix seconds in both dialects. Money is NUMERIC(10,2).
const postgresSchema = `
CREATE TABLE IF NOT EXISTS provider_bills (
    id TEXT PRIMARY KEY,
    claim_id TEXT,
    uploaded_by TEXT NOT NULL DEFAULT '',
    source_file TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    action TEXT NOT NULL DEFAULT '',
    last_error TEXT,
    patient_name TEXT NOT NULL DEFAULT '',
    patient_dob TEXT NOT NULL DEFAULT '',
    patient_zip TEXT NOT NULL DEFAULT '',
    billing_provider_name TEXT NOT NULL DEFAULT '',
    billing_provider_address TEXT NOT NULL DEFAULT '',
    billing_provider_tin TEXT NOT NULL DEFAULT '',
    billing_provider_npi TEXT NOT NULL DEFAULT '',
    total_charge NUMERIC(10,2),
    patient_account_no TEXT NOT NULL DEFAULT '',
    bill_paid TEXT NOT NULL DEFAULT 'N',
    claim_token TEXT,
    claim_expires_at BIGINT,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS bill_line_items (
    id BIGSERIAL PRIMARY KEY,
    provider_bill_id TEXT NOT NULL REFERENCES provider_bills(id) ON DELETE CASCADE,
    cpt_code TEXT NOT NULL DEFAULT '',
    modifier TEXT NOT NULL DEFAULT '',
    units INTEGER NOT NULL DEFAULT 1,
    charge_amount NUMERIC(10,2),
    allowed_amount NUMERIC(10,2),
    decision TEXT NOT NULL DEFAULT 'pending',
    reason_code TEXT NOT NULL DEFAULT '',
    date_of_service TEXT NOT NULL DEFAULT '',
    place_of_service TEXT NOT NULL DEFAULT '',
    diagnosis_pointer TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS orders (
    order_id TEXT PRIMARY KEY,
    patient_first_name TEXT NOT NULL DEFAULT '',
    patient_last_name TEXT NOT NULL DEFAULT '',
    patient_name TEXT NOT NULL DEFAULT '',
    jurisdiction_state TEXT NOT NULL DEFAULT '',
    provider_id TEXT NOT NULL DEFAULT '',
    fully_paid TEXT NOT NULL DEFAULT 'N',
    bills_paid INTEGER NOT NULL DEFAULT 0,
    bills_rec INTEGER
);

CREATE TABLE IF NOT EXISTS order_line_items (
    id BIGSERIAL PRIMARY KEY,
    order_id TEXT NOT NULL REFERENCES orders(order_id) ON DELETE CASCADE,
    dos TEXT NOT NULL DEFAULT '',
    cpt TEXT NOT NULL DEFAULT '',
    modifier TEXT NOT NULL DEFAULT '',
    units INTEGER NOT NULL DEFAULT 1,
    charge NUMERIC(10,2)
);

CREATE TABLE IF NOT EXISTS extraction_runs (
    id TEXT PRIMARY KEY,
    bill_id TEXT NOT NULL REFERENCES provider_bills(id) ON DELETE CASCADE,
    pass INTEGER NOT NULL,
    strategy TEXT NOT NULL DEFAULT '',
    quality TEXT NOT NULL DEFAULT '',
    contrast DOUBLE PRECISION NOT NULL DEFAULT 0,
    brightness DOUBLE PRECISION NOT NULL DEFAULT 0,
    skew DOUBLE PRECISION NOT NULL DEFAULT 0,
    error_category TEXT,
    status TEXT NOT NULL,
    model TEXT,
    error_message TEXT,
    raw_json TEXT,
    started_at BIGINT NOT NULL,
    finished_at BIGINT
);

CREATE INDEX IF NOT EXISTS idx_provider_bills_status_action ON provider_bills(status, action);
CREATE INDEX IF NOT EXISTS idx_bill_line_items_bill ON bill_line_items(provider_bill_id);
CREATE INDEX IF NOT EXISTS idx_order_line_items_order ON order_line_items(order_id);
CREATE INDEX IF NOT EXISTS idx_order_line_items_dos ON order_line_items(dos);
CREATE INDEX IF NOT EXISTS idx_extraction_runs_bill ON extraction_runs(bill_id);
`

// sqliteSchema mirrors postgresSchema with SQLite column types.
var sqliteSchema = strings.NewReplacer(
	"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT",
	"DOUBLE PRECISION", "REAL",
	"BIGINT", "INTEGER",
).Replace(postgresSchema)

// Migrate creates the schema when missing.
func (db *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if db.dialect == dialect.SQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.drv.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	db.log.Info("schema migrated", "dialect", db.dialect)
	return nil
}
