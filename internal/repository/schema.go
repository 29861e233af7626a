package repository

// Schema definitions for the contas database.
// Compatible with both SQLite and PostgreSQL.

const schemaBills = `
CREATE TABLE IF NOT EXISTS bills (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    is_preview INTEGER NOT NULL DEFAULT 0,
    has_installments INTEGER NOT NULL DEFAULT 0,
    installment_count INTEGER NOT NULL DEFAULT 1,
    per_installment_amount BIGINT NOT NULL DEFAULT 0,
    total_amount BIGINT NOT NULL DEFAULT 0,
    start_date TEXT NOT NULL,
    due_day INTEGER NOT NULL,
    credit_limit BIGINT NOT NULL DEFAULT 0,
    closing_date INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_bills_type ON bills(tenant_id, type);
`

// schemaMonthlyFigures holds one balance row per tenant and calendar month.
const schemaMonthlyFigures = `
CREATE TABLE IF NOT EXISTS monthly_figures (
    tenant_id TEXT NOT NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    income BIGINT NOT NULL,
    expenses BIGINT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, year, month)
);
`

const schemaInsightRules = `
CREATE TABLE IF NOT EXISTS insight_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_insight_rules_enabled ON insight_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaBills,
		schemaMonthlyFigures,
		schemaInsightRules,
	}
}
