package repository

// Schema definitions for the ClaimWatch database.
// Compatible with both SQLite and PostgreSQL.

const schemaCompanies = `
CREATE TABLE IF NOT EXISTS companies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    license_number TEXT NOT NULL UNIQUE,
    contact_email TEXT NOT NULL DEFAULT '',
    contact_phone TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL
);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    company_id TEXT REFERENCES companies(id),
    is_active INTEGER NOT NULL DEFAULT 1,
    two_factor_enabled INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_users_company ON users(company_id);
`

const schemaClaims = `
CREATE TABLE IF NOT EXISTS insurance_claims (
    id TEXT PRIMARY KEY,
    claim_number TEXT NOT NULL UNIQUE,
    policy_number TEXT NOT NULL,
    claimant_name TEXT NOT NULL,
    claimant_email TEXT NOT NULL DEFAULT '',
    claimant_phone TEXT NOT NULL DEFAULT '',
    incident_date TEXT NOT NULL,
    reported_date TEXT NOT NULL,
    claim_type TEXT NOT NULL,
    status TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    estimated_amount NUMERIC(14,2) NOT NULL,
    approved_amount NUMERIC(14,2),
    assigned_to TEXT NOT NULL DEFAULT '',
    company_id TEXT NOT NULL REFERENCES companies(id),
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_company ON insurance_claims(company_id);
CREATE INDEX IF NOT EXISTS idx_claims_claimant ON insurance_claims(claimant_name, incident_date);
CREATE INDEX IF NOT EXISTS idx_claims_email ON insurance_claims(claimant_email, created_at);
CREATE INDEX IF NOT EXISTS idx_claims_created ON insurance_claims(created_at);
`

const schemaFraudFlags = `
CREATE TABLE IF NOT EXISTS fraud_flags (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL REFERENCES insurance_claims(id) ON DELETE CASCADE,
    flag_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    description TEXT NOT NULL,
    confidence REAL NOT NULL,
    metadata TEXT,
    flagged_by TEXT NOT NULL,
    flagged_at TIMESTAMP NOT NULL,
    reviewed INTEGER NOT NULL DEFAULT 0,
    reviewed_by TEXT NOT NULL DEFAULT '',
    reviewed_at TIMESTAMP,
    notes TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_fraud_flags_claim ON fraud_flags(claim_id);
CREATE INDEX IF NOT EXISTS idx_fraud_flags_review ON fraud_flags(reviewed, severity);
`

const schemaAuditLogs = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    user_name TEXT NOT NULL,
    action TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    resource_id TEXT NOT NULL DEFAULT '',
    details TEXT,
    ip_address TEXT NOT NULL,
    user_agent TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
`

// AllSchemas returns all schema statements in dependency order.
func AllSchemas() []string {
	return []string{
		schemaCompanies,
		schemaUsers,
		schemaClaims,
		schemaFraudFlags,
		schemaAuditLogs,
	}
}
