// internal/repository/schema.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the loan tables when they do not exist yet. The full
// aggregate lives in loan_applications.payload; the other columns are indexed
// projections of it.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS loan_applications (
		id                   UUID PRIMARY KEY,
		application_number   VARCHAR(32) NOT NULL UNIQUE,
		status               VARCHAR(32) NOT NULL,
		loan_type            VARCHAR(32),
		requested_amount     NUMERIC(12,2),
		applicant_email      VARCHAR(255),
		assigned_underwriter VARCHAR(255),
		priority_level       INTEGER NOT NULL DEFAULT 1,
		decision             VARCHAR(16),
		approved_amount      NUMERIC(12,2),
		interest_rate        NUMERIC(7,4),
		submitted_at         TIMESTAMPTZ,
		decision_date        TIMESTAMPTZ,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL,
		payload              JSONB NOT NULL,
		version              INTEGER NOT NULL DEFAULT 0
	)`,
	`ALTER TABLE loan_applications ADD COLUMN IF NOT EXISTS version INTEGER NOT NULL DEFAULT 0`,
	`CREATE INDEX IF NOT EXISTS idx_loan_applications_status ON loan_applications (status, priority_level DESC, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_loan_applications_underwriter ON loan_applications (assigned_underwriter)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id             UUID PRIMARY KEY,
		application_id UUID NOT NULL REFERENCES loan_applications (id) ON DELETE CASCADE,
		document_type  VARCHAR(32) NOT NULL,
		file_name      VARCHAR(255) NOT NULL,
		file_path      TEXT,
		file_size      BIGINT NOT NULL DEFAULT 0,
		mime_type      VARCHAR(100) NOT NULL,
		uploaded_at    TIMESTAMPTZ NOT NULL,
		verified           BOOLEAN NOT NULL DEFAULT FALSE,
		verification_notes TEXT
	)`,
	`ALTER TABLE documents ADD COLUMN IF NOT EXISTS verified BOOLEAN NOT NULL DEFAULT FALSE`,
	`ALTER TABLE documents ADD COLUMN IF NOT EXISTS verification_notes TEXT`,
	`CREATE TABLE IF NOT EXISTS credit_scores (
		id             UUID PRIMARY KEY,
		application_id UUID NOT NULL REFERENCES loan_applications (id) ON DELETE CASCADE,
		score          INTEGER NOT NULL CHECK (score BETWEEN 300 AND 850),
		bureau         VARCHAR(64) NOT NULL,
		date_obtained  TIMESTAMPTZ NOT NULL,
		factors        TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS risk_assessments (
		id                         UUID PRIMARY KEY,
		application_id             UUID NOT NULL REFERENCES loan_applications (id) ON DELETE CASCADE,
		debt_to_income_ratio       NUMERIC(8,4) NOT NULL,
		credit_utilization_ratio   NUMERIC(8,4) NOT NULL,
		payment_history_score      INTEGER NOT NULL,
		employment_stability_score INTEGER NOT NULL,
		overall_risk_score         INTEGER NOT NULL,
		risk_level                 VARCHAR(16) NOT NULL,
		risk_factors               TEXT[] NOT NULL DEFAULT '{}',
		assessed_at                TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id             UUID PRIMARY KEY,
		application_id UUID NOT NULL,
		action         VARCHAR(64) NOT NULL,
		actor          VARCHAR(255) NOT NULL,
		details        JSONB NOT NULL DEFAULT '{}',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_application ON audit_logs (application_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS underwriters (
		id             UUID PRIMARY KEY,
		name           VARCHAR(255) NOT NULL UNIQUE,
		email          VARCHAR(255),
		approval_limit NUMERIC(12,2) NOT NULL,
		loan_types     TEXT[] NOT NULL,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE
	)`,
}

// EnsureSchema creates the loan tables and indexes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
