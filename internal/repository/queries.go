// internal/repository/queries.go
package repository

const (
	insertApplicationQuery = `
		INSERT INTO loan_applications (
			id, application_number, status, loan_type, requested_amount, applicant_email,
			assigned_underwriter, priority_level, decision, approved_amount, interest_rate,
			submitted_at, decision_date, created_at, updated_at, payload, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	updateApplicationQuery = `
		UPDATE loan_applications SET
			status = $2, loan_type = $3, requested_amount = $4, applicant_email = $5,
			assigned_underwriter = $6, priority_level = $7, decision = $8, approved_amount = $9,
			interest_rate = $10, submitted_at = $11, decision_date = $12, updated_at = $13, payload = $14,
			version = $15
		WHERE application_number = $1 AND version = $16`

	selectVersionQuery = `SELECT version FROM loan_applications WHERE application_number = $1`

	selectPayloadQuery = `SELECT payload FROM loan_applications WHERE application_number = $1`

	selectPayloadForUpdateQuery = `SELECT payload FROM loan_applications WHERE application_number = $1 FOR UPDATE`

	listByStatusQuery = `
		SELECT payload FROM loan_applications
		WHERE status = $1
		ORDER BY priority_level DESC, created_at ASC
		LIMIT $2 OFFSET $3`

	listForUnderwriterQuery = `
		SELECT payload FROM loan_applications
		WHERE assigned_underwriter = $1 AND status = ANY($2)
		ORDER BY priority_level DESC, created_at ASC
		LIMIT $3`

	insertDocumentQuery = `
		INSERT INTO documents (
			id, application_id, document_type, file_name, file_path, file_size, mime_type, uploaded_at,
			verified, verification_notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateDocumentVerificationQuery = `
		UPDATE documents SET verified = $3, verification_notes = $4
		WHERE id = $1 AND application_id = $2`

	insertCreditScoreQuery = `
		INSERT INTO credit_scores (id, application_id, score, bureau, date_obtained, factors)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertRiskAssessmentQuery = `
		INSERT INTO risk_assessments (
			id, application_id, debt_to_income_ratio, credit_utilization_ratio, payment_history_score,
			employment_stability_score, overall_risk_score, risk_level, risk_factors, assessed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertAuditQuery = `
		INSERT INTO audit_logs (id, application_id, action, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	countByStatusQuery = `SELECT status, COUNT(*) FROM loan_applications GROUP BY status`

	countByTypeQuery = `SELECT loan_type, COUNT(*) FROM loan_applications WHERE loan_type IS NOT NULL GROUP BY loan_type`

	countRecentQuery = `SELECT COUNT(*) FROM loan_applications WHERE created_at >= $1`
)
