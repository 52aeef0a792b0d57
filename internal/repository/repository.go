// internal/repository/repository.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loan-workflow/internal/common/database"
	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Audit actions recorded in audit_logs.
const (
	AuditApplicationCreated   = "APPLICATION_CREATED"
	AuditApplicationUpdated   = "APPLICATION_UPDATED"
	AuditApplicationSubmitted = "APPLICATION_SUBMITTED"
	AuditApplicationCancelled = "APPLICATION_CANCELLED"
	AuditDocumentAdded        = "DOCUMENT_ADDED"
	AuditWorkflowDispatched   = "WORKFLOW_DISPATCHED"
	AuditWorkflowCompleted    = "WORKFLOW_COMPLETED"
	AuditWorkflowError        = "WORKFLOW_ERROR"
)

const (
	systemActor        = "system"
	uniqueViolation    = "23505"
	defaultListLimit   = 50
	maxListLimit       = 500
	underwriterBacklog = 100
)

// AuditEntry is written in the same transaction as the change it describes.
type AuditEntry struct {
	Action  string
	Actor   string
	Details map[string]interface{}
}

// openStatuses are the statuses still on an underwriter's desk.
var openStatuses = []string{
	string(models.LoanStatusSubmitted),
	string(models.LoanStatusUnderReview),
	string(models.LoanStatusDocumentsRequired),
	string(models.LoanStatusCreditCheck),
	string(models.LoanStatusApproved),
}

// PostgresRepository stores loan applications in PostgreSQL.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a new application with its documents as version 1.
func (r *PostgresRepository) Create(ctx context.Context, app *models.LoanApplication) error {
	if app.Version == 0 {
		app.Version = 1
	}
	payload, err := json.Marshal(app)
	if err != nil {
		return errs.NewDatabaseError("encode application", err)
	}
	cols := projectionOf(app)

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertApplicationQuery,
			app.ID, app.ApplicationNumber, string(app.Status), cols.loanType, cols.requestedAmount,
			cols.applicantEmail, cols.underwriter, app.PriorityLevel, cols.decision,
			cols.approvedAmount, cols.interestRate, app.SubmittedAt, app.DecisionDate,
			app.CreatedAt, app.UpdatedAt, payload, app.Version,
		)
		if isUniqueViolation(err) {
			return errs.NewDuplicateApplicationError(app.ApplicationNumber)
		}
		if err != nil {
			return errs.NewDatabaseError("insert application", err)
		}

		for _, doc := range app.Documents {
			if err := insertDocument(ctx, tx, app.ID, doc); err != nil {
				return err
			}
		}

		return r.insertAudit(ctx, tx, app.ID, AuditEntry{
			Action:  AuditApplicationCreated,
			Details: map[string]interface{}{"applicationNumber": app.ApplicationNumber},
		})
	})
}

// GetByNumber loads an application by its LOAN-YYYYMMDD-XXXXXXXX number.
func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (*models.LoanApplication, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, selectPayloadQuery, number).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NewApplicationNotFoundError(number)
	}
	if err != nil {
		return nil, errs.NewDatabaseError("select application", err)
	}
	return decodeApplication(payload)
}

// Update rewrites the stored application and records audit. app.Version must
// match the stored version; a stale copy fails with CONCURRENT_MODIFICATION.
func (r *PostgresRepository) Update(ctx context.Context, app *models.LoanApplication, audit AuditEntry) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := updateApplication(ctx, tx, app); err != nil {
			return err
		}
		return r.insertAudit(ctx, tx, app.ID, audit)
	})
}

// SaveWorkflowResult stores a processed application together with the
// document verification flags, credit score and risk assessment rows produced
// by the run. Like Update it rejects a stale app.Version.
func (r *PostgresRepository) SaveWorkflowResult(ctx context.Context, app *models.LoanApplication, audit AuditEntry) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := updateApplication(ctx, tx, app); err != nil {
			return err
		}

		for _, doc := range app.Documents {
			if _, err := tx.ExecContext(ctx, updateDocumentVerificationQuery,
				doc.ID, app.ID, doc.Verified, nullString(doc.VerificationNotes)); err != nil {
				return errs.NewDatabaseError("update document verification", err)
			}
		}

		if cs := app.CreditScore; cs != nil {
			_, err := tx.ExecContext(ctx, insertCreditScoreQuery,
				uuid.NewString(), app.ID, cs.Score, cs.Bureau, cs.DateObtained, pq.Array(nonNil(cs.Factors)))
			if err != nil {
				return errs.NewDatabaseError("insert credit score", err)
			}
		}

		if ra := app.RiskAssessment; ra != nil {
			_, err := tx.ExecContext(ctx, insertRiskAssessmentQuery,
				uuid.NewString(), app.ID, ra.DebtToIncomeRatio, ra.CreditUtilizationRatio,
				ra.PaymentHistoryScore, ra.EmploymentStabilityScore, ra.OverallRiskScore,
				string(ra.RiskLevel), pq.Array(nonNil(ra.RiskFactors)), r.now())
			if err != nil {
				return errs.NewDatabaseError("insert risk assessment", err)
			}
		}

		return r.insertAudit(ctx, tx, app.ID, audit)
	})
}

// AddDocument appends doc to the stored application under a row lock and
// returns the updated application.
func (r *PostgresRepository) AddDocument(ctx context.Context, number string, doc models.Document) (*models.LoanApplication, error) {
	var app *models.LoanApplication

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var payload []byte
		err := tx.QueryRowContext(ctx, selectPayloadForUpdateQuery, number).Scan(&payload)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NewApplicationNotFoundError(number)
		}
		if err != nil {
			return errs.NewDatabaseError("lock application", err)
		}

		app, err = decodeApplication(payload)
		if err != nil {
			return err
		}
		app.Documents = append(app.Documents, doc)
		app.UpdatedAt = r.now()

		if err := updateApplication(ctx, tx, app); err != nil {
			return err
		}
		if err := insertDocument(ctx, tx, app.ID, doc); err != nil {
			return err
		}
		return r.insertAudit(ctx, tx, app.ID, AuditEntry{
			Action: AuditDocumentAdded,
			Details: map[string]interface{}{
				"documentId":   doc.ID,
				"documentType": string(doc.DocumentType),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// ListByStatus returns applications in status, highest priority first, then oldest first.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status models.LoanStatus, limit, offset int) ([]models.ApplicationSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, listByStatusQuery, string(status), limit, offset)
	if err != nil {
		return nil, errs.NewDatabaseError("list applications by status", err)
	}
	return scanSummaries(rows)
}

// ListForUnderwriter returns the open applications assigned to underwriter.
func (r *PostgresRepository) ListForUnderwriter(ctx context.Context, underwriter string) ([]models.ApplicationSummary, error) {
	rows, err := r.db.QueryContext(ctx, listForUnderwriterQuery, underwriter, pq.Array(openStatuses), underwriterBacklog)
	if err != nil {
		return nil, errs.NewDatabaseError("list applications for underwriter", err)
	}
	return scanSummaries(rows)
}

// Statistics counts applications per status and type, and those created since.
func (r *PostgresRepository) Statistics(ctx context.Context, since time.Time) (*models.ApplicationStatistics, error) {
	stats := &models.ApplicationStatistics{
		ByStatus:    make(map[models.LoanStatus]int),
		ByType:      make(map[models.LoanType]int),
		GeneratedAt: r.now(),
	}

	if err := r.countGrouped(ctx, countByStatusQuery, func(key string, n int) {
		stats.ByStatus[models.LoanStatus(key)] = n
	}); err != nil {
		return nil, err
	}
	if err := r.countGrouped(ctx, countByTypeQuery, func(key string, n int) {
		stats.ByType[models.LoanType(key)] = n
	}); err != nil {
		return nil, err
	}

	if err := r.db.QueryRowContext(ctx, countRecentQuery, since).Scan(&stats.RecentApplications); err != nil {
		return nil, errs.NewDatabaseError("count recent applications", err)
	}
	return stats, nil
}

func (r *PostgresRepository) countGrouped(ctx context.Context, query string, put func(key string, n int)) error {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return errs.NewDatabaseError("count applications", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return errs.NewDatabaseError("scan application counts", err)
		}
		put(key, n)
	}
	if err := rows.Err(); err != nil {
		return errs.NewDatabaseError("iterate application counts", err)
	}
	return nil
}

func (r *PostgresRepository) insertAudit(ctx context.Context, tx *sql.Tx, applicationID string, entry AuditEntry) error {
	actor := entry.Actor
	if actor == "" {
		actor = systemActor
	}
	details := entry.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return errs.NewDatabaseError("encode audit details", err)
	}

	if _, err := tx.ExecContext(ctx, insertAuditQuery,
		uuid.NewString(), applicationID, entry.Action, actor, detailsJSON, r.now()); err != nil {
		return errs.NewDatabaseError("insert audit log", err)
	}
	return nil
}

// updateApplication writes app as version app.Version+1 when the stored row is
// still at app.Version. app.Version is only advanced when the write succeeds.
func updateApplication(ctx context.Context, tx *sql.Tx, app *models.LoanApplication) error {
	expected := app.Version
	app.Version = expected + 1
	payload, err := json.Marshal(app)
	if err != nil {
		app.Version = expected
		return errs.NewDatabaseError("encode application", err)
	}
	cols := projectionOf(app)

	res, err := tx.ExecContext(ctx, updateApplicationQuery,
		app.ApplicationNumber, string(app.Status), cols.loanType, cols.requestedAmount,
		cols.applicantEmail, cols.underwriter, app.PriorityLevel, cols.decision,
		cols.approvedAmount, cols.interestRate, app.SubmittedAt, app.DecisionDate,
		app.UpdatedAt, payload, app.Version, expected,
	)
	if err != nil {
		app.Version = expected
		return errs.NewDatabaseError("update application", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		app.Version = expected
		return staleOrMissing(ctx, tx, app.ApplicationNumber, expected)
	}
	return nil
}

func staleOrMissing(ctx context.Context, tx *sql.Tx, number string, expected int) error {
	var stored int
	err := tx.QueryRowContext(ctx, selectVersionQuery, number).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NewApplicationNotFoundError(number)
	}
	if err != nil {
		return errs.NewDatabaseError("select application version", err)
	}
	return errs.NewConcurrentModificationError(number, expected).WithMetadata("storedVersion", stored)
}

func insertDocument(ctx context.Context, tx *sql.Tx, applicationID string, doc models.Document) error {
	_, err := tx.ExecContext(ctx, insertDocumentQuery,
		doc.ID, applicationID, string(doc.DocumentType), doc.FileName, doc.FilePath,
		doc.FileSize, doc.MimeType, doc.UploadedAt, doc.Verified, nullString(doc.VerificationNotes))
	if err != nil {
		return errs.NewDatabaseError("insert document", err)
	}
	return nil
}

func scanSummaries(rows *sql.Rows) ([]models.ApplicationSummary, error) {
	defer rows.Close()

	summaries := []models.ApplicationSummary{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errs.NewDatabaseError("scan application", err)
		}
		app, err := decodeApplication(payload)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, app.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDatabaseError("iterate applications", err)
	}
	return summaries, nil
}

func decodeApplication(payload []byte) (*models.LoanApplication, error) {
	var app models.LoanApplication
	if err := json.Unmarshal(payload, &app); err != nil {
		return nil, errs.NewDatabaseError("decode application", fmt.Errorf("payload: %w", err))
	}
	return &app, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// projection holds the nullable indexed columns derived from the aggregate.
type projection struct {
	loanType        sql.NullString
	requestedAmount sql.NullString
	applicantEmail  sql.NullString
	underwriter     sql.NullString
	decision        sql.NullString
	approvedAmount  sql.NullString
	interestRate    sql.NullFloat64
}

func projectionOf(app *models.LoanApplication) projection {
	var p projection
	if app.LoanDetails != nil {
		p.loanType = sql.NullString{String: string(app.LoanDetails.LoanType), Valid: true}
		p.requestedAmount = sql.NullString{String: app.LoanDetails.RequestedAmount.StringFixed(2), Valid: true}
	}
	if app.PersonalInfo != nil && app.PersonalInfo.Email != "" {
		p.applicantEmail = sql.NullString{String: app.PersonalInfo.Email, Valid: true}
	}
	if app.AssignedUnderwriter != nil {
		p.underwriter = sql.NullString{String: *app.AssignedUnderwriter, Valid: true}
	}
	if d := app.Decision; d != nil {
		p.decision = sql.NullString{String: string(d.Decision), Valid: true}
		if d.ApprovedAmount != nil {
			p.approvedAmount = sql.NullString{String: d.ApprovedAmount.StringFixed(2), Valid: true}
		}
		if d.InterestRate != nil {
			p.interestRate = sql.NullFloat64{Float64: *d.InterestRate, Valid: true}
		}
	}
	return p
}
