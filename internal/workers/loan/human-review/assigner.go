// internal/workers/loan/human-review/assigner.go
package humanreview

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"loan-workflow/internal/models"

	"github.com/lib/pq"
)

// UnderwriterAssigner picks the underwriter who reviews an application.
type UnderwriterAssigner interface {
	Assign(ctx context.Context, app *models.LoanApplication) (string, error)
}

// StaticAssigner always returns the same underwriter.
type StaticAssigner struct {
	Name string
}

func (a StaticAssigner) Assign(context.Context, *models.LoanApplication) (string, error) {
	return a.Name, nil
}

const leastLoadedQuery = `
SELECT u.name
FROM underwriters u
LEFT JOIN loan_applications a
  ON a.assigned_underwriter = u.name
 AND a.status = ANY($3)
WHERE u.is_active = TRUE
  AND u.approval_limit >= $1
  AND $2 = ANY(u.loan_types)
GROUP BY u.id, u.name
ORDER BY COUNT(a.id) ASC, u.name ASC
LIMIT 1`

// PostgresAssigner picks the active underwriter with the fewest open
// applications whose approval limit and loan types cover the application.
type PostgresAssigner struct {
	db       *sql.DB
	fallback string
}

func NewPostgresAssigner(db *sql.DB, fallback string) *PostgresAssigner {
	return &PostgresAssigner{db: db, fallback: fallback}
}

func (a *PostgresAssigner) Assign(ctx context.Context, app *models.LoanApplication) (string, error) {
	if app.LoanDetails == nil {
		return a.fallback, nil
	}

	var name string
	err := a.db.QueryRowContext(ctx, leastLoadedQuery,
		app.LoanDetails.RequestedAmount.String(),
		string(app.LoanDetails.LoanType),
		pq.Array(openStatuses),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return a.fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("select underwriter: %w", err)
	}
	return name, nil
}
