// internal/workers/loan/credit-check/scorer.go
package creditcheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/common/metrics"
	"loan-workflow/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// CreditScorer obtains a bureau score for the applicant.
type CreditScorer interface {
	Score(ctx context.Context, app *models.LoanApplication) (*models.CreditScore, error)
}

var (
	highIncome = decimal.NewFromInt(100000)
	midIncome  = decimal.NewFromInt(75000)
	lowIncome  = decimal.NewFromInt(40000)
)

// NewScorer builds the bureau scorer described by config: the heuristic score,
// throttled when RateLimit is set and cached in redis when both client and
// CacheTTL are set.
func NewScorer(config *Config, client *redis.Client, log logger.Logger) CreditScorer {
	var scorer CreditScorer = NewHeuristicScorer(config.Bureau)
	if config.RateLimit > 0 {
		scorer = NewRateLimitedScorer(scorer, config.RateLimit, config.RateBurst)
	}
	if client != nil && config.CacheTTL > 0 {
		scorer = NewCachedScorer(scorer, client, config.CacheTTL, log)
	}
	return scorer
}

// HeuristicScorer derives a score from income and debt-to-income. It stands in
// for a bureau integration.
type HeuristicScorer struct {
	Bureau string
	Now    func() time.Time
}

func NewHeuristicScorer(bureau string) *HeuristicScorer {
	return &HeuristicScorer{Bureau: bureau, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *HeuristicScorer) Score(ctx context.Context, app *models.LoanApplication) (*models.CreditScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if app.EmploymentInfo == nil {
		return nil, errors.New("employment information is missing")
	}

	score := baseScore
	income := app.EmploymentInfo.AnnualIncome
	switch {
	case income.GreaterThan(highIncome):
		score += 50
	case income.GreaterThan(midIncome):
		score += 30
	case income.LessThan(lowIncome):
		score -= 40
	}

	dti := app.DebtToIncomeRatio()
	switch {
	case dti < 0.2:
		score += 40
	case dti < 0.3:
		score += 20
	case dti > 0.4:
		score -= 50
	}

	score = max(minScore, min(maxScore, score))

	factors := []string{}
	switch {
	case score < 580:
		factors = append(factors, FactorPaymentHistory, FactorHighUtilization)
	case score < 650:
		factors = append(factors, FactorLimitedHistory)
	}

	return &models.CreditScore{
		Score:        score,
		Bureau:       s.Bureau,
		DateObtained: s.Now(),
		Factors:      factors,
	}, nil
}

// CachedScorer keeps bureau results in redis keyed by a hash of the applicant's
// SSN and the income and debt figures the score is derived from, so an edited
// application is scored again.
type CachedScorer struct {
	next   CreditScorer
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedScorer(next CreditScorer, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedScorer {
	return &CachedScorer{next: next, redis: client, ttl: ttl, logger: log}
}

func (s *CachedScorer) Score(ctx context.Context, app *models.LoanApplication) (*models.CreditScore, error) {
	key := cacheKey(app)

	val, err := s.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cached models.CreditScore
		if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
			metrics.CreditScoreCacheLookups.WithLabelValues("hit").Inc()
			return &cached, nil
		}
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("credit score cache read failed", map[string]interface{}{"error": err.Error()})
	}
	metrics.CreditScoreCacheLookups.WithLabelValues("miss").Inc()

	score, err := s.next.Score(ctx, app)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(score)
	if err != nil {
		return score, nil
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("credit score cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return score, nil
}

func cacheKey(app *models.LoanApplication) string {
	identity := app.ApplicationNumber
	if app.PersonalInfo != nil && app.PersonalInfo.SSN != "" {
		identity = app.PersonalInfo.SSN
	}
	parts := []string{identity}
	if e := app.EmploymentInfo; e != nil {
		parts = append(parts, e.AnnualIncome.String(), e.MonthlyIncome.String())
	}
	if f := app.FinancialInfo; f != nil {
		parts = append(parts, f.MonthlyRentMortgage.String(), f.MonthlyDebtPayments.String())
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// RateLimitedScorer throttles calls to the wrapped scorer.
type RateLimitedScorer struct {
	next    CreditScorer
	limiter *rate.Limiter
}

func NewRateLimitedScorer(next CreditScorer, perSecond float64, burst int) *RateLimitedScorer {
	return &RateLimitedScorer{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (s *RateLimitedScorer) Score(ctx context.Context, app *models.LoanApplication) (*models.CreditScore, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("credit bureau rate limit: %w", err)
	}
	return s.next.Score(ctx, app)
}
