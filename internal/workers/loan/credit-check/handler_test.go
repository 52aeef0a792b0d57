package creditcheck

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var testNow = time.Date(2025, time.March, 14, 10, 30, 0, 0, time.UTC)

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger { return tl }

func (tl *testLogger) WithError(err error) logger.Logger { return tl }

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger { return tl }

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

func fixedScorer() *HeuristicScorer {
	return &HeuristicScorer{Bureau: "Experian", Now: func() time.Time { return testNow }}
}

// withProfile sets annual income, monthly income and the two monthly debt fields.
func withProfile(annual, monthly, rent, debt string) func(app *models.LoanApplication) {
	return func(app *models.LoanApplication) {
		app.EmploymentInfo.AnnualIncome = decimal.RequireFromString(annual)
		app.EmploymentInfo.MonthlyIncome = decimal.RequireFromString(monthly)
		app.FinancialInfo.MonthlyRentMortgage = decimal.RequireFromString(rent)
		app.FinancialInfo.MonthlyDebtPayments = decimal.RequireFromString(debt)
	}
}

type scorerFunc func(ctx context.Context, app *models.LoanApplication) (*models.CreditScore, error)

func (f scorerFunc) Score(ctx context.Context, app *models.LoanApplication) (*models.CreditScore, error) {
	return f(ctx, app)
}

// ==========================
// HeuristicScorer
// ==========================

func TestHeuristicScorer_Score(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(app *models.LoanApplication)
		wantScore int
		wantFacts []string
	}{
		{
			name:      "reference applicant",
			wantScore: 700,
			wantFacts: []string{},
		},
		{
			name:      "high income and low dti",
			mutate:    withProfile("120000", "10000", "1200", "300"),
			wantScore: 740,
			wantFacts: []string{},
		},
		{
			name:      "low income and high dti",
			mutate:    withProfile("35000", "2916.67", "1000", "300"),
			wantScore: 560,
			wantFacts: []string{FactorPaymentHistory, FactorHighUtilization},
		},
		{
			name:      "middle band without adjustments",
			mutate:    withProfile("50000", "4166.67", "1200", "300"),
			wantScore: 650,
			wantFacts: []string{},
		},
		{
			name:      "limited history band",
			mutate:    withProfile("50000", "4166.67", "1500", "300"),
			wantScore: 600,
			wantFacts: []string{FactorLimitedHistory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := models.SampleApplication(testNow)
			if tt.mutate != nil {
				tt.mutate(app)
			}

			score, err := fixedScorer().Score(context.Background(), app)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, score.Score)
			assert.Equal(t, tt.wantFacts, score.Factors)
			assert.Equal(t, "Experian", score.Bureau)
			assert.Equal(t, testNow, score.DateObtained)
		})
	}
}

func TestHeuristicScorer_StaysInRange(t *testing.T) {
	for _, annual := range []int64{0, 10000, 39999, 40000, 75001, 100001, 5000000} {
		for _, debt := range []int64{0, 500, 2000, 8000} {
			app := models.SampleApplication(testNow)
			app.EmploymentInfo.AnnualIncome = decimal.NewFromInt(annual)
			app.EmploymentInfo.MonthlyIncome = decimal.NewFromInt(annual).Div(decimal.NewFromInt(12))
			app.FinancialInfo.MonthlyDebtPayments = decimal.NewFromInt(debt)

			score, err := fixedScorer().Score(context.Background(), app)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score.Score, 300)
			assert.LessOrEqual(t, score.Score, 850)
		}
	}
}

// ==========================
// Execute
// ==========================

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(LoadConfig(), fixedScorer(), newTestLogger(t))
	state := workflow.NewState(models.SampleApplication(testNow), testNow)

	out, err := h.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, workflow.ActionRiskAssessment, out.Next)
	assert.True(t, out.Completed)
	assert.Equal(t, models.LoanStatusCreditCheck, out.Application.Status)
	require.NotNil(t, out.Application.CreditScore)
	assert.Equal(t, 700, out.Application.CreditScore.Score)
	assert.Equal(t, 700, *out.Results.CreditScore)
	assert.Equal(t, []string{
		"Initiating credit check...",
		"Credit check completed. Score: 700 (Bureau: Experian)",
	}, out.Messages)
	assert.Nil(t, state.Application.CreditScore)
}

func TestHandler_ExecuteOverwritesPreviousScore(t *testing.T) {
	h := NewHandler(LoadConfig(), fixedScorer(), newTestLogger(t))
	app := models.SampleApplication(testNow)
	app.CreditScore = &models.CreditScore{Score: 512, Bureau: "Equifax"}

	out, err := h.Execute(context.Background(), workflow.NewState(app, testNow))
	require.NoError(t, err)
	assert.Equal(t, 700, out.Application.CreditScore.Score)
	assert.Equal(t, "Experian", out.Application.CreditScore.Bureau)
}

func TestHandler_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name     string
		scorer   CreditScorer
		wantCode errs.ErrorCode
	}{
		{
			name: "bureau failure",
			scorer: scorerFunc(func(context.Context, *models.LoanApplication) (*models.CreditScore, error) {
				return nil, errors.New("bureau unavailable")
			}),
			wantCode: errs.ErrCodeCreditCheckFailed,
		},
		{
			name: "bureau timeout",
			scorer: scorerFunc(func(ctx context.Context, _ *models.LoanApplication) (*models.CreditScore, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			wantCode: errs.ErrCodeCreditCheckTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			cfg.ScoreTimeout = 20 * time.Millisecond
			h := NewHandler(cfg, tt.scorer, newTestLogger(t))

			out, err := h.Execute(context.Background(), workflow.NewState(models.SampleApplication(testNow), testNow))
			require.Error(t, err)
			assert.Nil(t, out)

			stdErr, ok := errs.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, stdErr.Code)
			assert.True(t, stdErr.Retryable)
		})
	}
}

// ==========================
// CachedScorer
// ==========================

func TestCachedScorer_MissThenStore(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	app := models.SampleApplication(testNow)
	key := cacheKey(app)

	expected, err := fixedScorer().Score(context.Background(), app)
	require.NoError(t, err)
	data, err := json.Marshal(expected)
	require.NoError(t, err)

	redisMock.ExpectGet(key).RedisNil()
	redisMock.ExpectSet(key, data, time.Hour).SetVal("OK")

	scorer := NewCachedScorer(fixedScorer(), redisClient, time.Hour, newTestLogger(t))
	score, err := scorer.Score(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, 700, score.Score)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCachedScorer_Hit(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	app := models.SampleApplication(testNow)

	cached := models.CreditScore{Score: 781, Bureau: "Experian", DateObtained: testNow, Factors: []string{}}
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	redisMock.ExpectGet(cacheKey(app)).SetVal(string(data))

	next := scorerFunc(func(context.Context, *models.LoanApplication) (*models.CreditScore, error) {
		return nil, errors.New("bureau must not be called on a cache hit")
	})
	score, err := NewCachedScorer(next, redisClient, time.Hour, newTestLogger(t)).Score(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, 781, score.Score)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestCachedScorer_CacheErrorsDoNotFailTheCheck(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	app := models.SampleApplication(testNow)
	key := cacheKey(app)

	expected, err := fixedScorer().Score(context.Background(), app)
	require.NoError(t, err)
	data, err := json.Marshal(expected)
	require.NoError(t, err)

	redisMock.ExpectGet(key).SetErr(errors.New("connection reset"))
	redisMock.ExpectSet(key, data, time.Hour).SetErr(errors.New("connection reset"))

	score, err := NewCachedScorer(fixedScorer(), redisClient, time.Hour, newTestLogger(t)).Score(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, 700, score.Score)
}

func TestCacheKeyHidesSSN(t *testing.T) {
	app := models.SampleApplication(testNow)
	key := cacheKey(app)

	assert.NotContains(t, key, app.PersonalInfo.SSN)
	assert.Len(t, key, len(cacheKeyPrefix)+64)

	app.PersonalInfo = nil
	fallback := cacheKey(app)
	assert.NotEqual(t, key, fallback)
	assert.Len(t, fallback, len(cacheKeyPrefix)+64)
}

func TestCacheKeyFollowsScoringInputs(t *testing.T) {
	base := models.SampleApplication(testNow)
	key := cacheKey(base)

	tests := []struct {
		name   string
		modify func(app *models.LoanApplication)
	}{
		{"annual income", func(app *models.LoanApplication) {
			app.EmploymentInfo.AnnualIncome = decimal.NewFromInt(35000)
		}},
		{"monthly income", func(app *models.LoanApplication) {
			app.EmploymentInfo.MonthlyIncome = decimal.RequireFromString("2916.67")
		}},
		{"housing", func(app *models.LoanApplication) {
			app.FinancialInfo.MonthlyRentMortgage = decimal.NewFromInt(2400)
		}},
		{"debt payments", func(app *models.LoanApplication) {
			app.FinancialInfo.MonthlyDebtPayments = decimal.NewFromInt(1200)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := base.Clone()
			tt.modify(app)
			assert.NotEqual(t, key, cacheKey(app))
		})
	}

	t.Run("unrelated fields", func(t *testing.T) {
		app := base.Clone()
		app.PriorityLevel = 5
		app.AddNote("called applicant")
		assert.Equal(t, key, cacheKey(app))
	})
}

func TestCachedScorer_EditedApplicationIsScoredAgain(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	scorer := NewCachedScorer(fixedScorer(), redisClient, time.Hour, newTestLogger(t))
	app := models.SampleApplication(testNow)

	first, err := scorer.Score(context.Background(), app)
	require.NoError(t, err)

	edited := app.Clone()
	withProfile("35000", "2916.67", "1500", "900")(edited)
	want, err := fixedScorer().Score(context.Background(), edited)
	require.NoError(t, err)
	require.NotEqual(t, first.Score, want.Score)

	got, err := scorer.Score(context.Background(), edited)
	require.NoError(t, err)
	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.Factors, got.Factors)

	again, err := scorer.Score(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, first.Score, again.Score)
	assert.Len(t, mr.Keys(), 2)
}

func TestNewScorer(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	tests := []struct {
		name     string
		mutate   func(cfg *Config)
		client   *redis.Client
		expected CreditScorer
	}{
		{"cached", nil, redisClient, &CachedScorer{}},
		{"no redis", nil, nil, &RateLimitedScorer{}},
		{"cache disabled", func(cfg *Config) { cfg.CacheTTL = 0 }, redisClient, &RateLimitedScorer{}},
		{"bare heuristic", func(cfg *Config) { cfg.CacheTTL = 0; cfg.RateLimit = 0 }, redisClient, &HeuristicScorer{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			assert.IsType(t, tt.expected, NewScorer(cfg, tt.client, newTestLogger(t)))
		})
	}
}

// ==========================
// RateLimitedScorer
// ==========================

func TestRateLimitedScorer(t *testing.T) {
	scorer := NewRateLimitedScorer(fixedScorer(), 0.001, 1)
	app := models.SampleApplication(testNow)

	_, err := scorer.Score(context.Background(), app)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = scorer.Score(ctx, app)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credit bureau rate limit")
}
