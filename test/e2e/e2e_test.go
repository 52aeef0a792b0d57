// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-workflow/internal/common/camunda"
	"loan-workflow/internal/common/config"
	"loan-workflow/internal/common/database"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/pipeline"
	"loan-workflow/internal/repository"
	"loan-workflow/internal/search"
	"loan-workflow/internal/service"
	"loan-workflow/internal/workflow"
)

// The suite talks to real services. Set E2E_ENABLED=true with postgres and
// redis reachable (see configs/config.yaml); elasticsearch and zeebe tests run
// when those are configured too.
func requireE2E(t *testing.T) *config.Config {
	t.Helper()
	if os.Getenv("E2E_ENABLED") != "true" {
		t.Skip("E2E_ENABLED is not set")
	}
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

type env struct {
	cfg     *config.Config
	pg      *database.PostgresClient
	redis   *database.RedisClient
	service *service.LoanService
	repo    *repository.PostgresRepository
	indexer *search.TranscriptIndexer
}

func setup(t *testing.T) *env {
	cfg := requireE2E(t)
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	if err := pg.Ping(ctx); err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Close() })
	require.NoError(t, repository.EnsureSchema(ctx, pg.DB))

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	if err := rdb.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	p, err := pipeline.New(pipeline.DefaultConfig(), pipeline.Collaborators{}, log, nil)
	require.NoError(t, err)

	repo := repository.NewPostgresRepository(pg.DB)
	deps := service.Dependencies{
		Repository: repo,
		Runner:     p,
		Numbers:    service.NewNumberGenerator(rdb.Client, time.Hour, log),
	}

	e := &env{cfg: cfg, pg: pg, redis: rdb, repo: repo}
	if cfg.Database.Elasticsearch.Enabled() {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		require.NoError(t, err)
		if es.Ping(ctx) == nil {
			e.indexer = search.NewTranscriptIndexer(es.Client, cfg.Database.Elasticsearch.TranscriptIndex+"-e2e", log)
			require.NoError(t, e.indexer.EnsureIndex(ctx))
			deps.Index = e.indexer
		}
	}

	e.service = service.New(service.Config{ProcessID: cfg.Camunda.ProcessID}, deps, log)
	return e
}

func samplePayload(t *testing.T) []byte {
	t.Helper()
	app := models.SampleApplication(time.Now().UTC())
	app.EmploymentInfo.MonthlyIncome = decimal.RequireFromString("6666.67")

	req := service.ApplicationRequest{
		PersonalInfo:   app.PersonalInfo,
		EmploymentInfo: app.EmploymentInfo,
		FinancialInfo:  app.FinancialInfo,
		LoanDetails:    app.LoanDetails,
	}
	for _, d := range app.Documents {
		req.Documents = append(req.Documents, service.DocumentRequest{
			DocumentType: d.DocumentType, FileName: d.FileName, FileSize: d.FileSize, MimeType: d.MimeType,
		})
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

// ==========================
// Application lifecycle
// ==========================

func TestE2E_ApplicationLifecycle(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	created, err := e.service.Create(ctx, samplePayload(t))
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusDraft, created.Status)
	assert.True(t, models.IsApplicationNumber(created.ApplicationNumber))

	_, err = e.service.Process(ctx, created.ApplicationNumber)
	require.Error(t, err, "drafts are not processed")

	_, err = e.service.Submit(ctx, created.ApplicationNumber, "e2e")
	require.NoError(t, err)

	result, err := e.service.Process(ctx, created.ApplicationNumber)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, result.Application.Status)

	stored, err := e.service.Get(ctx, created.ApplicationNumber)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, stored.Status)
	require.NotNil(t, stored.Decision)
	assert.Equal(t, models.DecisionApproved, stored.Decision.Decision)
	for _, d := range stored.Documents {
		assert.True(t, d.Verified)
	}

	progress, err := e.service.WorkflowState(ctx, created.ApplicationNumber)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, progress.Status)
	assert.NotEmpty(t, progress.Transcript)

	stats, err := e.service.Statistics(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.ByStatus[models.LoanStatusApproved], 1)

	if e.indexer != nil {
		require.Eventually(t, func() bool {
			res, err := e.service.SearchTranscripts(ctx, search.TranscriptQuery{Decision: models.DecisionApproved, Size: 100})
			if err != nil {
				return false
			}
			for _, hit := range res.Hits {
				if hit.ApplicationNumber == created.ApplicationNumber {
					return true
				}
			}
			return false
		}, 10*time.Second, 500*time.Millisecond)
	}
}

func TestE2E_MissingDocumentsRequeue(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var req map[string]interface{}
	require.NoError(t, json.Unmarshal(samplePayload(t), &req))
	req["documents"] = []interface{}{req["documents"].([]interface{})[0]}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	created, err := e.service.Create(ctx, payload)
	require.NoError(t, err)
	_, err = e.service.Submit(ctx, created.ApplicationNumber, "e2e")
	require.NoError(t, err)

	result, err := e.service.Process(ctx, created.ApplicationNumber)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusDocumentsRequired, result.Application.Status)
	assert.Equal(t, workflow.ActionUploadDocuments, result.Workflow.NextAction)

	requeued, err := e.service.AddDocument(ctx, created.ApplicationNumber, service.DocumentRequest{
		DocumentType: models.DocumentIncomeProof, FileName: "paystub.pdf", FileSize: 1024, MimeType: "application/pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusSubmitted, requeued.Status)

	n, err := e.service.ProcessPending(ctx, 50)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	stored, err := e.service.Get(ctx, created.ApplicationNumber)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusApproved, stored.Status)
}

// ==========================
// Process model
// ==========================

func TestE2E_DispatchToZeebe(t *testing.T) {
	e := setup(t)
	if !e.cfg.Camunda.Enabled {
		t.Skip("camunda is not enabled")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := camunda.NewClient(e.cfg.Camunda)
	if err != nil {
		t.Skipf("zeebe unavailable: %v", err)
	}
	defer client.Close()
	deployProcess(t, client, e.cfg.Camunda.ProcessID)

	svc := service.New(service.Config{ProcessID: e.cfg.Camunda.ProcessID}, service.Dependencies{
		Repository: e.repo,
		Runner:     nil,
		Processes:  client,
	}, logger.NewTestLogger(t))

	created, err := svc.Create(ctx, samplePayload(t))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, created.ApplicationNumber, "e2e")
	require.NoError(t, err)

	key, err := svc.Dispatch(ctx, created.ApplicationNumber, "e2e")
	require.NoError(t, err)
	assert.Positive(t, key)

	stored, err := svc.Get(ctx, created.ApplicationNumber)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusUnderReview, stored.Status)
}

func deployProcess(t *testing.T, client *camunda.Client, processID string) {
	t.Helper()
	for _, dir := range []string{"bpmn", "../bpmn", "../../bpmn"} {
		path := filepath.Join(dir, "loan-origination.bpmn")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		keys, err := client.DeployProcess(context.Background(), path)
		require.NoError(t, err, "deploy %s", path)
		require.Contains(t, keys, processID)
		t.Logf("deployed %s: %v", path, keys)
		return
	}
	t.Skip("process model not found")
}
