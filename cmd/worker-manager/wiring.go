package main

import (
	"time"

	"loan-workflow/internal/common/aws"
	"loan-workflow/internal/common/camunda"
	"loan-workflow/internal/common/config"
	"loan-workflow/internal/common/database"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/pipeline"
	"loan-workflow/internal/repository"
	creditcheck "loan-workflow/internal/workers/loan/credit-check"
	humanreview "loan-workflow/internal/workers/loan/human-review"
	makedecision "loan-workflow/internal/workers/loan/make-decision"
	riskassessment "loan-workflow/internal/workers/loan/risk-assessment"
	saveworkflowresult "loan-workflow/internal/workers/loan/save-workflow-result"
	sendnotification "loan-workflow/internal/workers/loan/send-decision-notification"
	validateapplication "loan-workflow/internal/workers/loan/validate-application"
	verifydocuments "loan-workflow/internal/workers/loan/verify-documents"
)

// pipelineConfig applies the loan policy section over the stage defaults.
func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()

	pc.Validate.MaxDebtToIncome = cfg.Loan.MaxDebtToIncome
	pc.Decision.HumanReviewConfidence = cfg.Loan.HumanReviewConfidence
	pc.HumanReview.DefaultUnderwriter = cfg.Loan.DefaultUnderwriter

	bureau := cfg.Integrations.CreditBureau
	pc.CreditCheck.Bureau = bureau.Name
	pc.CreditCheck.ScoreTimeout = config.GetDuration(bureau.Timeout)
	pc.CreditCheck.RateLimit = bureau.RateLimit
	pc.CreditCheck.RateBurst = bureau.Burst
	pc.CreditCheck.CacheTTL = time.Duration(bureau.CacheTTL) * time.Second

	analysis := cfg.Integrations.DocumentAnalysis
	pc.Documents.AnalyzerURL = analysis.URL
	pc.Documents.AnalyzerAPIKey = analysis.APIKey
	pc.Documents.AnalyzerTimeout = config.GetDuration(analysis.Timeout)

	for taskType, timeout := range map[string]*time.Duration{
		validateapplication.TaskType: &pc.Validate.Timeout,
		verifydocuments.TaskType:     &pc.Documents.Timeout,
		creditcheck.TaskType:         &pc.CreditCheck.Timeout,
		riskassessment.TaskType:      &pc.Risk.Timeout,
		makedecision.TaskType:        &pc.Decision.Timeout,
		humanreview.TaskType:         &pc.HumanReview.Timeout,
	} {
		if w, ok := cfg.Workers[taskType]; ok && w.Timeout > 0 {
			*timeout = config.GetDuration(w.Timeout)
		}
	}
	return pc
}

// collaborators builds the external services behind the document, credit and
// underwriter stages from the stage settings in pc.
func collaborators(cfg *config.Config, pc pipeline.Config, pg *database.PostgresClient, redis *database.RedisClient, log logger.Logger) pipeline.Collaborators {
	c := pipeline.Collaborators{
		Analyzer: verifydocuments.NewAnalyzer(pc.Documents),
		Scorer:   creditcheck.NewScorer(pc.CreditCheck, redis.Client, log),
	}
	if cfg.Loan.AssignFromDatabase {
		c.Assigner = humanreview.NewPostgresAssigner(pg.DB, cfg.Loan.DefaultUnderwriter)
	}
	return c
}

// newNotifier passes only the enabled AWS clients so a disabled channel is a
// nil interface rather than a typed nil.
func newNotifier(cfg *config.Config, clients *aws.Clients, log logger.Logger) *sendnotification.Handler {
	ncfg := sendnotification.LoadConfig()
	ncfg.EmailEnabled = cfg.Integrations.AWS.SES.Enabled
	ncfg.SMSEnabled = cfg.Integrations.AWS.SNS.Enabled
	if from := cfg.Integrations.AWS.SES.FromEmail; from != "" {
		ncfg.FromEmail = from
	}
	ncfg.SMSSenderID = cfg.Integrations.AWS.SNS.DefaultSMSSenderID

	var (
		ses sendnotification.SESService
		sns sendnotification.SNSService
	)
	if clients.SES != nil {
		ses = clients.SES
	}
	if clients.SNS != nil {
		sns = clients.SNS
	}
	return sendnotification.NewHandler(ncfg, ses, sns, log)
}

// jobHandlers maps every task type in the process model to its handler.
func jobHandlers(p *pipeline.Pipeline, notifier *sendnotification.Handler, repo *repository.PostgresRepository, log logger.Logger) map[string]camunda.JobHandler {
	return map[string]camunda.JobHandler{
		validateapplication.TaskType: p.Validate,
		verifydocuments.TaskType:     p.Documents,
		creditcheck.TaskType:         p.CreditCheck,
		riskassessment.TaskType:      p.Risk,
		makedecision.TaskType:        p.Decision,
		humanreview.TaskType:         p.HumanReview,
		sendnotification.TaskType:    notifier,
		saveworkflowresult.TaskType:  saveworkflowresult.NewHandler(saveworkflowresult.LoadConfig(), repo, log),
	}
}

func startWorkers(cfg *config.Config, client *camunda.Client, handlers map[string]camunda.JobHandler, log logger.Logger) []*camunda.CamundaWorker {
	workers := make([]*camunda.CamundaWorker, 0, len(handlers))
	for taskType, handler := range handlers {
		if !config.IsWorkerEnabled(cfg, taskType) {
			log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
			continue
		}
		wcfg := config.GetWorkerConfig(cfg, taskType)
		w := camunda.NewWorker(client.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
		}, handler, log)
		w.Start()
		workers = append(workers, w)
	}
	return workers
}
