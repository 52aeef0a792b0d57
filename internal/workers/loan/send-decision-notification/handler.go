// internal/workers/loan/send-decision-notification/handler.go
package sendnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/common/metrics"
	"loan-workflow/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-decision-notification"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config    *Config
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
	templates map[string]template
	errors    *errs.ErrorHandler
	now       func() time.Time
}

// NewHandler builds the notifier. A nil client disables its channel.
func NewHandler(config *Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Handler {
	h := &Handler{
		config:    config,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		sesClient: sesClient,
		snsClient: snsClient,
		templates: loadTemplates(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	h.errors = errs.NewErrorHandler(h.logger)
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(ctx, client, job, errs.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}
	if input.Application == nil {
		h.errors.HandleJobError(ctx, client, job, errs.NewInvalidInputError("job variables carry no application"))
		return
	}

	output, err := h.Notify(ctx, input.Application)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// Notify tells the applicant about the application's current outcome.
func (h *Handler) Notify(ctx context.Context, app *models.LoanApplication) (*Output, error) {
	output := &Output{
		NotificationID: uuid.New().String(),
		SentAt:         h.now().Format(time.RFC3339),
	}

	notificationType := selectType(app)
	if notificationType == "" {
		output.Status = StatusSkipped
		return output, nil
	}
	output.NotificationType = notificationType

	tmpl, exists := h.templates[notificationType]
	if !exists {
		return nil, errs.NewNotificationSendFailedError(notificationType, fmt.Errorf("template not found"))
	}

	data := templateData(app)
	subject := renderTemplate(tmpl.Subject, data)
	body := renderTemplate(tmpl.Body, data)

	var email, phone string
	if app.PersonalInfo != nil {
		email, phone = app.PersonalInfo.Email, app.PersonalInfo.Phone
	}

	if h.config.EmailEnabled && h.sesClient != nil && email != "" {
		if err := h.sendEmail(ctx, email, subject, body); err != nil {
			metrics.NotificationsSent.WithLabelValues(ChannelEmail, StatusFailed).Inc()
			h.logger.Error("email send failed", map[string]interface{}{
				"error":             err,
				"applicationNumber": app.ApplicationNumber,
			})
			output.Status = StatusFailed
			return output, errs.NewNotificationSendFailedError(notificationType, err)
		}
		metrics.NotificationsSent.WithLabelValues(ChannelEmail, StatusSent).Inc()
		output.Channels = append(output.Channels, ChannelEmail)
	}

	if tmpl.SMS != "" && h.config.SMSEnabled && h.snsClient != nil && phone != "" {
		if err := h.sendSMS(ctx, toE164(phone), renderTemplate(tmpl.SMS, data)); err != nil {
			metrics.NotificationsSent.WithLabelValues(ChannelSMS, StatusFailed).Inc()
			h.logger.Error("SMS send failed", map[string]interface{}{
				"error":             err,
				"applicationNumber": app.ApplicationNumber,
			})
			output.Status = StatusFailed
			return output, errs.NewNotificationSendFailedError(notificationType, err)
		}
		metrics.NotificationsSent.WithLabelValues(ChannelSMS, StatusSent).Inc()
		output.Channels = append(output.Channels, ChannelSMS)
	}

	output.Status = StatusDisabled
	if len(output.Channels) > 0 {
		output.Status = StatusSent
	}

	h.logger.Info("notification processed", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"notificationType":  notificationType,
		"status":            output.Status,
	})
	return output, nil
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) sendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if h.config.SMSSenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(h.config.SMSSenderID)},
		}
	}
	_, err := h.snsClient.Publish(ctx, input)
	return err
}

// toE164 assumes North American numbers when no country code is given.
func toE164(phone string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(map[string]interface{}{"notification": output})
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}
