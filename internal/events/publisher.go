// Package events publishes loan decision events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	errs "loan-workflow/internal/common/errors"
	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

const (
	exchangeKind     = "topic"
	routingKeyPrefix = "loan.decision."
	dialTimeout      = 10 * time.Second
	contentTypeJSON  = "application/json"
)

// Outcomes, the last segment of the routing key.
const (
	OutcomeApproved    = "approved"
	OutcomeConditional = "conditional"
	OutcomeRejected    = "rejected"
	OutcomeDocuments   = "documents_required"
	OutcomeReview      = "human_review"
	OutcomeFailed      = "failed"
	OutcomeIncomplete  = "incomplete"
)

// Channel is the subset of *amqp091.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// DecisionEvent is the message body of a loan.decision.* event.
type DecisionEvent struct {
	EventID             string              `json:"eventId"`
	Outcome             string              `json:"outcome"`
	ApplicationNumber   string              `json:"applicationNumber"`
	ApplicationID       string              `json:"applicationId"`
	Status              models.LoanStatus   `json:"status"`
	LoanType            models.LoanType     `json:"loanType,omitempty"`
	Decision            models.DecisionType `json:"decision,omitempty"`
	ApprovedAmount      string              `json:"approvedAmount,omitempty"`
	InterestRate        *float64            `json:"interestRate,omitempty"`
	TermMonths          *int                `json:"termMonths,omitempty"`
	RiskLevel           models.RiskLevel    `json:"riskLevel,omitempty"`
	WorkflowStatus      workflow.Status     `json:"workflowStatus"`
	HumanReviewRequired bool                `json:"humanReviewRequired"`
	AssignedUnderwriter string              `json:"assignedUnderwriter,omitempty"`
	OccurredAt          time.Time           `json:"occurredAt"`
}

// Outcome names the result of a run for routing.
func Outcome(state *workflow.State) string {
	app := state.Application
	if app.Decision != nil {
		switch app.Decision.Decision {
		case models.DecisionApproved:
			return OutcomeApproved
		case models.DecisionConditional:
			return OutcomeConditional
		case models.DecisionRejected:
			return OutcomeRejected
		}
	}
	switch {
	case app.Status == models.LoanStatusDocumentsRequired:
		return OutcomeDocuments
	case state.HumanReviewRequired:
		return OutcomeReview
	case state.Status == workflow.StatusFailed:
		return OutcomeFailed
	}
	return OutcomeIncomplete
}

func RoutingKey(outcome string) string {
	return routingKeyPrefix + outcome
}

// NewDecisionEvent builds the event for a finished run.
func NewDecisionEvent(state *workflow.State, at time.Time) DecisionEvent {
	app := state.Application
	event := DecisionEvent{
		EventID:             uuid.NewString(),
		Outcome:             Outcome(state),
		ApplicationNumber:   app.ApplicationNumber,
		ApplicationID:       app.ID,
		Status:              app.Status,
		RiskLevel:           state.Results.RiskLevel,
		WorkflowStatus:      state.Status,
		HumanReviewRequired: state.HumanReviewRequired,
		OccurredAt:          at,
	}
	if app.LoanDetails != nil {
		event.LoanType = app.LoanDetails.LoanType
	}
	if d := app.Decision; d != nil {
		event.Decision = d.Decision
		event.InterestRate = d.InterestRate
		event.TermMonths = d.ApprovedTermMonths
		if d.ApprovedAmount != nil {
			event.ApprovedAmount = d.ApprovedAmount.StringFixed(2)
		}
	}
	if app.AssignedUnderwriter != nil {
		event.AssignedUnderwriter = *app.AssignedUnderwriter
	}
	return event
}

// Publisher sends decision events to a durable topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  Channel
	exchange string
	declared bool
	logger   logger.Logger
	now      func() time.Time
}

// NewPublisher dials RabbitMQ and opens a channel.
func NewPublisher(amqpURL, exchange string, log logger.Logger) (*Publisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := NewPublisherWithChannel(ch, exchange, log)
	p.conn = conn
	return p, nil
}

// NewPublisherWithChannel wraps an already open channel.
func NewPublisherWithChannel(ch Channel, exchange string, log logger.Logger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   log.WithFields(map[string]interface{}{"component": "event-publisher", "exchange": exchange}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PublishDecision publishes the outcome of a run as loan.decision.<outcome>.
func (p *Publisher) PublishDecision(ctx context.Context, state *workflow.State) error {
	event := NewDecisionEvent(state, p.now())
	routingKey := RoutingKey(event.Outcome)

	body, err := json.Marshal(event)
	if err != nil {
		return errs.NewEventPublishFailedError(routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.exchange, exchangeKind, true, false, false, false, nil); err != nil {
			return errs.NewEventPublishFailedError(routingKey, fmt.Errorf("declare exchange: %w", err))
		}
		p.declared = true
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.EventID,
		Timestamp:    event.OccurredAt,
		Type:         routingKey,
		Body:         body,
	})
	if err != nil {
		// A closed channel has to be redeclared on the next attempt.
		if errors.Is(err, amqp091.ErrClosed) {
			p.declared = false
		}
		return errs.NewEventPublishFailedError(routingKey, err)
	}

	p.logger.Info("decision event published", map[string]interface{}{
		"applicationNumber": event.ApplicationNumber,
		"routingKey":        routingKey,
		"eventId":           event.EventID,
	})
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.channel != nil {
		err = p.channel.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
