// Package alerts publishes crisis escalation events so on-call reviewers
// and downstream pagers can react without polling the store.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

// Alert is the escalation event payload.
type Alert struct {
	ConversationID string        `json:"conversation_id"`
	ClientID       string        `json:"client_id"`
	Level          taxonomy.Tier `json:"level"`
	Keywords       []string      `json:"keywords,omitempty"`
	FlaggedAt      time.Time     `json:"flagged_at"`
}

// Publisher delivers escalation alerts. Delivery is best-effort: intake
// never blocks on alert failures, it logs and moves on.
type Publisher interface {
	PublishEscalation(ctx context.Context, alert Alert) error
	Close()
}

// subjectFor builds the per-tier subject so subscribers can filter with
// a wildcard (counseld.escalations.>).
func subjectFor(level taxonomy.Tier) string {
	return fmt.Sprintf("counseld.escalations.%s", level)
}

// NATSPublisher publishes alerts to a NATS subject per tier.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// PublishEscalation publishes the alert to counseld.escalations.<tier>.
func (p *NATSPublisher) PublishEscalation(ctx context.Context, alert Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	subject := subjectFor(alert.Level)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish alert to %s: %w", subject, err)
	}

	p.logger.Info("escalation alert published",
		zap.String("subject", subject),
		zap.String("conversation_id", alert.ConversationID),
	)
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	p.nc.Close()
}

// NopPublisher drops every alert. Used when alerting is disabled and in
// tests.
type NopPublisher struct{}

func (NopPublisher) PublishEscalation(ctx context.Context, alert Alert) error { return nil }
func (NopPublisher) Close()                                                   {}

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)
