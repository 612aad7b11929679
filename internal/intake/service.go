// Package intake runs the message pipeline: classify the inbound text,
// select a crisis response, persist the flag and the message, and fan
// out escalation alerts.
package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/counseld/internal/alerts"
	"github.com/fyrsmithlabs/counseld/internal/conversation"
	"github.com/fyrsmithlabs/counseld/internal/crisis"
	"github.com/fyrsmithlabs/counseld/internal/logging"
	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

const instrumentationName = "github.com/fyrsmithlabs/counseld/internal/intake"

// Service processes inbound client messages.
type Service interface {
	// Process classifies, flags, and persists one message. On a store
	// failure after classification the returned Result still carries
	// the assessment and response so the caller can surface a crisis
	// reply even though persistence failed.
	Process(ctx context.Context, req Request) (*Result, error)

	// Close releases the service.
	Close() error
}

// service implements the Service interface.
type service struct {
	store      conversation.Store
	classifier *crisis.Classifier
	publisher  alerts.Publisher
	logger     *zap.Logger

	// Telemetry
	tracer            trace.Tracer
	meter             metric.Meter
	messagesCounter   metric.Int64Counter
	escalationCounter metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewService creates the intake pipeline. publisher may be nil, in
// which case alerts are dropped.
func NewService(store conversation.Store, classifier *crisis.Classifier, publisher alerts.Publisher, logger *zap.Logger) (Service, error) {
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if classifier == nil {
		return nil, errors.New("crisis classifier is required")
	}
	if publisher == nil {
		publisher = alerts.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &service{
		store:      store,
		classifier: classifier,
		publisher:  publisher,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
	}

	s.initMetrics()

	return s, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (s *service) initMetrics() {
	var err error

	s.messagesCounter, err = s.meter.Int64Counter(
		"counseld.intake.messages_total",
		metric.WithDescription("Total number of messages processed by intake"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		s.logger.Warn("failed to create messages counter", zap.Error(err))
	}

	s.escalationCounter, err = s.meter.Int64Counter(
		"counseld.intake.escalations_total",
		metric.WithDescription("Total number of escalations raised by intake"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		s.logger.Warn("failed to create escalation counter", zap.Error(err))
	}
}

// Process runs the full pipeline for one inbound message.
func (s *service) Process(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "intake.process")
	defer span.End()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, errors.New("service is closed")
	}
	s.mu.RUnlock()

	if err := validateRequest(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &Result{
		ConversationID: req.ConversationID,
		Assessment:     s.classifier.Classify(req.Content),
	}
	span.SetAttributes(
		attribute.String("crisis.level", string(result.Assessment.Level)),
		attribute.Bool("crisis.escalation", result.Assessment.RequiresEscalation),
	)

	if result.Assessment.Level != taxonomy.TierNone {
		resp, err := crisis.SelectResponse(result.Assessment.Level)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("select response: %w", err)
		}
		result.Response = &resp
	}

	clientID := req.ClientID
	if result.ConversationID == "" {
		conv, err := s.store.Create(ctx, conversation.CreateParams{
			ClientID:    req.ClientID,
			CounselorID: req.CounselorID,
			ServiceType: req.ServiceType,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("create conversation: %w", err)
		}
		result.ConversationID = conv.ID
		result.Created = true
	} else if clientID == "" {
		if conv, err := s.store.Get(ctx, result.ConversationID); err == nil {
			clientID = conv.ClientID
		}
	}

	// The flag is written before the message so a crash between the two
	// leaves the audit trail over-complete rather than silent.
	if result.Assessment.Level != taxonomy.TierNone {
		flag, err := s.store.FlagCrisis(ctx, result.ConversationID, conversation.FlagParams{
			Level:     result.Assessment.Level,
			Keywords:  result.Assessment.MatchedKeywords,
			Escalated: result.Assessment.RequiresEscalation,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("flag crisis: %w", err)
		}

		if result.Assessment.RequiresEscalation {
			result.Escalated = true
			if s.escalationCounter != nil {
				s.escalationCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("tier", string(result.Assessment.Level)),
				))
			}
			// Best-effort: a broker outage must not block the client
			// from getting the crisis response.
			if err := s.publisher.PublishEscalation(ctx, alerts.Alert{
				ConversationID: result.ConversationID,
				ClientID:       clientID,
				Level:          result.Assessment.Level,
				Keywords:       result.Assessment.MatchedKeywords,
				FlaggedAt:      flag.Timestamp,
			}); err != nil {
				s.logger.Error("escalation alert publish failed",
					zap.String("conversation_id", result.ConversationID),
					zap.String("level", string(result.Assessment.Level)),
					zap.Error(err),
				)
			}
		}
	}

	msg, err := s.store.AddMessage(ctx, result.ConversationID, conversation.NewMessage{
		Role:        conversation.RoleUser,
		Content:     req.Content,
		CounselorID: req.CounselorID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("append message: %w", err)
	}
	result.Message = msg

	if s.messagesCounter != nil {
		s.messagesCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tier", string(result.Assessment.Level)),
		))
	}

	s.logger.Info("message processed",
		zap.String("conversation_id", result.ConversationID),
		zap.String("message_id", msg.ID),
		zap.String("crisis_level", string(result.Assessment.Level)),
		zap.Bool("escalated", result.Escalated),
		logging.RedactedString("content", req.Content),
	)

	span.SetAttributes(attribute.String("conversation_id", result.ConversationID))
	return result, nil
}

// Close marks the service closed. The store and publisher are owned by
// the caller and closed separately.
func (s *service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
