package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/observability"
	"friend-graph-service/internal/rabbitmq"
)

const AuditRoutingKey = "friend-graph-service.audit"

const auditSchemaVersion = 1

const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

// Envelope matches the log-collector audit_log schema.
type Envelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventID       string       `json:"event_id"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        string       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

// AuditPayload is the payload for audit_log events.
type AuditPayload struct {
	Level  string `json:"level"`
	Text   string `json:"text"`
	Signal string `json:"signal,omitempty"`
}

type AuditEmitter struct {
	publisher   rabbitmq.Publisher
	service     string
	environment string
	logger      logrus.FieldLogger
}

func NewAuditEmitter(publisher rabbitmq.Publisher, service, environment string, logger logrus.FieldLogger) *AuditEmitter {
	return &AuditEmitter{publisher: publisher, service: service, environment: environment, logger: logger}
}

func (e *AuditEmitter) EmitAudit(ctx context.Context, level, text, signal, requestID, userID string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := Envelope{
		SchemaVersion: auditSchemaVersion,
		EventID:       uuid.NewString(),
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload: AuditPayload{
			Level:  level,
			Text:   text,
			Signal: signal,
		},
	}

	if err := e.publisher.Publish(ctx, AuditRoutingKey, envelope); err != nil {
		if e.logger != nil {
			e.logger.WithError(err).WithField("request_id", requestID).Warn("failed to publish audit log")
		}
		return
	}
	observability.IncAuditEventPublished(level)
}
