// Package events publishes pipeline milestones to NATS so dashboards
// and downstream automations can react without polling the API.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects relative to the configured prefix.
const (
	SubjectPatternLearned     = "pattern.learned"
	SubjectPatternMerged      = "pattern.merged"
	SubjectAutoSent           = "response.auto_sent"
	SubjectSuggested          = "response.suggested"
	SubjectShadowed           = "response.shadowed"
	SubjectEscalated          = "conversation.escalated"
	SubjectSuggestionResolved = "suggestion.resolved"
)

// Event is the wire envelope for every published subject.
type Event struct {
	Subject   string         `json:"subject"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Publisher publishes events. A nil *Publisher is a no-op, so callers
// never need to branch on whether eventing is enabled.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS and returns a publisher. Returns nil (a working
// no-op publisher) when url is empty.
func Connect(url, subjectPrefix string, logger *zap.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if subjectPrefix == "" {
		subjectPrefix = "patternd"
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return &Publisher{conn: nc, prefix: subjectPrefix, logger: logger}, nil
}

// Publish sends one event. Publish failures are logged, never fatal;
// eventing is advisory and must not block the response pipeline.
func (p *Publisher) Publish(subject string, payload map[string]any) {
	if p == nil || p.conn == nil {
		return
	}

	full := p.prefix + "." + subject
	event := Event{
		Subject:   full,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event", zap.String("subject", full), zap.Error(err))
		return
	}
	if err := p.conn.Publish(full, data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", full), zap.Error(err))
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
