// Package events publishes discussion lifecycle events to NATS.
//
// The publisher is optional infrastructure: a nil *Publisher is a no-op, and
// publish failures are logged, never propagated. Consumers (analytics,
// notification fan-out) subscribe out of band.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectDiscussionCompleted is emitted after synthesis, before persistence.
const SubjectDiscussionCompleted = "quorum.discussion.completed"

// SubjectConversationStored is emitted after a conversation is recorded.
const SubjectConversationStored = "quorum.conversation.stored"

// DiscussionCompleted summarizes one finished consensus dispatch.
type DiscussionCompleted struct {
	PromptType string    `json:"prompt_type"`
	ModelGroup string    `json:"model_group"`
	Backends   []string  `json:"backends"`
	Succeeded  int       `json:"succeeded"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConversationStored records that a discussion reached the history gateway.
type ConversationStored struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	PromptType     string    `json:"prompt_type"`
	Timestamp      time.Time `json:"timestamp"`
}

type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect dials NATS with reconnect handling. An empty url yields a nil
// publisher, which every method treats as a no-op.
func Connect(url, token string, logger *slog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Publisher{conn: nc, logger: logger}, nil
}

// Publish sends one event. Failures are logged and swallowed; event delivery
// is never on the request path's critical section.
func (p *Publisher) Publish(subject string, data any) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Error("marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.conn.Close()
}
