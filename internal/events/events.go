// Package events publishes conversation lifecycle signals over NATS so
// downstream systems (CRM sync, notifications, analytics) can react without
// polling the store.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects emitted by the assistant.
const (
	SubjectLeadQualified = "willow.lead.qualified"
	SubjectMeetingBooked = "willow.meeting.booked"
	SubjectMediaShown    = "willow.media.shown"
	SubjectSessionClosed = "willow.session.closed"
)

// Event is one pending publication, produced by the policy engine and
// applied by the transport after a turn completes.
type Event struct {
	Subject string
	Payload map[string]any
}

// Publisher is the outbound event sink. The NATS client implements it; a
// nil-safe no-op keeps the engine usable without a broker.
type Publisher interface {
	Publish(subject string, payload any) error
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
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

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, data)
}

func (c *Client) Close() {
	c.conn.Close()
}

// Apply publishes each event, logging failures without aborting: event
// delivery is best effort and never blocks a conversational response. It
// returns the number of failed publications.
func Apply(pub Publisher, events []Event, logger *slog.Logger) int {
	if pub == nil {
		return 0
	}
	var failed int
	for _, evt := range events {
		if err := pub.Publish(evt.Subject, evt.Payload); err != nil {
			failed++
			logger.Warn("event publish failed", "subject", evt.Subject, "error", err)
		}
	}
	return failed
}
