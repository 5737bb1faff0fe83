package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/vyrodovalexey/todolist-api/internal/model"
)

// DefaultNATSSubject is the subject prefix events are published under.
const DefaultNATSSubject = "todo.events"

// natsConn is the subset of *nats.Conn used by NATSPublisher.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes todo events as JSON to NATS.
// A "todo.created" event goes to "<subject>.created".
type NATSPublisher struct {
	conn    natsConn
	subject string
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("todolist-api"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newNATSPublisher(conn, subject), nil
}

func newNATSPublisher(conn natsConn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

// Subject returns the subject event is published on.
func (p *NATSPublisher) Subject(event model.TodoEvent) string {
	suffix := strings.TrimPrefix(string(event.Type), "todo.")
	return p.subject + "." + suffix
}

// Publish encodes event and publishes it.
func (p *NATSPublisher) Publish(ctx context.Context, event model.TodoEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type, err)
	}

	if err := p.conn.Publish(p.Subject(event), data); err != nil {
		return fmt.Errorf("publish %s to NATS: %w", event.Type, err)
	}

	eventsPublishedTotal.WithLabelValues("nats", string(event.Type)).Inc()
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
