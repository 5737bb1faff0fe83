// Package events distributes committed todo changes to interested parties.
package events

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vyrodovalexey/todolist-api/internal/model"
)

var (
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "todolist",
			Name:      "events_published_total",
			Help:      "Total number of todo events published, by sink and event type",
		},
		[]string{"sink", "type"},
	)

	eventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "todolist",
			Name:      "events_dropped_total",
			Help:      "Total number of todo events dropped because a subscriber was too slow",
		},
	)
)

// Publisher delivers todo events.
type Publisher interface {
	Publish(ctx context.Context, event model.TodoEvent) error
}

// Multi publishes each event to every wrapped publisher.
type Multi struct {
	publishers []Publisher
}

// NewMulti creates a publisher fanning out to publishers. Nil entries
// are skipped.
func NewMulti(publishers ...Publisher) *Multi {
	m := &Multi{}
	for _, p := range publishers {
		if p != nil {
			m.publishers = append(m.publishers, p)
		}
	}
	return m
}

// Publish sends event to all publishers and joins their errors.
func (m *Multi) Publish(ctx context.Context, event model.TodoEvent) error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, model.TodoEvent) error { return nil }
