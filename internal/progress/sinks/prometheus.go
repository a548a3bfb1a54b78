package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/atkit/botfleet/internal/progress"
)

// PrometheusSink exports stage counters for progress events. It owns its
// collectors and registers them on construction.
type PrometheusSink struct {
	stagesTotal *prometheus.CounterVec

	mu     sync.Mutex
	closed bool
}

// NewPrometheusSink registers collectors on the given registerer (use
// prometheus.DefaultRegisterer in production).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	s := &PrometheusSink{
		stagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "botfleet_progress_stages_total",
			Help: "Total progress events observed, labeled by stage.",
		}, []string{"stage"}),
	}
	if err := reg.Register(s.stagesTotal); err != nil {
		return nil, fmt.Errorf("register progress collectors: %w", err)
	}
	return s, nil
}

// Consume counts each event by stage.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("prometheus sink is closed")
	}
	for _, evt := range batch {
		s.stagesTotal.WithLabelValues(string(evt.Stage)).Inc()
	}
	return nil
}

// Close marks the sink closed; collectors stay registered for scraping.
func (s *PrometheusSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
