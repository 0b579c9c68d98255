package events

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSnapshot is the point-in-time counter view
type MetricsSnapshot struct {
	TotalExecutions int64   `json:"total_executions"`
	Running         int64   `json:"running"`
	Completed       int64   `json:"completed"`
	Failed          int64   `json:"failed"`
	Cancelled       int64   `json:"cancelled"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
	ToolCalls       int64   `json:"tool_calls"`
}

// MetricsSubscriber keeps in-memory execution counters and mirrors them
// into prometheus collectors. It subscribes to all events.
type MetricsSubscriber struct {
	mu       sync.Mutex
	snapshot MetricsSnapshot

	executions *prometheus.CounterVec
	running    prometheus.Gauge
	tokens     prometheus.Counter
	cost       prometheus.Counter
	toolCalls  prometheus.Counter
}

// NewMetricsSubscriber creates the subscriber and registers its
// collectors on reg; a nil reg skips prometheus wiring (tests).
func NewMetricsSubscriber(reg prometheus.Registerer) *MetricsSubscriber {
	s := &MetricsSubscriber{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_executions_total",
			Help: "Workflow executions by terminal status.",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workflow_executions_running",
			Help: "Workflow executions currently running.",
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_tokens_total",
			Help: "Total tokens consumed by workflow executions.",
		}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_cost_total",
			Help: "Total estimated model cost in USD.",
		}),
		toolCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workflow_tool_calls_total",
			Help: "Total tool invocations across executions.",
		}),
	}

	if reg != nil {
		reg.MustRegister(s.executions, s.running, s.tokens, s.cost, s.toolCalls)
	}

	return s
}

// Attach registers the subscriber on the bus as a global handler
func (s *MetricsSubscriber) Attach(bus *Bus) {
	bus.SubscribeAll(s.Handle)
}

// Handle updates counters for one event
func (s *MetricsSubscriber) Handle(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case Started:
		s.snapshot.TotalExecutions++
		s.snapshot.Running++
		s.running.Inc()

	case ExecutionCompleted:
		s.snapshot.Running--
		s.snapshot.Completed++
		s.running.Dec()
		s.executions.WithLabelValues("completed").Inc()

	case ExecutionFailed:
		s.snapshot.Running--
		s.running.Dec()
		if kind, _ := event.Data["error_type"].(string); kind == "cancelled" {
			s.snapshot.Cancelled++
			s.executions.WithLabelValues("cancelled").Inc()
		} else {
			s.snapshot.Failed++
			s.executions.WithLabelValues("failed").Inc()
		}

	case TokenUsage:
		delta := dataInt64(event.Data, "delta_tokens")
		s.snapshot.TotalTokens += delta
		s.tokens.Add(float64(delta))

		deltaCost := dataFloat(event.Data, "delta_cost")
		s.snapshot.TotalCost += deltaCost
		s.cost.Add(deltaCost)

	case ToolCalled:
		s.snapshot.ToolCalls++
		s.toolCalls.Inc()
	}

	return nil
}

// Snapshot returns a copy of the current counters
func (s *MetricsSubscriber) Snapshot() MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}
