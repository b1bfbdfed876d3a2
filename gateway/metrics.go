// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agentgateway/gateway/circuitbreaker"
	"agentgateway/shared/types"
)

// MetricsSink receives routing outcomes. Implementations may be slow or faulty;
// the routing engine recovers from panics raised here.
type MetricsSink interface {
	RecordDecision(decision types.RoutingDecision)
	RecordError(code types.ErrorCode)
}

// RoutingMetrics is the shared aggregate of routing outcomes. Counters are
// atomic; Prometheus collectors mirror them on an injected registry.
type RoutingMetrics struct {
	total        atomic.Int64
	debugger     atomic.Int64
	agentRunner  atomic.Int64
	errors       atomic.Int64
	latencyNanos atomic.Int64
	latencyCount atomic.Int64

	decisions    *prometheus.CounterVec
	errorsByCode *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	circuitState *prometheus.GaugeVec
}

// NewRoutingMetrics creates the metrics and registers its collectors on reg.
// A nil reg keeps the collectors unregistered.
func NewRoutingMetrics(reg prometheus.Registerer) *RoutingMetrics {
	m := &RoutingMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_gateway_routing_decisions_total",
				Help: "Routing decisions by selected service",
			},
			[]string{"service"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_gateway_errors_total",
				Help: "Failed requests by error code",
			},
			[]string{"code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_gateway_request_duration_milliseconds",
				Help:    "Request duration in milliseconds",
				Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
			},
			[]string{"route"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_gateway_circuit_state",
				Help: "Circuit breaker state per service (0 closed, 1 half-open, 2 open)",
			},
			[]string{"service"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.decisions, m.errorsByCode, m.duration, m.circuitState)
	}
	return m
}

// RecordDecision implements MetricsSink
func (m *RoutingMetrics) RecordDecision(decision types.RoutingDecision) {
	m.total.Add(1)
	switch decision.Service {
	case types.ServiceDebugger:
		m.debugger.Add(1)
	case types.ServiceAgentRunner:
		m.agentRunner.Add(1)
	}
	m.decisions.WithLabelValues(decision.Service.String()).Inc()
}

// RecordError implements MetricsSink
func (m *RoutingMetrics) RecordError(code types.ErrorCode) {
	m.errors.Add(1)
	m.errorsByCode.WithLabelValues(string(code)).Inc()
}

// ObserveRequest records the duration of a completed request.
func (m *RoutingMetrics) ObserveRequest(route string, elapsed time.Duration) {
	m.latencyNanos.Add(int64(elapsed))
	m.latencyCount.Add(1)
	m.duration.WithLabelValues(route).Observe(float64(elapsed) / float64(time.Millisecond))
}

// ObserveCircuitState is a circuitbreaker.StateChangeFunc.
func (m *RoutingMetrics) ObserveCircuitState(service types.ServiceName, _, to string) {
	value := 0.0
	switch to {
	case circuitbreaker.StateHalfOpen:
		value = 1
	case circuitbreaker.StateOpen:
		value = 2
	}
	m.circuitState.WithLabelValues(service.String()).Set(value)
}

// Snapshot returns the current counters.
func (m *RoutingMetrics) Snapshot() types.RoutingMetrics {
	snap := types.RoutingMetrics{
		TotalRequests:       m.total.Load(),
		DebuggerRequests:    m.debugger.Load(),
		AgentRunnerRequests: m.agentRunner.Load(),
		Errors:              m.errors.Load(),
	}
	if n := m.latencyCount.Load(); n > 0 {
		snap.AverageResponseTime = time.Duration(m.latencyNanos.Load() / n)
	}
	return snap
}
