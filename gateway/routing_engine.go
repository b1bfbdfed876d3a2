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
	"fmt"
	"math"
	"net/http"
	"strings"

	"agentgateway/gateway/circuitbreaker"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// Score weights for the debugger path. The agent-runner starts at
// runnerBaseScore and gains runnerProductionBonus off test domains.
const (
	debugTestDomainWeight = 0.4
	debugSessionWeight    = 0.3
	debugHeadersWeight    = 0.3

	runnerBaseScore       = 0.5
	runnerProductionBonus = 0.5
)

// RoutingEngine chooses between the debugger and the agent-runner. It reads
// breaker availability from the Monitor and never changes breaker state.
type RoutingEngine struct {
	monitor *circuitbreaker.Monitor
	sink    MetricsSink
	log     *logger.Logger
}

// NewRoutingEngine creates an engine. sink may be nil.
func NewRoutingEngine(monitor *circuitbreaker.Monitor, sink MetricsSink, log *logger.Logger) *RoutingEngine {
	if log == nil {
		log = logger.New("routing")
	}
	return &RoutingEngine{monitor: monitor, sink: sink, log: log}
}

// Decide picks the execution path for a resolved request. Ties go to the
// agent-runner. An open circuit is never selected; production traffic never
// falls back to the debugger.
func (e *RoutingEngine) Decide(agent *types.AgentContext, req *types.RequestContext) (types.RoutingDecision, error) {
	correlationID := ""
	var headers http.Header
	if req != nil {
		correlationID = req.CorrelationID
		headers = req.Headers
	}
	debugHeaders := types.HasDebugHeaders(headers)

	debugScore := 0.0
	var reasons []string
	if agent.IsLocked {
		reasons = append(reasons, "agent locked")
	} else {
		if agent.UsingTestDomain {
			debugScore += debugTestDomainWeight
			reasons = append(reasons, "test domain")
		}
		if agent.DebugSessionEnabled {
			debugScore += debugSessionWeight
			reasons = append(reasons, "debug session enabled")
		}
		if debugHeaders {
			debugScore += debugHeadersWeight
			reasons = append(reasons, "debug headers")
		}
	}

	runnerScore := runnerBaseScore
	if !agent.UsingTestDomain {
		runnerScore += runnerProductionBonus
		reasons = append(reasons, "production domain")
	}

	preferred, other := types.ServiceAgentRunner, types.ServiceDebugger
	if debugScore > runnerScore {
		preferred, other = types.ServiceDebugger, types.ServiceAgentRunner
	}
	confidence := clamp01(0.5 + math.Abs(debugScore-runnerScore)/2)

	decision := types.RoutingDecision{
		Service:    preferred,
		Reason:     strings.Join(reasons, ", "),
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"debug_score":  debugScore,
			"runner_score": runnerScore,
			"agent_id":     agent.ID,
			"version":      agent.Version,
		},
	}
	if decision.Reason == "" {
		decision.Reason = "default"
	}

	if !e.monitor.Available(preferred) {
		if preferred == types.ServiceDebugger && e.monitor.Available(other) {
			decision = types.RoutingDecision{
				Service:    other,
				Reason:     fmt.Sprintf("%s unavailable (circuit %s), fallback", preferred, e.monitor.State(preferred)),
				Confidence: clamp01(confidence * 0.5),
				Metadata:   decision.Metadata,
			}
		} else {
			err := types.NewError("routing.decide", types.ErrCircuitOpen, "",
				fmt.Errorf("%w: %s is %s", circuitbreaker.ErrCircuitOpen, preferred, e.monitor.State(preferred)))
			e.record(correlationID, agent.ID, func(s MetricsSink) { s.RecordError(types.CodeCircuitOpen) })
			e.log.Warn(agent.ID, correlationID, "No available execution path", map[string]interface{}{
				"preferred": preferred.String(),
				"state":     e.monitor.State(preferred),
			})
			return types.RoutingDecision{}, err
		}
	}

	e.record(correlationID, agent.ID, func(s MetricsSink) { s.RecordDecision(decision) })
	e.log.Debug(agent.ID, correlationID, "Routing decision", map[string]interface{}{
		"service":    decision.Service.String(),
		"reason":     decision.Reason,
		"confidence": decision.Confidence,
	})
	return decision, nil
}

// record runs fn against the sink; a failing sink never fails the decision.
func (e *RoutingEngine) record(correlationID, agentID string, fn func(MetricsSink)) {
	if e.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error(agentID, correlationID, "Routing metrics update failed", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	fn(e.sink)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
