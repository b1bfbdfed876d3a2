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

package types

import "time"

// ServiceName identifies an execution path
type ServiceName string

const (
	ServiceDebugger    ServiceName = "debugger"
	ServiceAgentRunner ServiceName = "agent-runner"
)

// String returns the string representation of the ServiceName
func (s ServiceName) String() string {
	return string(s)
}

// RoutingDecision is produced once per request and never mutated.
type RoutingDecision struct {
	Service    ServiceName            `json:"service"`
	Reason     string                 `json:"reason"`
	Confidence float64                `json:"confidence"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ServiceHealth is owned and updated by the health monitor.
type ServiceHealth struct {
	Service      ServiceName   `json:"service"`
	Healthy      bool          `json:"healthy"`
	State        string        `json:"state"`
	LastCheck    time.Time     `json:"last_check"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
	ErrorRate    float64       `json:"error_rate,omitempty"`
}

// RoutingMetrics is a point-in-time snapshot of the routing counters.
type RoutingMetrics struct {
	TotalRequests       int64         `json:"total_requests"`
	DebuggerRequests    int64         `json:"debugger_requests"`
	AgentRunnerRequests int64         `json:"agent_runner_requests"`
	Errors              int64         `json:"errors"`
	AverageResponseTime time.Duration `json:"average_response_time"`
}

// CircuitBreakerConfig configures the per-service breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold failures inside MonitoringPeriod open the circuit.
	FailureThreshold uint32 `yaml:"failure_threshold"`
	// ResetTimeout is how long the circuit stays open before allowing a trial.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	// MonitoringPeriod is the window after which closed-state failure counts reset.
	MonitoringPeriod time.Duration `yaml:"monitoring_period"`
}

// DefaultCircuitBreakerConfig returns the defaults used when nothing is configured.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		MonitoringPeriod: 60 * time.Second,
	}
}
