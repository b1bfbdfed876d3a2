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

/*
Package gateway is the agent gateway: the front door for every request
addressed to a hosted agent.

# Request Pipeline

Each request passes through the same stages:

  - Request context: correlation id, client IP, rate limiting and a deadline
    bounded by RequestTimeout.
  - ContextResolver: identifies the agent from X-AGENT-ID or the Host, picks
    the version from X-AGENT-VERSION or a /v1.2/ or /@dev/ path prefix, and
    decides whether the request targets a test domain.
  - CORSEvaluator: per-agent, per-embodiment origin policy applied through
    rs/cors.
  - AuthMiddleware: the agent's auth provider, with vault placeholders in its
    settings resolved per request.
  - RoutingEngine: scores the debugger against the agent runner and consults
    the circuit breaker Monitor.
  - Forwarder or embodiment.Handlers: proxies the request, or serves a
    generated surface (Swagger, OpenAPI, Postman, MCP, chat completions) whose
    skill calls go back through the Forwarder.

# Routing

Production domains always go to the agent runner. Test domains go to the
debugger when the agent has a debug session or the request carries debug
headers. If the debugger's circuit is open the request falls back to the
agent runner at reduced confidence; an open agent-runner circuit is reported
as CIRCUIT_OPEN.

# Errors

Every failure is a types.GatewayError rendered as {"error","code"}. Test
domains also receive the failing operation, its cause and the correlation id.

# Observability

Logs are JSON lines from shared/logger. Prometheus metrics are served on
/metrics, routing counters on /api/routing/status and breaker state on
/api/circuit-breaker/status. Spans are exported through OpenTelemetry when
tracing is enabled.
*/
package gateway
