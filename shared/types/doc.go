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
Package types provides shared type definitions used across gateway components.

# Overview

This package is the single source of truth for the data passed between the
context resolver, the CORS evaluator, the auth middleware, the routing engine
and the embodiment adapters:

  - AgentDefinition: the agent graph returned by the agent-data collaborator
  - AgentContext / RequestContext: request-scoped, never shared across requests
  - RoutingDecision / ServiceHealth / RoutingMetrics: routing state and snapshots
  - AuthProviderConfig / VaultProtectedField: per-agent auth configuration
  - GatewayError: the error taxonomy with stable codes and HTTP statuses

# Thread Safety

AgentContext and RoutingDecision are immutable after construction and may be
read from any goroutine. ServiceHealth and RoutingMetrics values are snapshots.
*/
package types
