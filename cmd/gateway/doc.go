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
Command gateway runs the agent gateway.

The gateway resolves which agent a request targets, applies that agent's
CORS and auth rules, and routes the request to the debugger or the agent
runner. It also serves the agent's generated surfaces: Swagger UI, OpenAPI,
Postman, MCP and an OpenAI-compatible chat completions endpoint.

# Usage

	gateway

# Environment Variables

  - PORT: HTTP server port (default: 8080)
  - DEBUGGER_URL: base URL of the debugger service
  - AGENT_RUNNER_URL: base URL of the agent runner service
  - AGENT_HOSTING_SUFFIX: host suffix that marks test domains
  - UI_SERVER_ORIGIN: origin of the builder UI, always allowed by CORS
  - DATABASE_URL: PostgreSQL agent store (in-memory store when unset)
  - REDIS_URL: spec hash cache (disabled when unset)
  - VAULT_BACKEND: "aws", "env" or "memory"
  - GATEWAY_CONFIG_FILE: optional YAML file applied before the environment

# Example

	export DEBUGGER_URL="http://localhost:5053"
	export AGENT_RUNNER_URL="http://localhost:5054"
	./gateway
*/
package main
