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
Package config loads the gateway configuration.

# Sources

Configuration is assembled in three layers, each overriding the previous one:

 1. DefaultGatewayConfig
 2. an optional YAML file named by GATEWAY_CONFIG_FILE
 3. environment variables

The YAML file may reference the environment with ${VAR}, $VAR or
${VAR:-default}:

	port: 8080
	agent_runner_url: ${AGENT_RUNNER_URL:-http://runner:5054}
	circuit_breaker:
	  failure_threshold: 5
	  reset_timeout: 30s
	  monitoring_period: 60s
	vault:
	  backend: aws
	  region: eu-west-1

# Environment Variables

	PORT, UI_SERVER_ORIGIN, AGENT_HOSTING_SUFFIX
	DEBUGGER_URL, AGENT_RUNNER_URL, REQUEST_TIMEOUT
	CB_FAILURE_THRESHOLD, CB_RESET_TIMEOUT, CB_MONITORING_PERIOD, HEALTH_CHECK_INTERVAL
	CORS_DEFAULT_DENY, ALLOW_DEBUG_PROMOTION
	DATABASE_URL, REDIS_URL, SPEC_HASH_TTL
	VAULT_BACKEND, AWS_REGION, VAULT_SECRET_PREFIX, VAULT_CACHE_TTL
	RATE_LIMIT_RPM, RATE_LIMIT_BURST
	TRACING_ENABLED, TRACING_EXPORTER
	LOG_LEVEL
*/
package config
