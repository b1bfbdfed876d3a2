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
Package logger provides structured JSON logging for the gateway components.

Each log entry is a single JSON line carrying:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (gateway, resolver, routing, vault, ...)
  - Instance ID and container name
  - Agent ID the request targets, when known
  - Correlation ID threaded through every log line of one request
  - Custom fields

# Usage

	log := logger.New("gateway")

	log.Info(agentID, correlationID, "Routing decision", map[string]interface{}{
	    "service":    "agent-runner",
	    "confidence": 0.9,
	})

	log.ErrorWithCode(agentID, correlationID, "Upstream failed", 502, err, nil)

# Environment Variables

  - INSTANCE_ID: Deployment instance identifier
  - LOG_LEVEL: Minimum level written (default INFO)
*/
package logger
