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
	"encoding/json"
	"net/http"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// ErrorResponse is the plain JSON error envelope.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Code    string        `json:"code"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorDetails is only sent on test domains.
type ErrorDetails struct {
	Op            string `json:"op,omitempty"`
	Cause         string `json:"cause,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// errorWriter renders GatewayErrors and logs them with the correlation id.
type errorWriter struct {
	log *logger.Logger
}

func (ew errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	ge := types.AsGatewayError(err)
	status := ge.HTTPStatus()
	correlationID := types.CorrelationIDFromContext(r.Context())

	agentID := ""
	agent := types.AgentFromContext(r.Context())
	if agent != nil {
		agentID = agent.ID
	}

	fields := map[string]interface{}{
		"op":     ge.Op,
		"code":   string(ge.Code()),
		"method": r.Method,
		"path":   r.URL.Path,
	}
	if status >= http.StatusInternalServerError {
		ew.log.ErrorWithCode(agentID, correlationID, "Request failed", status, err, fields)
	} else {
		ew.log.Debug(agentID, correlationID, "Request rejected", fields)
	}

	resp := ErrorResponse{Error: ge.PublicMessage(), Code: string(ge.Code())}
	if agent != nil && agent.UsingTestDomain {
		resp.Details = &ErrorDetails{Op: ge.Op, CorrelationID: correlationID}
		if ge.Err != nil {
			resp.Details.Cause = ge.Err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		ew.log.Warn(agentID, correlationID, "Failed to encode error response", map[string]interface{}{"error": encErr.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
