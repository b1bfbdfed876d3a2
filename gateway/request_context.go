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
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentgateway/shared/types"
)

// newRequestContext builds the RequestContext at request entry. An inbound
// X-Correlation-ID is kept so calls from other services stay traceable.
func newRequestContext(r *http.Request, trustedProxies []string) *types.RequestContext {
	correlationID := strings.TrimSpace(r.Header.Get(types.HeaderCorrelationID))
	if correlationID == "" || len(correlationID) > 128 {
		correlationID = uuid.NewString()
	}
	return &types.RequestContext{
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
		ClientIP:      clientIP(r, trustedProxies),
		UserAgent:     r.UserAgent(),
		Headers:       r.Header.Clone(),
	}
}

// clientIP returns the peer address, or the first X-Forwarded-For / X-Real-IP
// entry when the peer is a trusted proxy.
func clientIP(r *http.Request, trustedProxies []string) string {
	directIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(directIP); err == nil {
		directIP = host
	}

	if len(trustedProxies) == 0 {
		return directIP
	}

	trusted := false
	for _, p := range trustedProxies {
		if directIP == p {
			trusted = true
			break
		}
	}
	if !trusted {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return directIP
}

// hostname strips the port from a Host header and lowercases it.
func hostname(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}

// isLoopbackHost reports whether host names the local machine.
func isLoopbackHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
