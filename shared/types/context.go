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

import (
	"context"
	"net/http"
	"time"
)

// Request-identity headers consumed by the gateway.
const (
	HeaderAgentID        = "X-AGENT-ID"
	HeaderAgentVersion   = "X-AGENT-VERSION"
	HeaderDebugStop      = "X-DEBUG-STOP"
	HeaderDebugRun       = "X-DEBUG-RUN"
	HeaderDebugInject    = "X-DEBUG-INJ"
	HeaderDebugRead      = "X-DEBUG-READ"
	HeaderConversationID = "X-CONVERSATION-ID"
	HeaderRemoteCall     = "X-AGENT-REMOTE-CALL"
	HeaderCorrelationID  = "X-Correlation-ID"
	HeaderSpecHash       = "X-Spec-Hash"
	HeaderRoutedService  = "X-Routed-Service"
)

// VersionLatest is the implicit version for production domains
const VersionLatest = "latest"

// VersionDev explicitly selects the undeployed working copy
const VersionDev = "dev"

// DebugHeaders are the four debug-control headers.
var DebugHeaders = []string{HeaderDebugStop, HeaderDebugRun, HeaderDebugInject, HeaderDebugRead}

// HasDebugHeaders reports whether any debug-control header is present.
func HasDebugHeaders(h http.Header) bool {
	for _, name := range DebugHeaders {
		if _, ok := h[http.CanonicalHeaderKey(name)]; ok {
			return true
		}
	}
	return false
}

// AgentContext is the normalized, request-scoped view of the targeted agent.
// Built once per request by the context resolver and never mutated afterwards.
type AgentContext struct {
	ID                  string
	Version             string // "" when unset
	UsingTestDomain     bool
	DebugSessionEnabled bool
	IsLocked            bool
	Domain              string

	// Path is the request path with any version segment removed.
	Path string
	// DebugPromoted is true when debug headers promoted a production domain.
	DebugPromoted bool

	// Agent is the normalized definition (annotation nodes and template metadata removed).
	Agent *AgentDefinition
}

// HasVersion reports whether a version was resolved.
func (a *AgentContext) HasVersion() bool {
	return a.Version != ""
}

// RequestContext is created at request entry.
type RequestContext struct {
	CorrelationID string
	Timestamp     time.Time
	ClientIP      string
	UserAgent     string
	Headers       http.Header
}

type contextKey string

const (
	agentContextKey   contextKey = "gateway_agent_context"
	requestContextKey contextKey = "gateway_request_context"
)

// ContextWithAgent stores the resolved agent context.
func ContextWithAgent(ctx context.Context, agent *AgentContext) context.Context {
	return context.WithValue(ctx, agentContextKey, agent)
}

// AgentFromContext returns the resolved agent context or nil.
func AgentFromContext(ctx context.Context) *AgentContext {
	a, _ := ctx.Value(agentContextKey).(*AgentContext)
	return a
}

// ContextWithRequest stores the request context.
func ContextWithRequest(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// RequestFromContext returns the request context or nil.
func RequestFromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey).(*RequestContext)
	return rc
}

// CorrelationIDFromContext returns the correlation id or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if rc := RequestFromContext(ctx); rc != nil {
		return rc.CorrelationID
	}
	return ""
}
