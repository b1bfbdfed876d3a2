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
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// CORSDecision is the outcome of one evaluation.
type CORSDecision struct {
	Allow          bool
	AllowedOrigins []string
	Reason         string
}

// CORSEvaluator computes the per-agent, per-embodiment origin policy. Nothing
// is cached: allowedDomains can change between requests.
type CORSEvaluator struct {
	defaults    []string
	defaultDeny bool
	log         *logger.Logger
}

// NewCORSEvaluator creates an evaluator. uiOrigin is always allowed.
func NewCORSEvaluator(uiOrigin string, defaultDeny bool, log *logger.Logger) *CORSEvaluator {
	if log == nil {
		log = logger.New("cors")
	}
	defaults := []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	}
	if uiOrigin != "" {
		defaults = append([]string{normalizeOrigin(uiOrigin)}, defaults...)
	}
	return &CORSEvaluator{defaults: defaults, defaultDeny: defaultDeny, log: log}
}

// Evaluate decides whether origin may call the embodiment of agent served at host.
func (e *CORSEvaluator) Evaluate(agent *types.AgentContext, embodiment types.EmbodimentType, origin, host string) CORSDecision {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	host = strings.ToLower(strings.TrimSpace(host))

	if origin == "" {
		return CORSDecision{Allow: true, Reason: "no origin"}
	}

	if host != "" {
		lower := strings.ToLower(origin)
		if lower == "http://"+host || lower == "https://"+host {
			return CORSDecision{Allow: true, AllowedOrigins: []string{origin}, Reason: "same host"}
		}
	}

	var declared []string
	if agent != nil && agent.Agent != nil {
		if d, ok := agent.Agent.Embodiment(embodiment); ok {
			declared = d.AllowedDomains
		}
	}

	allowed := make([]string, 0, len(e.defaults)+len(declared))
	allowed = append(allowed, e.defaults...)
	for _, d := range declared {
		if n := normalizeOrigin(d); n != "" {
			allowed = append(allowed, n)
		}
	}

	normalized := normalizeOrigin(origin)
	for _, a := range allowed {
		if strings.EqualFold(a, normalized) {
			return CORSDecision{Allow: true, AllowedOrigins: allowed, Reason: "allowed origin"}
		}
	}
	if isLoopbackOrigin(normalized) {
		return CORSDecision{Allow: true, AllowedOrigins: allowed, Reason: "localhost"}
	}

	if len(declared) == 0 && !e.defaultDeny {
		return CORSDecision{Allow: true, AllowedOrigins: allowed, Reason: "no allowed domains declared"}
	}
	return CORSDecision{Allow: false, AllowedOrigins: allowed, Reason: "origin not allowed"}
}

// normalizeOrigin turns "example.com" or "https://example.com/path" into
// "https://example.com". Unparseable values are kept literally.
func normalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return isLoopbackHost(strings.ToLower(u.Hostname()))
}

// corsMiddleware applies the evaluator to one embodiment route through rs/cors.
// It must run after the context resolver.
func (s *Server) corsMiddleware(embodiment types.EmbodimentType) mux.MiddlewareFunc {
	c := cors.New(cors.Options{
		AllowOriginVaryRequestFunc: func(r *http.Request, origin string) (bool, []string) {
			agent := types.AgentFromContext(r.Context())
			decision := s.cors.Evaluate(agent, embodiment, origin, r.Host)
			if !decision.Allow && r.Method == http.MethodOptions {
				agentID := ""
				if agent != nil {
					agentID = agent.ID
				}
				s.log.Warn(agentID, types.CorrelationIDFromContext(r.Context()), "CORS preflight denied", map[string]interface{}{
					"host":            r.Host,
					"origin":          origin,
					"embodiment":      string(embodiment),
					"allowed_origins": decision.AllowedOrigins,
				})
			}
			return decision.Allow, nil
		},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{types.HeaderCorrelationID, types.HeaderSpecHash, types.HeaderRoutedService, "Mcp-Session-Id"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return c.Handler
}
