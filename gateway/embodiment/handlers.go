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

package embodiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// SkillExecutor invokes agent skills on the selected execution path.
type SkillExecutor interface {
	// ExecuteSkill runs a skill and returns its JSON result.
	ExecuteSkill(ctx context.Context, agentID, componentID string, payload json.RawMessage) (json.RawMessage, error)
	// StreamSkill runs a skill and returns its NDJSON output stream. The caller
	// closes the stream.
	StreamSkill(ctx context.Context, agentID, componentID string, payload json.RawMessage) (io.ReadCloser, error)
}

// AuthSource reports the effective auth configuration of an agent.
type AuthSource interface {
	EffectiveAuth(ctx context.Context, agent *types.AgentContext) (AuthInfo, error)
}

// HashStore records spec hashes for change detection.
type HashStore interface {
	Store(ctx context.Context, agentID, version, hash string) error
}

// ErrorWriter renders an error in the gateway's plain JSON envelope.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Config wires the adapters to their collaborators.
type Config struct {
	// ExecutorFor returns the executor bound to the request's routing decision.
	ExecutorFor func(r *http.Request) (SkillExecutor, error)
	Auth        AuthSource
	// Hashes is optional; nil disables hash caching.
	Hashes     HashStore
	WriteError ErrorWriter
	Logger     *logger.Logger

	// ServerName and ServerVersion identify the MCP server.
	ServerName    string
	ServerVersion string
}

// Handlers serves every embodiment surface of the resolved agent.
type Handlers struct {
	cfg Config
	log *logger.Logger
}

// NewHandlers creates the adapter handlers
func NewHandlers(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = logger.New("embodiment")
	}
	if cfg.WriteError == nil {
		cfg.WriteError = func(w http.ResponseWriter, _ *http.Request, err error) {
			ge := types.AsGatewayError(err)
			writeJSON(w, ge.HTTPStatus(), map[string]string{"error": ge.PublicMessage(), "code": string(ge.Code())})
		}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "agent-gateway"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "1.0.0"
	}
	return &Handlers{cfg: cfg, log: cfg.Logger}
}

func (h *Handlers) executorFor(r *http.Request) (SkillExecutor, error) {
	if h.cfg.ExecutorFor == nil {
		return nil, types.NewError("embodiment.executor", types.ErrUpstream, "no skill executor configured", nil)
	}
	return h.cfg.ExecutorFor(r)
}

// agentFor returns the resolved agent or writes a NotFoundAgent error.
func (h *Handlers) agentFor(w http.ResponseWriter, r *http.Request, op string) (*types.AgentContext, bool) {
	agent := types.AgentFromContext(r.Context())
	if agent == nil || agent.Agent == nil {
		h.cfg.WriteError(w, r, types.NewError(op, types.ErrNotFoundAgent, "", nil))
		return nil, false
	}
	return agent, true
}

// document builds the OpenAPI document for the request's agent.
func (h *Handlers) document(r *http.Request, agent *types.AgentContext) (*Document, error) {
	auth := AuthInfo{Method: types.AuthMethodNone}
	if h.cfg.Auth != nil {
		a, err := h.cfg.Auth.EffectiveAuth(r.Context(), agent)
		if err != nil {
			return nil, err
		}
		auth = a
	}
	return BuildOpenAPI(agent.Agent, ServerURL(r), auth), nil
}

// OpenAPIJSON serves GET /api-docs/openapi.json.
func (h *Handlers) OpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.agentFor(w, r, "embodiment.openapi")
	if !ok {
		return
	}
	doc, err := h.document(r, agent)
	if err != nil {
		h.cfg.WriteError(w, r, err)
		return
	}
	body, hash, err := HashDocument(doc)
	if err != nil {
		h.cfg.WriteError(w, r, types.NewError("embodiment.openapi", types.ErrUpstream, "failed to encode OpenAPI document", err))
		return
	}
	h.publishHash(r.Context(), agent, hash)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(types.HeaderSpecHash, hash)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Postman serves GET /postman as a file download.
func (h *Handlers) Postman(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.agentFor(w, r, "embodiment.postman")
	if !ok {
		return
	}
	doc, err := h.document(r, agent)
	if err != nil {
		h.cfg.WriteError(w, r, err)
		return
	}
	_, hash, err := HashDocument(doc)
	if err != nil {
		h.cfg.WriteError(w, r, types.NewError("embodiment.postman", types.ErrUpstream, "failed to encode OpenAPI document", err))
		return
	}
	h.publishHash(r.Context(), agent, hash)

	body, err := json.MarshalIndent(ToPostman(doc), "", "  ")
	if err != nil {
		h.cfg.WriteError(w, r, types.NewError("embodiment.postman", types.ErrUpstream, "failed to encode Postman collection", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", PostmanFilename(agent.Agent.Name)))
	w.Header().Set(types.HeaderSpecHash, hash)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Swagger serves GET /swagger. Test domains get the debug bridge script.
func (h *Handlers) Swagger(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.agentFor(w, r, "embodiment.swagger")
	if !ok {
		return
	}

	headers := map[string]string{}
	if r.Header.Get(types.HeaderAgentID) != "" {
		headers[types.HeaderAgentID] = agent.ID
	}
	if agent.HasVersion() && agent.Version != types.VersionLatest {
		headers[types.HeaderAgentVersion] = agent.Version
	}

	specURL := "/api-docs/openapi.json"
	if original := OriginalPath(r); agent.Path != "" && original != agent.Path {
		// Keep the version prefix so the OpenAPI document resolves to the same version.
		if prefix := strings.TrimSuffix(original, agent.Path); prefix != original {
			specURL = prefix + specURL
		}
	}

	title := agent.Agent.Name
	if title == "" {
		title = agent.ID
	}
	page, err := RenderSwagger(SwaggerPage{
		Title:       title,
		SpecURL:     specURL,
		Headers:     headers,
		DebugBridge: agent.UsingTestDomain,
	})
	if err != nil {
		h.cfg.WriteError(w, r, types.NewError("embodiment.swagger", types.ErrUpstream, "failed to render documentation", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// OriginalPath returns the path as sent by the client, before any rewriting.
func OriginalPath(r *http.Request) string {
	if r.RequestURI != "" {
		if u, err := url.ParseRequestURI(r.RequestURI); err == nil {
			return u.Path
		}
	}
	return r.URL.Path
}

// ServerURL derives the public base URL of the request.
func ServerURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
