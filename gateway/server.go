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
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentgateway/connectors/agentdata"
	"agentgateway/connectors/config"
	"agentgateway/gateway/authprovider"
	"agentgateway/gateway/circuitbreaker"
	"agentgateway/gateway/embodiment"
	"agentgateway/gateway/vault"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// Version is reported by /health and the MCP server.
const Version = "1.0.0"

// Options are the collaborators of a Server. Config, Store and Vault are required.
type Options struct {
	Config *config.GatewayConfig
	Store  agentdata.Store
	Vault  vault.Backend

	// Hashes caches spec hashes; nil disables caching.
	Hashes embodiment.HashStore
	// Registry receives the Prometheus collectors; nil creates a private one.
	Registry *prometheus.Registry
	// Transport carries forwarded and skill requests; nil uses http.DefaultTransport.
	Transport http.RoundTripper
	// AuthProviders overrides the default api-key-bearer and oauth-oidc providers.
	AuthProviders *authprovider.Registry
	Logger        *logger.Logger
}

// Server wires the gateway components into one HTTP handler.
type Server struct {
	cfg *config.GatewayConfig
	log *logger.Logger

	resolver  *ContextResolver
	cors      *CORSEvaluator
	auth      *AuthMiddleware
	engine    *RoutingEngine
	forwarder *Forwarder
	monitor   *circuitbreaker.Monitor
	metrics   *RoutingMetrics
	registry  *prometheus.Registry
	handlers  *embodiment.Handlers
	errors    errorWriter

	ready atomic.Bool
}

// NewServer builds a Server. ctx bounds background work such as JWKS refresh.
func NewServer(ctx context.Context, opts Options) (*Server, error) {
	if opts.Config == nil || opts.Store == nil || opts.Vault == nil {
		return nil, errors.New("gateway: config, store and vault are required")
	}
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logger.New("gateway")
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	metrics := NewRoutingMetrics(registry)

	monitor := circuitbreaker.NewMonitor(cfg.CircuitBreaker, log.WithComponent("circuit-breaker"),
		types.ServiceDebugger, types.ServiceAgentRunner)
	monitor.OnStateChange(metrics.ObserveCircuitState)

	forwarder, err := NewForwarder(map[types.ServiceName]string{
		types.ServiceDebugger:    cfg.DebuggerURL,
		types.ServiceAgentRunner: cfg.AgentRunnerURL,
	}, monitor, opts.Transport, log.WithComponent("forwarder"))
	if err != nil {
		return nil, err
	}

	providers := opts.AuthProviders
	if providers == nil {
		providers = authprovider.NewRegistry(
			authprovider.NewAPIKeyProvider(),
			authprovider.NewOIDCProvider(ctx, &http.Client{Timeout: 10 * time.Second, Transport: opts.Transport}, log.WithComponent("oidc")),
		)
	}

	s := &Server{
		cfg: cfg,
		log: log,
		resolver: NewContextResolver(opts.Store, opts.Store, ResolverConfig{
			AgentHostingSuffix:  cfg.AgentHostingSuffix,
			AllowDebugPromotion: cfg.AllowDebugPromotion,
		}, log.WithComponent("context-resolver")),
		cors:      NewCORSEvaluator(cfg.UIServerOrigin, cfg.CORSDefaultDeny, log.WithComponent("cors")),
		auth:      NewAuthMiddleware(opts.Store, providers, vault.NewResolver(opts.Vault, log.WithComponent("vault")), log.WithComponent("auth")),
		engine:    NewRoutingEngine(monitor, metrics, log.WithComponent("routing")),
		forwarder: forwarder,
		monitor:   monitor,
		metrics:   metrics,
		registry:  registry,
		errors:    errorWriter{log: log},
	}
	s.handlers = embodiment.NewHandlers(embodiment.Config{
		ExecutorFor:   s.executorFor,
		Auth:          s.auth,
		Hashes:        opts.Hashes,
		WriteError:    s.errors.write,
		Logger:        log.WithComponent("embodiment"),
		ServerVersion: Version,
	})
	return s, nil
}

// Monitor returns the breaker monitor
func (s *Server) Monitor() *circuitbreaker.Monitor {
	return s.monitor
}

// Metrics returns the routing metrics
func (s *Server) Metrics() *RoutingMetrics {
	return s.metrics
}

// SetReady switches /health from "starting" to "healthy".
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the complete middleware chain and router. ctx stops the
// rate limiter's cleanup loop.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()
	r.Use(routeLabelMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/api/routing/status", s.routingStatusHandler).Methods(http.MethodGet)
	circuitbreaker.NewHandler(s.monitor).RegisterRoutes(r)

	s.route(r, "/v1/chat/completions", types.EmbodimentChatGPT, true, s.handlers.ChatCompletions, http.MethodPost)
	s.route(r, "/swagger", types.EmbodimentSwagger, false, s.handlers.Swagger, http.MethodGet)
	s.route(r, "/api-docs/openapi.json", types.EmbodimentOpenAPIDocument, false, s.handlers.OpenAPIJSON, http.MethodGet)
	s.route(r, "/postman", types.EmbodimentPostman, false, s.handlers.Postman, http.MethodGet)
	s.route(r, "/mcp", types.EmbodimentMCP, true, s.handlers.MCP, http.MethodGet, http.MethodPost, http.MethodDelete)

	for _, p := range []struct {
		prefix string
		kind   types.EmbodimentType
	}{
		{"/chatbot", types.EmbodimentChatbot},
		{"/voice", types.EmbodimentVoice},
		{"/form-preview", types.EmbodimentFormPreview},
	} {
		h := s.embodimentChain(p.kind, false, http.HandlerFunc(s.proxy))
		r.Handle(p.prefix, h)
		r.PathPrefix(p.prefix + "/").Handler(h)
	}
	r.Handle("/api/{endpoint:.+}", s.embodimentChain(types.EmbodimentAPI, true, http.HandlerFunc(s.proxy)))

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.errors.write(w, req, types.NewError("route", types.ErrNotFoundFile, "route not found", nil))
	})

	var h http.Handler = r
	h = versionPathMiddleware(h)
	h = s.timeoutMiddleware(h)
	h = s.rateLimitMiddleware(ctx)(h)
	h = s.requestContextMiddleware(h)
	return h
}

func (s *Server) route(r *mux.Router, path string, kind types.EmbodimentType, always bool, fn http.HandlerFunc, methods ...string) {
	r.Handle(path, s.embodimentChain(kind, always, fn)).Methods(append(methods, http.MethodOptions)...)
}

// embodimentChain is resolve -> CORS -> auth -> handler. rs/cors answers
// preflights; any other OPTIONS request gets an empty 204.
func (s *Server) embodimentChain(kind types.EmbodimentType, always bool, h http.Handler) http.Handler {
	authed := s.auth.Middleware(kind, always, s.errors.write)(h)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		authed.ServeHTTP(w, r)
	})
	return s.resolveMiddleware(s.corsMiddleware(kind)(inner))
}

// decide runs the routing engine for the request's agent.
func (s *Server) decide(r *http.Request) (types.RoutingDecision, error) {
	agent := types.AgentFromContext(r.Context())
	if agent == nil {
		return types.RoutingDecision{}, types.NewError("routing.decide", types.ErrNotFoundAgent, "", nil)
	}
	_, span := startSpan(r.Context(), "gateway.decide")
	defer span.End()

	decision, err := s.engine.Decide(agent, types.RequestFromContext(r.Context()))
	if err != nil {
		recordError(span, err)
		return decision, err
	}
	span.SetAttributes(stringAttr("routing.service", decision.Service.String()), stringAttr("routing.reason", decision.Reason))
	return decision, nil
}

func (s *Server) proxy(w http.ResponseWriter, r *http.Request) {
	decision, err := s.decide(r)
	if err != nil {
		s.errors.write(w, r, err)
		return
	}
	s.forwarder.Proxy(w, r, decision, s.errors.write)
}

func (s *Server) executorFor(r *http.Request) (embodiment.SkillExecutor, error) {
	decision, err := s.decide(r)
	if err != nil {
		return nil, err
	}
	return s.forwarder.Executor(r, decision), nil
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "healthy"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"service":   "agent-gateway",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"services":  s.monitor.Snapshot(),
	})
}

func (s *Server) routingStatusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics":  s.metrics.Snapshot(),
		"services": s.monitor.Snapshot(),
	})
}
