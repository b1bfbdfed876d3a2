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

	"agentgateway/connectors/agentdata"
	"agentgateway/gateway/authprovider"
	"agentgateway/gateway/embodiment"
	"agentgateway/gateway/vault"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// AuthMiddleware selects and runs the agent's auth provider.
type AuthMiddleware struct {
	settings agentdata.AuthSettingsStore
	registry *authprovider.Registry
	vault    *vault.Resolver
	log      *logger.Logger
}

// NewAuthMiddleware creates the auth middleware
func NewAuthMiddleware(settings agentdata.AuthSettingsStore, registry *authprovider.Registry, resolver *vault.Resolver, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.New("auth")
	}
	return &AuthMiddleware{settings: settings, registry: registry, vault: resolver, log: log}
}

var _ embodiment.AuthSource = (*AuthMiddleware)(nil)

// Config returns the agent's auth configuration: the live settings store
// first, the legacy config embedded in the definition otherwise. Nil means none.
func (a *AuthMiddleware) Config(ctx context.Context, agent *types.AgentContext) (*types.AuthProviderConfig, error) {
	if a.settings != nil {
		cfg, err := a.settings.GetAuthSettings(ctx, agent.ID)
		switch {
		case err == nil && cfg != nil:
			return cfg, nil
		case err != nil && !errors.Is(err, agentdata.ErrNotFound):
			return nil, types.NewError("auth.settings", types.ErrUpstream, "auth settings unavailable", err)
		}
	}
	if agent.Agent != nil && agent.Agent.Auth != nil {
		return agent.Agent.Auth, nil
	}
	return nil, nil
}

// EffectiveAuth reports the method and discovery URL used in generated documents.
func (a *AuthMiddleware) EffectiveAuth(ctx context.Context, agent *types.AgentContext) (embodiment.AuthInfo, error) {
	cfg, err := a.Config(ctx, agent)
	if err != nil {
		return embodiment.AuthInfo{}, err
	}
	if cfg == nil || cfg.Method.IsNone() {
		return embodiment.AuthInfo{Method: types.AuthMethodNone}, nil
	}
	info := embodiment.AuthInfo{Method: cfg.Method}
	if settings, ok := cfg.SettingsFor(cfg.Method); ok {
		info.OIDCConfigURL = settings.String("OIDCConfigURL")
	}
	return info, nil
}

// Authenticate enforces the agent's auth method on r. It returns a nil
// principal when the agent has no auth.
func (a *AuthMiddleware) Authenticate(ctx context.Context, r *http.Request, agent *types.AgentContext) (*authprovider.Principal, error) {
	cfg, err := a.Config(ctx, agent)
	if err != nil {
		return nil, err
	}
	if cfg == nil || cfg.Method.IsNone() {
		return nil, nil
	}

	provider, err := a.registry.Lookup(cfg.Method)
	if err != nil {
		return nil, types.NewError("auth.select", types.ErrProviderNotConfigured, "", err)
	}
	settings, ok := cfg.SettingsFor(cfg.Method)
	if !ok {
		return nil, types.NewError("auth.select", types.ErrProviderNotConfigured, "", nil)
	}

	teamID := ""
	if agent.Agent != nil {
		teamID = agent.Agent.TeamID
	}
	if a.vault != nil {
		settings = a.vault.ResolveFields(ctx, teamID, settings)
	}

	ctx, span := startSpan(ctx, "gateway.authenticate")
	defer span.End()
	span.SetAttributes(stringAttr("auth.method", string(cfg.Method)))

	principal, err := provider.Authenticate(ctx, r, settings)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return principal, nil
}

// Middleware enforces auth on an embodiment route. Execution surfaces
// (always) are gated whenever the agent has an auth method; the others only
// when their embodiment declares authRequired.
func (a *AuthMiddleware) Middleware(kind types.EmbodimentType, always bool, writeErr func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agent := types.AgentFromContext(r.Context())
			if agent == nil {
				writeErr(w, r, types.NewError("auth", types.ErrNotFoundAgent, "", nil))
				return
			}
			if !always && !embodimentRequiresAuth(agent, kind) {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := a.Authenticate(r.Context(), r, agent)
			if err != nil {
				a.log.Info(agent.ID, types.CorrelationIDFromContext(r.Context()), "Request rejected by auth provider", map[string]interface{}{
					"embodiment": string(kind),
					"code":       string(types.ErrorCodeOf(err)),
				})
				writeErr(w, r, err)
				return
			}
			if principal != nil {
				a.log.Debug(agent.ID, types.CorrelationIDFromContext(r.Context()), "Request authenticated", map[string]interface{}{
					"subject": principal.Subject,
					"method":  string(principal.Method),
				})
			}
			next.ServeHTTP(w, r)
		})
	}
}

func embodimentRequiresAuth(agent *types.AgentContext, kind types.EmbodimentType) bool {
	if agent.Agent == nil {
		return false
	}
	d, ok := agent.Agent.Embodiment(kind)
	return ok && d.AuthRequired
}
