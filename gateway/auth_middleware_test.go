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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgateway/connectors/agentdata"
	"agentgateway/gateway/authprovider"
	"agentgateway/gateway/vault"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

func newTestAuth(store agentdata.AuthSettingsStore) *AuthMiddleware {
	backend := vault.NewMemoryBackend(map[string]string{testTeamID + "/api_key": "s3cret"})
	return NewAuthMiddleware(store, authprovider.NewRegistry(authprovider.NewAPIKeyProvider()),
		vault.NewResolver(backend, logger.Discard()), logger.Discard())
}

func authAgent(auth *types.AuthProviderConfig, embodiments ...types.EmbodimentDescriptor) *types.AgentContext {
	return &types.AgentContext{
		ID: testAgentID,
		Agent: &types.AgentDefinition{
			ID:          testAgentID,
			TeamID:      testTeamID,
			Auth:        auth,
			Embodiments: embodiments,
		},
	}
}

func apiKeyConfig(key string) *types.AuthProviderConfig {
	return &types.AuthProviderConfig{
		Method: types.AuthMethodAPIKeyBearer,
		Provider: map[types.AuthMethod]types.ProviderSettings{
			types.AuthMethodAPIKeyBearer: {"consumerKey": key},
		},
	}
}

func serveAuth(t *testing.T, a *AuthMiddleware, agent *types.AgentContext, kind types.EmbodimentType, always bool, token string) *httptest.ResponseRecorder {
	t.Helper()
	ew := errorWriter{log: logger.Discard()}
	h := a.Middleware(kind, always, ew.write)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "http://"+prodDomain+"/api/chat", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	r = r.WithContext(types.ContextWithAgent(r.Context(), agent))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestAuthMiddleware_NoAuthPassesThrough(t *testing.T) {
	a := newTestAuth(agentdata.NewMemoryStore())
	rec := serveAuth(t, a, authAgent(nil), types.EmbodimentAPI, true, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveAuth(t, a, authAgent(&types.AuthProviderConfig{Method: types.AuthMethodNone}), types.EmbodimentAPI, true, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_ProviderNotConfigured(t *testing.T) {
	a := newTestAuth(agentdata.NewMemoryStore())

	for name, cfg := range map[string]*types.AuthProviderConfig{
		"missing settings":  {Method: types.AuthMethodOAuthOIDC},
		"unregistered kind": {Method: types.AuthMethod("saml"), Provider: map[types.AuthMethod]types.ProviderSettings{"saml": {"x": "y"}}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := serveAuth(t, a, authAgent(cfg), types.EmbodimentAPI, true, "anything")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, "Auth provider not configured", resp.Error)
			assert.Equal(t, string(types.CodeProviderNotConfigured), resp.Code)
		})
	}
}

func TestAuthMiddleware_APIKeyWithVaultPlaceholder(t *testing.T) {
	a := newTestAuth(agentdata.NewMemoryStore())
	agent := authAgent(apiKeyConfig(vault.Tokenizer{}.Format("api_key")))

	assert.Equal(t, http.StatusOK, serveAuth(t, a, agent, types.EmbodimentAPI, true, "s3cret").Code)

	rec := serveAuth(t, a, agent, types.EmbodimentAPI, true, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.CodeUnauthorized), decodeError(t, rec).Code)

	rec = serveAuth(t, a, agent, types.EmbodimentAPI, true, "{{KEY(api_key)}}")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_UnresolvedPlaceholderNeverMatches(t *testing.T) {
	a := newTestAuth(agentdata.NewMemoryStore())
	agent := authAgent(apiKeyConfig(vault.Tokenizer{}.Format("missing_key")))

	rec := serveAuth(t, a, agent, types.EmbodimentAPI, true, "{{KEY(missing_key)}}")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_EmbodimentAuthRequired(t *testing.T) {
	a := newTestAuth(agentdata.NewMemoryStore())

	open := authAgent(apiKeyConfig("k1"), types.EmbodimentDescriptor{Type: types.EmbodimentSwagger})
	assert.Equal(t, http.StatusOK, serveAuth(t, a, open, types.EmbodimentSwagger, false, "").Code)

	gated := authAgent(apiKeyConfig("k1"), types.EmbodimentDescriptor{Type: types.EmbodimentSwagger, AuthRequired: true})
	assert.Equal(t, http.StatusUnauthorized, serveAuth(t, a, gated, types.EmbodimentSwagger, false, "").Code)
	assert.Equal(t, http.StatusOK, serveAuth(t, a, gated, types.EmbodimentSwagger, false, "k1").Code)
}

func TestAuthMiddleware_SettingsStoreWins(t *testing.T) {
	store := agentdata.NewMemoryStore()
	store.PutAuthSettings(testAgentID, apiKeyConfig("live-key"))
	a := newTestAuth(store)
	agent := authAgent(apiKeyConfig("legacy-key"))

	assert.Equal(t, http.StatusOK, serveAuth(t, a, agent, types.EmbodimentAPI, true, "live-key").Code)
	assert.Equal(t, http.StatusUnauthorized, serveAuth(t, a, agent, types.EmbodimentAPI, true, "legacy-key").Code)
}

type failingSettings struct{}

func (failingSettings) GetAuthSettings(context.Context, string) (*types.AuthProviderConfig, error) {
	return nil, errors.New("settings db down")
}

func TestAuthMiddleware_SettingsFailure(t *testing.T) {
	a := newTestAuth(failingSettings{})

	_, err := a.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil), authAgent(nil))
	require.Error(t, err)
	assert.Equal(t, types.CodeUpstream, types.ErrorCodeOf(err))
}

func TestAuthMiddleware_EffectiveAuth(t *testing.T) {
	a := newTestAuth(agentdata.NewMemoryStore())

	info, err := a.EffectiveAuth(context.Background(), authAgent(nil))
	require.NoError(t, err)
	assert.Equal(t, types.AuthMethodNone, info.Method)

	oidc := &types.AuthProviderConfig{
		Method: types.AuthMethodOAuthOIDC,
		Provider: map[types.AuthMethod]types.ProviderSettings{
			types.AuthMethodOAuthOIDC: {"OIDCConfigURL": "https://idp.example.com/.well-known/openid-configuration"},
		},
	}
	info, err = a.EffectiveAuth(context.Background(), authAgent(oidc))
	require.NoError(t, err)
	assert.Equal(t, types.AuthMethodOAuthOIDC, info.Method)
	assert.Equal(t, "https://idp.example.com/.well-known/openid-configuration", info.OIDCConfigURL)
}
