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
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentDefinition_Skills(t *testing.T) {
	def := &AgentDefinition{
		Components: []Component{
			{ID: "c1", Name: ComponentAPIEndpoint, Title: "Greet", Data: map[string]interface{}{"endpoint": "greet", "description": "Say hello", "ai_exposed": true}},
			{ID: "c2", Name: ComponentNote, Data: map[string]interface{}{"endpoint": "ignored"}},
			{ID: "c3", Name: ComponentAPIEndpoint, Data: map[string]interface{}{"endpoint": "lookup", "method": "get"}},
			{ID: "c4", Name: ComponentAPIEndpoint, Data: map[string]interface{}{}},
		},
	}

	skills := def.Skills()
	require.Len(t, skills, 2)
	assert.Equal(t, "greet", skills[0].Endpoint)
	assert.Equal(t, "POST", skills[0].Method)
	assert.Equal(t, "Greet", skills[0].Summary)
	assert.True(t, skills[0].AIExposed)
	assert.Equal(t, "GET", skills[1].Method)

	s, ok := def.SkillByEndpoint("lookup")
	require.True(t, ok)
	assert.Equal(t, "c3", s.ComponentID)
	_, ok = def.SkillByEndpoint("missing")
	assert.False(t, ok)
}

func TestAgentDefinition_Embodiment(t *testing.T) {
	def := &AgentDefinition{Embodiments: []EmbodimentDescriptor{{Type: EmbodimentChatbot, AllowedDomains: []string{"a.com"}}}}

	e, ok := def.Embodiment(EmbodimentChatbot)
	require.True(t, ok)
	assert.Equal(t, []string{"a.com"}, e.AllowedDomains)

	_, ok = def.Embodiment(EmbodimentMCP)
	assert.False(t, ok)
}

func TestHasDebugHeaders(t *testing.T) {
	h := http.Header{}
	assert.False(t, HasDebugHeaders(h))
	h.Set("x-debug-read", "1")
	assert.True(t, HasDebugHeaders(h))
}

func TestAuthMethod(t *testing.T) {
	assert.True(t, AuthMethod("").IsNone())
	assert.True(t, AuthMethodNone.IsNone())
	assert.False(t, AuthMethodOAuthOIDC.IsNone())
	assert.True(t, AuthMethodAPIKeyBearer.IsValid())
	assert.False(t, AuthMethod("saml").IsValid())

	var cfg *AuthProviderConfig
	_, ok := cfg.SettingsFor(AuthMethodOAuthOIDC)
	assert.False(t, ok)

	cfg = &AuthProviderConfig{Provider: map[AuthMethod]ProviderSettings{AuthMethodAPIKeyBearer: {"consumerKey": "k"}}}
	s, ok := cfg.SettingsFor(AuthMethodAPIKeyBearer)
	require.True(t, ok)
	assert.Equal(t, "k", s.String("consumerKey"))
}

func TestGatewayError(t *testing.T) {
	cause := errors.New("db down")
	err := NewError("resolve.agent_data", ErrUpstream, "db down", cause)

	assert.True(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, CodeUpstream, err.Code())
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())

	err.Status = http.StatusBadGateway
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())

	wrapped := fmt.Errorf("outer: %w", err)
	assert.Equal(t, CodeUpstream, ErrorCodeOf(wrapped))
}

func TestAsGatewayError(t *testing.T) {
	assert.Nil(t, AsGatewayError(nil))
	assert.Equal(t, CodeTimeout, AsGatewayError(context.DeadlineExceeded).Code())
	assert.Equal(t, CodeNotFoundAgent, AsGatewayError(fmt.Errorf("x: %w", ErrNotFoundAgent)).Code())

	internal := AsGatewayError(errors.New("boom"))
	assert.Equal(t, CodeInternal, internal.Code())
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus())
	assert.Equal(t, "internal error", internal.PublicMessage())
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, AgentFromContext(ctx))
	assert.Equal(t, "", CorrelationIDFromContext(ctx))

	ctx = ContextWithAgent(ctx, &AgentContext{ID: "a1"})
	ctx = ContextWithRequest(ctx, &RequestContext{CorrelationID: "c1"})
	assert.Equal(t, "a1", AgentFromContext(ctx).ID)
	assert.Equal(t, "c1", CorrelationIDFromContext(ctx))
}
