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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

func corsAgent(allowed ...string) *types.AgentContext {
	return &types.AgentContext{
		ID: testAgentID,
		Agent: &types.AgentDefinition{
			ID: testAgentID,
			Embodiments: []types.EmbodimentDescriptor{
				{Type: types.EmbodimentChatbot, AllowedDomains: allowed},
			},
		},
	}
}

func TestCORSEvaluator_Evaluate(t *testing.T) {
	e := NewCORSEvaluator("https://app.example.io", false, logger.Discard())

	tests := []struct {
		name   string
		agent  *types.AgentContext
		origin string
		host   string
		allow  bool
		reason string
	}{
		{"no origin", corsAgent("shop.example.com"), "", prodDomain, true, "no origin"},
		{"same host", corsAgent("shop.example.com"), "https://" + prodDomain, prodDomain, true, "same host"},
		{"declared domain without scheme", corsAgent("shop.example.com"), "https://shop.example.com", prodDomain, true, "allowed origin"},
		{"declared domain with path", corsAgent("https://shop.example.com/checkout"), "https://SHOP.example.com", prodDomain, true, "allowed origin"},
		{"ui origin", corsAgent("shop.example.com"), "https://app.example.io", prodDomain, true, "allowed origin"},
		{"loopback with port", corsAgent("shop.example.com"), "http://localhost:3000", prodDomain, true, "localhost"},
		{"undeclared origin", corsAgent("shop.example.com"), "https://evil.example.net", prodDomain, false, "origin not allowed"},
		{"nothing declared", corsAgent(), "https://evil.example.net", prodDomain, true, "no allowed domains declared"},
		{"no agent", nil, "https://evil.example.net", prodDomain, true, "no allowed domains declared"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(tt.agent, types.EmbodimentChatbot, tt.origin, tt.host)
			assert.Equal(t, tt.allow, d.Allow)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestCORSEvaluator_DefaultDeny(t *testing.T) {
	e := NewCORSEvaluator("", true, logger.Discard())

	d := e.Evaluate(corsAgent(), types.EmbodimentChatbot, "https://evil.example.net", prodDomain)
	assert.False(t, d.Allow)

	d = e.Evaluate(corsAgent(), types.EmbodimentChatbot, "http://127.0.0.1:8080", prodDomain)
	assert.True(t, d.Allow)
}

func TestCORSEvaluator_OtherEmbodimentDomainsIgnored(t *testing.T) {
	e := NewCORSEvaluator("", true, logger.Discard())

	d := e.Evaluate(corsAgent("shop.example.com"), types.EmbodimentSwagger, "https://shop.example.com", prodDomain)
	assert.False(t, d.Allow)
	assert.NotContains(t, d.AllowedOrigins, "https://shop.example.com")
}

func TestNormalizeOrigin(t *testing.T) {
	assert.Equal(t, "https://example.com", normalizeOrigin("example.com"))
	assert.Equal(t, "http://example.com:8080", normalizeOrigin("HTTP://Example.com:8080/path"))
	assert.Equal(t, "", normalizeOrigin("  "))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()
	gw := newTestGateway(t, testConfig(upstream.URL), newTestStore(t))

	preflight := func(origin string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodOptions, "http://"+prodDomain+"/chatbot", nil)
		r.Header.Set("Origin", origin)
		r.Header.Set("Access-Control-Request-Method", http.MethodGet)
		return gw.do(r)
	}

	t.Run("denied", func(t *testing.T) {
		rec := preflight("https://evil.example.net")
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

		entry, ok := gw.logs.find(t, "CORS preflight denied")
		require.True(t, ok)
		assert.Equal(t, logger.WARN, entry.Level)
		assert.Equal(t, prodDomain, entry.Fields["host"])
		assert.Equal(t, "https://evil.example.net", entry.Fields["origin"])
		assert.Contains(t, entry.Fields["allowed_origins"], "https://shop.example.com")
	})

	t.Run("allowed", func(t *testing.T) {
		rec := preflight("https://shop.example.com")
		assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}
