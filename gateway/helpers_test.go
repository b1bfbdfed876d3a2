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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentgateway/connectors/agentdata"
	"agentgateway/connectors/config"
	"agentgateway/gateway/vault"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

const (
	testAgentID     = "agent-1"
	testTeamID      = "team-1"
	prodDomain      = "prod.example.com"
	hostingSuffix   = ".agent.test"
	testAgentHost   = "agent-1" + hostingSuffix
	testCorrelation = "corr-123"
)

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// entries decodes the JSON log lines written so far.
func (b *syncBuffer) entries(t *testing.T) []logger.LogEntry {
	t.Helper()
	var out []logger.LogEntry
	sc := bufio.NewScanner(strings.NewReader(b.String()))
	for sc.Scan() {
		var e logger.LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	return out
}

func (b *syncBuffer) find(t *testing.T, message string) (logger.LogEntry, bool) {
	t.Helper()
	for _, e := range b.entries(t) {
		if e.Message == message {
			return e, true
		}
	}
	return logger.LogEntry{}, false
}

func testDefinition() *types.AgentDefinition {
	return &types.AgentDefinition{
		ID:                  testAgentID,
		Name:                "Support Bot",
		TeamID:              testTeamID,
		DebugSessionEnabled: true,
		Components: []types.Component{
			{ID: "chat", Name: types.ComponentAPIEndpoint, Title: "Chat", TemplateID: "tpl-1", Data: map[string]interface{}{"endpoint": "chat", "ai_exposed": true},
				Inputs: []types.ComponentInput{{Name: "message", Type: "string"}}},
			{ID: "lookup", Name: types.ComponentAPIEndpoint, Title: "Lookup", Data: map[string]interface{}{"endpoint": "lookup", "method": "get"}},
			{ID: "note-1", Name: types.ComponentNote, Data: map[string]interface{}{"text": "remember me"}},
		},
		Connections: []types.Connection{
			{SourceID: "chat", TargetID: "lookup"},
			{SourceID: "note-1", TargetID: "chat"},
		},
		TemplateInfo: map[string]interface{}{"id": "tpl-1"},
		Embodiments: []types.EmbodimentDescriptor{
			{Type: types.EmbodimentChatbot, AllowedDomains: []string{"https://shop.example.com"}},
		},
	}
}

// newTestStore holds the working copy plus deployed versions 1.0 and 1.1, with
// prodDomain bound to the agent.
func newTestStore(t *testing.T) *agentdata.MemoryStore {
	t.Helper()
	store := agentdata.NewMemoryStore()
	def := testDefinition()
	require.NoError(t, store.PutAgent(def))

	v1 := testDefinition()
	v1.Name = "Support Bot 1.0"
	require.NoError(t, store.PutVersion(v1, "1.0"))
	v11 := testDefinition()
	v11.Name = "Support Bot 1.1"
	require.NoError(t, store.PutVersion(v11, "1.1"))

	store.BindDomain(prodDomain, testAgentID)
	return store
}

func newTestResolver(store *agentdata.MemoryStore, allowPromotion bool, log *logger.Logger) *ContextResolver {
	if log == nil {
		log = logger.Discard()
	}
	return NewContextResolver(store, store, ResolverConfig{
		AgentHostingSuffix:  hostingSuffix,
		AllowDebugPromotion: allowPromotion,
	}, log)
}

// testConfig returns a config pointing both services at upstream.
func testConfig(upstream string) *config.GatewayConfig {
	cfg := config.DefaultGatewayConfig()
	cfg.AgentHostingSuffix = hostingSuffix
	cfg.DebuggerURL = upstream + "/debugger"
	cfg.AgentRunnerURL = upstream + "/runner"
	cfg.RequestTimeout = 5 * time.Second
	cfg.RateLimit.RequestsPerMinute = 0
	cfg.CircuitBreaker = types.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		MonitoringPeriod: time.Minute,
	}
	return cfg
}

type testGateway struct {
	server  *Server
	handler http.Handler
	store   *agentdata.MemoryStore
	logs    *syncBuffer
}

func newTestGateway(t *testing.T, cfg *config.GatewayConfig, store *agentdata.MemoryStore) *testGateway {
	t.Helper()
	logs := &syncBuffer{}
	log := logger.NewWithWriter("gateway", logs, logger.DEBUG)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := NewServer(ctx, Options{
		Config: cfg,
		Store:  store,
		Vault:  vault.NewMemoryBackend(map[string]string{testTeamID + "/api_key": "s3cret"}),
		Logger: log,
	})
	require.NoError(t, err)
	srv.SetReady(true)
	return &testGateway{server: srv, handler: srv.Handler(ctx), store: store, logs: logs}
}

func (g *testGateway) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}
