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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "10.0.0.1", clientIP(r, nil), "untrusted peers cannot set the client ip")
	assert.Equal(t, "203.0.113.9", clientIP(r, []string{"10.0.0.1"}))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(r, []string{"10.0.0.1"}))
}

func TestRequestContextMiddleware_CorrelationID(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()
	gw := newTestGateway(t, testConfig(upstream.URL), newTestStore(t))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(types.HeaderCorrelationID, "from-caller")
	rec := gw.do(r)
	assert.Equal(t, "from-caller", rec.Header().Get(types.HeaderCorrelationID))

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(types.HeaderCorrelationID, strings.Repeat("x", 200))
	rec = gw.do(r)
	assert.Len(t, rec.Header().Get(types.HeaderCorrelationID), 36)

	entry, ok := gw.logs.find(t, "Request completed")
	require.True(t, ok)
	assert.Equal(t, "from-caller", entry.CorrelationID)
	assert.Equal(t, float64(http.StatusOK), entry.Fields["status"])
}

func TestRequestContextMiddleware_RecoversPanics(t *testing.T) {
	s := &Server{
		cfg:     testConfig("http://127.0.0.1:1"),
		log:     logger.Discard(),
		metrics: NewRoutingMetrics(nil),
		errors:  errorWriter{log: logger.Discard()},
	}
	h := s.requestContextMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(types.CodeInternal), resp.Code)
	assert.Equal(t, "internal error", resp.Error)
}

func TestRateLimitMiddleware(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()
	cfg := testConfig(upstream.URL)
	cfg.RateLimit.RequestsPerMinute = 60
	cfg.RateLimit.Burst = 2
	gw := newTestGateway(t, cfg, newTestStore(t))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.RemoteAddr = "192.0.2.10:1234"
		codes = append(codes, gw.do(r).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// other clients have their own bucket
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.RemoteAddr = "192.0.2.11:1234"
	rec := gw.do(r)
	assert.Equal(t, http.StatusOK, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.RemoteAddr = "192.0.2.10:1234"
	rec = gw.do(r)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeError(t, rec).Code)
}

func TestTimeoutMiddleware_SlowUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer upstream.Close()
	cfg := testConfig(upstream.URL)
	cfg.RequestTimeout = 50 * time.Millisecond
	gw := newTestGateway(t, cfg, newTestStore(t))

	r := httptest.NewRequest(http.MethodGet, "http://"+prodDomain+"/api/chat", nil)
	rec := gw.do(r)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, string(types.CodeTimeout), decodeError(t, rec).Code)
}

func TestVersionPathMiddleware(t *testing.T) {
	var seen string
	h := versionPathMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = r.URL.Path
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v2.1/swagger", nil))
	assert.Equal(t, "/swagger", seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil))
	assert.Equal(t, "/v1/chat/completions", seen)
}

func TestErrorWriter_DetailsOnlyOnTestDomains(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	base := upstream.URL
	upstream.Close()
	gw := newTestGateway(t, testConfig(base), newTestStore(t))

	r := httptest.NewRequest(http.MethodPost, "http://"+testAgentHost+"/api/chat", nil)
	r.Header.Set(types.HeaderAgentID, testAgentID)
	rec := gw.do(r)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	require.NotNil(t, resp.Details)
	assert.Equal(t, "forward.proxy", resp.Details.Op)
	assert.NotEmpty(t, resp.Details.Cause)
	assert.Equal(t, rec.Header().Get(types.HeaderCorrelationID), resp.Details.CorrelationID)

	r = httptest.NewRequest(http.MethodPost, "http://"+prodDomain+"/api/chat", nil)
	rec = gw.do(r)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Nil(t, decodeError(t, rec).Details)
}
