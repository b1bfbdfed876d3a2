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

package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

func testConfig() types.CircuitBreakerConfig {
	return types.CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     50 * time.Millisecond,
		MonitoringPeriod: time.Minute,
	}
}

func fail(t *testing.T, m *Monitor, service types.ServiceName, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ticket, err := m.Acquire(service)
		require.NoError(t, err)
		ticket.Failure()
	}
}

func TestMonitor_OpensAfterThreshold(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard(), types.ServiceAgentRunner)

	fail(t, m, types.ServiceAgentRunner, 2)
	assert.True(t, m.Available(types.ServiceAgentRunner))
	assert.Equal(t, StateClosed, m.State(types.ServiceAgentRunner))

	fail(t, m, types.ServiceAgentRunner, 1)
	assert.False(t, m.Available(types.ServiceAgentRunner))
	assert.Equal(t, StateOpen, m.State(types.ServiceAgentRunner))

	_, err := m.Acquire(types.ServiceAgentRunner)
	assert.True(t, errors.Is(err, ErrCircuitOpen))

	health := m.Health(types.ServiceAgentRunner)
	assert.False(t, health.Healthy)
	assert.Equal(t, StateOpen, health.State)
	assert.Greater(t, health.ErrorRate, 0.0)
}

func TestMonitor_HalfOpenAllowsExactlyOneTrial(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard(), types.ServiceDebugger)
	fail(t, m, types.ServiceDebugger, 3)
	require.False(t, m.Available(types.ServiceDebugger))

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, m.State(types.ServiceDebugger))
	assert.True(t, m.Available(types.ServiceDebugger))

	var admitted atomic.Int32
	var wg sync.WaitGroup
	tickets := make(chan *Ticket, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ticket, err := m.Acquire(types.ServiceDebugger); err == nil {
				admitted.Add(1)
				tickets <- ticket
			}
		}()
	}
	wg.Wait()
	close(tickets)

	assert.Equal(t, int32(1), admitted.Load())
	assert.False(t, m.Available(types.ServiceDebugger), "trial in flight blocks further requests")

	for ticket := range tickets {
		ticket.Success()
	}
	assert.Equal(t, StateClosed, m.State(types.ServiceDebugger))
	assert.True(t, m.Available(types.ServiceDebugger))
}

func TestMonitor_HalfOpenFailureReopens(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard(), types.ServiceAgentRunner)
	fail(t, m, types.ServiceAgentRunner, 3)
	time.Sleep(80 * time.Millisecond)

	ticket, err := m.Acquire(types.ServiceAgentRunner)
	require.NoError(t, err)
	ticket.Report(errors.New("trial failed"))

	assert.Equal(t, StateOpen, m.State(types.ServiceAgentRunner))
	assert.False(t, m.Available(types.ServiceAgentRunner))
}

func TestMonitor_SuccessesDoNotTrip(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard())
	for i := 0; i < 20; i++ {
		ticket, err := m.Acquire(types.ServiceAgentRunner)
		require.NoError(t, err)
		ticket.Report(nil)
	}
	assert.True(t, m.Available(types.ServiceAgentRunner))
	assert.Equal(t, 0.0, m.Health(types.ServiceAgentRunner).ErrorRate)
}

func TestMonitor_TicketIsIdempotent(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard())
	ticket, err := m.Acquire(types.ServiceAgentRunner)
	require.NoError(t, err)
	ticket.Failure()
	ticket.Failure()
	ticket.Failure()

	assert.True(t, m.Available(types.ServiceAgentRunner), "one ticket counts once")
}

func TestMonitor_ServicesAreIsolated(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard(), types.ServiceDebugger, types.ServiceAgentRunner)
	fail(t, m, types.ServiceDebugger, 3)

	assert.False(t, m.Available(types.ServiceDebugger))
	assert.True(t, m.Available(types.ServiceAgentRunner))

	// a second monitor shares nothing with the first
	other := NewMonitor(testConfig(), logger.Discard())
	assert.True(t, other.Available(types.ServiceDebugger))
}

func TestMonitor_OnStateChange(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard())

	var mu sync.Mutex
	var transitions []string
	m.OnStateChange(func(service types.ServiceName, from, to string) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, service.String()+":"+from+"->"+to)
	})

	fail(t, m, types.ServiceAgentRunner, 3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"agent-runner:closed->open"}, transitions)
}

func TestMonitor_Probe(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := NewMonitor(testConfig(), logger.Discard())
	ctx := context.Background()

	assert.True(t, m.Probe(ctx, server.Client(), types.ServiceAgentRunner, server.URL))
	h := m.Health(types.ServiceAgentRunner)
	assert.True(t, h.Healthy)
	assert.False(t, h.LastCheck.IsZero())

	healthy.Store(false)
	assert.False(t, m.Probe(ctx, server.Client(), types.ServiceAgentRunner, server.URL))
	assert.False(t, m.Health(types.ServiceAgentRunner).Healthy)

	// probes never move the breaker
	assert.Equal(t, StateClosed, m.State(types.ServiceAgentRunner))
}

func TestMonitor_StartProbing(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	m := NewMonitor(testConfig(), logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.StartProbing(ctx, 10*time.Millisecond, map[types.ServiceName]string{types.ServiceDebugger: server.URL}, server.Client())

	assert.Eventually(t, func() bool { return hits.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestHandler_Status(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard(), types.ServiceDebugger, types.ServiceAgentRunner)
	fail(t, m, types.ServiceDebugger, 3)

	r := mux.NewRouter()
	NewHandler(m).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/circuit-breaker/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Services []types.ServiceHealth `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Services, 2)
	assert.Equal(t, types.ServiceAgentRunner, body.Services[0].Service)
	assert.Equal(t, StateOpen, body.Services[1].State)
}

func TestTicket_ReportFeedsBreakerCounts(t *testing.T) {
	m := NewMonitor(testConfig(), logger.Discard(), types.ServiceAgentRunner)

	ticket, err := m.Acquire(types.ServiceAgentRunner)
	require.NoError(t, err)
	ticket.Report(nil)

	ticket, err = m.Acquire(types.ServiceAgentRunner)
	require.NoError(t, err)
	ticket.Report(errors.New("connection reset"))

	counts := m.breaker(types.ServiceAgentRunner).Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
}
