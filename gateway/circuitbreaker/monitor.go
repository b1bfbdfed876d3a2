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
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// ErrCircuitOpen is returned by Acquire when the service is short-circuited,
// either open or half-open with its single trial already in flight.
var ErrCircuitOpen = errors.New("circuit open")

// errUpstreamFailure is the outcome handed to the breaker for a failed request.
var errUpstreamFailure = errors.New("upstream failure")

// State names reported in ServiceHealth.State
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// ewmaAlpha weights the newest outcome in the rolling error rate and latency.
const ewmaAlpha = 0.2

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(service types.ServiceName, from, to string)

// Monitor owns the per-service breaker state machines and health records.
// Breaker state only changes through Ticket outcomes reported here; the routing
// engine reads Available and never mutates state.
type Monitor struct {
	cfg types.CircuitBreakerConfig
	log *logger.Logger

	mu       sync.RWMutex
	breakers map[types.ServiceName]*gobreaker.TwoStepCircuitBreaker[struct{}]
	health   map[types.ServiceName]*healthRecord

	onStateChange StateChangeFunc
}

type healthRecord struct {
	lastCheck    time.Time
	responseTime time.Duration
	errorRate    float64
	probeHealthy bool
}

// NewMonitor creates a Monitor with a closed breaker for each service.
func NewMonitor(cfg types.CircuitBreakerConfig, log *logger.Logger, services ...types.ServiceName) *Monitor {
	defaults := types.DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.MonitoringPeriod < 0 {
		cfg.MonitoringPeriod = 0
	}
	if log == nil {
		log = logger.Discard()
	}

	m := &Monitor{
		cfg:      cfg,
		log:      log,
		breakers: make(map[types.ServiceName]*gobreaker.TwoStepCircuitBreaker[struct{}]),
		health:   make(map[types.ServiceName]*healthRecord),
	}
	for _, s := range services {
		m.breaker(s)
	}
	return m
}

// OnStateChange registers an observer for breaker transitions. Call before serving.
func (m *Monitor) OnStateChange(fn StateChangeFunc) {
	m.mu.Lock()
	m.onStateChange = fn
	m.mu.Unlock()
}

// Config returns the breaker configuration in effect
func (m *Monitor) Config() types.CircuitBreakerConfig {
	return m.cfg
}

func (m *Monitor) breaker(service types.ServiceName) *gobreaker.TwoStepCircuitBreaker[struct{}] {
	m.mu.RLock()
	cb, ok := m.breakers[service]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[service]; ok {
		return cb
	}

	threshold := m.cfg.FailureThreshold
	cb = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        service.String(),
		MaxRequests: 1, // exactly one trial in half-open
		Interval:    m.cfg.MonitoringPeriod,
		Timeout:     m.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn("", "", "Circuit breaker state change", map[string]interface{}{
				"service": name,
				"from":    stateName(from),
				"to":      stateName(to),
			})
			m.mu.RLock()
			fn := m.onStateChange
			m.mu.RUnlock()
			if fn != nil {
				fn(types.ServiceName(name), stateName(from), stateName(to))
			}
		},
	})
	m.breakers[service] = cb
	m.health[service] = &healthRecord{probeHealthy: true}
	return cb
}

// Available reports whether a request to service would currently be admitted:
// closed, or half-open with no trial in flight.
func (m *Monitor) Available(service types.ServiceName) bool {
	cb := m.breaker(service)
	switch cb.State() {
	case gobreaker.StateClosed:
		return true
	case gobreaker.StateHalfOpen:
		return cb.Counts().Requests < 1
	default:
		return false
	}
}

// State returns the breaker state name for service
func (m *Monitor) State(service types.ServiceName) string {
	return stateName(m.breaker(service).State())
}

// Ticket is an admitted request. Exactly one of Success or Failure must be called.
type Ticket struct {
	m       *Monitor
	service types.ServiceName
	start   time.Time
	done    func(err error)
	once    sync.Once
}

// Acquire admits one request to service or returns ErrCircuitOpen.
func (m *Monitor) Acquire(service types.ServiceName) (*Ticket, error) {
	done, err := m.breaker(service).Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s (%v)", ErrCircuitOpen, service, err)
		}
		return nil, err
	}
	return &Ticket{m: m, service: service, start: time.Now(), done: done}, nil
}

// Service returns the service the ticket was issued for
func (t *Ticket) Service() types.ServiceName {
	return t.service
}

// Success records a successful outcome
func (t *Ticket) Success() {
	t.finish(true)
}

// Failure records a failed outcome
func (t *Ticket) Failure() {
	t.finish(false)
}

// Report records success when err is nil and failure otherwise.
func (t *Ticket) Report(err error) {
	t.finish(err == nil)
}

func (t *Ticket) finish(success bool) {
	t.once.Do(func() {
		if success {
			t.done(nil)
		} else {
			t.done(errUpstreamFailure)
		}
		t.m.observe(t.service, time.Since(t.start), success)
	})
}

func (m *Monitor) observe(service types.ServiceName, elapsed time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.health[service]
	if !ok {
		rec = &healthRecord{probeHealthy: true}
		m.health[service] = rec
	}

	failure := 0.0
	if !success {
		failure = 1.0
	}
	if rec.lastCheck.IsZero() {
		rec.errorRate = failure
		rec.responseTime = elapsed
	} else {
		rec.errorRate = ewmaAlpha*failure + (1-ewmaAlpha)*rec.errorRate
		rec.responseTime = time.Duration(ewmaAlpha*float64(elapsed) + (1-ewmaAlpha)*float64(rec.responseTime))
	}
	rec.lastCheck = time.Now()
}

// Health returns a snapshot of the service health
func (m *Monitor) Health(service types.ServiceName) types.ServiceHealth {
	cb := m.breaker(service)
	state := cb.State()

	m.mu.RLock()
	defer m.mu.RUnlock()
	rec := m.health[service]
	return types.ServiceHealth{
		Service:      service,
		Healthy:      state != gobreaker.StateOpen && rec.probeHealthy,
		State:        stateName(state),
		LastCheck:    rec.lastCheck,
		ResponseTime: rec.responseTime,
		ErrorRate:    rec.errorRate,
	}
}

// Snapshot returns the health of every known service
func (m *Monitor) Snapshot() []types.ServiceHealth {
	m.mu.RLock()
	services := make([]types.ServiceName, 0, len(m.breakers))
	for s := range m.breakers {
		services = append(services, s)
	}
	m.mu.RUnlock()

	out := make([]types.ServiceHealth, 0, len(services))
	for _, s := range services {
		out = append(out, m.Health(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return s.String()
	}
}
