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
	"net/http"
	"strings"
	"time"

	"agentgateway/shared/types"
)

// StartProbing polls GET <base>/health for each endpoint every interval until ctx
// is done. Probe results feed ServiceHealth only; breaker state is driven by
// real request outcomes.
func (m *Monitor) StartProbing(ctx context.Context, interval time.Duration, endpoints map[types.ServiceName]string, client *http.Client) {
	if interval <= 0 || len(endpoints) == 0 {
		return
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for service, base := range endpoints {
					m.Probe(ctx, client, service, base)
				}
			}
		}
	}()
}

// Probe performs a single health check against base and records the result.
func (m *Monitor) Probe(ctx context.Context, client *http.Client, service types.ServiceName, base string) bool {
	m.breaker(service)

	start := time.Now()
	healthy := false

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/health", nil)
	if err == nil {
		resp, doErr := client.Do(req)
		if doErr == nil {
			healthy = resp.StatusCode < http.StatusInternalServerError
			_ = resp.Body.Close()
		} else {
			err = doErr
		}
	}
	elapsed := time.Since(start)

	m.mu.Lock()
	rec := m.health[service]
	wasHealthy := rec.probeHealthy
	rec.probeHealthy = healthy
	rec.lastCheck = time.Now()
	rec.responseTime = elapsed
	m.mu.Unlock()

	if wasHealthy != healthy {
		fields := map[string]interface{}{"service": service.String(), "healthy": healthy}
		if err != nil {
			fields["error"] = err.Error()
		}
		m.log.Warn("", "", "Service health changed", fields)
	}
	return healthy
}
