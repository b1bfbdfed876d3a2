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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"agentgateway/shared/types"
)

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
	route  string
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Flush keeps SSE and proxied streams unbuffered.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// requestContextMiddleware creates the RequestContext, echoes the correlation
// id and logs the completed request.
func (s *Server) requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := newRequestContext(r, s.cfg.RateLimit.TrustedProxies)
		w.Header().Set(types.HeaderCorrelationID, rc.CorrelationID)

		rec := &statusRecorder{ResponseWriter: w}
		r = r.WithContext(types.ContextWithRequest(r.Context(), rc))

		defer func() {
			p := recover()
			if p == http.ErrAbortHandler {
				// Re-panicked so net/http aborts the connection mid-body.
				s.log.Warn("", rc.CorrelationID, "Response aborted", map[string]interface{}{
					"path":   r.URL.Path,
					"status": rec.status,
				})
				defer panic(p)
			} else if p != nil {
				s.log.Error("", rc.CorrelationID, "Panic while serving request", map[string]interface{}{
					"panic": fmt.Sprint(p),
					"path":  r.URL.Path,
				})
				if rec.status == 0 {
					s.errors.write(rec, r, fmt.Errorf("panic: %v", p))
				}
			}

			elapsed := time.Since(rc.Timestamp)
			route := rec.route
			if route == "" {
				route = "unmatched"
			}
			s.metrics.ObserveRequest(route, elapsed)
			s.log.InfoWithDuration("", rc.CorrelationID, "Request completed", float64(elapsed.Microseconds())/1000, map[string]interface{}{
				"method":    r.Method,
				"path":      r.URL.Path,
				"status":    rec.status,
				"client_ip": rc.ClientIP,
			})
		}()

		next.ServeHTTP(rec, r)
	})
}

// routeLabelMiddleware records the matched route template on the recorder.
func routeLabelMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec, ok := w.(*statusRecorder); ok {
			if cr := mux.CurrentRoute(r); cr != nil {
				if tpl, err := cr.GetPathTemplate(); err == nil {
					rec.route = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies a per-client-IP token bucket. Idle clients are
// evicted until ctx is done.
func (s *Server) rateLimitMiddleware(ctx context.Context) func(http.Handler) http.Handler {
	cfg := s.cfg.RateLimit
	if cfg.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	clients := make(map[string]*client)
	mu := &sync.Mutex{}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				mu.Lock()
				for ip, c := range clients {
					if time.Since(c.lastSeen) > 3*time.Minute {
						delete(clients, ip)
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, cfg.TrustedProxies)

			mu.Lock()
			c, ok := clients[ip]
			if !ok {
				c = &client{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute)/60.0, burst)}
				clients[ip] = c
			}
			c.lastSeen = time.Now()
			limiter := c.limiter
			mu.Unlock()

			if !limiter.Allow() {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "Rate limit exceeded", Code: "RATE_LIMITED"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// timeoutMiddleware bounds resolution, routing and forwarding by RequestTimeout.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveMiddleware attaches the AgentContext. Preflight requests carry no
// identity headers, so an unresolvable preflight continues without an agent.
func (s *Server) resolveMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent, err := s.resolver.Resolve(r.Context(), r)
		if err != nil {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			s.metrics.RecordError(types.ErrorCodeOf(err))
			s.errors.write(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(types.ContextWithAgent(r.Context(), agent)))
	})
}

// versionPathMiddleware strips a leading version segment so routes match on
// the bare path. The resolver reads the version from the original request URI.
func versionPathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, rest, ok := SplitVersionPath(r.URL.Path); ok {
			r2 := r.Clone(r.Context())
			r2.URL.Path = rest
			r2.URL.RawPath = ""
			next.ServeHTTP(w, r2)
			return
		}
		next.ServeHTTP(w, r)
	})
}
