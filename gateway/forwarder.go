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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"

	"agentgateway/gateway/circuitbreaker"
	"agentgateway/gateway/embodiment"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// maxSkillResultBytes bounds a buffered (non-streaming) skill result.
const maxSkillResultBytes = 32 << 20

// propagatedHeaders are copied from the inbound request on skill calls.
var propagatedHeaders = []string{
	types.HeaderDebugStop,
	types.HeaderDebugRun,
	types.HeaderDebugInject,
	types.HeaderDebugRead,
	types.HeaderConversationID,
	types.HeaderRemoteCall,
	"Authorization",
}

// Forwarder sends requests to the execution path chosen by the routing engine.
// Every call holds a breaker ticket; transport errors and 5xx responses are
// reported as failures.
type Forwarder struct {
	targets   map[types.ServiceName]*url.URL
	monitor   *circuitbreaker.Monitor
	transport http.RoundTripper
	log       *logger.Logger
}

// NewForwarder creates a forwarder for the given service base URLs.
func NewForwarder(targets map[types.ServiceName]string, monitor *circuitbreaker.Monitor, transport http.RoundTripper, log *logger.Logger) (*Forwarder, error) {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if log == nil {
		log = logger.New("forwarder")
	}
	parsed := make(map[types.ServiceName]*url.URL, len(targets))
	for service, raw := range targets {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid %s url %q", service, raw)
		}
		parsed[service] = u
	}
	return &Forwarder{targets: parsed, monitor: monitor, transport: transport, log: log}, nil
}

func (f *Forwarder) target(service types.ServiceName) (*url.URL, error) {
	u, ok := f.targets[service]
	if !ok {
		return nil, types.NewError("forward", types.ErrUpstream, fmt.Sprintf("no endpoint configured for %s", service), nil)
	}
	return u, nil
}

func (f *Forwarder) acquire(service types.ServiceName) (*circuitbreaker.Ticket, error) {
	ticket, err := f.monitor.Acquire(service)
	if err != nil {
		return nil, types.NewError("forward", types.ErrCircuitOpen, "", err)
	}
	return ticket, nil
}

// report records the outcome of an upstream exchange. A caller that went away
// is not evidence against the service.
func report(ctx context.Context, ticket *circuitbreaker.Ticket, status int, err error) {
	switch {
	case err != nil && errors.Is(ctx.Err(), context.Canceled):
		ticket.Success()
	case err != nil:
		ticket.Failure()
	case status >= http.StatusInternalServerError:
		ticket.Failure()
	default:
		ticket.Success()
	}
}

// outcomeBody reports the breaker outcome when the upstream body is closed, so
// a body that breaks mid-copy counts as a failure.
type outcomeBody struct {
	io.ReadCloser
	ctx    context.Context
	ticket *circuitbreaker.Ticket
	status int

	mu  sync.Mutex
	err error
	eof bool
}

func newOutcomeBody(ctx context.Context, ticket *circuitbreaker.Ticket, resp *http.Response) *outcomeBody {
	return &outcomeBody{ReadCloser: resp.Body, ctx: ctx, ticket: ticket, status: resp.StatusCode}
}

func (b *outcomeBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil {
		b.mu.Lock()
		if err == io.EOF {
			b.eof = true
		} else if b.err == nil {
			b.err = err
		}
		b.mu.Unlock()
	}
	return n, err
}

func (b *outcomeBody) Close() error {
	closeErr := b.ReadCloser.Close()

	b.mu.Lock()
	err := b.err
	if err == nil && !b.eof && b.ctx.Err() != nil {
		err = b.ctx.Err()
	}
	b.mu.Unlock()

	report(b.ctx, b.ticket, b.status, err)
	return closeErr
}

// Proxy streams r to the selected service, keeping the version-stripped path.
func (f *Forwarder) Proxy(w http.ResponseWriter, r *http.Request, decision types.RoutingDecision, writeErr func(http.ResponseWriter, *http.Request, error)) {
	agent := types.AgentFromContext(r.Context())
	correlationID := types.CorrelationIDFromContext(r.Context())

	target, err := f.target(decision.Service)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	ticket, err := f.acquire(decision.Service)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	ctx, span := startSpan(r.Context(), "gateway.forward")
	defer span.End()
	span.SetAttributes(stringAttr("routing.service", decision.Service.String()), floatAttr("routing.confidence", decision.Confidence))
	r = r.WithContext(ctx)

	path := r.URL.Path
	if agent != nil && agent.Path != "" {
		path = agent.Path
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = strings.TrimRight(target.Path, "/") + path
			pr.Out.URL.RawPath = ""
			pr.SetXForwarded()
			pr.Out.Header.Set(types.HeaderCorrelationID, correlationID)
			if agent != nil {
				pr.Out.Header.Set(types.HeaderAgentID, agent.ID)
				if agent.HasVersion() {
					pr.Out.Header.Set(types.HeaderAgentVersion, agent.Version)
				}
			}
		},
		Transport:     f.transport,
		FlushInterval: -1,
		ModifyResponse: func(resp *http.Response) error {
			if resp.StatusCode == http.StatusSwitchingProtocols {
				report(ctx, ticket, resp.StatusCode, nil)
			} else {
				resp.Body = newOutcomeBody(ctx, ticket, resp)
			}
			resp.Header.Set(types.HeaderRoutedService, decision.Service.String())
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			report(ctx, ticket, 0, err)
			recordError(span, err)
			kind := types.ErrUpstream
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				kind = types.ErrTimeout
			}
			ge := types.NewError("forward.proxy", kind, "", err)
			if kind == types.ErrUpstream {
				ge.Status = http.StatusBadGateway
			}
			writeErr(w, r, ge)
		},
	}

	agentID := ""
	if agent != nil {
		agentID = agent.ID
	}
	f.log.Debug(agentID, correlationID, "Forwarding request", map[string]interface{}{
		"service": decision.Service.String(),
		"path":    path,
		"reason":  decision.Reason,
	})
	proxy.ServeHTTP(w, r)
}

// Executor returns a SkillExecutor bound to the decision and inbound request.
func (f *Forwarder) Executor(in *http.Request, decision types.RoutingDecision) embodiment.SkillExecutor {
	return &routedExecutor{f: f, service: decision.Service, in: in}
}

type routedExecutor struct {
	f       *Forwarder
	service types.ServiceName
	in      *http.Request
}

func (e *routedExecutor) ExecuteSkill(ctx context.Context, agentID, componentID string, payload json.RawMessage) (json.RawMessage, error) {
	resp, err := e.invoke(ctx, agentID, componentID, payload, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSkillResultBytes))
	if err != nil {
		return nil, types.NewError("forward.skill", types.ErrUpstream, "failed to read skill result", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		return quoted, nil
	}
	return body, nil
}

func (e *routedExecutor) StreamSkill(ctx context.Context, agentID, componentID string, payload json.RawMessage) (io.ReadCloser, error) {
	resp, err := e.invoke(ctx, agentID, componentID, payload, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// invoke performs POST <service>/skills/<componentID>. Non-2xx responses are
// returned as UpstreamErrors carrying the upstream status and message.
func (e *routedExecutor) invoke(ctx context.Context, agentID, componentID string, payload json.RawMessage, stream bool) (*http.Response, error) {
	target, err := e.f.target(e.service)
	if err != nil {
		return nil, err
	}
	ticket, err := e.f.acquire(e.service)
	if err != nil {
		return nil, err
	}

	ctx, span := startSpan(ctx, "gateway.skill")
	defer span.End()
	span.SetAttributes(stringAttr("routing.service", e.service.String()), stringAttr("skill.component_id", componentID))

	endpoint := strings.TrimRight(target.String(), "/") + "/skills/" + url.PathEscape(componentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		ticket.Success()
		return nil, types.NewError("forward.skill", types.ErrUpstream, "failed to build skill request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "application/x-ndjson")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	for _, h := range propagatedHeaders {
		if v := e.in.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	req.Header.Set(types.HeaderAgentID, agentID)
	if agent := types.AgentFromContext(e.in.Context()); agent != nil && agent.HasVersion() {
		req.Header.Set(types.HeaderAgentVersion, agent.Version)
	}
	req.Header.Set(types.HeaderCorrelationID, types.CorrelationIDFromContext(e.in.Context()))

	resp, err := e.f.transport.RoundTrip(req)
	if err != nil {
		report(ctx, ticket, 0, err)
		recordError(span, err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewError("forward.skill", types.ErrTimeout, "", err)
		}
		return nil, types.NewError("forward.skill", types.ErrUpstream, fmt.Sprintf("%s unreachable", e.service), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		report(ctx, ticket, resp.StatusCode, nil)
		defer resp.Body.Close()
		ge := upstreamError(resp)
		recordError(span, ge)
		return nil, ge
	}
	resp.Body = newOutcomeBody(ctx, ticket, resp)
	return resp, nil
}

func upstreamError(resp *http.Response) *types.GatewayError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	message := strings.TrimSpace(string(body))

	var env struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &env) == nil {
		var s string
		var obj struct {
			Message string `json:"message"`
		}
		switch {
		case json.Unmarshal(env.Error, &s) == nil && s != "":
			message = s
		case json.Unmarshal(env.Error, &obj) == nil && obj.Message != "":
			message = obj.Message
		case env.Message != "":
			message = env.Message
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	ge := types.NewError("forward.skill", types.ErrUpstream, message, fmt.Errorf("upstream status %d", resp.StatusCode))
	ge.Status = resp.StatusCode
	return ge
}
