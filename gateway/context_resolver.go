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
	"regexp"
	"strings"

	"agentgateway/connectors/agentdata"
	"agentgateway/gateway/embodiment"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// storagePathPrefix marks requests for agent-owned files.
const storagePathPrefix = "/storage/"

var (
	// /v1.2/... selects a deployed version. A bare /v1/ is not a version so
	// /v1/chat/completions stays routable.
	semverSegment = regexp.MustCompile(`^v(\d+(?:\.\d+)+)$`)
	// /@dev/..., /@latest/... or /@1.2/...
	tagSegment = regexp.MustCompile(`^@([A-Za-z0-9][A-Za-z0-9._-]*)$`)
)

// ResolverConfig tunes the context resolver.
type ResolverConfig struct {
	// AgentHostingSuffix identifies test domains, e.g. ".agent.smyth.ai".
	AgentHostingSuffix string
	// AllowDebugPromotion lets debug headers move a production request onto the
	// debug path when the agent has a debug session enabled.
	AllowDebugPromotion bool
}

// ContextResolver builds the AgentContext for each request.
type ContextResolver struct {
	domains agentdata.DomainLookup
	data    agentdata.AgentDataSource
	cfg     ResolverConfig
	log     *logger.Logger
}

// NewContextResolver creates a resolver
func NewContextResolver(domains agentdata.DomainLookup, data agentdata.AgentDataSource, cfg ResolverConfig, log *logger.Logger) *ContextResolver {
	if log == nil {
		log = logger.New("context-resolver")
	}
	cfg.AgentHostingSuffix = strings.ToLower(cfg.AgentHostingSuffix)
	return &ContextResolver{domains: domains, data: data, cfg: cfg, log: log}
}

// SplitVersionPath removes a leading version segment from path. It returns the
// version ("" when none), the remaining path and whether a segment was found.
func SplitVersionPath(path string) (version, rest string, ok bool) {
	trimmed := strings.TrimPrefix(path, "/")
	first, remainder, _ := strings.Cut(trimmed, "/")

	if m := semverSegment.FindStringSubmatch(first); m != nil {
		version = m[1]
	} else if m := tagSegment.FindStringSubmatch(first); m != nil {
		version = m[1]
	} else {
		return "", path, false
	}
	return version, "/" + remainder, true
}

// Resolve determines the agent, version and environment targeted by r.
func (cr *ContextResolver) Resolve(ctx context.Context, r *http.Request) (*types.AgentContext, error) {
	ctx, span := startSpan(ctx, "gateway.resolve")
	defer span.End()

	agent, err := cr.resolve(ctx, r)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		stringAttr("agent.id", agent.ID),
		stringAttr("agent.version", agent.Version),
		boolAttr("agent.test_domain", agent.UsingTestDomain),
	)
	return agent, nil
}

func (cr *ContextResolver) resolve(ctx context.Context, r *http.Request) (*types.AgentContext, error) {
	correlationID := types.CorrelationIDFromContext(ctx)
	host := hostname(r.Host)

	agentID := strings.TrimSpace(r.Header.Get(types.HeaderAgentID))
	if agentID == "" {
		id, err := cr.domains.LookupAgentIDByDomain(ctx, host)
		switch {
		case errors.Is(err, agentdata.ErrNotFound) || (err == nil && id == ""):
			return nil, types.NewError("resolve.domain", types.ErrNotFoundAgent, "", nil)
		case err != nil:
			return nil, timeoutOr(ctx, types.NewError("resolve.domain", types.ErrUpstream, "domain lookup failed", err))
		}
		agentID = id
	}

	version := strings.TrimSpace(r.Header.Get(types.HeaderAgentVersion))
	pathVersion, path, _ := SplitVersionPath(embodiment.OriginalPath(r))
	if version == "" {
		version = pathVersion
	}

	usingTestDomain := isLoopbackHost(host) ||
		(cr.cfg.AgentHostingSuffix != "" && strings.HasSuffix(host, cr.cfg.AgentHostingSuffix))
	hasDebugHeaders := types.HasDebugHeaders(r.Header)

	if !usingTestDomain && version == "" && !hasDebugHeaders {
		version = types.VersionLatest
	}

	fetchVersion := version
	if fetchVersion == types.VersionDev {
		fetchVersion = ""
	}
	def, err := cr.data.GetAgentData(ctx, agentID, fetchVersion)
	if err != nil {
		return nil, timeoutOr(ctx, agentDataError(path, err))
	}
	if def == nil {
		return nil, types.NewError("resolve.agent_data", types.ErrNotFoundAgent, "", nil)
	}

	agent := &types.AgentContext{
		ID:                  agentID,
		Version:             version,
		UsingTestDomain:     usingTestDomain,
		DebugSessionEnabled: def.DebugSessionEnabled,
		IsLocked:            def.IsLocked,
		Domain:              host,
		Path:                path,
		Agent:               normalizeAgent(def),
	}

	if hasDebugHeaders && agent.DebugSessionEnabled && !agent.UsingTestDomain {
		fields := map[string]interface{}{
			"host":      host,
			"client_ip": r.RemoteAddr,
		}
		if rc := types.RequestFromContext(ctx); rc != nil {
			fields["client_ip"] = rc.ClientIP
		}
		if cr.cfg.AllowDebugPromotion {
			agent.UsingTestDomain = true
			agent.DebugPromoted = true
			cr.log.Warn(agentID, correlationID, "Debug headers promoted production request to debug path", fields)
		} else {
			cr.log.Warn(agentID, correlationID, "Debug headers ignored on production domain, promotion disabled", fields)
		}
	}

	cr.log.Debug(agentID, correlationID, "Agent context resolved", map[string]interface{}{
		"version":     agent.Version,
		"test_domain": agent.UsingTestDomain,
		"domain":      host,
	})
	return agent, nil
}

// agentDataError maps a collaborator failure to the gateway taxonomy.
func agentDataError(path string, err error) error {
	if strings.HasPrefix(path, storagePathPrefix) {
		return types.NewError("resolve.agent_data", types.ErrNotFoundFile, "", err)
	}
	if errors.Is(err, agentdata.ErrNotFound) {
		return types.NewError("resolve.agent_data", types.ErrNotFoundAgent, "", err)
	}
	ge := types.NewError("resolve.agent_data", types.ErrUpstream, err.Error(), err)
	var se *agentdata.StatusError
	if errors.As(err, &se) {
		ge.Message = se.Message
		ge.Status = se.Status
	}
	return ge
}

// timeoutOr reports a Timeout when the request deadline caused err.
func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewError("resolve", types.ErrTimeout, "", err)
	}
	return err
}

// normalizeAgent returns a copy of def without canvas annotations or template
// metadata and with default plan info filled in.
func normalizeAgent(def *types.AgentDefinition) *types.AgentDefinition {
	out := *def
	out.TemplateInfo = nil

	notes := make(map[string]bool)
	out.Components = make([]types.Component, 0, len(def.Components))
	for _, c := range def.Components {
		if c.Name == types.ComponentNote {
			notes[c.ID] = true
			continue
		}
		c.TemplateID = ""
		out.Components = append(out.Components, c)
	}

	if len(def.Connections) > 0 {
		out.Connections = make([]types.Connection, 0, len(def.Connections))
		for _, conn := range def.Connections {
			if notes[conn.SourceID] || notes[conn.TargetID] {
				continue
			}
			out.Connections = append(out.Connections, conn)
		}
	}

	if out.PlanInfo == nil {
		out.PlanInfo = types.DefaultPlanInfo()
	}
	return &out
}
