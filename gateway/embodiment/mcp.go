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

package embodiment

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agentgateway/shared/types"
)

// NewMCPServer builds an MCP server exposing each skill of the agent as a tool.
// Tool calls run through the executor.
func (h *Handlers) NewMCPServer(agent *types.AgentContext, executor SkillExecutor) *server.MCPServer {
	name := agent.Agent.Name
	if name == "" {
		name = h.cfg.ServerName
	}
	s := server.NewMCPServer(name, h.cfg.ServerVersion, server.WithToolCapabilities(false))

	for _, skill := range agent.Agent.Skills() {
		s.AddTool(mcpTool(skill), h.mcpToolHandler(agent, skill, executor))
	}
	return s
}

func mcpTool(skill types.Skill) mcp.Tool {
	desc := skill.Description
	if desc == "" {
		desc = skill.Summary
	}
	opts := []mcp.ToolOption{mcp.WithDescription(desc)}
	for _, in := range skill.Inputs {
		props := []mcp.PropertyOption{mcp.Description(in.Description)}
		if !in.Optional {
			props = append(props, mcp.Required())
		}
		switch inputSchema(in).Type {
		case "number", "integer":
			opts = append(opts, mcp.WithNumber(in.Name, props...))
		case "boolean":
			opts = append(opts, mcp.WithBoolean(in.Name, props...))
		case "object":
			opts = append(opts, mcp.WithObject(in.Name, props...))
		case "array":
			opts = append(opts, mcp.WithArray(in.Name, props...))
		default:
			opts = append(opts, mcp.WithString(in.Name, props...))
		}
	}
	return mcp.NewTool(operationID(skill.Endpoint), opts...)
}

func (h *Handlers) mcpToolHandler(agent *types.AgentContext, skill types.Skill, executor SkillExecutor) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		payload, err := json.Marshal(args)
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}

		result, err := executor.ExecuteSkill(ctx, agent.ID, skill.ComponentID, payload)
		if err != nil {
			ge := types.AsGatewayError(err)
			h.log.Warn(agent.ID, types.CorrelationIDFromContext(ctx), "MCP tool call failed", map[string]interface{}{
				"tool":  request.Params.Name,
				"code":  string(ge.Code()),
				"error": err.Error(),
			})
			return mcp.NewToolResultError(ge.PublicMessage()), nil
		}
		return mcp.NewToolResultText(resultText(result)), nil
	}
}

// MCP serves the streamable HTTP MCP transport at /mcp.
func (h *Handlers) MCP(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.agentFor(w, r, "embodiment.mcp")
	if !ok {
		return
	}
	executor, err := h.executorFor(r)
	if err != nil {
		h.cfg.WriteError(w, r, err)
		return
	}

	s := h.NewMCPServer(agent, executor)
	server.NewStreamableHTTPServer(s, server.WithStateLess(true)).ServeHTTP(w, r)
}
