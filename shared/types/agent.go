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

package types

import "strings"

// Component names with special meaning to the gateway.
const (
	// ComponentAPIEndpoint marks a component as an externally invocable skill.
	ComponentAPIEndpoint = "APIEndpoint"
	// ComponentNote is a canvas annotation with no runtime behavior.
	ComponentNote = "Note"
)

// AgentDefinition is the agent graph as returned by the agent-data collaborator.
type AgentDefinition struct {
	ID                  string                 `json:"id"`
	Name                string                 `json:"name"`
	Description         string                 `json:"description,omitempty"`
	TeamID              string                 `json:"teamId"`
	Version             string                 `json:"version,omitempty"`
	Domain              string                 `json:"domain,omitempty"`
	DebugSessionEnabled bool                   `json:"debugSessionEnabled"`
	IsLocked            bool                   `json:"isLocked,omitempty"`
	Components          []Component            `json:"components"`
	Connections         []Connection           `json:"connections,omitempty"`
	Embodiments         []EmbodimentDescriptor `json:"embodiments,omitempty"`
	Auth                *AuthProviderConfig    `json:"auth,omitempty"` // legacy embedded auth config
	PlanInfo            *PlanInfo              `json:"planInfo,omitempty"`
	TemplateInfo        map[string]interface{} `json:"templateInfo,omitempty"`
	Variables           map[string]string      `json:"variables,omitempty"`
}

// Component is one node of the agent graph
type Component struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	TemplateID  string                 `json:"templateId,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Inputs      []ComponentInput       `json:"inputs,omitempty"`
	Outputs     []ComponentOutput      `json:"outputs,omitempty"`
}

// ComponentInput describes one input port of a component
type ComponentInput struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
	Default     string `json:"default,omitempty"`
}

// ComponentOutput describes one output port of a component
type ComponentOutput struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Connection links an output port to an input port
type Connection struct {
	SourceID    string `json:"sourceId"`
	SourceIndex int    `json:"sourceIndex"`
	TargetID    string `json:"targetId"`
	TargetIndex int    `json:"targetIndex"`
}

// PlanInfo carries plan/quota properties the runtime enforces downstream.
type PlanInfo struct {
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Flags      map[string]bool        `json:"flags,omitempty"`
}

// DefaultPlanInfo is used when the agent-data collaborator returns none.
func DefaultPlanInfo() *PlanInfo {
	return &PlanInfo{
		Name: "default",
		Properties: map[string]interface{}{
			"maxLatency":      120,
			"maxConcurrency":  10,
			"tasksPerMinute":  60,
			"storageQuotaMB":  100,
			"embodimentsOpen": true,
		},
		Flags: map[string]bool{
			"hasBuiltinModels": false,
			"whitelabel":       false,
		},
	}
}

// Skill is an APIEndpoint component viewed as an externally invocable capability.
type Skill struct {
	ComponentID string
	Endpoint    string
	Method      string
	Summary     string
	Description string
	Inputs      []ComponentInput
	AIExposed   bool
}

// Skills returns the APIEndpoint components of the agent in graph order.
func (d *AgentDefinition) Skills() []Skill {
	var skills []Skill
	for _, c := range d.Components {
		if c.Name != ComponentAPIEndpoint {
			continue
		}
		endpoint := dataString(c.Data, "endpoint")
		if endpoint == "" {
			continue
		}
		method := strings.ToUpper(dataString(c.Data, "method"))
		if method == "" {
			method = "POST"
		}
		desc := dataString(c.Data, "description")
		if desc == "" {
			desc = c.Description
		}
		summary := dataString(c.Data, "summary")
		if summary == "" {
			summary = c.Title
		}
		aiExposed, _ := c.Data["ai_exposed"].(bool)
		skills = append(skills, Skill{
			ComponentID: c.ID,
			Endpoint:    endpoint,
			Method:      method,
			Summary:     summary,
			Description: desc,
			Inputs:      c.Inputs,
			AIExposed:   aiExposed,
		})
	}
	return skills
}

// SkillByEndpoint finds a skill by its endpoint name.
func (d *AgentDefinition) SkillByEndpoint(endpoint string) (Skill, bool) {
	for _, s := range d.Skills() {
		if s.Endpoint == endpoint {
			return s, true
		}
	}
	return Skill{}, false
}

// Embodiment returns the descriptor for an embodiment type, if declared.
func (d *AgentDefinition) Embodiment(t EmbodimentType) (EmbodimentDescriptor, bool) {
	for _, e := range d.Embodiments {
		if e.Type == t {
			return e, true
		}
	}
	return EmbodimentDescriptor{}, false
}

func dataString(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}

// EmbodimentType identifies one externally facing protocol surface.
type EmbodimentType string

const (
	EmbodimentChatbot         EmbodimentType = "chatbot"
	EmbodimentChatGPT         EmbodimentType = "chatgpt" // OpenAI-compatible chat completions
	EmbodimentSwagger         EmbodimentType = "swagger"
	EmbodimentPostman         EmbodimentType = "postman"
	EmbodimentFormPreview     EmbodimentType = "form-preview"
	EmbodimentVoice           EmbodimentType = "voice"
	EmbodimentMCP             EmbodimentType = "mcp"
	EmbodimentAPI             EmbodimentType = "api"
	EmbodimentOpenAPIDocument EmbodimentType = "openapi"
)

// EmbodimentDescriptor is declared by the agent per protocol surface.
type EmbodimentDescriptor struct {
	Type           EmbodimentType `json:"type"`
	AllowedDomains []string       `json:"allowedDomains,omitempty"`
	AuthRequired   bool           `json:"authRequired"`
}
