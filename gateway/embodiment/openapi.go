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
	"sort"
	"strings"

	"agentgateway/shared/types"
)

// OpenAPIVersion is the document version emitted by BuildOpenAPI
const OpenAPIVersion = "3.0.3"

// Security scheme names used in generated documents
const (
	SchemeOIDC   = "oidc"
	SchemeBearer = "bearerAuth"
)

// Document is an OpenAPI 3 document
type Document struct {
	OpenAPI    string                `json:"openapi"`
	Info       Info                  `json:"info"`
	Servers    []Server              `json:"servers,omitempty"`
	Paths      map[string]PathItem   `json:"paths"`
	Components *Components           `json:"components,omitempty"`
	Security   []SecurityRequirement `json:"security,omitempty"`
}

// Info is the document metadata
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server is a base URL
type Server struct {
	URL string `json:"url"`
}

// PathItem maps a lower-case HTTP method to its operation
type PathItem map[string]*Operation

// Operation describes one skill call
type Operation struct {
	OperationID string              `json:"operationId"`
	Summary     string              `json:"summary,omitempty"`
	Description string              `json:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
	AIExposed   bool                `json:"x-ai-exposed,omitempty"`
	ComponentID string              `json:"x-component-id,omitempty"`
}

// Parameter is a query parameter
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"`
	Required    bool    `json:"required"`
	Description string  `json:"description,omitempty"`
	Schema      *Schema `json:"schema"`
}

// RequestBody is an operation body
type RequestBody struct {
	Required bool                 `json:"required"`
	Content  map[string]MediaType `json:"content"`
}

// MediaType wraps a schema for one content type
type MediaType struct {
	Schema *Schema `json:"schema"`
}

// Schema is the JSON Schema subset used for skill inputs
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Default     interface{}        `json:"default,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

// Response is an operation response
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// Components holds reusable definitions
type Components struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
}

// SecurityScheme declares how callers authenticate
type SecurityScheme struct {
	Type             string `json:"type"`
	Scheme           string `json:"scheme,omitempty"`
	BearerFormat     string `json:"bearerFormat,omitempty"`
	OpenIDConnectURL string `json:"openIdConnectUrl,omitempty"`
	Description      string `json:"description,omitempty"`
}

// SecurityRequirement names a scheme and its scopes
type SecurityRequirement map[string][]string

// AuthInfo is the effective auth configuration of an agent.
type AuthInfo struct {
	Method        types.AuthMethod
	OIDCConfigURL string
}

// BuildOpenAPI generates the OpenAPI document for an agent's skills. When auth
// is not none, the document declares a matching security scheme and a global
// security requirement.
func BuildOpenAPI(def *types.AgentDefinition, serverURL string, auth AuthInfo) *Document {
	version := def.Version
	if version == "" {
		version = "dev"
	}

	doc := &Document{
		OpenAPI: OpenAPIVersion,
		Info: Info{
			Title:       def.Name,
			Description: def.Description,
			Version:     version,
		},
		Paths: make(map[string]PathItem),
	}
	if serverURL != "" {
		doc.Servers = []Server{{URL: strings.TrimRight(serverURL, "/")}}
	}

	for _, skill := range def.Skills() {
		path := "/api/" + strings.TrimLeft(skill.Endpoint, "/")
		item, ok := doc.Paths[path]
		if !ok {
			item = PathItem{}
			doc.Paths[path] = item
		}
		item[strings.ToLower(skill.Method)] = buildOperation(skill)
	}

	switch auth.Method {
	case types.AuthMethodOAuthOIDC:
		if discoveryURL(auth.OIDCConfigURL) == "" {
			// openIdConnect requires a discovery URL; describe the bearer JWT instead.
			doc.Components = &Components{SecuritySchemes: map[string]SecurityScheme{
				SchemeOIDC: {
					Type:         "http",
					Scheme:       "bearer",
					BearerFormat: "JWT",
					Description:  "OAuth 2.0 / OpenID Connect bearer token",
				},
			}}
			doc.Security = []SecurityRequirement{{SchemeOIDC: []string{}}}
			break
		}
		doc.Components = &Components{SecuritySchemes: map[string]SecurityScheme{
			SchemeOIDC: {
				Type:             "openIdConnect",
				OpenIDConnectURL: discoveryURL(auth.OIDCConfigURL),
				Description:      "OAuth 2.0 / OpenID Connect bearer token",
			},
		}}
		doc.Security = []SecurityRequirement{{SchemeOIDC: []string{}}}
	case types.AuthMethodAPIKeyBearer:
		doc.Components = &Components{SecuritySchemes: map[string]SecurityScheme{
			SchemeBearer: {
				Type:        "http",
				Scheme:      "bearer",
				Description: "Agent API key sent as a bearer token",
			},
		}}
		doc.Security = []SecurityRequirement{{SchemeBearer: []string{}}}
	}

	return doc
}

func buildOperation(skill types.Skill) *Operation {
	op := &Operation{
		OperationID: operationID(skill.Endpoint),
		Summary:     skill.Summary,
		Description: skill.Description,
		Tags:        []string{"skills"},
		AIExposed:   skill.AIExposed,
		ComponentID: skill.ComponentID,
		Responses: map[string]Response{
			"200": {
				Description: "Skill result",
				Content:     map[string]MediaType{"application/json": {Schema: &Schema{Type: "object"}}},
			},
		},
	}

	if skill.Method == "GET" || skill.Method == "DELETE" {
		for _, in := range skill.Inputs {
			op.Parameters = append(op.Parameters, Parameter{
				Name:        in.Name,
				In:          "query",
				Required:    !in.Optional,
				Description: in.Description,
				Schema:      inputSchema(in),
			})
		}
		return op
	}

	body := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	hasBinary := false
	for _, in := range skill.Inputs {
		s := inputSchema(in)
		if s.Format == "binary" {
			hasBinary = true
		}
		body.Properties[in.Name] = s
		if !in.Optional {
			body.Required = append(body.Required, in.Name)
		}
	}
	sort.Strings(body.Required)

	contentType := "application/json"
	if hasBinary {
		contentType = "multipart/form-data"
	}
	op.RequestBody = &RequestBody{
		Required: len(body.Required) > 0,
		Content:  map[string]MediaType{contentType: {Schema: body}},
	}
	return op
}

func inputSchema(in types.ComponentInput) *Schema {
	s := &Schema{Description: in.Description}
	if in.Default != "" {
		s.Default = in.Default
	}
	switch strings.ToLower(in.Type) {
	case "number", "float":
		s.Type = "number"
	case "integer", "int":
		s.Type = "integer"
	case "boolean", "bool":
		s.Type = "boolean"
	case "array":
		s.Type = "array"
		s.Items = &Schema{}
	case "object", "json":
		s.Type = "object"
	case "binary", "file", "image", "audio", "video":
		s.Type = "string"
		s.Format = "binary"
	default:
		s.Type = "string"
	}
	return s
}

func operationID(endpoint string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, endpoint)
}

func discoveryURL(configURL string) string {
	u := strings.TrimRight(configURL, "/")
	if u == "" || strings.HasSuffix(u, "/.well-known/openid-configuration") {
		return u
	}
	return u + "/.well-known/openid-configuration"
}

// SortedPaths returns the document paths in lexical order
func (d *Document) SortedPaths() []string {
	paths := make([]string, 0, len(d.Paths))
	for p := range d.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
