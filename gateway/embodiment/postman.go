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
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// PostmanSchemaURL identifies the Postman collection format
const PostmanSchemaURL = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"

// PostmanCollection is a Postman v2.1 collection
type PostmanCollection struct {
	Info     PostmanInfo       `json:"info"`
	Item     []PostmanItem     `json:"item"`
	Auth     *PostmanAuth      `json:"auth,omitempty"`
	Variable []PostmanVariable `json:"variable,omitempty"`
}

// PostmanInfo is the collection header
type PostmanInfo struct {
	PostmanID   string `json:"_postman_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Schema      string `json:"schema"`
}

// PostmanItem is one request in the collection
type PostmanItem struct {
	Name    string         `json:"name"`
	Request PostmanRequest `json:"request"`
}

// PostmanRequest describes the HTTP request
type PostmanRequest struct {
	Method      string          `json:"method"`
	Header      []PostmanHeader `json:"header"`
	Body        *PostmanBody    `json:"body,omitempty"`
	URL         PostmanURL      `json:"url"`
	Description string          `json:"description,omitempty"`
}

// PostmanHeader is a request header
type PostmanHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

// PostmanBody is a raw or form-data body
type PostmanBody struct {
	Mode     string                 `json:"mode"`
	Raw      string                 `json:"raw,omitempty"`
	FormData []PostmanFormParam     `json:"formdata,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// PostmanFormParam is a multipart field
type PostmanFormParam struct {
	Key  string `json:"key"`
	Type string `json:"type"`
	Src  string `json:"src,omitempty"`
}

// PostmanURL is a structured request URL
type PostmanURL struct {
	Raw   string         `json:"raw"`
	Host  []string       `json:"host"`
	Path  []string       `json:"path"`
	Query []PostmanQuery `json:"query,omitempty"`
}

// PostmanQuery is a query parameter
type PostmanQuery struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// PostmanAuth is collection-level auth
type PostmanAuth struct {
	Type   string            `json:"type"`
	Bearer []PostmanVariable `json:"bearer,omitempty"`
}

// PostmanVariable is a key/value pair
type PostmanVariable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// ToPostman converts an OpenAPI document into a Postman collection. Requests use
// the {{baseUrl}} variable; secured documents get collection-level bearer auth.
func ToPostman(doc *Document) *PostmanCollection {
	baseURL := ""
	if len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}

	col := &PostmanCollection{
		Info: PostmanInfo{
			PostmanID:   uuid.NewSHA1(uuid.NameSpaceURL, []byte(baseURL+"#"+doc.Info.Title+"@"+doc.Info.Version)).String(),
			Name:        doc.Info.Title,
			Description: doc.Info.Description,
			Schema:      PostmanSchemaURL,
		},
		Item:     []PostmanItem{},
		Variable: []PostmanVariable{{Key: "baseUrl", Value: baseURL, Type: "string"}},
	}

	if len(doc.Security) > 0 {
		col.Auth = &PostmanAuth{
			Type:   "bearer",
			Bearer: []PostmanVariable{{Key: "token", Value: "{{bearerToken}}", Type: "string"}},
		}
		col.Variable = append(col.Variable, PostmanVariable{Key: "bearerToken", Value: "", Type: "string"})
	}

	for _, path := range doc.SortedPaths() {
		item := doc.Paths[path]
		methods := make([]string, 0, len(item))
		for m := range item {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, method := range methods {
			col.Item = append(col.Item, postmanItem(path, strings.ToUpper(method), item[method]))
		}
	}
	return col
}

func postmanItem(path, method string, op *Operation) PostmanItem {
	name := op.Summary
	if name == "" {
		name = op.OperationID
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	req := PostmanRequest{
		Method:      method,
		Header:      []PostmanHeader{},
		Description: op.Description,
		URL: PostmanURL{
			Raw:  "{{baseUrl}}" + path,
			Host: []string{"{{baseUrl}}"},
			Path: segments,
		},
	}

	for _, p := range op.Parameters {
		req.URL.Query = append(req.URL.Query, PostmanQuery{
			Key:         p.Name,
			Value:       sampleString(p.Schema),
			Description: p.Description,
			Disabled:    !p.Required,
		})
	}
	if len(req.URL.Query) > 0 {
		pairs := make([]string, 0, len(req.URL.Query))
		for _, q := range req.URL.Query {
			if !q.Disabled {
				pairs = append(pairs, q.Key+"="+q.Value)
			}
		}
		if len(pairs) > 0 {
			req.URL.Raw += "?" + strings.Join(pairs, "&")
		}
	}

	if op.RequestBody != nil {
		if media, ok := op.RequestBody.Content["multipart/form-data"]; ok {
			req.Body = &PostmanBody{Mode: "formdata"}
			for _, name := range sortedKeys(media.Schema.Properties) {
				prop := media.Schema.Properties[name]
				kind := "text"
				if prop.Format == "binary" {
					kind = "file"
				}
				req.Body.FormData = append(req.Body.FormData, PostmanFormParam{Key: name, Type: kind})
			}
		} else if media, ok := op.RequestBody.Content["application/json"]; ok {
			req.Header = append(req.Header, PostmanHeader{Key: "Content-Type", Value: "application/json", Type: "text"})
			raw, _ := json.MarshalIndent(sampleObject(media.Schema), "", "  ")
			req.Body = &PostmanBody{
				Mode:    "raw",
				Raw:     string(raw),
				Options: map[string]interface{}{"raw": map[string]string{"language": "json"}},
			}
		}
	}

	return PostmanItem{Name: name, Request: req}
}

func sampleObject(s *Schema) map[string]interface{} {
	out := make(map[string]interface{})
	if s == nil {
		return out
	}
	for name, prop := range s.Properties {
		out[name] = sampleValue(prop)
	}
	return out
}

func sampleValue(s *Schema) interface{} {
	if s == nil {
		return ""
	}
	if s.Default != nil {
		return s.Default
	}
	switch s.Type {
	case "number":
		return 0.0
	case "integer":
		return 0
	case "boolean":
		return false
	case "array":
		return []interface{}{}
	case "object":
		return map[string]interface{}{}
	default:
		return ""
	}
}

func sampleString(s *Schema) string {
	if s != nil && s.Default != nil {
		if v, ok := s.Default.(string); ok {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]*Schema) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PostmanFilename returns the download file name for an agent
func PostmanFilename(agentName string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		default:
			return '-'
		}
	}, strings.TrimSpace(agentName))
	name = strings.Trim(name, "-")
	if name == "" {
		name = "agent"
	}
	return name + ".postman.json"
}
