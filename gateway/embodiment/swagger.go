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
	"bytes"
	"html/template"
)

// SwaggerPage is the data rendered into the Swagger UI page.
type SwaggerPage struct {
	Title   string
	SpecURL string
	// Headers are sent with every "Try it out" request.
	Headers map[string]string
	// DebugBridge injects the parent-frame debug control script.
	DebugBridge bool
}

var swaggerTemplate = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}} - API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
  <script>
    window.__agentHeaders = {{.Headers}} || {};
    window.__debugHeaders = {};
  </script>
{{- if .DebugBridge}}
  <script>
    (function () {
      var allowed = ["X-DEBUG-STOP", "X-DEBUG-RUN", "X-DEBUG-INJ", "X-DEBUG-READ", "X-CONVERSATION-ID"];
      window.addEventListener("message", function (event) {
        if (event.source !== window.parent || !event.data || event.data.type !== "debug:headers") {
          return;
        }
        var next = {};
        var headers = event.data.headers || {};
        Object.keys(headers).forEach(function (name) {
          if (allowed.indexOf(name.toUpperCase()) !== -1) {
            next[name.toUpperCase()] = String(headers[name]);
          }
        });
        window.__debugHeaders = next;
      });
      if (window.parent !== window) {
        window.parent.postMessage({ type: "swagger:ready" }, "*");
      }
    })();
  </script>
{{- end}}
  <script>
    window.ui = SwaggerUIBundle({
      url: {{.SpecURL}},
      dom_id: "#swagger-ui",
      deepLinking: true,
      requestInterceptor: function (req) {
        var extra = Object.assign({}, window.__agentHeaders, window.__debugHeaders);
        Object.keys(extra).forEach(function (name) { req.headers[name] = extra[name]; });
        return req;
      }
    });
  </script>
</body>
</html>
`))

// RenderSwagger renders the interactive documentation page
func RenderSwagger(page SwaggerPage) ([]byte, error) {
	if page.Headers == nil {
		page.Headers = map[string]string{}
	}
	var buf bytes.Buffer
	if err := swaggerTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
