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

/*
Package embodiment renders one agent definition through several protocol
surfaces.

Every surface is a read-only projection of the agent's APIEndpoint skills:

  - BuildOpenAPI produces the OpenAPI 3 document (GET /api-docs/openapi.json)
  - ToPostman converts that document into a Postman v2.1 collection (GET /postman)
  - RenderSwagger serves the interactive page (GET /swagger)
  - ChatCompletions speaks the OpenAI chat completions protocol, streaming or not
  - NewMCPServer exposes each skill as an MCP tool (/mcp)

Handlers never execute skills themselves. They call a SkillExecutor bound to
the request's routing decision.
*/
package embodiment
