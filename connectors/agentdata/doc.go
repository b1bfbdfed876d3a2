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

// Package agentdata provides the agent-data collaborators consumed by the
// gateway: domain to agent id lookup, versioned agent definitions and the live
// per-agent auth settings store. PostgresStore reads the platform tables;
// MemoryStore backs local runs and tests.
package agentdata
