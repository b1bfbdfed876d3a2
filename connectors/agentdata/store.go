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

package agentdata

import (
	"context"
	"errors"
	"fmt"

	"agentgateway/shared/types"
)

// ErrNotFound is returned when a domain, agent, version or settings row does not exist.
var ErrNotFound = errors.New("agentdata: not found")

// StatusError is a collaborator failure that carries its own HTTP status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agentdata: %s (status %d)", e.Message, e.Status)
}

// DomainLookup maps a request host to an agent id.
type DomainLookup interface {
	// LookupAgentIDByDomain returns ErrNotFound when the domain is not bound to an agent.
	LookupAgentIDByDomain(ctx context.Context, domain string) (string, error)
}

// AgentDataSource returns agent definitions.
type AgentDataSource interface {
	// GetAgentData returns the definition for (agentID, version). An empty version
	// selects the working copy; "latest" selects the most recently deployed version.
	GetAgentData(ctx context.Context, agentID, version string) (*types.AgentDefinition, error)
}

// AuthSettingsStore is the live per-agent auth settings store.
type AuthSettingsStore interface {
	// GetAuthSettings returns ErrNotFound when the agent has no stored settings.
	GetAuthSettings(ctx context.Context, agentID string) (*types.AuthProviderConfig, error)
}

// Store is implemented by MemoryStore and PostgresStore.
type Store interface {
	DomainLookup
	AgentDataSource
	AuthSettingsStore
}
