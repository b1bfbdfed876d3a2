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
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"agentgateway/shared/types"
)

// MemoryStore is an in-process Store used for local runs and tests.
// Definitions are stored serialized so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	domains  map[string]string
	working  map[string][]byte
	versions map[string][]storedVersion
	auth     map[string]*types.AuthProviderConfig
}

type storedVersion struct {
	version string
	data    []byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		domains:  make(map[string]string),
		working:  make(map[string][]byte),
		versions: make(map[string][]storedVersion),
		auth:     make(map[string]*types.AuthProviderConfig),
	}
}

// BindDomain maps a domain to an agent id
func (s *MemoryStore) BindDomain(domain, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.domains[strings.ToLower(domain)] = agentID
}

// PutAgent stores the working copy of an agent definition.
func (s *MemoryStore) PutAgent(def *types.AgentDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to marshal agent %s: %w", def.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working[def.ID] = data
	return nil
}

// PutVersion stores a deployed version. The last stored version is "latest".
func (s *MemoryStore) PutVersion(def *types.AgentDefinition, version string) error {
	copied := *def
	copied.Version = version
	data, err := json.Marshal(&copied)
	if err != nil {
		return fmt.Errorf("failed to marshal agent %s@%s: %w", def.ID, version, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[def.ID] = append(s.versions[def.ID], storedVersion{version: version, data: data})
	return nil
}

// PutAuthSettings stores live auth settings for an agent.
func (s *MemoryStore) PutAuthSettings(agentID string, cfg *types.AuthProviderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth[agentID] = cfg
}

// LookupAgentIDByDomain implements DomainLookup
func (s *MemoryStore) LookupAgentIDByDomain(_ context.Context, domain string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.domains[strings.ToLower(domain)]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

// GetAgentData implements AgentDataSource
func (s *MemoryStore) GetAgentData(_ context.Context, agentID, version string) (*types.AgentDefinition, error) {
	s.mu.RLock()
	data, ok := s.find(agentID, version)
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var def types.AgentDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to decode agent %s: %w", agentID, err)
	}
	return &def, nil
}

func (s *MemoryStore) find(agentID, version string) ([]byte, bool) {
	if version == "" {
		data, ok := s.working[agentID]
		return data, ok
	}
	versions := s.versions[agentID]
	if len(versions) == 0 {
		return nil, false
	}
	if version == types.VersionLatest {
		return versions[len(versions)-1].data, true
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].version == version {
			return versions[i].data, true
		}
	}
	return nil, false
}

// GetAuthSettings implements AuthSettingsStore
func (s *MemoryStore) GetAuthSettings(_ context.Context, agentID string) (*types.AuthProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.auth[agentID]
	if !ok || cfg == nil {
		return nil, ErrNotFound
	}
	out := &types.AuthProviderConfig{Method: cfg.Method, Provider: make(map[types.AuthMethod]types.ProviderSettings, len(cfg.Provider))}
	for m, settings := range cfg.Provider {
		out.Provider[m] = settings.Clone()
	}
	return out, nil
}
