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

package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrSecretNotFound is returned by a Backend when the team has no such secret.
var ErrSecretNotFound = errors.New("vault: secret not found")

// Backend fetches one named secret from a team's vault.
type Backend interface {
	GetSecret(ctx context.Context, teamID, name string) (string, error)
}

// MemoryBackend keeps secrets in process. Useful for development and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryBackend creates a backend seeded with secrets keyed "<teamID>/<name>".
func NewMemoryBackend(seed map[string]string) *MemoryBackend {
	b := &MemoryBackend{secrets: make(map[string]string, len(seed))}
	for k, v := range seed {
		b.secrets[k] = v
	}
	return b
}

// Set stores a secret for a team
func (b *MemoryBackend) Set(teamID, name, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secrets[teamID+"/"+name] = value
}

// GetSecret implements Backend
func (b *MemoryBackend) GetSecret(_ context.Context, teamID, name string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.secrets[teamID+"/"+name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// EnvBackend reads secrets from environment variables named
// VAULT_<TEAM>_<NAME>, falling back to VAULT_<NAME> for secrets shared by all teams.
type EnvBackend struct{}

// NewEnvBackend creates an environment-backed vault
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{}
}

// GetSecret implements Backend
func (EnvBackend) GetSecret(_ context.Context, teamID, name string) (string, error) {
	if teamID != "" {
		if v := os.Getenv(envKey(teamID, name)); v != "" {
			return v, nil
		}
	}
	if v := os.Getenv(envKey("", name)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

func envKey(teamID, name string) string {
	parts := []string{"VAULT"}
	if teamID != "" {
		parts = append(parts, sanitizeEnv(teamID))
	}
	parts = append(parts, sanitizeEnv(name))
	return strings.Join(parts, "_")
}

func sanitizeEnv(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
