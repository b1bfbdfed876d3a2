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
	"sync"

	"golang.org/x/sync/errgroup"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

// Resolver replaces {{KEY(name)}} placeholders in vault-protected provider fields.
type Resolver struct {
	backend   Backend
	tokenizer Tokenizer
	log       *logger.Logger
}

// NewResolver creates a Resolver over backend
func NewResolver(backend Backend, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{backend: backend, log: log}
}

// ResolveFields returns a copy of settings with every vault-protected placeholder
// resolved. Fetches run in parallel, at most one per protected field. A field whose
// fetch fails or returns an empty value keeps its placeholder; the call never fails.
func (r *Resolver) ResolveFields(ctx context.Context, teamID string, settings types.ProviderSettings) types.ProviderSettings {
	out := settings.Clone()

	type pending struct {
		field types.VaultProtectedField
		name  string
	}
	var todo []pending
	for _, field := range types.VaultProtectedFields {
		name, ok := r.tokenizer.Parse(out.String(string(field)))
		if ok {
			todo = append(todo, pending{field: field, name: name})
		}
	}
	if len(todo) == 0 {
		return out
	}

	agentID := ""
	if ac := types.AgentFromContext(ctx); ac != nil {
		agentID = ac.ID
	}
	correlationID := types.CorrelationIDFromContext(ctx)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(types.VaultProtectedFields))
	for _, p := range todo {
		g.Go(func() error {
			value, err := r.backend.GetSecret(gctx, teamID, p.name)
			if err != nil || value == "" {
				fields := map[string]interface{}{"field": string(p.field), "key": p.name, "team_id": teamID}
				if err != nil {
					fields["error"] = err.Error()
				}
				r.log.Warn(agentID, correlationID, "Vault key could not be resolved, keeping placeholder", fields)
				return nil
			}
			mu.Lock()
			out[string(p.field)] = value
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}
