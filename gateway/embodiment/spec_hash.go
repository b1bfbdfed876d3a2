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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"agentgateway/shared/types"
)

// hashStoreTimeout bounds the fire-and-forget cache write.
const hashStoreTimeout = 2 * time.Second

// HashDocument encodes the document and returns the body with its SHA-256 hex
// digest. The digest leaves out Servers, which follow the request host, so one
// agent version hashes the same on every domain.
func HashDocument(doc *Document) ([]byte, string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, "", err
	}
	hostless := *doc
	hostless.Servers = nil
	canonical, err := json.Marshal(&hostless)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(canonical)
	return body, hex.EncodeToString(sum[:]), nil
}

// publishHash stores the hash in the background. Failures are logged only.
func (h *Handlers) publishHash(ctx context.Context, agent *types.AgentContext, hash string) {
	if h.cfg.Hashes == nil {
		return
	}
	correlationID := types.CorrelationIDFromContext(ctx)
	storeCtx := context.WithoutCancel(ctx)
	go func() {
		storeCtx, cancel := context.WithTimeout(storeCtx, hashStoreTimeout)
		defer cancel()
		if err := h.cfg.Hashes.Store(storeCtx, agent.ID, agent.Version, hash); err != nil {
			h.log.Warn(agent.ID, correlationID, "Failed to cache spec hash", map[string]interface{}{
				"version": agent.Version,
				"error":   err.Error(),
			})
		}
	}()
}
