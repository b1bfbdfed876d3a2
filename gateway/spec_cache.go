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

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"agentgateway/gateway/embodiment"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

const specHashKeyPrefix = "agent-gateway:spec-hash"

// SpecHashCache keeps the last OpenAPI hash per agent version in Redis so
// clients and tooling can detect spec changes.
type SpecHashCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

var _ embodiment.HashStore = (*SpecHashCache)(nil)

// NewSpecHashCache wraps an existing client
func NewSpecHashCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *SpecHashCache {
	if log == nil {
		log = logger.New("spec-cache")
	}
	return &SpecHashCache{client: client, ttl: ttl, log: log}
}

// OpenSpecHashCache connects to redisURL and verifies the connection.
func OpenSpecHashCache(ctx context.Context, redisURL string, ttl time.Duration, log *logger.Logger) (*SpecHashCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewSpecHashCache(client, ttl, log), nil
}

func specHashKey(agentID, version string) string {
	if version == "" {
		version = types.VersionDev
	}
	return fmt.Sprintf("%s:%s:%s", specHashKeyPrefix, agentID, version)
}

// Store records hash for (agentID, version) and logs when it changed.
func (c *SpecHashCache) Store(ctx context.Context, agentID, version, hash string) error {
	key := specHashKey(agentID, version)

	pipe := c.client.TxPipeline()
	prev := pipe.GetSet(ctx, key, hash)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("store spec hash %s: %w", key, err)
	}

	if old, err := prev.Result(); err == nil && old != hash {
		c.log.Info(agentID, types.CorrelationIDFromContext(ctx), "Agent spec changed", map[string]interface{}{
			"version":  version,
			"previous": old,
			"current":  hash,
		})
	}
	return nil
}

// Get returns the stored hash, or "" when none is stored.
func (c *SpecHashCache) Get(ctx context.Context, agentID, version string) (string, error) {
	hash, err := c.client.Get(ctx, specHashKey(agentID, version)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get spec hash: %w", err)
	}
	return hash, nil
}

// Close closes the Redis client
func (c *SpecHashCache) Close() error {
	return c.client.Close()
}
