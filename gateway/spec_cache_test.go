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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgateway/shared/logger"
)

func newTestSpecCache(t *testing.T, ttl time.Duration) (*SpecHashCache, *miniredis.Miniredis, *syncBuffer) {
	t.Helper()
	mr := miniredis.RunT(t)
	logs := &syncBuffer{}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewSpecHashCache(client, ttl, logger.NewWithWriter("spec-cache", logs, logger.DEBUG))
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr, logs
}

func TestSpecHashCache_StoreAndGet(t *testing.T) {
	cache, mr, _ := newTestSpecCache(t, time.Hour)
	ctx := context.Background()

	hash, err := cache.Get(ctx, testAgentID, "1.0")
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, cache.Store(ctx, testAgentID, "1.0", "abc"))
	hash, err = cache.Get(ctx, testAgentID, "1.0")
	require.NoError(t, err)
	assert.Equal(t, "abc", hash)

	assert.True(t, mr.Exists("agent-gateway:spec-hash:agent-1:1.0"))
	assert.Equal(t, time.Hour, mr.TTL("agent-gateway:spec-hash:agent-1:1.0"))
}

func TestSpecHashCache_WorkingCopyKey(t *testing.T) {
	cache, mr, _ := newTestSpecCache(t, 0)

	require.NoError(t, cache.Store(context.Background(), testAgentID, "", "h1"))
	assert.True(t, mr.Exists("agent-gateway:spec-hash:agent-1:dev"))
	assert.Equal(t, time.Duration(0), mr.TTL("agent-gateway:spec-hash:agent-1:dev"))
}

func TestSpecHashCache_LogsChanges(t *testing.T) {
	cache, _, logs := newTestSpecCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, testAgentID, "latest", "h1"))
	require.NoError(t, cache.Store(ctx, testAgentID, "latest", "h1"))
	_, changed := logs.find(t, "Agent spec changed")
	assert.False(t, changed)

	require.NoError(t, cache.Store(ctx, testAgentID, "latest", "h2"))
	entry, changed := logs.find(t, "Agent spec changed")
	require.True(t, changed)
	assert.Equal(t, "h1", entry.Fields["previous"])
	assert.Equal(t, "h2", entry.Fields["current"])
}

func TestSpecHashCache_RedisDown(t *testing.T) {
	cache, mr, _ := newTestSpecCache(t, time.Hour)
	mr.Close()

	err := cache.Store(context.Background(), testAgentID, "1.0", "abc")
	assert.Error(t, err)
}

func TestOpenSpecHashCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cache, err := OpenSpecHashCache(context.Background(), "redis://"+mr.Addr(), time.Minute, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	_, err = OpenSpecHashCache(context.Background(), "://bad", time.Minute, logger.Discard())
	assert.Error(t, err)
}
