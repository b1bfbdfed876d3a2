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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"agentgateway/shared/types"
)

// Schema is applied by EnsureSchema. Tables are owned by the agent platform;
// the gateway only reads them.
const Schema = `
CREATE TABLE IF NOT EXISTS agent_domains (
	domain     TEXT PRIMARY KEY,
	agent_id   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
	id         TEXT PRIMARY KEY,
	definition JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS agent_versions (
	agent_id   TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	version    TEXT NOT NULL,
	definition JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (agent_id, version)
);

CREATE INDEX IF NOT EXISTS idx_agent_versions_created ON agent_versions (agent_id, created_at DESC);

CREATE TABLE IF NOT EXISTS agent_auth_settings (
	agent_id   TEXT PRIMARY KEY,
	method     TEXT NOT NULL,
	provider   JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings a connection pool for databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// LookupAgentIDByDomain implements DomainLookup
func (s *PostgresStore) LookupAgentIDByDomain(ctx context.Context, domain string) (string, error) {
	var agentID string
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id FROM agent_domains WHERE domain = $1`,
		strings.ToLower(domain),
	).Scan(&agentID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to lookup domain %s: %w", domain, err)
	}
	return agentID, nil
}

// GetAgentData implements AgentDataSource
func (s *PostgresStore) GetAgentData(ctx context.Context, agentID, version string) (*types.AgentDefinition, error) {
	var row *sql.Row
	switch version {
	case "":
		row = s.db.QueryRowContext(ctx,
			`SELECT definition FROM agents WHERE id = $1`, agentID)
	case types.VersionLatest:
		row = s.db.QueryRowContext(ctx, `
			SELECT definition FROM agent_versions
			WHERE agent_id = $1
			ORDER BY created_at DESC
			LIMIT 1`, agentID)
	default:
		row = s.db.QueryRowContext(ctx, `
			SELECT definition FROM agent_versions
			WHERE agent_id = $1 AND version = $2`, agentID, version)
	}

	var raw []byte
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", agentID, err)
	}

	var def types.AgentDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("failed to decode agent %s: %w", agentID, err)
	}
	if def.ID == "" {
		def.ID = agentID
	}
	if version != "" && def.Version == "" {
		def.Version = version
	}
	return &def, nil
}

// GetAuthSettings implements AuthSettingsStore
func (s *PostgresStore) GetAuthSettings(ctx context.Context, agentID string) (*types.AuthProviderConfig, error) {
	var method string
	var provider []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT method, provider FROM agent_auth_settings WHERE agent_id = $1`, agentID,
	).Scan(&method, &provider)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth settings for %s: %w", agentID, err)
	}

	cfg := &types.AuthProviderConfig{Method: types.AuthMethod(method)}
	if len(provider) > 0 {
		if err := json.Unmarshal(provider, &cfg.Provider); err != nil {
			return nil, fmt.Errorf("failed to decode auth settings for %s: %w", agentID, err)
		}
	}
	return cfg, nil
}
