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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"agentgateway/shared/logger"
)

// secretsAPI is the subset of the Secrets Manager client used here.
type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSBackend resolves team secrets from AWS Secrets Manager. Secret ids are
// "<prefix><teamID>/<name>". Values are cached for CacheTTL.
type AWSBackend struct {
	client secretsAPI
	prefix string
	ttl    time.Duration
	log    *logger.Logger

	mu    sync.RWMutex
	cache map[string]*secretCacheEntry
}

type secretCacheEntry struct {
	value     string
	expiresAt time.Time
}

// AWSBackendOptions holds options for creating an AWSBackend
type AWSBackendOptions struct {
	Region       string
	SecretPrefix string
	CacheTTL     time.Duration
	Logger       *logger.Logger
}

// NewAWSBackend loads the default AWS config and creates a Secrets Manager backend.
func NewAWSBackend(ctx context.Context, opts AWSBackendOptions) (*AWSBackend, error) {
	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newAWSBackend(secretsmanager.NewFromConfig(cfg), opts), nil
}

func newAWSBackend(client secretsAPI, opts AWSBackendOptions) *AWSBackend {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	log := opts.Logger
	if log == nil {
		log = logger.New("vault")
	}
	return &AWSBackend{
		client: client,
		prefix: opts.SecretPrefix,
		ttl:    ttl,
		log:    log,
		cache:  make(map[string]*secretCacheEntry),
	}
}

// GetSecret implements Backend
func (b *AWSBackend) GetSecret(ctx context.Context, teamID, name string) (string, error) {
	secretID := b.prefix + teamID + "/" + name

	b.mu.RLock()
	entry, exists := b.cache[secretID]
	b.mu.RUnlock()
	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := b.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, maskSecretID(secretID))
		}
		return "", fmt.Errorf("failed to get secret %s: %w", maskSecretID(secretID), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskSecretID(secretID))
	}

	value := secretValue(*result.SecretString, name)

	b.mu.Lock()
	b.cache[secretID] = &secretCacheEntry{value: value, expiresAt: time.Now().Add(b.ttl)}
	b.mu.Unlock()

	b.log.Debug("", "", "Fetched and cached vault secret", map[string]interface{}{
		"secret": maskSecretID(secretID),
	})
	return value, nil
}

// Invalidate removes a secret from the cache
func (b *AWSBackend) Invalidate(teamID, name string) {
	b.mu.Lock()
	delete(b.cache, b.prefix+teamID+"/"+name)
	b.mu.Unlock()
}

// secretValue unwraps JSON secrets of the form {"<name>": "..."} or {"value": "..."};
// anything else is used verbatim.
func secretValue(raw, name string) string {
	var obj map[string]string
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return raw
	}
	if v, ok := obj[name]; ok {
		return v
	}
	if v, ok := obj["value"]; ok {
		return v
	}
	return raw
}

// maskSecretID shows only the last 8 characters of a secret id
func maskSecretID(id string) string {
	if len(id) <= 12 {
		return "***"
	}
	return "..." + id[len(id)-8:]
}
