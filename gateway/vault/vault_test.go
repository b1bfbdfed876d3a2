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
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

func TestTokenizer_Parse(t *testing.T) {
	tests := []struct {
		input    string
		wantName string
		wantOK   bool
	}{
		{"{{KEY(oidc_secret)}}", "oidc_secret", true},
		{"  {{KEY(my key)}}  ", "my key", true},
		{"{{KEY()}}", "", false},
		{"prefix {{KEY(x)}}", "", false},
		{"{{KEY(x)}} suffix", "", false},
		{"{{key(x)}}", "", false},
		{"plain-secret", "", false},
		{"", "", false},
	}

	var tok Tokenizer
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, ok := tok.Parse(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
		})
	}

	assert.Equal(t, "{{KEY(abc)}}", tok.Format("abc"))
	assert.True(t, tok.IsPlaceholder(tok.Format("abc")))
}

type fakeBackend struct {
	values map[string]string
	errs   map[string]error
	calls  atomic.Int32
}

func (f *fakeBackend) GetSecret(_ context.Context, teamID, name string) (string, error) {
	f.calls.Add(1)
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	return f.values[teamID+"/"+name], nil
}

func TestResolver_PartialFailureKeepsPlaceholder(t *testing.T) {
	backend := &fakeBackend{
		values: map[string]string{"team-1/cid": "client-123"},
		errs:   map[string]error{"csecret": errors.New("vault unavailable")},
	}
	var buf bytes.Buffer
	r := NewResolver(backend, logger.NewWithWriter("vault", &buf, logger.DEBUG))

	settings := types.ProviderSettings{
		"OIDCConfigURL":  "https://idp.example.com",
		"clientID":       "{{KEY(cid)}}",
		"clientSecret":   "{{KEY(csecret)}}",
		"consumerKey":    "literal-key",
		"consumerSecret": "literal-secret",
	}

	out := r.ResolveFields(context.Background(), "team-1", settings)

	assert.Equal(t, "client-123", out.String("clientID"))
	assert.Equal(t, "{{KEY(csecret)}}", out.String("clientSecret"))
	assert.Equal(t, "literal-key", out.String("consumerKey"))
	assert.Equal(t, "literal-secret", out.String("consumerSecret"))
	assert.Equal(t, int32(2), backend.calls.Load())

	// input is never mutated
	assert.Equal(t, "{{KEY(cid)}}", settings.String("clientID"))
	assert.Contains(t, buf.String(), "keeping placeholder")
	assert.Contains(t, buf.String(), "csecret")
}

func TestResolver_EmptyValueKeepsPlaceholder(t *testing.T) {
	backend := &fakeBackend{values: map[string]string{}}
	r := NewResolver(backend, nil)

	out := r.ResolveFields(context.Background(), "team-1", types.ProviderSettings{"consumerKey": "{{KEY(missing)}}"})
	assert.Equal(t, "{{KEY(missing)}}", out.String("consumerKey"))
}

func TestResolver_IgnoresUnprotectedFields(t *testing.T) {
	backend := &fakeBackend{values: map[string]string{"team-1/x": "resolved"}}
	r := NewResolver(backend, nil)

	out := r.ResolveFields(context.Background(), "team-1", types.ProviderSettings{"OIDCConfigURL": "{{KEY(x)}}"})
	assert.Equal(t, "{{KEY(x)}}", out.String("OIDCConfigURL"))
	assert.Equal(t, int32(0), backend.calls.Load())
}

func TestResolver_NilSettings(t *testing.T) {
	r := NewResolver(&fakeBackend{}, nil)
	out := r.ResolveFields(context.Background(), "team-1", nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend(map[string]string{"team-1/a": "1"})
	b.Set("team-2", "b", "2")

	v, err := b.GetSecret(context.Background(), "team-1", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	v, err = b.GetSecret(context.Background(), "team-2", "b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	_, err = b.GetSecret(context.Background(), "team-2", "a")
	assert.True(t, errors.Is(err, ErrSecretNotFound))
}

func TestEnvBackend(t *testing.T) {
	t.Setenv("VAULT_TEAM_1_OIDC_SECRET", "team-scoped")
	t.Setenv("VAULT_SHARED_KEY", "shared")

	b := NewEnvBackend()
	v, err := b.GetSecret(context.Background(), "team-1", "oidc-secret")
	require.NoError(t, err)
	assert.Equal(t, "team-scoped", v)

	v, err = b.GetSecret(context.Background(), "team-9", "shared_key")
	require.NoError(t, err)
	assert.Equal(t, "shared", v)

	_, err = b.GetSecret(context.Background(), "team-1", "nothing")
	assert.True(t, errors.Is(err, ErrSecretNotFound))
}

type fakeSecretsAPI struct {
	secrets map[string]string
	calls   int
}

func (f *fakeSecretsAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.secrets[aws.ToString(in.SecretId)]
	if !ok {
		return nil, &smtypes.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestAWSBackend_GetSecret(t *testing.T) {
	api := &fakeSecretsAPI{secrets: map[string]string{
		"agents/team-1/plain": "plain-value",
		"agents/team-1/json":  `{"json":"from-json"}`,
		"agents/team-1/wrap":  `{"value":"wrapped"}`,
	}}
	b := newAWSBackend(api, AWSBackendOptions{SecretPrefix: "agents/", CacheTTL: time.Minute, Logger: logger.Discard()})
	ctx := context.Background()

	v, err := b.GetSecret(ctx, "team-1", "plain")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", v)

	v, err = b.GetSecret(ctx, "team-1", "json")
	require.NoError(t, err)
	assert.Equal(t, "from-json", v)

	v, err = b.GetSecret(ctx, "team-1", "wrap")
	require.NoError(t, err)
	assert.Equal(t, "wrapped", v)

	// cached
	_, err = b.GetSecret(ctx, "team-1", "plain")
	require.NoError(t, err)
	assert.Equal(t, 3, api.calls)

	b.Invalidate("team-1", "plain")
	_, err = b.GetSecret(ctx, "team-1", "plain")
	require.NoError(t, err)
	assert.Equal(t, 4, api.calls)

	_, err = b.GetSecret(ctx, "team-1", "absent")
	assert.True(t, errors.Is(err, ErrSecretNotFound))
	assert.False(t, strings.Contains(err.Error(), "agents/team-1"))
}
