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

package authprovider

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"agentgateway/gateway/vault"
	"agentgateway/shared/types"
)

// APIKeyProvider implements the api-key-bearer method.
//
// Settings:
//
//	consumerKey     static key accepted as a bearer token
//	keys            optional list of additional (rotated) keys
//	consumerSecret  HMAC secret for signed keys (HS256 JWTs); when consumerKey
//	                is also set the token's iss claim must equal it
type APIKeyProvider struct{}

// NewAPIKeyProvider creates the api-key-bearer provider
func NewAPIKeyProvider() *APIKeyProvider {
	return &APIKeyProvider{}
}

// Method implements Provider
func (p *APIKeyProvider) Method() types.AuthMethod {
	return types.AuthMethodAPIKeyBearer
}

// Authenticate implements Provider
func (p *APIKeyProvider) Authenticate(_ context.Context, r *http.Request, settings types.ProviderSettings) (*Principal, error) {
	const op = "auth.api_key"

	token, ok := BearerToken(r)
	if !ok {
		return nil, unauthorized(op, "missing bearer token", nil)
	}

	consumerKey := settings.String(string(types.FieldConsumerKey))
	for _, key := range staticKeys(consumerKey, settings["keys"]) {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			return &Principal{Subject: "api-key", Method: p.Method()}, nil
		}
	}

	secret := settings.String(string(types.FieldConsumerSecret))
	if secret == "" || unresolved(secret) {
		return nil, unauthorized(op, "invalid api key", nil)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if consumerKey != "" {
		opts = append(opts, jwt.WithIssuer(consumerKey))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("token not valid")
		}
		return nil, unauthorized(op, "invalid api key", err)
	}

	claims, _ := parsed.Claims.(jwt.MapClaims)
	subject, _ := claims.GetSubject()
	if subject == "" {
		subject = "api-key"
	}
	return &Principal{Subject: subject, Method: p.Method(), Claims: claims}, nil
}

// staticKeys never returns an unresolved vault placeholder, so a caller cannot
// authenticate by sending the placeholder text itself.
func staticKeys(consumerKey string, extra interface{}) []string {
	var candidates []string
	if consumerKey != "" {
		candidates = append(candidates, consumerKey)
	}
	switch v := extra.(type) {
	case []string:
		candidates = append(candidates, v...)
	case []interface{}:
		for _, k := range v {
			if s, ok := k.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	keys := candidates[:0]
	for _, k := range candidates {
		if k != "" && !unresolved(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func unresolved(value string) bool {
	return vault.Tokenizer{}.IsPlaceholder(value)
}
