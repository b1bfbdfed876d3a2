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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

const (
	wellKnownPath     = "/.well-known/openid-configuration"
	discoveryCacheTTL = 15 * time.Minute
	jwksRefreshMin    = 15 * time.Minute
)

// Discovery is the subset of the OpenID provider metadata the gateway uses.
type Discovery struct {
	Issuer                string `json:"issuer"`
	JWKSURI               string `json:"jwks_uri"`
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
}

type discoveryEntry struct {
	doc       *Discovery
	expiresAt time.Time
}

// OIDCProvider implements the oauth-oidc method.
//
// Settings:
//
//	OIDCConfigURL  issuer URL or its /.well-known/openid-configuration URL
//	clientID       expected audience; also the introspection client id
//	clientSecret   introspection client secret
//
// JWT access tokens are verified against the issuer's JWKS. Opaque tokens are
// checked with RFC 7662 introspection when the issuer advertises an endpoint.
type OIDCProvider struct {
	client *http.Client
	jwks   *jwk.Cache
	log    *logger.Logger

	mu        sync.Mutex
	discovery map[string]discoveryEntry
}

// NewOIDCProvider creates the oauth-oidc provider. The JWKS cache refreshes in
// the background until ctx is done.
func NewOIDCProvider(ctx context.Context, client *http.Client, log *logger.Logger) *OIDCProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &OIDCProvider{
		client:    client,
		jwks:      jwk.NewCache(ctx),
		log:       log,
		discovery: make(map[string]discoveryEntry),
	}
}

// Method implements Provider
func (p *OIDCProvider) Method() types.AuthMethod {
	return types.AuthMethodOAuthOIDC
}

// Authenticate implements Provider
func (p *OIDCProvider) Authenticate(ctx context.Context, r *http.Request, settings types.ProviderSettings) (*Principal, error) {
	const op = "auth.oidc"

	token, ok := BearerToken(r)
	if !ok {
		return nil, unauthorized(op, "missing bearer token", nil)
	}

	configURL := settings.String("OIDCConfigURL")
	if configURL == "" {
		return nil, types.NewError(op, types.ErrProviderNotConfigured, "", errors.New("OIDCConfigURL is not set"))
	}

	doc, err := p.Discover(ctx, configURL)
	if err != nil {
		return nil, types.NewError(op, types.ErrUnauthorized, "identity provider unavailable", err)
	}

	clientID := settings.String(string(types.FieldClientID))
	if unresolved(clientID) {
		clientID = ""
	}

	if strings.Count(token, ".") == 2 {
		return p.verifyJWT(ctx, doc, token, clientID)
	}

	if doc.IntrospectionEndpoint == "" {
		return nil, unauthorized(op, "invalid bearer token", errors.New("opaque token and no introspection endpoint"))
	}
	return p.introspect(ctx, doc, token, clientID, settings.String(string(types.FieldClientSecret)))
}

func (p *OIDCProvider) verifyJWT(ctx context.Context, doc *Discovery, token, clientID string) (*Principal, error) {
	const op = "auth.oidc"

	if !p.jwks.IsRegistered(doc.JWKSURI) {
		if err := p.jwks.Register(doc.JWKSURI, jwk.WithMinRefreshInterval(jwksRefreshMin)); err != nil {
			return nil, types.NewError(op, types.ErrUnauthorized, "identity provider unavailable", err)
		}
	}
	keyset, err := p.jwks.Get(ctx, doc.JWKSURI)
	if err != nil {
		return nil, types.NewError(op, types.ErrUnauthorized, "identity provider unavailable", fmt.Errorf("failed to get JWKS: %w", err))
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30 * time.Second),
	}
	if doc.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(doc.Issuer))
	}
	if clientID != "" {
		opts = append(opts, jwt.WithAudience(clientID))
	}

	parsed, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return nil, unauthorized(op, "invalid bearer token", err)
	}

	claims, err := parsed.AsMap(ctx)
	if err != nil {
		claims = nil
	}
	return &Principal{Subject: parsed.Subject(), Method: types.AuthMethodOAuthOIDC, Claims: claims}, nil
}

type introspectionResponse struct {
	Active   bool   `json:"active"`
	Subject  string `json:"sub"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

func (p *OIDCProvider) introspect(ctx context.Context, doc *Discovery, token, clientID, clientSecret string) (*Principal, error) {
	const op = "auth.oidc.introspect"

	form := url.Values{"token": {token}, "token_type_hint": {"access_token"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, doc.IntrospectionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, unauthorized(op, "invalid bearer token", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if clientID != "" && !unresolved(clientSecret) {
		req.SetBasicAuth(clientID, clientSecret)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(op, types.ErrUnauthorized, "identity provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, unauthorized(op, "invalid bearer token", fmt.Errorf("introspection returned %d: %s", resp.StatusCode, body))
	}

	var result introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, unauthorized(op, "invalid bearer token", fmt.Errorf("failed to decode introspection response: %w", err))
	}
	if !result.Active {
		return nil, unauthorized(op, "invalid bearer token", errors.New("token is not active"))
	}

	return &Principal{
		Subject: result.Subject,
		Method:  types.AuthMethodOAuthOIDC,
		Claims:  map[string]interface{}{"client_id": result.ClientID, "scope": result.Scope},
	}, nil
}

// Discover fetches (and caches) the provider metadata for an issuer or
// discovery URL.
func (p *OIDCProvider) Discover(ctx context.Context, configURL string) (*Discovery, error) {
	discoveryURL := strings.TrimRight(configURL, "/")
	if !strings.HasSuffix(discoveryURL, wellKnownPath) {
		discoveryURL += wellKnownPath
	}

	p.mu.Lock()
	entry, ok := p.discovery[discoveryURL]
	p.mu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery URL %s: %w", discoveryURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery document returned status %d", resp.StatusCode)
	}

	var doc Discovery
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document at %s has no jwks_uri", discoveryURL)
	}

	p.mu.Lock()
	p.discovery[discoveryURL] = discoveryEntry{doc: &doc, expiresAt: time.Now().Add(discoveryCacheTTL)}
	p.mu.Unlock()

	p.log.Debug("", types.CorrelationIDFromContext(ctx), "Fetched OIDC discovery document", map[string]interface{}{
		"issuer":   doc.Issuer,
		"jwks_uri": doc.JWKSURI,
	})
	return &doc, nil
}
