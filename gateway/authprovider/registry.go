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
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"agentgateway/shared/types"
)

// ErrUnknownMethod is returned by Lookup for a method with no registered provider.
var ErrUnknownMethod = errors.New("authprovider: unknown auth method")

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Method  types.AuthMethod
	Claims  map[string]interface{}
}

// Provider validates a request against one auth method.
type Provider interface {
	Method() types.AuthMethod
	// Authenticate returns an error wrapping types.ErrUnauthorized when the
	// request carries no valid credential for settings.
	Authenticate(ctx context.Context, r *http.Request, settings types.ProviderSettings) (*Principal, error)
}

// Registry maps an AuthMethod to its Provider.
type Registry struct {
	mu        sync.RWMutex
	providers map[types.AuthMethod]Provider
}

// NewRegistry creates a registry holding providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[types.AuthMethod]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the provider for its method
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Method()] = p
}

// Lookup returns the provider for m. Unknown methods are an error, never a pass-through.
func (r *Registry) Lookup(m types.AuthMethod) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
	return p, nil
}

// Methods lists the registered methods
func (r *Registry) Methods() []types.AuthMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.AuthMethod, 0, len(r.providers))
	for m := range r.providers {
		out = append(out, m)
	}
	return out
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func unauthorized(op, message string, cause error) error {
	return types.NewError(op, types.ErrUnauthorized, message, cause)
}
