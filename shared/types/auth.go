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

package types

// AuthMethod selects the authentication provider for an agent
type AuthMethod string

const (
	AuthMethodNone         AuthMethod = "none"
	AuthMethodOAuthOIDC    AuthMethod = "oauth-oidc"
	AuthMethodAPIKeyBearer AuthMethod = "api-key-bearer"
)

// String returns the string representation of the AuthMethod
func (m AuthMethod) String() string {
	return string(m)
}

// IsNone reports whether the method disables enforcement. Unset counts as none.
func (m AuthMethod) IsNone() bool {
	return m == "" || m == AuthMethodNone
}

// IsValid returns true if the AuthMethod is a known value
func (m AuthMethod) IsValid() bool {
	switch m {
	case "", AuthMethodNone, AuthMethodOAuthOIDC, AuthMethodAPIKeyBearer:
		return true
	default:
		return false
	}
}

// ProviderSettings holds the settings of one auth provider, e.g.
// {"OIDCConfigURL": "...", "clientID": "...", "clientSecret": "{{KEY(oidc_secret)}}"}.
type ProviderSettings map[string]interface{}

// String returns a string setting or "".
func (s ProviderSettings) String(key string) string {
	if s == nil {
		return ""
	}
	v, _ := s[key].(string)
	return v
}

// Clone returns a shallow copy so vault resolution never mutates shared settings.
func (s ProviderSettings) Clone() ProviderSettings {
	out := make(ProviderSettings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// AuthProviderConfig is the per-agent auth configuration
type AuthProviderConfig struct {
	Method   AuthMethod                      `json:"method"`
	Provider map[AuthMethod]ProviderSettings `json:"provider,omitempty"`
}

// SettingsFor returns the provider settings for a method, if present.
func (c *AuthProviderConfig) SettingsFor(m AuthMethod) (ProviderSettings, bool) {
	if c == nil || c.Provider == nil {
		return nil, false
	}
	s, ok := c.Provider[m]
	if !ok || len(s) == 0 {
		return nil, false
	}
	return s, true
}

// VaultProtectedField names a provider setting that may carry a {{KEY(name)}} placeholder.
type VaultProtectedField string

const (
	FieldClientID       VaultProtectedField = "clientID"
	FieldClientSecret   VaultProtectedField = "clientSecret"
	FieldConsumerKey    VaultProtectedField = "consumerKey"
	FieldConsumerSecret VaultProtectedField = "consumerSecret"
)

// VaultProtectedFields lists every field eligible for vault resolution.
var VaultProtectedFields = []VaultProtectedField{
	FieldClientID,
	FieldClientSecret,
	FieldConsumerKey,
	FieldConsumerSecret,
}
