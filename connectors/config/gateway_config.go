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

package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"agentgateway/shared/types"
)

// ConfigFileEnv names the optional YAML file overlaid on the defaults.
const ConfigFileEnv = "GATEWAY_CONFIG_FILE"

// Vault backends
const (
	VaultBackendAWS    = "aws"
	VaultBackendEnv    = "env"
	VaultBackendMemory = "memory"
)

// GatewayConfig is the complete runtime configuration of the gateway.
type GatewayConfig struct {
	Port               int    `yaml:"port"`
	UIServerOrigin     string `yaml:"ui_server_origin"`
	AgentHostingSuffix string `yaml:"agent_hosting_suffix"`

	// Execution paths
	DebuggerURL    string        `yaml:"debugger_url"`
	AgentRunnerURL string        `yaml:"agent_runner_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	CircuitBreaker      types.CircuitBreakerConfig `yaml:"circuit_breaker"`
	HealthCheckInterval time.Duration              `yaml:"health_check_interval"` // 0 disables probing

	// Security policy
	CORSDefaultDeny     bool `yaml:"cors_default_deny"`
	AllowDebugPromotion bool `yaml:"allow_debug_promotion"`

	// Storage
	DatabaseURL string        `yaml:"database_url"` // empty selects the in-memory agent store
	RedisURL    string        `yaml:"redis_url"`    // empty disables the document hash cache
	SpecHashTTL time.Duration `yaml:"spec_hash_ttl"`

	Vault     VaultConfig     `yaml:"vault"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Tracing   TracingConfig   `yaml:"tracing"`

	LogLevel string `yaml:"log_level"`
}

// VaultConfig selects and tunes the secret backend used for {{KEY(name)}} resolution.
type VaultConfig struct {
	Backend      string        `yaml:"backend"`
	Region       string        `yaml:"region"`
	SecretPrefix string        `yaml:"secret_prefix"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	// Secrets seeds the memory backend, keyed "<teamID>/<name>".
	Secrets map[string]string `yaml:"secrets,omitempty"`
}

// RateLimitConfig is the per-client-IP token bucket.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"` // 0 disables limiting
	Burst             int `yaml:"burst"`
	// TrustedProxies are peer IPs whose X-Forwarded-For is honored.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// TracingConfig controls OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Exporter    string `yaml:"exporter"` // "stdout" or "noop"
	ServiceName string `yaml:"service_name"`
}

// DefaultGatewayConfig returns the configuration used when nothing is set.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Port:                8080,
		UIServerOrigin:      "http://localhost:4000",
		AgentHostingSuffix:  ".agent.smyth.ai",
		DebuggerURL:         "http://localhost:5053",
		AgentRunnerURL:      "http://localhost:5054",
		RequestTimeout:      60 * time.Second,
		CircuitBreaker:      types.DefaultCircuitBreakerConfig(),
		HealthCheckInterval: 0,
		AllowDebugPromotion: true,
		SpecHashTTL:         24 * time.Hour,
		Vault: VaultConfig{
			Backend:  VaultBackendEnv,
			Region:   "us-east-1",
			CacheTTL: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			Burst:             50,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "agent-gateway",
		},
		LogLevel: "INFO",
	}
}

// Load builds the configuration: defaults, then the optional YAML file named by
// GATEWAY_CONFIG_FILE, then environment overrides. The result is validated.
func Load() (*GatewayConfig, error) {
	cfg := DefaultGatewayConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML file on the defaults without consulting the environment
// (other than ${VAR} references inside the file).
func LoadFile(path string) (*GatewayConfig, error) {
	cfg := DefaultGatewayConfig()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *GatewayConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *GatewayConfig) applyEnv() error {
	if err := envInt("PORT", &c.Port); err != nil {
		return err
	}
	c.UIServerOrigin = getEnvOrDefault("UI_SERVER_ORIGIN", c.UIServerOrigin)
	c.AgentHostingSuffix = getEnvOrDefault("AGENT_HOSTING_SUFFIX", c.AgentHostingSuffix)
	c.DebuggerURL = getEnvOrDefault("DEBUGGER_URL", c.DebuggerURL)
	c.AgentRunnerURL = getEnvOrDefault("AGENT_RUNNER_URL", c.AgentRunnerURL)

	if err := envDuration("REQUEST_TIMEOUT", &c.RequestTimeout); err != nil {
		return err
	}
	if err := envDuration("HEALTH_CHECK_INTERVAL", &c.HealthCheckInterval); err != nil {
		return err
	}

	// Circuit breaker
	if v := os.Getenv("CB_FAILURE_THRESHOLD"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid CB_FAILURE_THRESHOLD: %s", v)
		}
		c.CircuitBreaker.FailureThreshold = uint32(n)
	}
	if err := envDuration("CB_RESET_TIMEOUT", &c.CircuitBreaker.ResetTimeout); err != nil {
		return err
	}
	if err := envDuration("CB_MONITORING_PERIOD", &c.CircuitBreaker.MonitoringPeriod); err != nil {
		return err
	}

	if err := envBool("CORS_DEFAULT_DENY", &c.CORSDefaultDeny); err != nil {
		return err
	}
	if err := envBool("ALLOW_DEBUG_PROMOTION", &c.AllowDebugPromotion); err != nil {
		return err
	}

	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)
	if err := envDuration("SPEC_HASH_TTL", &c.SpecHashTTL); err != nil {
		return err
	}

	// Vault
	c.Vault.Backend = getEnvOrDefault("VAULT_BACKEND", c.Vault.Backend)
	c.Vault.Region = getEnvOrDefault("AWS_REGION", c.Vault.Region)
	c.Vault.SecretPrefix = getEnvOrDefault("VAULT_SECRET_PREFIX", c.Vault.SecretPrefix)
	if err := envDuration("VAULT_CACHE_TTL", &c.Vault.CacheTTL); err != nil {
		return err
	}

	// Rate limit
	if err := envInt("RATE_LIMIT_RPM", &c.RateLimit.RequestsPerMinute); err != nil {
		return err
	}
	if err := envInt("RATE_LIMIT_BURST", &c.RateLimit.Burst); err != nil {
		return err
	}
	if v := os.Getenv("RATE_LIMIT_TRUSTED_PROXIES"); v != "" {
		c.RateLimit.TrustedProxies = nil
		for _, ip := range strings.Split(v, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				c.RateLimit.TrustedProxies = append(c.RateLimit.TrustedProxies, ip)
			}
		}
	}

	// Tracing
	if err := envBool("TRACING_ENABLED", &c.Tracing.Enabled); err != nil {
		return err
	}
	c.Tracing.Exporter = getEnvOrDefault("TRACING_EXPORTER", c.Tracing.Exporter)

	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	return nil
}

// Validate checks the configuration for values the gateway cannot run with.
func (c *GatewayConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for name, raw := range map[string]string{"debugger_url": c.DebuggerURL, "agent_runner_url": c.AgentRunnerURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		return fmt.Errorf("circuit_breaker.failure_threshold must be at least 1")
	}
	if c.CircuitBreaker.ResetTimeout <= 0 {
		return fmt.Errorf("circuit_breaker.reset_timeout must be positive")
	}

	switch c.Vault.Backend {
	case VaultBackendAWS, VaultBackendEnv, VaultBackendMemory:
	default:
		return fmt.Errorf("unsupported vault backend: %s", c.Vault.Backend)
	}

	switch c.Tracing.Exporter {
	case "stdout", "noop":
	default:
		return fmt.Errorf("unsupported tracing exporter: %s", c.Tracing.Exporter)
	}

	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	return nil
}

// Addr returns the listen address.
func (c *GatewayConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR}, $VAR and ${VAR:-default} references.
// Undefined variables without a default expand to "".
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %s", key, v)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %s", key, v)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s format: %s", key, v)
	}
	*dst = d
	return nil
}
