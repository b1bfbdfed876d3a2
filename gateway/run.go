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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentgateway/connectors/agentdata"
	"agentgateway/connectors/config"
	"agentgateway/gateway/vault"
	"agentgateway/shared/logger"
	"agentgateway/shared/types"
)

const shutdownTimeout = 15 * time.Second

// Run loads configuration from the environment and serves until SIGINT or
// SIGTERM. It exits the process on startup failure.
func Run() {
	log := logger.New("gateway")

	cfg, err := config.Load()
	if err != nil {
		log.Error("", "", "Failed to load configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("", "", "Gateway stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

// run wires the collaborators named by cfg and blocks until ctx is done.
func run(ctx context.Context, cfg *config.GatewayConfig, log *logger.Logger) error {
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	shutdownTracing, err := SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	backend, err := openVault(ctx, cfg.Vault, log)
	if err != nil {
		return err
	}

	opts := Options{Config: cfg, Store: store, Vault: backend, Logger: log}
	if cfg.RedisURL != "" {
		cache, err := OpenSpecHashCache(ctx, cfg.RedisURL, cfg.SpecHashTTL, log.WithComponent("spec-cache"))
		if err != nil {
			log.Warn("", "", "Spec hash cache unavailable, continuing without it", map[string]interface{}{"error": err.Error()})
		} else {
			defer cache.Close()
			opts.Hashes = cache
		}
	}
	return serve(ctx, cfg, opts, log)
}

func serve(ctx context.Context, cfg *config.GatewayConfig, opts Options, log *logger.Logger) error {
	srv, err := NewServer(ctx, opts)
	if err != nil {
		return err
	}

	if cfg.HealthCheckInterval > 0 {
		srv.Monitor().StartProbing(ctx, cfg.HealthCheckInterval, map[types.ServiceName]string{
			types.ServiceDebugger:    cfg.DebuggerURL,
			types.ServiceAgentRunner: cfg.AgentRunnerURL,
		}, &http.Client{Timeout: 5 * time.Second})
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "Agent gateway listening", map[string]interface{}{
			"addr":         httpServer.Addr,
			"debugger":     cfg.DebuggerURL,
			"agent_runner": cfg.AgentRunnerURL,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	srv.SetReady(true)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	srv.SetReady(false)
	log.Info("", "", "Shutting down agent gateway", nil)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.GatewayConfig, log *logger.Logger) (agentdata.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("", "", "DATABASE_URL not set, using in-memory agent store", nil)
		return agentdata.NewMemoryStore(), func() {}, nil
	}

	pg, err := agentdata.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open agent store: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("agent store schema: %w", err)
	}
	return pg, func() { _ = pg.Close() }, nil
}

func openVault(ctx context.Context, cfg config.VaultConfig, log *logger.Logger) (vault.Backend, error) {
	switch cfg.Backend {
	case config.VaultBackendAWS:
		b, err := vault.NewAWSBackend(ctx, vault.AWSBackendOptions{
			Region:       cfg.Region,
			SecretPrefix: cfg.SecretPrefix,
			CacheTTL:     cfg.CacheTTL,
			Logger:       log.WithComponent("vault-aws"),
		})
		if err != nil {
			return nil, fmt.Errorf("open aws vault: %w", err)
		}
		return b, nil
	case config.VaultBackendMemory:
		return vault.NewMemoryBackend(cfg.Secrets), nil
	default:
		return vault.NewEnvBackend(), nil
	}
}
