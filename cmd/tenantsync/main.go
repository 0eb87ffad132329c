package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/tenantsync/internal/adapters/driven/sqlite"
	"github.com/custodia-labs/tenantsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/tenantsync/internal/config"
	"github.com/custodia-labs/tenantsync/internal/core/services"
	"github.com/custodia-labs/tenantsync/internal/graph"
	"github.com/custodia-labs/tenantsync/internal/logging"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cli.SetVersion(version)

	cfg, err := config.Load()
	if err != nil {
		log.Printf("configuration error: %v", err)
		return 1
	}

	logger, err := logging.New(logging.ConfigFromEnv())
	if err != nil {
		log.Printf("failed to initialise logging: %v", err)
		return 1
	}
	defer logger.Sync()

	store, err := sqlite.Open(cfg.DatabasePath, logger)
	if err != nil {
		log.Printf("failed to open store: %v", err)
		return 1
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.EnsureSchema(ctx); err != nil {
		log.Printf("failed to ensure schema: %v", err)
		return 1
	}

	credentials := graph.NewCredentialProvider(cfg.ClientID, cfg.ClientSecret, cfg.LoginBaseURL)
	clientOpts := graph.Options{
		BaseURL:    cfg.GraphBaseURL,
		BetaURL:    cfg.GraphBetaURL,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   cfg.RetryMaxDelay,
		Timeout:    cfg.RequestTimeout,
		RateLimit: graph.RateLimitConfig{
			RequestsPerSecond: cfg.RequestsPerSecond,
			BurstSize:         cfg.Burst,
		},
		Logger: logger,
	}
	clients := func(tenantID string) *graph.Client {
		return graph.NewClient(tenantID, credentials.TokenProvider(tenantID), clientOpts)
	}

	resolver := services.NewResolver(services.ResolverConfig{
		Mode:            cfg.TenantMode,
		TenantID:        cfg.TenantID,
		TenantName:      cfg.TenantName,
		PartnerTenantID: cfg.PartnerTenantID,
		RosterPath:      cfg.TenantsFile,
	}, clients, logger)

	orchestrator := services.NewOrchestrator(resolver, clients, store, cfg.TenantWorkers, cfg.FamilyWorkers, logger)
	cli.SetSyncRunner(orchestrator)

	if err := cli.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
