package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewardhub/backend/config"
	"github.com/rewardhub/backend/ledger"
	"github.com/rewardhub/backend/repository"
	"github.com/rewardhub/backend/server"
	"github.com/rewardhub/backend/workflow"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the config file (optional, env vars override)")
}

func main() {
	// Load Config
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Connect Postgresql DB
	repo, err := repository.Open(cfg.Database.DSN, logger)
	if err != nil {
		log.Fatalf("Connecting to database: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		log.Fatalf("Migrating schema: %v", err)
	}
	if cfg.Database.Seed {
		if err := repo.Seed(cfg.Database.SeedAdminEmail, cfg.Database.SeedAdminPassword); err != nil {
			log.Fatalf("Seeding database: %v", err)
		}
	}

	// Connect token ledger
	gateway, err := ledger.NewEVMGateway(ledger.Config{
		RPCURL:             cfg.Ledger.RPCURL,
		ContractAddress:    cfg.Ledger.ContractAddress,
		ChainID:            cfg.Ledger.ChainID,
		ServiceKey:         cfg.Ledger.ServiceKey,
		KeystoreDir:        cfg.Ledger.KeystoreDir,
		KeystorePassphrase: cfg.Ledger.KeystorePassphrase,
		CallTimeout:        cfg.Ledger.CallTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("Connecting to ledger: %v", err)
	}

	// Workflows
	awards := workflow.NewAwardService(repo, gateway, logger)
	redemptions := workflow.NewRedemptionService(repo, gateway, logger)
	dashboard := workflow.NewDashboardService(repo, gateway, logger)

	// Background resolver for awards stranded in pending_onchain
	if cfg.Sweep.Enabled {
		sweeper := workflow.NewSweeper(repo, logger, cfg.Sweep.Interval, cfg.Sweep.MaxPendingAge)
		sweeper.Start()
		defer sweeper.Stop()
	}

	// Start Web Server
	webserver := server.NewWebServer(
		repo, gateway, awards, redemptions, dashboard,
		server.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, TokenTTL: cfg.Auth.TokenTTL},
		cfg.Server.Port, logger,
	)
	webserver.Start()

	// Wait for interrupt signal to gracefully shut down the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webserver.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	logger.Info("server stopped")
}
