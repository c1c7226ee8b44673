package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"raffle/internal/auth"
	"raffle/internal/config"
	"raffle/internal/custody"
	"raffle/internal/engine"
	"raffle/internal/handlers"
	"raffle/internal/logger"
	"raffle/internal/oracle"
	"raffle/internal/storage"
	"raffle/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger.Initialize(cfg.Log)
	defer logger.Sync()

	verifier, err := auth.VerifierFromHex(cfg.SignerPublicKey)
	if err != nil {
		logger.Fatal("parse signer key", zap.Error(err))
	}

	logger.Debug("initializing custody bank...")
	bank := custody.NewBank(engine.Address(cfg.EscrowAddress))

	logger.Debug("initializing storage...")
	store := storage.NewSqliteStorage(cfg.DatabasePath)

	commissionVault := vault.New(engine.Address(cfg.VaultAddress), verifier, bank)

	var source engine.RandomnessSource
	var localOracle *oracle.Local
	if cfg.LocalOracle {
		localOracle = oracle.NewLocal(engine.Address(cfg.OraclePrincipal), cfg.OracleDelay)
		source = localOracle
	} else {
		// external oracles watch RandomnessRequested events and deliver
		// through POST /oracle/fulfill; ids are still issued here
		source = oracle.NewIssuer()
	}

	registry := engine.NewRegistry(engine.RegistryConfig{
		Admin:           engine.Address(cfg.AdminAddress),
		OraclePrincipal: engine.Address(cfg.OraclePrincipal),
		Verifier:        verifier,
		Custody:         bank,
		Bank:            bank,
		Vault:           commissionVault,
		Oracle:          source,
		CommissionBps:   cfg.CommissionBps,
		Emitter:         engine.MultiEmitter{engine.LogEmitter{}, storage.NewRecorder(store)},
	})
	if localOracle != nil {
		localOracle.Bind(registry)
	}

	httpHandler := handlers.NewHTTPHandler(registry, commissionVault, store)
	router := gin.Default()
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("raffle settlement service listening", zap.String("address", cfg.ListenAddress))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("server stopped", zap.Error(err))
	case <-waitForInterrupt():
		logger.Info("interrupt received, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
