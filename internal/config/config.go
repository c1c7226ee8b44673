package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"raffle/internal/logger"
)

// Configuration is the service's environment-driven configuration.
type Configuration struct {
	ListenAddress string
	DatabasePath  string

	Log logger.Configuration

	// hex-encoded public point of the trusted grant signer
	SignerPublicKey string

	AdminAddress    string
	OraclePrincipal string
	VaultAddress    string
	EscrowAddress   string

	CommissionBps uint32

	// dev-mode oracle that fulfills randomness requests in-process
	LocalOracle bool
	OracleDelay time.Duration
}

// Load reads configuration from .env (if present) and the environment.
func Load() (Configuration, error) {
	_ = godotenv.Load()

	cfg := Configuration{
		ListenAddress: getenv("RAFFLE_LISTEN_ADDRESS", ":8080"),
		DatabasePath:  getenv("RAFFLE_DATABASE_PATH", "raffle.db"),
		Log: logger.Configuration{
			LogFile:   os.Getenv("RAFFLE_LOG_FILE"),
			ErrorFile: os.Getenv("RAFFLE_ERROR_FILE"),
			Level:     getenv("RAFFLE_LOG_LEVEL", "debug"),
			Console:   getenv("RAFFLE_LOG_CONSOLE", "true") == "true",
		},
		SignerPublicKey: os.Getenv("RAFFLE_SIGNER_PUBLIC_KEY"),
		AdminAddress:    getenv("RAFFLE_ADMIN_ADDRESS", "admin"),
		OraclePrincipal: getenv("RAFFLE_ORACLE_PRINCIPAL", "oracle"),
		VaultAddress:    getenv("RAFFLE_VAULT_ADDRESS", "vault"),
		EscrowAddress:   getenv("RAFFLE_ESCROW_ADDRESS", "escrow"),
		LocalOracle:     getenv("RAFFLE_LOCAL_ORACLE", "true") == "true",
	}

	if cfg.SignerPublicKey == "" {
		return cfg, fmt.Errorf("RAFFLE_SIGNER_PUBLIC_KEY is required")
	}

	bps, err := strconv.ParseUint(getenv("RAFFLE_COMMISSION_BPS", "500"), 10, 32)
	if err != nil {
		return cfg, fmt.Errorf("parse RAFFLE_COMMISSION_BPS: %w", err)
	}
	if bps > 10000 {
		return cfg, fmt.Errorf("RAFFLE_COMMISSION_BPS must not exceed 10000")
	}
	cfg.CommissionBps = uint32(bps)

	delay, err := time.ParseDuration(getenv("RAFFLE_ORACLE_DELAY", "2s"))
	if err != nil {
		return cfg, fmt.Errorf("parse RAFFLE_ORACLE_DELAY: %w", err)
	}
	cfg.OracleDelay = delay

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
