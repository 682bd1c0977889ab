package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tandahub/tanda/internal/api"
	"github.com/tandahub/tanda/internal/auth"
	"github.com/tandahub/tanda/internal/engine"
	"github.com/tandahub/tanda/internal/identity"
	"github.com/tandahub/tanda/internal/notify"
	"github.com/tandahub/tanda/internal/settlement"
	"github.com/tandahub/tanda/internal/storage/sqlite"
	"github.com/tandahub/tanda/pkg/logging"
)

type config struct {
	port          int
	dbPath        string
	jwtSecret     string
	signerURL     string
	identityURL   string
	algodURL      string
	algodToken    string
	poolAddress   string
	confirmRounds int
	pollInterval  time.Duration
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("Ignoring malformed integer env var", "key", key, "value", value)
	}
	return fallback
}

func loadConfig() config {
	interval := settlement.DefaultPollInterval
	if raw := os.Getenv("POLL_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			interval = d
		} else {
			slog.Warn("Ignoring malformed POLL_INTERVAL", "value", raw)
		}
	}
	return config{
		port:          getEnvInt("PORT", 8080),
		dbPath:        getEnv("DB_PATH", "./data/tanda.db"),
		jwtSecret:     getEnv("JWT_SECRET", ""),
		signerURL:     getEnv("SIGNER_URL", "http://localhost:9090"),
		identityURL:   getEnv("IDENTITY_URL", "http://localhost:9091"),
		algodURL:      getEnv("ALGOD_URL", "https://testnet-api.algonode.cloud"),
		algodToken:    getEnv("ALGOD_TOKEN", ""),
		poolAddress:   getEnv("POOL_ADDRESS", ""),
		confirmRounds: getEnvInt("CONFIRM_ROUNDS", settlement.DefaultMaxRounds),
		pollInterval:  interval,
	}
}

func main() {
	logging.Setup()

	cfg := loadConfig()
	if cfg.jwtSecret == "" {
		slog.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	if cfg.poolAddress == "" {
		slog.Error("POOL_ADDRESS is required")
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.dbPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.dbPath)

	chain, err := settlement.NewAlgodChainQuery(cfg.algodURL, cfg.algodToken)
	if err != nil {
		slog.Error("Failed to connect to algod", "error", err)
		os.Exit(1)
	}

	gateway := settlement.NewGateway(store,
		settlement.NewHTTPSigner(cfg.signerURL),
		chain,
		settlement.WithMaxRounds(cfg.confirmRounds),
		settlement.WithPollInterval(cfg.pollInterval),
	)
	defer gateway.Wait()

	eng := engine.New(engine.Config{
		Store:       store,
		Settler:     gateway,
		Identity:    identity.NewHTTPDirectory(cfg.identityURL),
		Sink:        notify.NewStoreSink(store),
		PoolAddress: cfg.poolAddress,
	})

	jwtManager := auth.NewJWTManager(cfg.jwtSecret, 24*time.Hour)

	e := echo.New()
	e.HideBanner = true
	api.NewServer(eng).Register(e, jwtManager)

	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server starting", "address", addr, "algod", cfg.algodURL)
	if err := e.Start(addr); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
