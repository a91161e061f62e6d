package main

import (
	"flag"
	"log/slog"
	"os"
	"strings"

	"tradescrow/audit"
	"tradescrow/config"
	"tradescrow/core/events"
	"tradescrow/escrow"
	"tradescrow/observability/logging"
	"tradescrow/rpc"
	"tradescrow/settlement"
	"tradescrow/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ESCROWD_ENV"))
	logger := logging.Setup("escrowd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	vault, err := cfg.Vault()
	if err != nil {
		logger.Error("failed to decode vault address", slog.Any("error", err))
		os.Exit(1)
	}
	releaseMode, err := escrow.ParseReleaseMode(cfg.ReleasePolicy)
	if err != nil {
		logger.Error("failed to parse release policy", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	ledger := settlement.NewLedger()
	auditLog := audit.NewLog()

	engine := escrow.NewEngine()
	engine.SetState(storage.NewTradeStore(db))
	engine.SetChannel(ledger)
	engine.SetVaultAddress(vault)
	engine.SetPolicy(escrow.Policy{
		Release:               releaseMode,
		LockHashAfterShipment: cfg.LockHashAfterShipment,
	})
	engine.SetEmitter(events.Fanout{auditLog})

	server := rpc.NewServer(engine, ledger, auditLog, logger)
	logger.Info("escrowd configured",
		slog.String("listen", cfg.ListenAddress),
		slog.String("releasePolicy", cfg.ReleasePolicy),
		slog.Bool("lockHashAfterShipment", cfg.LockHashAfterShipment),
	)
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("rpc server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
