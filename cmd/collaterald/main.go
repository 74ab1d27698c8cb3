package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"collateralvault/config"
	"collateralvault/native/collateral"
	"collateralvault/observability/logging"
	"collateralvault/rpc"
	collateralstate "collateralvault/state/collateral"
	"collateralvault/storage"
)

func main() {
	configPath := flag.String("config", "vault.toml", "path to the vault configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("collaterald", "", "").Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	logger := logging.Setup("collaterald", cfg.LogEnv, cfg.LogFile)

	params, err := cfg.EngineParams()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "vault"))
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	store := collateralstate.NewStore(db)
	engine, err := collateral.NewEngine(params)
	if err != nil {
		logger.Error("failed to construct engine", "err", err)
		os.Exit(1)
	}
	engine.SetState(store)
	engine.SetBank(store)

	server := rpc.NewServer(engine, cfg.NetworkName, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	logger.Info("collateral vault started",
		"network", cfg.NetworkName,
		"rpc", cfg.RPCAddress,
		"trustee", cfg.Trustee,
		"minCollateralIncrease", cfg.MinCollateralIncrease,
		"decisionTimeoutSeconds", cfg.DecisionTimeoutSeconds,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("rpc server stopped", "err", err)
			os.Exit(1)
		}
	}
}
