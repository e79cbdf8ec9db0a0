package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"zlend/config"
	"zlend/core"
	"zlend/native/credit"
	"zlend/observability"
	"zlend/rpc"
	"zlend/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := observability.SetupLogging(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	opts, err := cfg.NodeOptions()
	if err != nil {
		logger.Error("Failed to build node options", slog.Any("error", err))
		os.Exit(1)
	}
	opts.Metrics = metrics
	opts.Logger = logger

	if secret := cfg.SealSecret(); len(secret) > 0 {
		opts.Verifier = credit.NewHMACVerifier(secret)
	} else {
		logger.Warn("Credit seal secret not set; proof submission is disabled",
			slog.String("env", cfg.SealSecretEnv))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, opts)
	if err != nil {
		logger.Error("Failed to initialize node", slog.Any("error", err))
		os.Exit(1)
	}

	token := cfg.RPCToken()
	if token == "" {
		logger.Warn("RPC auth token not set; mutating methods are disabled",
			slog.String("env", cfg.RPCTokenEnv))
	}

	server := rpc.NewServer(node, token, metrics)
	logger.Info("JSON-RPC server listening",
		slog.String("address", cfg.ListenAddress),
		slog.String("dataDir", cfg.DataDir))
	if err := server.Start(cfg.ListenAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
