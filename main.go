package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okx/deploy-bot/deployer"
	"github.com/okx/deploy-bot/metrics"
	"github.com/okx/deploy-bot/utils"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const (
	FlagConfigFile = "config"
	FlagKeys       = "keys"
	FlagReport     = "report"
	FlagSeed       = "seed"
	FlagLogLevel   = "log-level"
	FlagRPC        = "rpc"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "deploy-bot",
		Short: "Deploy MessageBoard contracts from a set of wallets on a randomized schedule",
		Long: `Deploys a small MessageBoard contract from every wallet in the key file.

Wallets are processed one at a time in random order. Each wallet deploys 2-4
times, hours apart, and most deployments are followed by an updateMessage call.
A JSON summary of the run is written once every wallet is done.

Example:
  deploy-bot --keys ./private_keys.txt --config ./testdata/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVarP(&configPath, FlagConfigFile, "c", "", "Path to an optional YAML/JSON/TOML config file")
	rootCmd.Flags().StringP(FlagKeys, "k", "private_keys.txt", "File with one hex private key per line")
	rootCmd.Flags().StringP(FlagReport, "o", "deployment-summary.json", "Where to write the run summary")
	rootCmd.Flags().Uint64(FlagSeed, 0, "Seed for the scheduler, 0 picks a random one")
	rootCmd.Flags().String(FlagLogLevel, "info", "Log level: trace, debug, info, warn, error, crit")
	rootCmd.Flags().String(FlagRPC, "", "Override the network RPC endpoint")

	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "deploy-bot failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := utils.LoadConfig(configPath, changedFlags(cmd))
	if err != nil {
		return err
	}

	logger, err := utils.NewLogger(os.Stdout, cfg.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("Metrics server stopped", "err", err)
			}
		}()
	}

	app, err := deployer.NewApp(cfg, Version, m, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting deploy-bot", "version", Version, "network", cfg.Network.Name, "keys", cfg.KeysFile)
	if _, err := app.Run(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Warn("Run interrupted, no summary written")
		}
		return err
	}
	return nil
}
