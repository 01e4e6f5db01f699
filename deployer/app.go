package deployer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/okx/deploy-bot/contract"
	"github.com/okx/deploy-bot/metrics"
	"github.com/okx/deploy-bot/report"
	"github.com/okx/deploy-bot/scheduler"
	"github.com/okx/deploy-bot/utils"
)

// Dialer opens the chain connection of a run.
type Dialer func(ctx context.Context) (Chain, error)

// App wires one run: compile, load keys, dial, run, aggregate, persist.
// Startup failures are returned before any chain interaction; no summary is
// written unless the run completes.
type App struct {
	Config   utils.Config
	Version  string
	Compiler contract.Compiler
	Dial     Dialer
	Random   scheduler.RandomSource
	Sleep    utils.Sleeper
	Metrics  *metrics.Metrics
	Stores   []report.Store
	Log      log.Logger
	Now      func() time.Time
}

// NewApp builds an App with the production collaborators for cfg.
func NewApp(cfg utils.Config, version string, m *metrics.Metrics, logger log.Logger) (*App, error) {
	stores := []report.Store{report.FileStore{Path: cfg.Report.Path}}
	if cfg.Report.S3.Enabled() {
		s3, err := report.NewS3Store(cfg.Report.S3)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s3)
	}

	return &App{
		Config:   cfg,
		Version:  version,
		Compiler: compilerFor(cfg.Contract),
		Dial: func(ctx context.Context) (Chain, error) {
			cli, err := utils.NewEthClient(ctx, cfg.Network, cfg.RPC, logger)
			if err != nil {
				return nil, err
			}
			return cli, nil
		},
		Random:  scheduler.NewSource(cfg.Schedule.Seed),
		Sleep:   utils.Sleep,
		Metrics: m,
		Stores:  stores,
		Log:     logger,
		Now:     time.Now,
	}, nil
}

func compilerFor(cfg utils.ContractConfig) contract.Compiler {
	if cfg.ABIFile != "" && cfg.BinFile != "" {
		return contract.Precompiled{ABIFile: cfg.ABIFile, BinFile: cfg.BinFile}
	}
	return contract.Solc{Path: cfg.Solc, EVMVersion: cfg.EVMVersion}
}

// Run executes the whole run and returns the persisted summary.
func (a *App) Run(ctx context.Context) (*report.Summary, error) {
	// 1. Compile before touching keys or the network
	art, err := a.Compiler.Compile(ctx, contract.Name, contract.Source)
	if err != nil {
		return nil, err
	}
	a.Log.Info("Contract compiled", "name", art.Name, "bytecode", len(art.Bytecode))

	// 2. Load keys
	creds, err := utils.LoadCredentials(a.Config.KeysFile)
	if err != nil {
		return nil, err
	}

	// 3. Connect
	chain, err := a.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if c, ok := chain.(interface{ Close() }); ok {
		defer c.Close()
	}

	// 4. Run every wallet
	sched := scheduler.New(a.Config.Schedule, a.Config.Gas, a.Random)
	exec := NewExecutor(chain, sched, a.Sleep, a.Config.Network.Explorer, a.Metrics, a.Log)
	runner := NewRunner(exec, sched, a.Sleep, a.Metrics, a.Log)

	a.Log.Info("Starting run", "network", a.Config.Network.Name, "wallets", len(creds))
	outcomes, err := runner.Run(ctx, creds, art)
	if err != nil {
		return nil, err
	}

	// 5. Aggregate and persist
	summary, err := report.Aggregate(outcomes, report.Meta{
		RunID: uuid.NewString(),
		Network: report.Network{
			Name:     a.Config.Network.Name,
			ChainID:  a.Config.Network.ChainID,
			RPC:      a.Config.Network.RPC,
			Explorer: a.Config.Network.Explorer,
		},
		BotVersion: a.Version,
		Features:   sched.Features(),
	}, a.Now())
	if err != nil {
		return nil, err
	}

	// The first store is the durable artifact; the others are best-effort copies.
	for i, st := range a.Stores {
		if err := report.Persist(ctx, summary, st); err != nil {
			if i == 0 {
				return nil, err
			}
			a.Log.Warn("Failed to save summary copy", "location", st.Location(summary), "err", err)
			continue
		}
		a.Log.Info("Summary saved", "location", st.Location(summary))
	}

	a.Log.Info("Run complete", "runId", summary.RunID, "successful", summary.Totals.Successful,
		"failed", summary.Totals.Failed, "total", summary.Totals.Total, "uniqueWallets", summary.Totals.UniqueWallets,
		"duration", summary.EndTime.Sub(summary.StartTime).Round(time.Second))
	return summary, nil
}
