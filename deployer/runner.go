package deployer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/deploy-bot/contract"
	"github.com/okx/deploy-bot/metrics"
	"github.com/okx/deploy-bot/report"
	"github.com/okx/deploy-bot/scheduler"
	"github.com/okx/deploy-bot/utils"
)

// Runner walks the wallets one at a time, in shuffled order, and runs each
// wallet's plan one attempt at a time.
type Runner struct {
	exec    *Executor
	sched   *scheduler.Scheduler
	sleep   utils.Sleeper
	metrics *metrics.Metrics
	log     log.Logger
}

// NewRunner returns a Runner driving exec with the plans and delays of sched.
func NewRunner(exec *Executor, sched *scheduler.Scheduler, sleep utils.Sleeper, m *metrics.Metrics, logger log.Logger) *Runner {
	return &Runner{exec: exec, sched: sched, sleep: sleep, metrics: m, log: logger}
}

// Run returns the outcomes in execution order. It fails only when ctx is
// done, in which case the partial outcomes are dropped.
func (r *Runner) Run(ctx context.Context, creds []utils.Credential, art *contract.Artifact) ([]report.Outcome, error) {
	if len(creds) == 0 {
		return nil, utils.ErrNoCredentials
	}

	wallets := r.sched.ShuffleWallets(creds)
	r.metrics.SetWallets(len(wallets))

	var (
		outcomes     []report.Outcome
		deployNumber int
	)
	for i, cred := range wallets {
		walletIndex := i + 1
		plan := r.sched.PlanForWallet()
		r.log.Info("Processing wallet", "wallet", cred.Address, "index", walletIndex, "of", len(wallets),
			"deployments", plan.DeployCount, "intervalHours", plan.IntervalHours)

		for n := 1; n <= plan.DeployCount; n++ {
			deployNumber++
			outcomes = append(outcomes, r.exec.Attempt(ctx, cred, art, deployNumber, walletIndex))
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if n < plan.DeployCount {
				delay := r.sched.InterDeployDelay(plan.IntervalHours)
				r.log.Info("Waiting before next deployment", "wallet", cred.Address, "delay", delay,
					"next", time.Now().Add(delay).Format(time.RFC3339))
				if err := r.wait(ctx, "deploy", delay); err != nil {
					return nil, err
				}
			}
		}
		r.metrics.WalletDone()

		if walletIndex < len(wallets) {
			delay := r.sched.InterWalletDelay()
			r.log.Info("Waiting before next wallet", "delay", delay)
			if err := r.wait(ctx, "wallet", delay); err != nil {
				return nil, err
			}
		}
	}

	return outcomes, nil
}

func (r *Runner) wait(ctx context.Context, kind string, d time.Duration) error {
	done := r.metrics.Waiting(kind, d)
	defer done()
	return r.sleep(ctx, d)
}
