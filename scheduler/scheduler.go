package scheduler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/okx/deploy-bot/utils"
)

// Plan is drawn once per wallet when the wallet starts processing.
type Plan struct {
	DeployCount   int
	IntervalHours int
}

// Scheduler decides wallet order, per wallet plans, delays, gas limits and
// follow-up behavior. Draws are independent; no state is carried across calls.
type Scheduler struct {
	cfg utils.ScheduleConfig
	gas utils.GasConfig
	rnd RandomSource
}

// New returns a Scheduler drawing every value from rnd within the ranges of cfg and gas.
func New(cfg utils.ScheduleConfig, gas utils.GasConfig, rnd RandomSource) *Scheduler {
	return &Scheduler{cfg: cfg, gas: gas, rnd: rnd}
}

// ShuffleWallets returns a uniform permutation of creds; creds is not modified.
func (s *Scheduler) ShuffleWallets(creds []utils.Credential) []utils.Credential {
	return Shuffle(s.rnd, creds)
}

// PlanForWallet draws the deployment count and interval of one wallet.
func (s *Scheduler) PlanForWallet() Plan {
	return Plan{
		DeployCount:   s.rnd.IntRange(s.cfg.DeployCountMin, s.cfg.DeployCountMax),
		IntervalHours: Choice(s.rnd, s.cfg.IntervalHours),
	}
}

// InterDeployDelay is intervalHours plus or minus up to JitterSeconds.
func (s *Scheduler) InterDeployDelay(intervalHours int) time.Duration {
	secs := intervalHours*3600 + s.rnd.IntRange(-s.cfg.JitterSeconds, s.cfg.JitterSeconds)
	return time.Duration(secs) * time.Second
}

// InterWalletDelay is the pause between the last deployment of a wallet and the next wallet.
func (s *Scheduler) InterWalletDelay() time.Duration {
	return time.Duration(s.rnd.IntRange(s.cfg.WalletDelayMin, s.cfg.WalletDelayMax)) * time.Second
}

// PreUpdateDelay paces the follow-up transaction after a deployment.
func (s *Scheduler) PreUpdateDelay() time.Duration {
	return time.Duration(s.rnd.IntRange(s.cfg.PreUpdateDelayMin, s.cfg.PreUpdateDelayMax)) * time.Second
}

// ShouldSendFollowUp decides whether a deployment gets an updateMessage call.
func (s *Scheduler) ShouldSendFollowUp() bool {
	return Chance(s.rnd, s.cfg.FollowUpProbability)
}

// PickMessage returns one of the configured follow-up messages.
func (s *Scheduler) PickMessage() string {
	return Choice(s.rnd, s.cfg.Messages)
}

// DeployGasLimit varies the deployment gas limit so deployments do not share
// a fingerprint. It is not checked against what the contract needs.
func (s *Scheduler) DeployGasLimit() uint64 {
	return s.uint64Range(s.gas.DeployMin, s.gas.DeployMax)
}

// UpdateGasLimit is the gas limit of a follow-up updateMessage transaction.
func (s *Scheduler) UpdateGasLimit() uint64 {
	return s.uint64Range(s.gas.UpdateMin, s.gas.UpdateMax)
}

func (s *Scheduler) uint64Range(min, max uint64) uint64 {
	return min + uint64(s.rnd.IntRange(0, int(max-min)))
}

// Features describes the active randomization for the run report.
func (s *Scheduler) Features() []string {
	hours := slices.Clone(s.cfg.IntervalHours)
	slices.Sort(hours)
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = strconv.Itoa(h) + "h"
	}

	return []string{
		"shuffled wallet order",
		fmt.Sprintf("random deployments per wallet (%d-%d)", s.cfg.DeployCountMin, s.cfg.DeployCountMax),
		fmt.Sprintf("random interval between deployments (%s) with ±%ds jitter", strings.Join(parts, "/"), s.cfg.JitterSeconds),
		fmt.Sprintf("random delay between wallets (%d-%ds)", s.cfg.WalletDelayMin, s.cfg.WalletDelayMax),
		fmt.Sprintf("random deploy gas limit (%d-%d)", s.gas.DeployMin, s.gas.DeployMax),
		fmt.Sprintf("random update gas limit (%d-%d)", s.gas.UpdateMin, s.gas.UpdateMax),
		fmt.Sprintf("follow-up updateMessage with %.0f%% probability", s.cfg.FollowUpProbability*100),
		fmt.Sprintf("random message from %d presets", len(s.cfg.Messages)),
	}
}
