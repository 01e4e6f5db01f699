package deployer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/okx/deploy-bot/contract"
	"github.com/okx/deploy-bot/metrics"
	"github.com/okx/deploy-bot/report"
	"github.com/okx/deploy-bot/scheduler"
	"github.com/okx/deploy-bot/utils"
)

// ErrInsufficientBalance fails an attempt before anything is sent.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Chain is what an attempt needs from the network. Deploy and UpdateMessage
// return once the transaction is confirmed.
type Chain interface {
	Balance(ctx context.Context, addr ethcmn.Address) (*big.Int, error)
	Deploy(ctx context.Context, cred utils.Credential, art *contract.Artifact, gasLimit uint64) (ethcmn.Address, ethcmn.Hash, error)
	Message(ctx context.Context, art *contract.Artifact, addr ethcmn.Address) (string, error)
	UpdateMessage(ctx context.Context, cred utils.Credential, art *contract.Artifact, addr ethcmn.Address, msg string, gasLimit uint64) (ethcmn.Hash, error)
}

var _ Chain = (*utils.EthClient)(nil)

// Executor performs single deployment attempts. It turns every failure into
// a failed Outcome; nothing it does can abort a run.
type Executor struct {
	chain    Chain
	sched    *scheduler.Scheduler
	sleep    utils.Sleeper
	explorer string
	metrics  *metrics.Metrics
	log      log.Logger
	now      func() time.Time
}

// NewExecutor returns an Executor sending through chain. Contract links are
// built from the explorer base URL; an empty explorer leaves them out.
func NewExecutor(chain Chain, sched *scheduler.Scheduler, sleep utils.Sleeper, explorer string, m *metrics.Metrics, logger log.Logger) *Executor {
	return &Executor{
		chain:    chain,
		sched:    sched,
		sleep:    sleep,
		explorer: strings.TrimRight(explorer, "/"),
		metrics:  m,
		log:      logger,
		now:      time.Now,
	}
}

type deployment struct {
	gasLimit uint64
	contract ethcmn.Address
	deployTx ethcmn.Hash
	message  string
	updateTx ethcmn.Hash
	updated  string
}

// Attempt deploys art from cred and maybe sends one updateMessage call.
func (e *Executor) Attempt(ctx context.Context, cred utils.Credential, art *contract.Artifact, deployNumber, walletIndex int) report.Outcome {
	out := report.Outcome{
		Deployer:     cred.Address.Hex(),
		WalletIndex:  walletIndex,
		DeployNumber: deployNumber,
	}

	logger := e.log.New("deploy", deployNumber, "wallet", cred.Address)
	d, err := e.safeDeploy(ctx, logger, cred, art)

	out.GasLimit = d.gasLimit
	out.Timestamp = e.now().UTC()
	e.metrics.ObserveAttempt(err == nil)

	if err != nil {
		out.Error = err.Error()
		logger.Warn("Deployment failed", "err", err)
		return out
	}

	out.Success = true
	out.ContractAddress = d.contract.Hex()
	out.TransactionHash = d.deployTx.Hex()
	out.Message = d.message
	if d.updateTx != (ethcmn.Hash{}) {
		out.UpdateTxHash = d.updateTx.Hex()
		out.UpdatedMessage = d.updated
	}
	if e.explorer != "" {
		out.ExplorerURL = e.explorer + "/address/" + out.ContractAddress
	}

	logger.Info("Deployment succeeded", "contract", out.ContractAddress, "tx", out.TransactionHash, "updated", out.UpdateTxHash != "")
	return out
}

func (e *Executor) safeDeploy(ctx context.Context, logger log.Logger, cred utils.Credential, art *contract.Artifact) (d deployment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return e.deploy(ctx, logger, cred, art)
}

func (e *Executor) deploy(ctx context.Context, logger log.Logger, cred utils.Credential, art *contract.Artifact) (deployment, error) {
	var d deployment

	// 1. Empty wallets never reach the deploy call
	balance, err := e.chain.Balance(ctx, cred.Address)
	if err != nil {
		return d, fmt.Errorf("failed to query balance: %w", err)
	}
	if balance == nil || balance.Sign() == 0 {
		return d, fmt.Errorf("%w: %s has zero balance", ErrInsufficientBalance, cred.Address.Hex())
	}
	logger.Debug("Balance checked", "wei", balance)

	// 2. Deploy and wait for confirmation
	d.gasLimit = e.sched.DeployGasLimit()
	addr, txHash, err := e.chain.Deploy(ctx, cred, art, d.gasLimit)
	if err != nil {
		return d, fmt.Errorf("failed to deploy %s: %w", art.Name, err)
	}
	logger.Info("Contract deployed", "contract", addr, "tx", txHash, "gasLimit", d.gasLimit)

	// 3. Read back the stored message
	msg, err := e.chain.Message(ctx, art, addr)
	if err != nil {
		return d, fmt.Errorf("failed to read back %s: %w", addr.Hex(), err)
	}
	d.contract, d.deployTx, d.message = addr, txHash, msg

	// 4. Optionally change it
	send := e.sched.ShouldSendFollowUp()
	e.metrics.ObserveFollowUp(send)
	if !send {
		logger.Debug("Skipping follow-up transaction")
		return d, nil
	}

	delay := e.sched.PreUpdateDelay()
	done := e.metrics.Waiting("update", delay)
	err = e.sleep(ctx, delay)
	done()
	if err != nil {
		return d, err
	}

	newMsg := e.sched.PickMessage()
	updateTx, err := e.chain.UpdateMessage(ctx, cred, art, addr, newMsg, e.sched.UpdateGasLimit())
	if err != nil {
		return d, fmt.Errorf("failed to update message on %s: %w", addr.Hex(), err)
	}
	logger.Info("Message updated", "contract", addr, "tx", updateTx, "message", newMsg)
	d.updateTx, d.updated = updateTx, newMsg

	return d, nil
}
