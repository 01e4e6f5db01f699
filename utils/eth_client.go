package utils

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcmn "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/okx/deploy-bot/contract"
)

var (
	// ErrChainIDMismatch is returned when the endpoint serves another chain.
	ErrChainIDMismatch = errors.New("chain id mismatch")
	// ErrTxFailed is returned for a mined transaction whose receipt status is failed.
	ErrTxFailed = errors.New("transaction failed")
	// ErrNoCode is returned when a mined deployment left no code at its address.
	ErrNoCode = errors.New("no contract code after deployment")
)

// EthClient is the chain connection of a run. Every RPC-backed call is paced
// by a per-connection rate limiter and bounded by a timeout.
type EthClient struct {
	*ethclient.Client
	chainID *big.Int

	limiter        *rate.Limiter
	timeout        time.Duration
	confirmTimeout time.Duration
	log            log.Logger
}

// createHTTPClient creates the HTTP client used by the rpc connection. Calls
// are sequential so a small idle pool is enough.
func createHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// NewEthClient dials network.RPC and checks that it serves network.ChainID.
func NewEthClient(ctx context.Context, network NetworkConfig, cfg RPCConfig, logger log.Logger) (*EthClient, error) {
	rpcClient, err := rpc.DialOptions(ctx, network.RPC, rpc.WithHTTPClient(createHTTPClient(cfg.Timeout)))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rpc client: %w", err)
	}

	cli := ethclient.NewClient(rpcClient)
	e := &EthClient{
		Client:         cli,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		timeout:        cfg.Timeout,
		confirmTimeout: cfg.ConfirmTimeout,
		log:            logger,
	}

	callCtx, cancel, err := e.call(ctx)
	if err != nil {
		cli.Close()
		return nil, err
	}
	defer cancel()

	chainID, err := cli.ChainID(callCtx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if chainID.Uint64() != network.ChainID {
		cli.Close()
		return nil, fmt.Errorf("%w: %s serves %s, expected %d", ErrChainIDMismatch, network.Name, chainID, network.ChainID)
	}
	e.chainID = chainID

	logger.Info("Connected to network", "network", network.Name, "chainId", chainID)
	return e, nil
}

// call waits for the rate limiter and derives a context bounded by the call timeout.
func (e *EthClient) call(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	if e.timeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	return ctx, cancel, nil
}

// Balance returns the latest balance of addr in wei.
func (e *EthClient) Balance(ctx context.Context, addr ethcmn.Address) (*big.Int, error) {
	ctx, cancel, err := e.call(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return e.BalanceAt(ctx, addr, nil)
}

func (e *EthClient) transactOpts(ctx context.Context, cred Credential, gasLimit uint64) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(cred.Key, e.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = gasLimit
	return opts, nil
}

// Deploy submits the creation transaction of art and waits until the contract
// code is present on chain.
func (e *EthClient) Deploy(ctx context.Context, cred Credential, art *contract.Artifact, gasLimit uint64) (ethcmn.Address, ethcmn.Hash, error) {
	callCtx, cancel, err := e.call(ctx)
	if err != nil {
		return ethcmn.Address{}, ethcmn.Hash{}, err
	}
	defer cancel()

	opts, err := e.transactOpts(callCtx, cred, gasLimit)
	if err != nil {
		return ethcmn.Address{}, ethcmn.Hash{}, err
	}

	// 1. Sign and send the contract creation transaction
	addr, tx, _, err := bind.DeployContract(opts, art.ABI, art.Bytecode, e.Client)
	if err != nil {
		return ethcmn.Address{}, ethcmn.Hash{}, fmt.Errorf("failed to send deployment: %w", err)
	}
	e.log.Debug("Deployment sent", "caller", cred.Address, "nonce", tx.Nonce(), "contract", addr, "tx", tx.Hash())

	// 2. Wait for it to be mined
	if _, err := e.waitMined(ctx, tx); err != nil {
		return ethcmn.Address{}, ethcmn.Hash{}, err
	}

	// 3. Make sure the constructor left code behind
	codeCtx, cancelCode, err := e.call(ctx)
	if err != nil {
		return ethcmn.Address{}, ethcmn.Hash{}, err
	}
	defer cancelCode()
	code, err := e.CodeAt(codeCtx, addr, nil)
	if err != nil {
		return ethcmn.Address{}, ethcmn.Hash{}, err
	}
	if len(code) == 0 {
		return ethcmn.Address{}, ethcmn.Hash{}, fmt.Errorf("%w: %s", ErrNoCode, addr.Hex())
	}

	return addr, tx.Hash(), nil
}

// Message reads the current message stored by a deployed contract.
func (e *EthClient) Message(ctx context.Context, art *contract.Artifact, addr ethcmn.Address) (string, error) {
	ctx, cancel, err := e.call(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	bound := bind.NewBoundContract(addr, art.ABI, e.Client, e.Client, e.Client)
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, contract.MethodMessage); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", contract.MethodMessage, err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("unexpected %s output length %d", contract.MethodMessage, len(out))
	}
	msg, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s output type %T", contract.MethodMessage, out[0])
	}
	return msg, nil
}

// UpdateMessage sends updateMessage(msg) to addr and waits until it is mined.
func (e *EthClient) UpdateMessage(ctx context.Context, cred Credential, art *contract.Artifact, addr ethcmn.Address, msg string, gasLimit uint64) (ethcmn.Hash, error) {
	callCtx, cancel, err := e.call(ctx)
	if err != nil {
		return ethcmn.Hash{}, err
	}
	defer cancel()

	opts, err := e.transactOpts(callCtx, cred, gasLimit)
	if err != nil {
		return ethcmn.Hash{}, err
	}

	bound := bind.NewBoundContract(addr, art.ABI, e.Client, e.Client, e.Client)
	tx, err := bound.Transact(opts, contract.MethodUpdateMessage, msg)
	if err != nil {
		return ethcmn.Hash{}, fmt.Errorf("failed to send %s: %w", contract.MethodUpdateMessage, err)
	}
	e.log.Debug("Update sent", "caller", cred.Address, "contract", addr, "tx", tx.Hash())

	if _, err := e.waitMined(ctx, tx); err != nil {
		return ethcmn.Hash{}, err
	}
	return tx.Hash(), nil
}

// waitMined waits until tx has been mined or the confirm timeout expires.
func (e *EthClient) waitMined(parentCtx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(parentCtx, e.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, e.Client, tx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("timed out after %v waiting for tx %s", e.confirmTimeout, tx.Hash().Hex())
	} else if err != nil {
		return nil, fmt.Errorf("error waiting tx %s to be mined: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: tx %s reverted in block %v, gas used %d of %d",
			ErrTxFailed, tx.Hash().Hex(), receipt.BlockNumber, receipt.GasUsed, tx.Gas())
	}
	e.log.Debug("Transaction mined", "tx", tx.Hash(), "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	return receipt, nil
}
