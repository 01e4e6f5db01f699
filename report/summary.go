package report

import (
	"errors"
	"time"
)

// ErrNoOutcomes is returned when aggregating a run that produced nothing.
var ErrNoOutcomes = errors.New("no deployment outcomes to aggregate")

// Outcome is the result of one deployment attempt. Failed attempts carry
// Error and never a contract address or transaction hash.
type Outcome struct {
	Success         bool      `json:"success"`
	Deployer        string    `json:"deployer"`
	ContractAddress string    `json:"contractAddress,omitempty"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	UpdateTxHash    string    `json:"updateTxHash,omitempty"`
	Message         string    `json:"message,omitempty"`
	UpdatedMessage  string    `json:"updatedMessage,omitempty"`
	ExplorerURL     string    `json:"explorerUrl,omitempty"`
	GasLimit        uint64    `json:"gasLimit,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	WalletIndex     int       `json:"walletIndex"`
	DeployNumber    int       `json:"deployNumber"`
}

type Network struct {
	Name     string `json:"name"`
	ChainID  uint64 `json:"chainId"`
	RPC      string `json:"rpc"`
	Explorer string `json:"explorer"`
}

type Totals struct {
	Successful    int `json:"successful"`
	Failed        int `json:"failed"`
	Total         int `json:"total"`
	UniqueWallets int `json:"uniqueWallets"`
}

// Meta is the run level information that does not come from outcomes.
type Meta struct {
	RunID      string
	Network    Network
	BotVersion string
	Features   []string
}

// Summary is the durable record of a run. It is written once and never mutated.
type Summary struct {
	RunID       string    `json:"runId"`
	Network     Network   `json:"network"`
	BotVersion  string    `json:"botVersion"`
	Features    []string  `json:"features"`
	Totals      Totals    `json:"totals"`
	Deployments []Outcome `json:"deployments"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// Aggregate folds outcomes, kept in execution order, into a Summary.
// Unique wallets count every deployer, failed attempts included.
func Aggregate(outcomes []Outcome, meta Meta, now time.Time) (*Summary, error) {
	if len(outcomes) == 0 {
		return nil, ErrNoOutcomes
	}

	var totals Totals
	deployers := make(map[string]struct{})
	for _, o := range outcomes {
		if o.Success {
			totals.Successful++
		} else {
			totals.Failed++
		}
		deployers[o.Deployer] = struct{}{}
	}
	totals.Total = len(outcomes)
	totals.UniqueWallets = len(deployers)

	deployments := make([]Outcome, len(outcomes))
	copy(deployments, outcomes)

	return &Summary{
		RunID:       meta.RunID,
		Network:     meta.Network,
		BotVersion:  meta.BotVersion,
		Features:    meta.Features,
		Totals:      totals,
		Deployments: deployments,
		StartTime:   outcomes[0].Timestamp.UTC(),
		EndTime:     now.UTC(),
	}, nil
}

// Successful returns the successful deployments in run order.
func (s *Summary) Successful() []Outcome {
	return s.filter(true)
}

// Failed returns the failed deployments in run order.
func (s *Summary) Failed() []Outcome {
	return s.filter(false)
}

func (s *Summary) filter(success bool) []Outcome {
	var out []Outcome
	for _, o := range s.Deployments {
		if o.Success == success {
			out = append(out, o)
		}
	}
	return out
}
