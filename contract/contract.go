package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcmn "github.com/ethereum/go-ethereum/common"
)

// Name is the contract every deployment instantiates.
const Name = "MessageBoard"

// Source is the Solidity source of Name. It is compiled once per run.
const Source = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.19;

contract MessageBoard {
    string public message;
    address public owner;
    uint256 public updates;

    event MessageUpdated(address indexed by, string message);

    constructor() {
        owner = msg.sender;
        message = "Hello from deploy-bot";
    }

    function updateMessage(string calldata newMessage) external {
        message = newMessage;
        updates += 1;
        emit MessageUpdated(msg.sender, newMessage);
    }
}
`

// Method names used by the deployer.
const (
	MethodMessage       = "message"
	MethodUpdateMessage = "updateMessage"
)

// ErrCompile wraps every failure to produce an artifact.
var ErrCompile = errors.New("contract compilation failed")

// Artifact is a compiled contract: its ABI and creation bytecode.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

// Compiler turns contract source into an Artifact.
type Compiler interface {
	Compile(ctx context.Context, name, source string) (*Artifact, error)
}

var (
	_ Compiler = Solc{}
	_ Compiler = Precompiled{}
)

// Solc compiles with a local solc binary.
type Solc struct {
	Path       string // defaults to "solc" on PATH
	EVMVersion string // e.g. "paris" for chains without PUSH0
}

// Compile runs solc with --combined-json on the source fed through stdin.
func (s Solc) Compile(ctx context.Context, name, source string) (*Artifact, error) {
	path := s.Path
	if path == "" {
		path = "solc"
	}

	args := []string{"--combined-json", "abi,bin", "--optimize"}
	if s.EVMVersion != "" {
		args = append(args, "--evm-version", s.EVMVersion)
	}
	args = append(args, "-")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = strings.NewReader(source)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrCompile, path, err, strings.TrimSpace(stderr.String()))
	}

	return ParseCombinedJSON(stdout.Bytes(), name)
}

type combinedOutput struct {
	Contracts map[string]struct {
		ABI json.RawMessage `json:"abi"`
		Bin string          `json:"bin"`
	} `json:"contracts"`
	Version string `json:"version"`
}

// ParseCombinedJSON extracts contract name from solc --combined-json output.
// Older solc releases encode the abi as a JSON string, newer ones as an array;
// both are accepted.
func ParseCombinedJSON(output []byte, name string) (*Artifact, error) {
	var out combinedOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, fmt.Errorf("%w: decode solc output: %v", ErrCompile, err)
	}

	for key, c := range out.Contracts {
		if key != name && !strings.HasSuffix(key, ":"+name) {
			continue
		}

		rawABI := c.ABI
		var encoded string
		if err := json.Unmarshal(rawABI, &encoded); err == nil {
			rawABI = json.RawMessage(encoded)
		}

		return NewArtifact(name, rawABI, c.Bin)
	}

	return nil, fmt.Errorf("%w: contract %s not found in solc output", ErrCompile, name)
}

// NewArtifact parses an ABI JSON document and hex bytecode into an Artifact.
func NewArtifact(name string, abiJSON []byte, bin string) (*Artifact, error) {
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: parse abi of %s: %v", ErrCompile, name, err)
	}

	bytecode := ethcmn.FromHex(strings.TrimSpace(bin))
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("%w: %s has no bytecode", ErrCompile, name)
	}

	for _, method := range []string{MethodMessage, MethodUpdateMessage} {
		if _, ok := parsed.Methods[method]; !ok {
			return nil, fmt.Errorf("%w: %s does not expose %s", ErrCompile, name, method)
		}
	}

	return &Artifact{Name: name, ABI: parsed, Bytecode: bytecode}, nil
}

// Precompiled loads an artifact built ahead of time, skipping solc.
type Precompiled struct {
	ABIFile string
	BinFile string
}

// Compile ignores source and reads the configured ABI and bytecode files.
func (p Precompiled) Compile(_ context.Context, name, _ string) (*Artifact, error) {
	abiJSON, err := os.ReadFile(p.ABIFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	bin, err := os.ReadFile(p.BinFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompile, err)
	}
	return NewArtifact(name, abiJSON, string(bin))
}
