package utils

import (
	"bufio"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcmm "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

var (
	// ErrNoCredentials is returned when the key file holds no usable key.
	ErrNoCredentials = errors.New("no private keys found")
	// ErrInvalidKey is returned for a key file line that is not a hex private key.
	ErrInvalidKey = errors.New("invalid private key")
)

// Credential is a signing key and the address it controls.
type Credential struct {
	Key     *ecdsa.PrivateKey
	Address ethcmm.Address
}

// String returns the address only, so a Credential is safe to log.
func (c Credential) String() string {
	return c.Address.Hex()
}

// NewCredential parses a hex private key, with or without 0x prefix.
func NewCredential(hexKey string) (Credential, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return Credential{}, err
	}
	return Credential{Key: key, Address: GetEthAddressFromPK(key)}, nil
}

// Line is a kept line of a data file and its 1-based number in the file.
type Line struct {
	Number int
	Text   string
}

// ReadDataFromFile reads the non-empty, non-comment lines of a file, trimmed.
func ReadDataFromFile(filepath string) ([]Line, error) {
	f, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filepath, err)
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			log.Warn("Failed to close file", "path", filepath, "err", err)
		}
	}(f)

	var (
		lines  []Line
		number int
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		number++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, Line{Number: number, Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filepath, err)
	}
	return lines, nil
}

// LoadCredentials loads the key file in file order. A malformed key aborts
// loading; the error names its line in the file but never its content.
func LoadCredentials(filepath string) ([]Credential, error) {
	lines, err := ReadDataFromFile(filepath)
	if err != nil {
		return nil, err
	}

	creds := make([]Credential, 0, len(lines))
	for _, l := range lines {
		cred, err := NewCredential(l.Text)
		if err != nil {
			// The parse error may quote part of the key, so it is dropped.
			return nil, fmt.Errorf("%w on line %d in %s", ErrInvalidKey, l.Number, filepath)
		}
		creds = append(creds, cred)
	}

	if len(creds) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoCredentials, filepath)
	}

	log.Info("Loaded credentials", "path", filepath, "count", len(creds))
	return creds, nil
}

// GetEthAddressFromPK converts an ECDSA private key to an Ethereum address
func GetEthAddressFromPK(privateKey *ecdsa.PrivateKey) ethcmm.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}
