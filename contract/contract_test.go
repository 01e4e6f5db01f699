package contract

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const messageBoardABI = `[
 {"inputs":[],"stateMutability":"nonpayable","type":"constructor"},
 {"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"by","type":"address"},{"indexed":false,"internalType":"string","name":"message","type":"string"}],"name":"MessageUpdated","type":"event"},
 {"inputs":[],"name":"message","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"internalType":"string","name":"newMessage","type":"string"}],"name":"updateMessage","outputs":[],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[],"name":"updates","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

func combined(t *testing.T, abiValue any, bin string) []byte {
	t.Helper()
	out := map[string]any{
		"contracts": map[string]any{
			"<stdin>:" + Name: map[string]any{"abi": abiValue, "bin": bin},
		},
		"version": "0.8.24+commit.e11b9ed9.Linux.g++",
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return data
}

func TestParseCombinedJSON(t *testing.T) {
	t.Run("abi as array", func(t *testing.T) {
		art, err := ParseCombinedJSON(combined(t, json.RawMessage(messageBoardABI), "6080604052"), Name)
		require.NoError(t, err)
		require.Equal(t, Name, art.Name)
		require.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, art.Bytecode)
		require.Contains(t, art.ABI.Methods, MethodMessage)
		require.Contains(t, art.ABI.Methods, MethodUpdateMessage)
	})

	t.Run("abi as string", func(t *testing.T) {
		art, err := ParseCombinedJSON(combined(t, messageBoardABI, "0x6080"), Name)
		require.NoError(t, err)
		require.Len(t, art.Bytecode, 2)
	})

	t.Run("contract missing", func(t *testing.T) {
		_, err := ParseCombinedJSON(combined(t, json.RawMessage(messageBoardABI), "6080"), "Other")
		require.ErrorIs(t, err, ErrCompile)
	})

	t.Run("empty bytecode", func(t *testing.T) {
		_, err := ParseCombinedJSON(combined(t, json.RawMessage(messageBoardABI), ""), Name)
		require.ErrorIs(t, err, ErrCompile)
	})

	t.Run("missing method", func(t *testing.T) {
		_, err := ParseCombinedJSON(combined(t, json.RawMessage(`[]`), "6080"), Name)
		require.ErrorIs(t, err, ErrCompile)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseCombinedJSON([]byte("Error: ParserError"), Name)
		require.ErrorIs(t, err, ErrCompile)
	})
}

func TestSolcMissingBinary(t *testing.T) {
	_, err := Solc{Path: filepath.Join(t.TempDir(), "no-solc")}.Compile(context.Background(), Name, Source)
	require.ErrorIs(t, err, ErrCompile)
}

func TestPrecompiled(t *testing.T) {
	dir := t.TempDir()
	abiFile := filepath.Join(dir, "MessageBoard.abi")
	binFile := filepath.Join(dir, "MessageBoard.bin")
	require.NoError(t, os.WriteFile(abiFile, []byte(messageBoardABI), 0o644))
	require.NoError(t, os.WriteFile(binFile, []byte("6080604052\n"), 0o644))

	art, err := Precompiled{ABIFile: abiFile, BinFile: binFile}.Compile(context.Background(), Name, "")
	require.NoError(t, err)
	require.Len(t, art.Bytecode, 5)

	_, err = Precompiled{ABIFile: abiFile, BinFile: filepath.Join(dir, "missing.bin")}.Compile(context.Background(), Name, "")
	require.ErrorIs(t, err, ErrCompile)
}
