// Package calldata recognizes and decodes calls to the monitored DEX.
package calldata

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	Swap         = "swapTokenAForTokenB"
	AddLiquidity = "addLiquidity"
)

const dexAbiJson = `[
	{"type":"function","name":"swapTokenAForTokenB","stateMutability":"nonpayable","inputs":[
		{"name":"amountInA","type":"uint256"},{"name":"amountOutMin","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"addLiquidity","stateMutability":"nonpayable","inputs":[
		{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"}],"outputs":[]}
]`

// DexABI holds the two tracked functions of the monitored contract.
var DexABI = mustParse(dexAbiJson)

var ErrShortCalldata = errors.New("calldata shorter than a selector")

// Function returns the tracked function name the calldata selects, if any.
func Function(input []byte) (string, bool) {
	if len(input) < 4 {
		return "", false
	}
	method, err := DexABI.MethodById(input[:4])
	if err != nil {
		return "", false
	}
	return method.RawName, true
}

// Selector returns the 0x-prefixed 4-byte selector of the calldata.
func Selector(input []byte) string {
	if len(input) < 4 {
		return hexutil.Encode(input)
	}
	return hexutil.Encode(input[:4])
}

// DecodeSwap unpacks the amountIn and amountOutMin arguments of a swap.
func DecodeSwap(input []byte) (amountIn, amountOutMin *big.Int, err error) {
	if len(input) < 4 {
		return nil, nil, ErrShortCalldata
	}
	method, ok := DexABI.Methods[Swap]
	if !ok || string(method.ID) != string(input[:4]) {
		return nil, nil, fmt.Errorf("not a %s call", Swap)
	}

	values, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("unpack %s: %w", Swap, err)
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("unpack %s: got %d values", Swap, len(values))
	}

	amountIn, okIn := values[0].(*big.Int)
	amountOutMin, okOut := values[1].(*big.Int)
	if !okIn || !okOut {
		return nil, nil, fmt.Errorf("unpack %s: unexpected argument types", Swap)
	}
	return amountIn, amountOutMin, nil
}

func mustParse(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid dex abi: %s", err))
	}
	return parsed
}
