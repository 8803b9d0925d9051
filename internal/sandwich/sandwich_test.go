package sandwich

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contract = "0x1111111111111111111111111111111111111111"
	attacker = "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"
	victim   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	other    = "0xcccccccccccccccccccccccccccccccccccccccc"
)

type fakeBlocks struct {
	blocks   map[uint64][]model.Transaction
	receipts map[common.Hash]uint64
}

func (f fakeBlocks) MinedBlock(_ context.Context, number uint64) ([]model.Transaction, error) {
	txs, ok := f.blocks[number]
	if !ok {
		return nil, errors.New("unknown block")
	}
	return txs, nil
}

func (f fakeBlocks) ReceiptBlock(_ context.Context, hash common.Hash) (uint64, error) {
	number, ok := f.receipts[hash]
	if !ok {
		return 0, errors.New("unknown receipt")
	}
	return number, nil
}

func tx(hash, from, to string, gwei int64) model.Transaction {
	return model.Transaction{
		Hash:     hash,
		From:     from,
		To:       &to,
		GasPrice: new(big.Int).Mul(big.NewInt(gwei), big.NewInt(1e9)),
	}
}

func sandwichBlock() []model.Transaction {
	return []model.Transaction{
		tx("0x01", other, other, 5),
		tx("0x02", attacker, contract, 50),
		tx("0x03", victim, contract, 10),
		tx("0x04", attacker, contract, 9),
	}
}

func TestDetect_Sandwich(t *testing.T) {
	a := NewAnalyzer(contract, fakeBlocks{blocks: map[uint64][]model.Transaction{100: sandwichBlock()}}, zerolog.Nop())

	result := a.Detect(context.Background(), 100, "0x03")

	require.True(t, result.IsSandwich)
	assert.Equal(t, uint64(100), result.BlockNumber)
	assert.Equal(t, attacker, *result.Attacker)
	assert.Equal(t, "0x02", *result.FrontRunTx)
	assert.Equal(t, "0x04", *result.BackRunTx)
}

func TestDetect_Negative(t *testing.T) {
	differentSenders := sandwichBlock()
	differentSenders[3].From = other

	lowerFrontGas := sandwichBlock()
	lowerFrontGas[1].GasPrice = big.NewInt(1)

	otherContract := sandwichBlock()
	otherContract[3].To = &[]string{other}[0]

	unknownSenders := sandwichBlock()
	unknownSenders[1].From = ""
	unknownSenders[3].From = ""

	tests := []struct {
		name   string
		txs    []model.Transaction
		victim string
	}{
		{"different senders", differentSenders, "0x03"},
		{"front gas not higher", lowerFrontGas, "0x03"},
		{"back-run to another contract", otherContract, "0x03"},
		{"senders not recovered", unknownSenders, "0x03"},
		{"victim is last", sandwichBlock(), "0x04"},
		{"victim is first", sandwichBlock(), "0x01"},
		{"victim missing", sandwichBlock(), "0x99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(contract, fakeBlocks{blocks: map[uint64][]model.Transaction{1: tt.txs}}, zerolog.Nop())

			result := a.Detect(context.Background(), 1, tt.victim)
			assert.False(t, result.IsSandwich)
			assert.Nil(t, result.Attacker)
		})
	}
}

func TestDetect_BlockUnavailable(t *testing.T) {
	a := NewAnalyzer(contract, fakeBlocks{}, zerolog.Nop())

	result := a.Detect(context.Background(), 5, "0x03")
	assert.False(t, result.IsSandwich)
	assert.Equal(t, "0x03", result.VictimTx)
}

func TestDetectByHash(t *testing.T) {
	victimHash := common.HexToHash("0x03").Hex()
	block := sandwichBlock()
	block[2].Hash = victimHash

	a := NewAnalyzer(contract, fakeBlocks{
		blocks:   map[uint64][]model.Transaction{100: block},
		receipts: map[common.Hash]uint64{common.HexToHash(victimHash): 100},
	}, zerolog.Nop())

	result := a.DetectByHash(context.Background(), victimHash)
	assert.True(t, result.IsSandwich)
	assert.Equal(t, uint64(100), result.BlockNumber)

	result = a.DetectByHash(context.Background(), common.HexToHash("0x77").Hex())
	assert.False(t, result.IsSandwich)
}
