// Package sandwich inspects mined blocks for a front-run and back-run by one
// sender bracketing a victim transaction.
package sandwich

import (
	"context"
	"strings"

	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

func NewAnalyzer(monitoredContract string, blocks blockSource, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		contract: strings.ToLower(monitoredContract),
		blocks:   blocks,
		log:      log.With().Str("component", "sandwich").Logger(),
	}
}

// Detect checks the neighbours of victimHash in the given block. Lookup
// failures produce a negative result.
func (a *Analyzer) Detect(ctx context.Context, blockNumber uint64, victimHash string) model.SandwichResult {
	result := model.SandwichResult{BlockNumber: blockNumber, VictimTx: victimHash}

	txs, err := a.blocks.MinedBlock(ctx, blockNumber)
	if err != nil {
		a.log.Debug().Err(err).Uint64("block", blockNumber).Msg("block unavailable")
		return result
	}

	victim := -1
	for i, tx := range txs {
		if strings.EqualFold(tx.Hash, victimHash) {
			victim = i
			break
		}
	}
	if victim <= 0 || victim >= len(txs)-1 {
		return result
	}

	front, target, back := txs[victim-1], txs[victim], txs[victim+1]
	if front.From == "" || !strings.EqualFold(front.From, back.From) {
		return result
	}
	if !a.monitored(front) || !a.monitored(back) {
		return result
	}
	if front.GasPrice == nil || target.GasPrice == nil || front.GasPrice.Cmp(target.GasPrice) <= 0 {
		return result
	}

	attacker, frontHash, backHash := front.From, front.Hash, back.Hash
	result.IsSandwich = true
	result.Attacker = &attacker
	result.FrontRunTx = &frontHash
	result.BackRunTx = &backHash

	a.log.Info().
		Uint64("block", blockNumber).
		Str("victim", victimHash).
		Str("attacker", attacker).
		Msg("sandwich detected")

	return result
}

// DetectByHash finds the victim's block through its receipt first.
func (a *Analyzer) DetectByHash(ctx context.Context, victimHash string) model.SandwichResult {
	blockNumber, err := a.blocks.ReceiptBlock(ctx, common.HexToHash(victimHash))
	if err != nil {
		a.log.Debug().Err(err).Str("victim", victimHash).Msg("receipt unavailable")
		return model.SandwichResult{VictimTx: victimHash}
	}
	return a.Detect(ctx, blockNumber, victimHash)
}

func (a *Analyzer) monitored(tx model.Transaction) bool {
	return tx.To != nil && strings.EqualFold(*tx.To, a.contract)
}

type blockSource interface {
	MinedBlock(ctx context.Context, number uint64) ([]model.Transaction, error)
	ReceiptBlock(ctx context.Context, hash common.Hash) (uint64, error)
}

type Analyzer struct {
	contract string
	blocks   blockSource
	log      zerolog.Logger
}
