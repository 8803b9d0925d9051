package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/ethereum/go-ethereum"
)

// MinedBlock returns the block's transactions in inclusion order. A
// transaction whose sender cannot be recovered keeps its position with an
// empty From.
func (n *Node) MinedBlock(ctx context.Context, number uint64) ([]model.Transaction, error) {
	block, err := n.client.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("block %d: %w", number, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch block %d: %w", number, err)
	}
	if block == nil {
		return nil, fmt.Errorf("block %d: %w", number, ErrNotFound)
	}

	minedAt := time.Unix(int64(block.Time()), 0)
	transactions := make([]model.Transaction, 0, len(block.Transactions()))
	for _, rawTx := range block.Transactions() {
		tx := transactionFields(rawTx, minedAt)
		if from, err := recoverSender(rawTx); err != nil {
			n.log.Debug().Err(err).Uint64("block", number).Msg("sender unavailable")
		} else {
			tx.From = from
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}
