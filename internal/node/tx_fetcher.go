package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Resolve fetches the details of a pending transaction. A transaction that
// left the pool before it could be fetched yields ErrNotFound.
func (n *Node) Resolve(ctx context.Context, hash common.Hash) (model.Transaction, error) {
	rawTx, _, err := n.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return model.Transaction{}, fmt.Errorf("tx (%s): %w", hash.Hex(), ErrNotFound)
		}
		return model.Transaction{}, fmt.Errorf("fetch tx (%s): %w", hash.Hex(), err)
	}
	if rawTx == nil {
		return model.Transaction{}, fmt.Errorf("tx (%s): %w", hash.Hex(), ErrNotFound)
	}

	return parseRawTx(rawTx, time.Now())
}

// ReceiptBlock returns the number of the block that mined the transaction.
func (n *Node) ReceiptBlock(ctx context.Context, hash common.Hash) (uint64, error) {
	receipt, err := n.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return 0, fmt.Errorf("receipt (%s): %w", hash.Hex(), ErrNotFound)
		}
		return 0, fmt.Errorf("fetch receipt (%s): %w", hash.Hex(), err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return 0, fmt.Errorf("receipt (%s): %w", hash.Hex(), ErrNotFound)
	}
	return receipt.BlockNumber.Uint64(), nil
}

func parseRawTx(tx *types.Transaction, observedAt time.Time) (model.Transaction, error) {
	from, err := recoverSender(tx)
	if err != nil {
		return model.Transaction{}, err
	}

	parsedTx := transactionFields(tx, observedAt)
	parsedTx.From = from
	return parsedTx, nil
}

func recoverSender(tx *types.Transaction) (string, error) {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return "", fmt.Errorf("recover sender of %s: %w", tx.Hash().Hex(), err)
	}
	return from.Hex(), nil
}

// transactionFields copies everything but the sender.
func transactionFields(tx *types.Transaction, observedAt time.Time) model.Transaction {
	parsedTx := model.Transaction{
		Hash:       tx.Hash().Hex(),
		Input:      tx.Data(),
		Value:      tx.Value(),
		GasPrice:   tx.GasPrice(),
		ObservedAt: observedAt,
	}

	if tx.To() != nil {
		to := tx.To().Hex()
		parsedTx.To = &to
	}

	if tx.Type() != types.LegacyTxType && tx.Type() != types.AccessListTxType {
		parsedTx.MaxFeePerGas = tx.GasFeeCap()
		parsedTx.MaxPriorityFeePerGas = tx.GasTipCap()
	}

	return parsedTx
}
