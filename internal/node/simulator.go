package node

import (
	"context"

	"github.com/avalkov/mev-monitor/internal/model"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Simulate dry-runs the transaction against the latest state with eth_call.
// Failure is a result, not an error.
func (n *Node) Simulate(ctx context.Context, tx model.Transaction) model.SimulationResult {
	msg := ethereum.CallMsg{
		From:     common.HexToAddress(tx.From),
		Data:     tx.Input,
		Value:    tx.Value,
		GasPrice: tx.GasPrice,
	}
	if tx.To != nil {
		to := common.HexToAddress(*tx.To)
		msg.To = &to
	}
	if msg.GasPrice == nil {
		msg.GasPrice = tx.MaxFeePerGas
	}

	result, err := n.client.CallContract(ctx, msg, nil)
	if err != nil {
		return model.SimulationResult{Success: false, Error: err.Error()}
	}
	return model.SimulationResult{Success: true, Result: result}
}
