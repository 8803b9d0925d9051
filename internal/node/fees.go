package node

import (
	"context"
	"fmt"

	"github.com/avalkov/mev-monitor/internal/model"
)

// CurrentFees returns the network's suggested gas price and priority fee.
// Chains without a fee market report no tip rather than failing.
func (n *Node) CurrentFees(ctx context.Context) (model.FeeSnapshot, error) {
	gasPrice, err := n.client.SuggestGasPrice(ctx)
	if err != nil {
		return model.FeeSnapshot{}, fmt.Errorf("suggest gas price: %w", err)
	}

	tip, err := n.client.SuggestGasTipCap(ctx)
	if err != nil {
		n.log.Debug().Err(err).Msg("no priority fee suggestion")
		tip = nil
	}

	return model.FeeSnapshot{GasPrice: gasPrice, MaxPriorityFeePerGas: tip}, nil
}
