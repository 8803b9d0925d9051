// Package node adapts an Ethereum JSON-RPC endpoint to what the monitor
// consumes: pending hashes, transaction details, fee averages, dry-run
// simulation and mined blocks.
package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/avalkov/mev-monitor/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("not found")

// Dial connects to the streaming endpoint used for the pending subscription
// and, when it differs, to a separate endpoint for queries.
func Dial(ctx context.Context, streamUrl, queryUrl string, m *metrics.Metrics, log zerolog.Logger) (*Node, error) {
	stream, err := ethclient.DialContext(ctx, streamUrl)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", streamUrl, err)
	}

	queries := stream
	if queryUrl != "" && queryUrl != streamUrl {
		if queries, err = ethclient.DialContext(ctx, queryUrl); err != nil {
			stream.Close()
			return nil, fmt.Errorf("dial %s: %w", queryUrl, err)
		}
	}

	n := NewNode(queries, gethPending{gethclient.New(stream.Client())}, m, log)
	n.closers = append(n.closers, stream.Close)
	if queries != stream {
		n.closers = append(n.closers, queries.Close)
	}
	return n, nil
}

func NewNode(client client, pending pendingSubscriber, m *metrics.Metrics, log zerolog.Logger) *Node {
	return &Node{
		client:  client,
		pending: pending,
		metrics: m,
		log:     log.With().Str("component", "node").Logger(),
	}
}

func (n *Node) Close() {
	for _, closeFn := range n.closers {
		closeFn()
	}
}

type gethPending struct {
	client *gethclient.Client
}

func (g gethPending) SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error) {
	return g.client.SubscribePendingTransactions(ctx, ch)
}

type client interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

type pendingSubscriber interface {
	SubscribePendingTransactions(ctx context.Context, ch chan<- common.Hash) (ethereum.Subscription, error)
}

type Node struct {
	client  client
	pending pendingSubscriber
	metrics *metrics.Metrics
	log     zerolog.Logger
	closers []func()
}
