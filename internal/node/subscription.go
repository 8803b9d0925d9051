package node

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const pendingBuffer = 1024

// SubscribePending streams pending transaction hashes until ctx is done.
// A dropped subscription is re-established with exponential backoff. The
// returned channel is closed once the stream stops for good.
func (n *Node) SubscribePending(ctx context.Context) <-chan common.Hash {
	out := make(chan common.Hash, pendingBuffer)

	go func() {
		defer close(out)

		for ctx.Err() == nil {
			sub, hashes, err := n.subscribe(ctx)
			if err != nil {
				n.log.Info().Err(err).Msg("pending feed stopped")
				return
			}
			n.forward(ctx, sub, hashes, out)
		}
	}()

	return out
}

func (n *Node) subscribe(ctx context.Context) (ethereum.Subscription, chan common.Hash, error) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 500 * time.Millisecond
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	var (
		sub    ethereum.Subscription
		hashes chan common.Hash
	)
	err := backoff.RetryNotify(func() error {
		ch := make(chan common.Hash, pendingBuffer)
		s, err := n.pending.SubscribePendingTransactions(ctx, ch)
		if err != nil {
			return err
		}
		sub, hashes = s, ch
		return nil
	}, backoff.WithContext(retry, ctx), func(err error, wait time.Duration) {
		n.log.Warn().Err(err).Dur("retryIn", wait).Msg("subscribe to pending transactions")
	})

	return sub, hashes, err
}

func (n *Node) forward(ctx context.Context, sub ethereum.Subscription, hashes <-chan common.Hash, out chan<- common.Hash) {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			n.log.Warn().Err(err).Msg("pending subscription dropped, resubscribing")
			if n.metrics != nil {
				n.metrics.FeedReconnections.Inc()
			}
			return
		case hash := <-hashes:
			select {
			case out <- hash:
			case <-ctx.Done():
				return
			}
		}
	}
}
