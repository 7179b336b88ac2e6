package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Mutations is what the listener drives: the order engine's reaction to
// settlement-contract state transitions.
type Mutations interface {
	OnOrderFulfilled(ctx context.Context, hash common.Hash, price *big.Int, block uint64, blockHash common.Hash) error
	OnOrderCancelled(ctx context.Context, hash common.Hash, block uint64, blockHash common.Hash) error
	OnOrderValidated(ctx context.Context, hash common.Hash, block uint64, blockHash common.Hash) error
	OnCounterIncremented(ctx context.Context, offerer common.Address, newCounter uint64, block uint64, blockHash common.Hash) error
}

// Listener translates settlement-contract events into engine mutations.
// It prefers a log subscription and falls back to polling when the provider
// does not support one (plain HTTP endpoints).
type Listener struct {
	client *Client
	sink   Mutations
	log    *zap.SugaredLogger

	// PollInterval paces the getLogs fallback. Defaults to 12s, one mainnet
	// slot.
	PollInterval time.Duration
}

func NewListener(client *Client, sink Mutations, log *zap.SugaredLogger) *Listener {
	return &Listener{client: client, sink: sink, log: log, PollInterval: 12 * time.Second}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	ch := make(chan ethtypes.Log, 128)
	sub, err := l.client.SubscribeContractLogs(ctx, ch)
	if err != nil {
		l.log.Warnw("log_subscription_unavailable", "err", err)
		l.poll(ctx)
		return
	}
	defer sub.Unsubscribe()
	l.log.Infow("chain_listener_subscribed", "contract", l.client.Contract().Hex())

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			l.log.Warnw("log_subscription_lost", "err", err)
			l.poll(ctx)
			return
		case lg := <-ch:
			l.handleLog(ctx, lg)
		}
	}
}

func (l *Listener) poll(ctx context.Context) {
	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	last, _, err := l.client.LatestBlock(ctx)
	if err != nil {
		l.log.Errorw("latest_block_failed", "err", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			head, _, err := l.client.LatestBlock(ctx)
			if err != nil || head <= last {
				continue
			}
			logs, err := l.client.FilterContractLogs(ctx, last+1, head)
			if err != nil {
				l.log.Warnw("filter_logs_failed", "from", last+1, "to", head, "err", err)
				continue
			}
			for _, lg := range logs {
				l.handleLog(ctx, lg)
			}
			last = head
		}
	}
}

type fulfilledEvent struct {
	OrderHash [32]byte
	Recipient common.Address
	Offer     []struct {
		ItemType   uint8
		Token      common.Address
		Identifier *big.Int
		Amount     *big.Int
	}
	Consideration []struct {
		ItemType   uint8
		Token      common.Address
		Identifier *big.Int
		Amount     *big.Int
		Recipient  common.Address
	}
}

type hashOnlyEvent struct {
	OrderHash [32]byte
}

type counterEvent struct {
	NewCounter *big.Int
}

// fungible item types on fulfillment events: NATIVE (0) and ERC20 (1).
func isFungibleItemType(t uint8) bool { return t <= 1 }

// fulfilledPrice sums fungible amounts on whichever side carries them; the
// spent side wins when both do (a token-for-token trade).
func fulfilledPrice(ev *fulfilledEvent) *big.Int {
	sum := new(big.Int)
	for _, it := range ev.Offer {
		if isFungibleItemType(it.ItemType) {
			sum.Add(sum, it.Amount)
		}
	}
	if sum.Sign() > 0 {
		return sum
	}
	for _, it := range ev.Consideration {
		if isFungibleItemType(it.ItemType) {
			sum.Add(sum, it.Amount)
		}
	}
	return sum
}

func (l *Listener) handleLog(ctx context.Context, lg ethtypes.Log) {
	if lg.Removed || len(lg.Topics) == 0 {
		return
	}
	var err error
	switch lg.Topics[0] {
	case l.client.EventID("OrderFulfilled"):
		var ev fulfilledEvent
		if err = l.client.unpackInto(&ev, "OrderFulfilled", lg.Data); err == nil {
			err = l.sink.OnOrderFulfilled(ctx, ev.OrderHash, fulfilledPrice(&ev), lg.BlockNumber, lg.BlockHash)
		}
	case l.client.EventID("OrderCancelled"):
		var ev hashOnlyEvent
		if err = l.client.unpackInto(&ev, "OrderCancelled", lg.Data); err == nil {
			err = l.sink.OnOrderCancelled(ctx, ev.OrderHash, lg.BlockNumber, lg.BlockHash)
		}
	case l.client.EventID("OrderValidated"):
		var ev hashOnlyEvent
		if err = l.client.unpackInto(&ev, "OrderValidated", lg.Data); err == nil {
			err = l.sink.OnOrderValidated(ctx, ev.OrderHash, lg.BlockNumber, lg.BlockHash)
		}
	case l.client.EventID("CounterIncremented"):
		var ev counterEvent
		if err = l.client.unpackInto(&ev, "CounterIncremented", lg.Data); err == nil && len(lg.Topics) > 1 {
			offerer := common.BytesToAddress(lg.Topics[1].Bytes())
			err = l.sink.OnCounterIncremented(ctx, offerer, ev.NewCounter.Uint64(), lg.BlockNumber, lg.BlockHash)
		}
	default:
		return
	}
	if err != nil {
		l.log.Errorw("contract_event_failed", "topic", lg.Topics[0].Hex(), "block", lg.BlockNumber, "err", err)
	}
}
