package engine

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/storage"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
	"github.com/seaportgossip/seaport-gossip/pkg/validate"
)

// Settlement-contract event handlers. The chain listener calls these for
// local observations; the gossip layer reuses them for peer-reported events.
// Re-publication of an already-seen event is harmless: the message id is
// derived from event kind, order hash and block hash, so the pub-sub layer
// drops the duplicate.

// OnOrderFulfilled marks an order (fully) fulfilled. Unknown hashes are
// dropped. Advanced orders consult getOrderStatus; basic orders are fully
// fulfilled by definition of the event.
func (e *Engine) OnOrderFulfilled(ctx context.Context, hash common.Hash, price *big.Int, block uint64, blockHash common.Hash) error {
	unlock := e.lockHash(hash)
	defer unlock()

	order, err := e.store.GetOrder(hash)
	if err == storage.ErrOrderNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	fullyFulfilled := true
	if order.IsAdvanced() && e.chain != nil {
		status, err := e.chain.GetOrderStatus(ctx, hash)
		if err != nil {
			return err
		}
		fullyFulfilled = status.FullyFilled()
	}

	if _, err := e.store.UpdateMetadata(hash, func(m *types.OrderMetadata) {
		m.IsFullyFulfilled = fullyFulfilled
		m.LastFulfilledAt = strconv.FormatUint(block, 10)
		if price != nil {
			m.LastFulfilledPrice = price.String()
		}
		m.LastValidatedBlockNumber = strconv.FormatUint(block, 10)
		m.LastValidatedBlockHash = blockHash
	}); err != nil {
		return err
	}
	e.log.Infow("order_fulfilled", "hash", hash.Hex(), "block", block, "full", fullyFulfilled)

	e.publish(ctx, &types.GossipEvent{
		Kind:        types.EventFulfilled,
		OrderHash:   hash,
		BlockNumber: block,
		BlockHash:   blockHash,
		Offerer:     order.Offerer,
	})
	return nil
}

// OnOrderCancelled invalidates an order after on-chain cancellation.
func (e *Engine) OnOrderCancelled(ctx context.Context, hash common.Hash, block uint64, blockHash common.Hash) error {
	unlock := e.lockHash(hash)
	defer unlock()

	if _, err := e.store.UpdateMetadata(hash, func(m *types.OrderMetadata) {
		m.IsValid = false
		m.LastValidatedBlockNumber = strconv.FormatUint(block, 10)
		m.LastValidatedBlockHash = blockHash
	}); err != nil {
		if err == storage.ErrOrderNotFound {
			return nil
		}
		return err
	}
	e.log.Infow("order_cancelled", "hash", hash.Hex(), "block", block)

	e.publish(ctx, &types.GossipEvent{
		Kind:        types.EventCancelled,
		OrderHash:   hash,
		BlockNumber: block,
		BlockHash:   blockHash,
	})
	return nil
}

// OnOrderValidated re-runs local validation after an on-chain validation and
// records the outcome.
func (e *Engine) OnOrderValidated(ctx context.Context, hash common.Hash, block uint64, blockHash common.Hash) error {
	unlock := e.lockHash(hash)
	defer unlock()

	order, err := e.store.GetOrder(hash)
	if err == storage.ErrOrderNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	res, err := e.validator.ValidateOrder(ctx, order)
	if err != nil {
		return err
	}
	res = validate.FilterResidual(order, res, e.cfg.LazyMintAdapterAddress)

	if _, err := e.store.UpdateMetadata(hash, func(m *types.OrderMetadata) {
		m.IsValid = res.OK()
		m.LastValidatedBlockNumber = strconv.FormatUint(block, 10)
		m.LastValidatedBlockHash = blockHash
	}); err != nil {
		return err
	}

	e.publish(ctx, &types.GossipEvent{
		Kind:        types.EventValidated,
		OrderHash:   hash,
		BlockNumber: block,
		BlockHash:   blockHash,
		Offerer:     order.Offerer,
	})
	return nil
}

// OnCounterIncremented invalidates every stored order of the offerer whose
// counter predates newCounter, then gossips the increment with a zero order
// hash.
func (e *Engine) OnCounterIncremented(ctx context.Context, offerer common.Address, newCounter uint64, block uint64, blockHash common.Hash) error {
	hashes, err := e.store.OrderHashesByOfferer(offerer)
	if err != nil {
		return err
	}
	for _, hash := range hashes {
		if err := e.invalidateBelowCounter(hash, newCounter, block, blockHash); err != nil {
			e.log.Warnw("counter_invalidate_failed", "hash", hash.Hex(), "err", err)
		}
	}
	e.log.Infow("counter_incremented", "offerer", offerer.Hex(), "counter", newCounter, "orders", len(hashes))

	e.publish(ctx, &types.GossipEvent{
		Kind:        types.EventCounterIncremented,
		BlockNumber: block,
		BlockHash:   blockHash,
		Offerer:     offerer,
		Counter:     newCounter,
	})
	return nil
}

func (e *Engine) invalidateBelowCounter(hash common.Hash, newCounter uint64, block uint64, blockHash common.Hash) error {
	unlock := e.lockHash(hash)
	defer unlock()

	order, err := e.store.GetOrder(hash)
	if err != nil {
		return err
	}
	if order.Counter >= newCounter {
		return nil
	}
	_, err = e.store.UpdateMetadata(hash, func(m *types.OrderMetadata) {
		m.IsValid = false
		m.LastValidatedBlockNumber = strconv.FormatUint(block, 10)
		m.LastValidatedBlockHash = blockHash
	})
	return err
}

// ApplyRemoteEvent folds a peer-reported lifecycle event into local state.
// NEW events go through AddOrder instead; see the gossip receive pipeline.
func (e *Engine) ApplyRemoteEvent(ctx context.Context, ev *types.GossipEvent) error {
	switch ev.Kind {
	case types.EventCounterIncremented:
		return e.OnCounterIncremented(ctx, ev.Offerer, ev.Counter, ev.BlockNumber, ev.BlockHash)

	case types.EventFulfilled:
		return e.applyRemoteFulfilled(ctx, ev)

	case types.EventValidated:
		return e.applyRemoteValidity(ev, true)

	case types.EventInvalidated, types.EventCancelled:
		// Re-check locally before accepting the peer's verdict; a node with
		// a fresher view re-announces the order as validated.
		return e.applyRemoteInvalidation(ctx, ev)

	default:
		return nil
	}
}

// applyRemoteFulfilled mirrors OnOrderFulfilled: a peer's FULFILLED verdict is
// not trusted for advanced orders, which may be partially filled; the contract
// is consulted before the full-fulfillment flag is set.
func (e *Engine) applyRemoteFulfilled(ctx context.Context, ev *types.GossipEvent) error {
	unlock := e.lockHash(ev.OrderHash)
	defer unlock()

	order, err := e.store.GetOrder(ev.OrderHash)
	if err == storage.ErrOrderNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	fullyFulfilled := true
	if order.IsAdvanced() && e.chain != nil {
		status, err := e.chain.GetOrderStatus(ctx, ev.OrderHash)
		if err != nil {
			return err
		}
		fullyFulfilled = status.FullyFilled()
	}

	_, err = e.store.UpdateMetadata(ev.OrderHash, func(m *types.OrderMetadata) {
		m.IsFullyFulfilled = fullyFulfilled
		m.LastFulfilledAt = strconv.FormatUint(ev.BlockNumber, 10)
		m.LastValidatedBlockNumber = strconv.FormatUint(ev.BlockNumber, 10)
		m.LastValidatedBlockHash = ev.BlockHash
	})
	return err
}

func (e *Engine) applyRemoteValidity(ev *types.GossipEvent, valid bool) error {
	unlock := e.lockHash(ev.OrderHash)
	defer unlock()
	_, err := e.store.UpdateMetadata(ev.OrderHash, func(m *types.OrderMetadata) {
		m.IsValid = valid
		m.LastValidatedBlockNumber = strconv.FormatUint(ev.BlockNumber, 10)
		m.LastValidatedBlockHash = ev.BlockHash
	})
	if err == storage.ErrOrderNotFound {
		return nil
	}
	return err
}

func (e *Engine) applyRemoteInvalidation(ctx context.Context, ev *types.GossipEvent) error {
	order, err := e.store.GetOrder(ev.OrderHash)
	if err == storage.ErrOrderNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	res, err := e.validator.ValidateOrder(ctx, order)
	if err != nil {
		return err
	}
	res = validate.FilterResidual(order, res, e.cfg.LazyMintAdapterAddress)

	if res.OK() {
		head, headHash, err := e.latestBlock(ctx)
		if err != nil {
			return err
		}
		if err := e.applyRemoteValidity(&types.GossipEvent{
			OrderHash: ev.OrderHash, BlockNumber: head, BlockHash: headHash,
		}, true); err != nil {
			return err
		}
		e.publish(ctx, &types.GossipEvent{
			Kind:        types.EventValidated,
			OrderHash:   ev.OrderHash,
			BlockNumber: head,
			BlockHash:   headHash,
			Offerer:     order.Offerer,
		})
		return nil
	}
	return e.applyRemoteValidity(ev, false)
}
