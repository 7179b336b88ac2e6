package engine

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/storage"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
	"github.com/seaportgossip/seaport-gossip/pkg/validate"
)

// revalidateBatch caps how many stale orders one tick reprocesses.
const revalidateBatch = 50

func (e *Engine) revalidateLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.RevalidateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.revalidateTick(ctx); err != nil {
				e.log.Errorw("revalidation_tick_failed", "err", err)
			}
		}
	}
}

// revalidateTick re-runs validation for the oldest-validated orders whose
// last check is at least RevalidateBlockDistance blocks behind the head.
// Orders that ended (fully filled, cancelled, expired) are deleted unless
// pinned; everything else gets fresh metadata, and validity flips are
// gossiped.
func (e *Engine) revalidateTick(ctx context.Context) error {
	head, headHash, err := e.latestBlock(ctx)
	if err != nil {
		return err
	}
	if head < e.cfg.RevalidateBlockDistance {
		return nil
	}
	threshold := new(big.Int).SetUint64(head - e.cfg.RevalidateBlockDistance)

	stale, err := e.store.ListStaleMetadata(threshold, revalidateBatch)
	if err != nil {
		return err
	}
	for _, meta := range stale {
		if err := e.revalidateOne(ctx, meta, head, headHash); err != nil {
			e.log.Warnw("order_revalidation_failed", "hash", meta.OrderHash.Hex(), "err", err)
		}
	}
	return nil
}

// withinHistory reports whether an ended order is still inside the retention
// window: MaxOrderHistory past its end time. Kept orders are marked invalid
// but stay queryable; zero history prunes as soon as an order ends.
func (e *Engine) withinHistory(order *types.Order) bool {
	if e.cfg.MaxOrderHistory <= 0 {
		return false
	}
	cutoff := e.now().Add(-e.cfg.MaxOrderHistory)
	return order.EndTime > uint64(cutoff.Unix())
}

func (e *Engine) revalidateOne(ctx context.Context, meta types.OrderMetadata, head uint64, headHash common.Hash) error {
	hash := meta.OrderHash
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
	nowValid := res.OK()

	if res.Ended() && !meta.IsPinned && !e.withinHistory(order) {
		if err := e.store.DeleteOrder(hash); err != nil {
			return err
		}
		e.log.Infow("order_pruned", "hash", hash.Hex(), "errors", res.Errors)
		return nil
	}

	wasValid := meta.IsValid
	if _, err := e.store.UpdateMetadata(hash, func(m *types.OrderMetadata) {
		m.IsValid = nowValid
		m.LastValidatedBlockNumber = strconv.FormatUint(head, 10)
		m.LastValidatedBlockHash = headHash
	}); err != nil {
		return err
	}

	if wasValid != nowValid {
		kind := types.EventValidated
		if !nowValid {
			kind = types.EventInvalidated
		}
		e.publish(ctx, &types.GossipEvent{
			Kind:        kind,
			OrderHash:   hash,
			BlockNumber: head,
			BlockHash:   headHash,
			Offerer:     order.Offerer,
		})
	}
	return nil
}
