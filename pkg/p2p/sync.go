package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/engine"
	"github.com/seaportgossip/seaport-gossip/pkg/storage"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// syncPageSize is how many hashes one sync round-trip requests.
const syncPageSize = 50

// GetAllOrdersFromPeer walks a peer's order book for one collection, oldest
// first and sell side before buy side, admitting each page through full
// validation. It stops early when the local store reaches its order cap.
func (n *GossipNode) GetAllOrdersFromPeer(ctx context.Context, from peer.ID, collection common.Address) (added int, err error) {
	for _, side := range []types.Side{types.SideSell, types.SideBuy} {
		got, err := n.syncSide(ctx, from, collection, side)
		added += got
		if err != nil {
			return added, err
		}
	}
	n.log.Infow("peer_sync_done", "peer", from.String(), "collection", collection.Hex(), "added", added)
	return added, nil
}

func (n *GossipNode) syncSide(ctx context.Context, from peer.ID, collection common.Address, side types.Side) (int, error) {
	added := 0
	for offset := uint32(0); ; offset += syncPageSize {
		if full, err := n.storeFull(); err != nil || full {
			return added, err
		}

		page, err := n.GetOrderHashesFromPeer(ctx, from, collection, types.OrderQuery{
			Side:   side,
			Sort:   types.SortOldest,
			Count:  syncPageSize,
			Offset: offset,
		})
		if err != nil {
			return added, err
		}
		if len(page) == 0 {
			return added, nil
		}

		missing, err := n.filterUnknown(page)
		if err != nil {
			return added, err
		}
		if len(missing) > 0 {
			orders, err := n.GetOrdersFromPeer(ctx, from, missing)
			if err != nil {
				return added, err
			}
			for _, o := range orders {
				if o == nil {
					continue
				}
				isNew, _, err := n.engine.AddOrder(ctx, o, engine.AdmissionOpts{Validate: true})
				if err != nil {
					n.log.Debugw("sync_admission_failed", "peer", from.String(), "err", err)
					continue
				}
				if isNew {
					added++
				}
			}
		}

		// A short page means the peer's side is exhausted.
		if len(page) < syncPageSize {
			return added, nil
		}
	}
}

// filterUnknown drops hashes already stored locally.
func (n *GossipNode) filterUnknown(hashes []common.Hash) ([]common.Hash, error) {
	var out []common.Hash
	for _, h := range hashes {
		_, err := n.store.GetMetadata(h)
		if err == storage.ErrOrderNotFound {
			out = append(out, h)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (n *GossipNode) storeFull() (bool, error) {
	if n.maxOrders <= 0 {
		return false, nil
	}
	count, err := n.store.CountAll()
	if err != nil {
		return false, err
	}
	return count >= uint64(n.maxOrders), nil
}
