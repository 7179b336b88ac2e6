package storage

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

func marshalMeta(m *types.OrderMetadata) ([]byte, error) { return json.Marshal(m) }

func unmarshalMeta(b []byte) (types.OrderMetadata, error) {
	var m types.OrderMetadata
	err := json.Unmarshal(b, &m)
	return m, err
}

// FindOrderHashes returns hashes of orders indexed under collection matching
// the query, in creation order (ascending for OLDEST, descending for NEWEST).
// A zero Count means no page limit.
func (s *Store) FindOrderHashes(collection common.Address, q types.OrderQuery) ([]common.Hash, error) {
	prefix := collectionPrefix(collection, q.Side)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	advance := iter.Next
	ok := iter.First()
	if q.Sort == types.SortNewest {
		advance = iter.Prev
		ok = iter.Last()
	}

	var out []common.Hash
	skipped := uint32(0)
	for ; ok; ok = advance() {
		if skipped < q.Offset {
			skipped++
			continue
		}
		key := iter.Key()
		out = append(out, common.BytesToHash(key[len(key)-32:]))
		if q.Count > 0 && uint32(len(out)) >= q.Count {
			break
		}
	}
	return out, nil
}

// FindOrders resolves FindOrderHashes results to full orders.
func (s *Store) FindOrders(collection common.Address, q types.OrderQuery) ([]*types.Order, error) {
	hashes, err := s.FindOrderHashes(collection, q)
	if err != nil {
		return nil, err
	}
	return s.GetOrders(hashes)
}

// OrderHashesByOfferer returns the hashes of every stored order from one
// offerer.
func (s *Store) OrderHashesByOfferer(addr common.Address) ([]common.Hash, error) {
	prefix := offererPrefix(addr)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []common.Hash
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		out = append(out, common.BytesToHash(key[len(key)-32:]))
	}
	return out, nil
}

// CountOrders counts orders indexed under collection on the queried side.
func (s *Store) CountOrders(collection common.Address, q types.OrderQuery) (uint64, error) {
	prefix := collectionPrefix(collection, q.Side)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	var n uint64
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, nil
}
