// Package storage persists orders, metadata and criteria sets in pebble.
// Offer and consideration items travel inside the order's canonical wire
// encoding, so one batch covers everything the relational layout would hold
// in four tables; secondary index keys serve the offerer, collection and
// staleness scans without full-store iteration.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/codec"
	"github.com/seaportgossip/seaport-gossip/pkg/metrics"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrCriteriaNotFound = errors.New("criteria not found")
)

// Store is safe for concurrent use: reads hit pebble directly, writes are
// serialized by a single mutex so the order-count key and index maintenance
// stay consistent.
type Store struct {
	mu sync.Mutex
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// UpsertOrder writes the order and its metadata atomically and maintains the
// secondary indexes. It reports whether the order was new. Existing rows keep
// their creation time and pin flag, and the validated-block fields never move
// backwards.
func (s *Store) UpsertOrder(hash common.Hash, o *types.Order, meta types.OrderMetadata) (bool, types.OrderMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta.OrderHash = hash

	old, existed, err := s.readMeta(hash)
	if err != nil {
		return false, types.OrderMetadata{}, err
	}
	if existed {
		meta.CreatedAt = old.CreatedAt
		meta.IsPinned = meta.IsPinned || old.IsPinned
		clampValidatedBlock(&meta, &old)
	}

	enc, err := codec.EncodeOrder(o)
	if err != nil {
		return false, types.OrderMetadata{}, err
	}
	metaVal, err := marshalMeta(&meta)
	if err != nil {
		return false, types.OrderMetadata{}, err
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Set(orderKey(hash), enc, nil); err != nil {
		return false, types.OrderMetadata{}, err
	}
	if err := b.Set(metaKey(hash), metaVal, nil); err != nil {
		return false, types.OrderMetadata{}, err
	}

	if !existed {
		if err := b.Set(offererKey(o.Offerer, hash), nil, nil); err != nil {
			return false, types.OrderMetadata{}, err
		}
		side := o.Side()
		for _, col := range o.Collections() {
			if err := b.Set(collectionKey(col, side, meta.CreatedAt, hash), nil, nil); err != nil {
				return false, types.OrderMetadata{}, err
			}
		}
		if err := s.bumpCount(b, 1); err != nil {
			return false, types.OrderMetadata{}, err
		}
	}
	if err := s.moveBlockIndex(b, hash, &old, &meta, existed); err != nil {
		return false, types.OrderMetadata{}, err
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return false, types.OrderMetadata{}, err
	}
	return !existed, meta, nil
}

// GetOrder returns the order with its items, or ErrOrderNotFound.
func (s *Store) GetOrder(hash common.Hash) (*types.Order, error) {
	val, ok, err := s.get(orderKey(hash))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	return codec.DecodeOrder(val)
}

// GetOrders returns the known orders among hashes in request order; unknown
// hashes are silently omitted.
func (s *Store) GetOrders(hashes []common.Hash) ([]*types.Order, error) {
	out := make([]*types.Order, 0, len(hashes))
	for _, h := range hashes {
		o, err := s.GetOrder(h)
		if err == ErrOrderNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// GetMetadata returns the metadata row for hash, or ErrOrderNotFound.
func (s *Store) GetMetadata(hash common.Hash) (types.OrderMetadata, error) {
	meta, ok, err := s.readMeta(hash)
	if err != nil {
		return types.OrderMetadata{}, err
	}
	if !ok {
		return types.OrderMetadata{}, ErrOrderNotFound
	}
	return meta, nil
}

// UpdateMetadata applies patch to the stored row and persists it. The
// validated-block fields are clamped so they never decrease.
func (s *Store) UpdateMetadata(hash common.Hash, patch func(*types.OrderMetadata)) (types.OrderMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok, err := s.readMeta(hash)
	if err != nil {
		return types.OrderMetadata{}, err
	}
	if !ok {
		return types.OrderMetadata{}, ErrOrderNotFound
	}
	meta := old
	patch(&meta)
	meta.OrderHash = hash
	clampValidatedBlock(&meta, &old)

	val, err := marshalMeta(&meta)
	if err != nil {
		return types.OrderMetadata{}, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(metaKey(hash), val, nil); err != nil {
		return types.OrderMetadata{}, err
	}
	if err := s.moveBlockIndex(b, hash, &old, &meta, true); err != nil {
		return types.OrderMetadata{}, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return types.OrderMetadata{}, err
	}
	return meta, nil
}

// DeleteOrder removes the order, its items, its metadata and every index
// entry in one batch. Deleting an unknown hash is a no-op.
func (s *Store) DeleteOrder(hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.GetOrder(hash)
	if err == ErrOrderNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	meta, _, err := s.readMeta(hash)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(orderKey(hash), nil); err != nil {
		return err
	}
	if err := b.Delete(metaKey(hash), nil); err != nil {
		return err
	}
	if err := b.Delete(offererKey(o.Offerer, hash), nil); err != nil {
		return err
	}
	side := o.Side()
	for _, col := range o.Collections() {
		if err := b.Delete(collectionKey(col, side, meta.CreatedAt, hash), nil); err != nil {
			return err
		}
	}
	if err := b.Delete(blockKey(meta.ValidatedBlock(), hash), nil); err != nil {
		return err
	}
	if err := s.bumpCount(b, -1); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// CountAll returns the total number of stored orders.
func (s *Store) CountAll() (uint64, error) {
	val, ok, err := s.get([]byte(keyOrderCount))
	if err != nil || !ok {
		return 0, err
	}
	return binary.BigEndian.Uint64(val), nil
}

// CountByOfferer counts stored orders from one offerer.
func (s *Store) CountByOfferer(addr common.Address) (int, error) {
	prefix := offererPrefix(addr)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, nil
}

func (s *Store) bumpCount(b *pebble.Batch, delta int64) error {
	cur, _, err := s.get([]byte(keyOrderCount))
	if err != nil {
		return err
	}
	var n uint64
	if cur != nil {
		n = binary.BigEndian.Uint64(cur)
	}
	n = uint64(int64(n) + delta)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	if err := b.Set([]byte(keyOrderCount), buf[:], nil); err != nil {
		return err
	}
	metrics.OrdersStored.Set(float64(n))
	return nil
}

func (s *Store) readMeta(hash common.Hash) (types.OrderMetadata, bool, error) {
	val, ok, err := s.get(metaKey(hash))
	if err != nil || !ok {
		return types.OrderMetadata{}, false, err
	}
	meta, err := unmarshalMeta(val)
	if err != nil {
		return types.OrderMetadata{}, false, fmt.Errorf("decode metadata %s: %w", hash, err)
	}
	return meta, true, nil
}

// clampValidatedBlock keeps lastValidatedBlockNumber monotone: a write with a
// strictly smaller block keeps the old number and hash.
func clampValidatedBlock(meta, old *types.OrderMetadata) {
	if meta.ValidatedBlock().Cmp(old.ValidatedBlock()) < 0 {
		meta.LastValidatedBlockNumber = old.LastValidatedBlockNumber
		meta.LastValidatedBlockHash = old.LastValidatedBlockHash
	}
}

func (s *Store) moveBlockIndex(b *pebble.Batch, hash common.Hash, old, meta *types.OrderMetadata, existed bool) error {
	newBlock := meta.ValidatedBlock()
	if existed {
		oldBlock := old.ValidatedBlock()
		if oldBlock.Cmp(newBlock) == 0 {
			return nil
		}
		if err := b.Delete(blockKey(oldBlock, hash), nil); err != nil {
			return err
		}
	}
	return b.Set(blockKey(newBlock, hash), nil, nil)
}

// ListStaleMetadata returns up to max metadata rows whose last validated
// block is at or below threshold, ascending by that block number.
func (s *Store) ListStaleMetadata(threshold *big.Int, max int) ([]types.OrderMetadata, error) {
	upper := new(big.Int).Add(threshold, big.NewInt(1))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixIdxBlk),
		UpperBound: append([]byte(prefixIdxBlk), block32(upper)...),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []types.OrderMetadata
	for iter.First(); iter.Valid() && len(out) < max; iter.Next() {
		key := iter.Key()
		hash := common.BytesToHash(key[len(key)-32:])
		meta, ok, err := s.readMeta(hash)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, meta)
		}
	}
	return out, nil
}
