package storage

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// Pebble key schema. Fixed-width binary components keep prefix scans in the
// natural sort order.
//
//	o:<hash32>                         → wire-encoded order
//	m:<hash32>                         → metadata JSON
//	c:<hash32>                         → criteria JSON
//	n:orders                           → uint64 total order count
//	i:off:<offerer20><hash32>          → nil  (per-offerer scan)
//	i:col:<token20><side1><created8><hash32> → nil  (collection queries)
//	i:blk:<block32><hash32>            → nil  (staleness scan, ascending)
//	i:ctk:<token20><id32><hash32>      → nil  (criteria-by-token-id)
const (
	prefixOrder    = "o:"
	prefixMeta     = "m:"
	prefixCriteria = "c:"
	keyOrderCount  = "n:orders"
	prefixIdxOff   = "i:off:"
	prefixIdxCol   = "i:col:"
	prefixIdxBlk   = "i:blk:"
	prefixIdxCtk   = "i:ctk:"
)

func orderKey(h common.Hash) []byte    { return append([]byte(prefixOrder), h[:]...) }
func metaKey(h common.Hash) []byte     { return append([]byte(prefixMeta), h[:]...) }
func criteriaKey(h common.Hash) []byte { return append([]byte(prefixCriteria), h[:]...) }

func offererKey(a common.Address, h common.Hash) []byte {
	k := append([]byte(prefixIdxOff), a[:]...)
	return append(k, h[:]...)
}

func offererPrefix(a common.Address) []byte {
	return append([]byte(prefixIdxOff), a[:]...)
}

func collectionKey(token common.Address, side types.Side, createdAt uint64, h common.Hash) []byte {
	k := append([]byte(prefixIdxCol), token[:]...)
	k = append(k, byte(side))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], createdAt)
	k = append(k, ts[:]...)
	return append(k, h[:]...)
}

func collectionPrefix(token common.Address, side types.Side) []byte {
	k := append([]byte(prefixIdxCol), token[:]...)
	return append(k, byte(side))
}

// block32 left-pads an arbitrary-width block number to 32 bytes so the index
// sorts numerically.
func block32(n *big.Int) []byte {
	var b [32]byte
	if n != nil {
		n.FillBytes(b[:])
	}
	return b[:]
}

func blockKey(n *big.Int, h common.Hash) []byte {
	k := append([]byte(prefixIdxBlk), block32(n)...)
	return append(k, h[:]...)
}

func criteriaTokenKey(token common.Address, id *big.Int, h common.Hash) []byte {
	k := append([]byte(prefixIdxCtk), token[:]...)
	k = append(k, block32(id)...)
	return append(k, h[:]...)
}

func criteriaTokenPrefix(token common.Address, id *big.Int) []byte {
	k := append([]byte(prefixIdxCtk), token[:]...)
	return append(k, block32(id)...)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}
