package crypto

import (
	"errors"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNoCriteriaItems = errors.New("criteria requires at least one token id")

// CriteriaRoot computes the merkle root over the sorted set of token ids.
// Leaves are keccak(tokenId_padded32); odd layers carry the last node up
// unhashed. The input slice is not mutated.
func CriteriaRoot(tokenIDs []*big.Int) (common.Hash, error) {
	if len(tokenIDs) == 0 {
		return common.Hash{}, ErrNoCriteriaItems
	}
	ids := make([]*big.Int, len(tokenIDs))
	copy(ids, tokenIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })

	layer := make([][]byte, len(ids))
	for i, id := range ids {
		layer[i] = crypto.Keccak256(padBig(id))
	}
	for len(layer) > 1 {
		next := make([][]byte, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			// Pairs are hashed in ascending byte order, matching the
			// proof verification the settlement contract performs.
			a, b := layer[i], layer[i+1]
			if string(a) > string(b) {
				a, b = b, a
			}
			next = append(next, crypto.Keccak256(a, b))
		}
		layer = next
	}
	return common.BytesToHash(layer[0]), nil
}
