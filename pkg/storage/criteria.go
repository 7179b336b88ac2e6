package storage

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// criteriaRow is the stored JSON form; token ids are decimal strings.
type criteriaRow struct {
	Token    common.Address `json:"token"`
	TokenIDs []string       `json:"tokenIds"`
}

// UpsertCriteria stores a criteria set keyed by its root hash and indexes
// every token id for reverse lookup.
func (s *Store) UpsertCriteria(c types.Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := criteriaRow{Token: c.Token, TokenIDs: make([]string, len(c.TokenIDs))}
	for i, id := range c.TokenIDs {
		row.TokenIDs[i] = id.String()
	}
	val, err := json.Marshal(row)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(criteriaKey(c.Hash), val, nil); err != nil {
		return err
	}
	for _, id := range c.TokenIDs {
		if err := b.Set(criteriaTokenKey(c.Token, id, c.Hash), nil, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

// GetCriteria returns the criteria set for hash, or ErrCriteriaNotFound.
func (s *Store) GetCriteria(hash common.Hash) (types.Criteria, error) {
	val, ok, err := s.get(criteriaKey(hash))
	if err != nil {
		return types.Criteria{}, err
	}
	if !ok {
		return types.Criteria{}, ErrCriteriaNotFound
	}
	var row criteriaRow
	if err := json.Unmarshal(val, &row); err != nil {
		return types.Criteria{}, fmt.Errorf("decode criteria %s: %w", hash, err)
	}
	c := types.Criteria{Hash: hash, Token: row.Token, TokenIDs: make([]*big.Int, 0, len(row.TokenIDs))}
	for _, dec := range row.TokenIDs {
		id, okParse := new(big.Int).SetString(dec, 10)
		if !okParse {
			return types.Criteria{}, fmt.Errorf("decode criteria %s: bad token id %q", hash, dec)
		}
		c.TokenIDs = append(c.TokenIDs, id)
	}
	return c, nil
}

// FindCriteriaByTokenID returns every stored criteria set that includes the
// given token id of the given collection.
func (s *Store) FindCriteriaByTokenID(token common.Address, id *big.Int) ([]types.Criteria, error) {
	prefix := criteriaTokenPrefix(token, id)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []types.Criteria
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		hash := common.BytesToHash(key[len(key)-32:])
		c, err := s.GetCriteria(hash)
		if err == ErrCriteriaNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
