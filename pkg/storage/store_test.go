package storage

import (
	"math/big"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

var testCollection = common.HexToAddress("0x3333333333333333333333333333333333333333")

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testOrder builds a sell order for testCollection; salt keeps hashes apart.
func testOrder(offerer common.Address, salt int64) *types.Order {
	return &types.Order{
		ChainID:   1,
		Offerer:   offerer,
		StartTime: 1650000000,
		EndTime:   1660000000,
		Salt:      big.NewInt(salt),
		Signature: make([]byte, 65),
		Offer: []types.OfferItem{{
			ItemType:             types.ItemERC721,
			Token:                testCollection,
			IdentifierOrCriteria: big.NewInt(salt),
			StartAmount:          big.NewInt(1),
			EndAmount:            big.NewInt(1),
		}},
		Consideration: []types.ConsiderationItem{{
			ItemType:    types.ItemNative,
			StartAmount: big.NewInt(1000),
			EndAmount:   big.NewInt(1000),
			Recipient:   offerer,
		}},
	}
}

func testMeta(hash common.Hash, createdAt uint64, block uint64) types.OrderMetadata {
	return types.OrderMetadata{
		OrderHash:                hash,
		IsValid:                  true,
		CreatedAt:                createdAt,
		LastValidatedBlockNumber: strconv.FormatUint(block, 10),
		LastValidatedBlockHash:   common.HexToHash("0xbb"),
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	offerer := common.HexToAddress("0x01")
	hash := common.HexToHash("0xa1")
	order := testOrder(offerer, 1)

	isNew, _, err := s.UpsertOrder(hash, order, testMeta(hash, 100, 10))
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Fatal("first upsert not reported as new")
	}

	got, err := s.GetOrder(hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.Offerer != offerer || got.Salt.Cmp(order.Salt) != 0 {
		t.Fatalf("stored order mismatch: %+v", got)
	}

	meta, err := s.GetMetadata(hash)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.IsValid || meta.CreatedAt != 100 {
		t.Fatalf("stored metadata mismatch: %+v", meta)
	}

	count, err := s.CountAll()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	if _, err := s.GetOrder(common.HexToHash("0xffff")); err != ErrOrderNotFound {
		t.Fatalf("unknown hash: got %v, want ErrOrderNotFound", err)
	}
}

func TestUpsertExistingPreservesCreationAndPin(t *testing.T) {
	s := newTestStore(t)
	hash := common.HexToHash("0xa2")
	order := testOrder(common.HexToAddress("0x01"), 2)

	first := testMeta(hash, 100, 10)
	first.IsPinned = true
	if _, _, err := s.UpsertOrder(hash, order, first); err != nil {
		t.Fatal(err)
	}

	second := testMeta(hash, 999, 20)
	isNew, stored, err := s.UpsertOrder(hash, order, second)
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Fatal("existing order reported as new")
	}
	if stored.CreatedAt != 100 {
		t.Fatalf("createdAt overwritten: %d", stored.CreatedAt)
	}
	if !stored.IsPinned {
		t.Fatal("pin flag lost on re-upsert")
	}

	count, _ := s.CountAll()
	if count != 1 {
		t.Fatalf("count = %d after duplicate upsert, want 1", count)
	}
}

func TestValidatedBlockMonotone(t *testing.T) {
	s := newTestStore(t)
	hash := common.HexToHash("0xa3")
	if _, _, err := s.UpsertOrder(hash, testOrder(common.HexToAddress("0x01"), 3), testMeta(hash, 100, 50)); err != nil {
		t.Fatal(err)
	}

	// A stale write with a lower block must keep the recorded block.
	meta, err := s.UpdateMetadata(hash, func(m *types.OrderMetadata) {
		m.IsValid = false
		m.LastValidatedBlockNumber = "30"
		m.LastValidatedBlockHash = common.HexToHash("0xcc")
	})
	if err != nil {
		t.Fatal(err)
	}
	if meta.LastValidatedBlockNumber != "50" {
		t.Fatalf("block went backwards: %s", meta.LastValidatedBlockNumber)
	}
	if meta.IsValid {
		t.Fatal("validity flag not applied")
	}

	// A newer block moves forward.
	meta, err = s.UpdateMetadata(hash, func(m *types.OrderMetadata) {
		m.LastValidatedBlockNumber = "60"
	})
	if err != nil {
		t.Fatal(err)
	}
	if meta.LastValidatedBlockNumber != "60" {
		t.Fatalf("block did not advance: %s", meta.LastValidatedBlockNumber)
	}
}

func TestDeleteOrder(t *testing.T) {
	s := newTestStore(t)
	offerer := common.HexToAddress("0x01")
	hash := common.HexToHash("0xa4")
	if _, _, err := s.UpsertOrder(hash, testOrder(offerer, 4), testMeta(hash, 100, 10)); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteOrder(hash); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetOrder(hash); err != ErrOrderNotFound {
		t.Fatalf("order survived delete: %v", err)
	}
	if _, err := s.GetMetadata(hash); err != ErrOrderNotFound {
		t.Fatalf("metadata survived delete: %v", err)
	}
	count, _ := s.CountAll()
	if count != 0 {
		t.Fatalf("count = %d after delete, want 0", count)
	}
	hashes, err := s.FindOrderHashes(testCollection, types.OrderQuery{Side: types.SideSell})
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 0 {
		t.Fatal("collection index survived delete")
	}
	byOfferer, err := s.OrderHashesByOfferer(offerer)
	if err != nil {
		t.Fatal(err)
	}
	if len(byOfferer) != 0 {
		t.Fatal("offerer index survived delete")
	}

	// Deleting an unknown hash is a no-op.
	if err := s.DeleteOrder(common.HexToHash("0xffff")); err != nil {
		t.Fatalf("unknown delete: %v", err)
	}
}

func TestFindOrderHashesSortAndPage(t *testing.T) {
	s := newTestStore(t)
	offerer := common.HexToAddress("0x01")
	hashes := []common.Hash{common.HexToHash("0xb1"), common.HexToHash("0xb2"), common.HexToHash("0xb3")}
	for i, h := range hashes {
		meta := testMeta(h, uint64(100+i), 10)
		if _, _, err := s.UpsertOrder(h, testOrder(offerer, int64(10+i)), meta); err != nil {
			t.Fatal(err)
		}
	}

	oldest, err := s.FindOrderHashes(testCollection, types.OrderQuery{Side: types.SideSell, Sort: types.SortOldest})
	if err != nil {
		t.Fatal(err)
	}
	if len(oldest) != 3 || oldest[0] != hashes[0] || oldest[2] != hashes[2] {
		t.Fatalf("oldest-first order wrong: %v", oldest)
	}

	newest, err := s.FindOrderHashes(testCollection, types.OrderQuery{Side: types.SideSell, Sort: types.SortNewest})
	if err != nil {
		t.Fatal(err)
	}
	if len(newest) != 3 || newest[0] != hashes[2] {
		t.Fatalf("newest-first order wrong: %v", newest)
	}

	page, err := s.FindOrderHashes(testCollection, types.OrderQuery{Side: types.SideSell, Sort: types.SortOldest, Count: 1, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0] != hashes[1] {
		t.Fatalf("paged result wrong: %v", page)
	}

	// Buy side is a separate index.
	buy, err := s.FindOrderHashes(testCollection, types.OrderQuery{Side: types.SideBuy})
	if err != nil {
		t.Fatal(err)
	}
	if len(buy) != 0 {
		t.Fatalf("sell orders appeared on the buy side: %v", buy)
	}

	n, err := s.CountOrders(testCollection, types.OrderQuery{Side: types.SideSell})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("CountOrders = %d, want 3", n)
	}
}

func TestCountByOfferer(t *testing.T) {
	s := newTestStore(t)
	a := common.HexToAddress("0x0a")
	b := common.HexToAddress("0x0b")
	for i, offerer := range []common.Address{a, a, b} {
		h := common.BytesToHash([]byte{0xc0, byte(i)})
		if _, _, err := s.UpsertOrder(h, testOrder(offerer, int64(20+i)), testMeta(h, 100, 10)); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.CountByOfferer(a)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("CountByOfferer(a) = %d, want 2", n)
	}
	n, err = s.CountByOfferer(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("CountByOfferer(b) = %d, want 1", n)
	}
}

func TestListStaleMetadata(t *testing.T) {
	s := newTestStore(t)
	blocks := []uint64{10, 20, 30}
	for i, block := range blocks {
		h := common.BytesToHash([]byte{0xd0, byte(i)})
		if _, _, err := s.UpsertOrder(h, testOrder(common.HexToAddress("0x01"), int64(30+i)), testMeta(h, 100, block)); err != nil {
			t.Fatal(err)
		}
	}

	stale, err := s.ListStaleMetadata(big.NewInt(20), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 2 {
		t.Fatalf("stale rows = %d, want 2 (threshold inclusive)", len(stale))
	}
	// Ascending by validated block.
	if stale[0].LastValidatedBlockNumber != "10" || stale[1].LastValidatedBlockNumber != "20" {
		t.Fatalf("stale order wrong: %s, %s", stale[0].LastValidatedBlockNumber, stale[1].LastValidatedBlockNumber)
	}

	capped, err := s.ListStaleMetadata(big.NewInt(100), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(capped) != 1 {
		t.Fatalf("max not honored: %d rows", len(capped))
	}
}

func TestCriteriaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	c := types.Criteria{
		Hash:     common.HexToHash("0xe1"),
		Token:    testCollection,
		TokenIDs: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
	}
	if err := s.UpsertCriteria(c); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCriteria(c.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if got.Token != c.Token || len(got.TokenIDs) != 3 || got.TokenIDs[2].Int64() != 3 {
		t.Fatalf("criteria round trip mismatch: %+v", got)
	}

	if _, err := s.GetCriteria(common.HexToHash("0xffff")); err != ErrCriteriaNotFound {
		t.Fatalf("unknown criteria: got %v, want ErrCriteriaNotFound", err)
	}

	matches, err := s.FindCriteriaByTokenID(testCollection, big.NewInt(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Hash != c.Hash {
		t.Fatalf("token-id lookup mismatch: %+v", matches)
	}
	none, err := s.FindCriteriaByTokenID(testCollection, big.NewInt(9))
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatal("lookup for absent token id returned rows")
	}
}
