package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

func sampleOrder() *types.Order {
	return &types.Order{
		ChainID:    1,
		Offerer:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Zone:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		StartTime:  1650000000,
		EndTime:    1660000000,
		OrderType:  types.FullOpen,
		Counter:    3,
		Salt:       big.NewInt(123456789),
		ConduitKey: common.HexToHash("0x01"),
		Signature:  make([]byte, 65),
		Offer: []types.OfferItem{{
			ItemType:             types.ItemERC721,
			Token:                common.HexToAddress("0x3333333333333333333333333333333333333333"),
			IdentifierOrCriteria: big.NewInt(42),
			StartAmount:          big.NewInt(1),
			EndAmount:            big.NewInt(1),
		}},
		Consideration: []types.ConsiderationItem{{
			ItemType:    types.ItemNative,
			StartAmount: big.NewInt(1000),
			EndAmount:   big.NewInt(1000),
			Recipient:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		}},
	}
}

func TestOrderHashDeterministic(t *testing.T) {
	a := OrderHash(sampleOrder())
	b := OrderHash(sampleOrder())
	if a != b {
		t.Fatalf("same order hashed differently: %s vs %s", a, b)
	}
	if a == (common.Hash{}) {
		t.Fatal("order hash is zero")
	}
}

func TestOrderHashFieldSensitivity(t *testing.T) {
	base := OrderHash(sampleOrder())

	tests := []struct {
		name   string
		mutate func(o *types.Order)
	}{
		{"salt", func(o *types.Order) { o.Salt = big.NewInt(987654321) }},
		{"counter", func(o *types.Order) { o.Counter++ }},
		{"offerer", func(o *types.Order) { o.Offerer = common.HexToAddress("0x9999999999999999999999999999999999999999") }},
		{"endTime", func(o *types.Order) { o.EndTime++ }},
		{"offerAmount", func(o *types.Order) { o.Offer[0].StartAmount = big.NewInt(2) }},
		{"considerationRecipient", func(o *types.Order) {
			o.Consideration[0].Recipient = common.HexToAddress("0x9999999999999999999999999999999999999999")
		}},
		{"considerationLength", func(o *types.Order) {
			o.Consideration = append(o.Consideration, o.Consideration[0])
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := sampleOrder()
			tt.mutate(o)
			if got := OrderHash(o); got == base {
				t.Errorf("mutating %s did not change the hash", tt.name)
			}
		})
	}
}

func TestOrderHashIgnoresSignature(t *testing.T) {
	a := sampleOrder()
	b := sampleOrder()
	b.Signature = append([]byte{0x01}, make([]byte, 64)...)
	if OrderHash(a) != OrderHash(b) {
		t.Fatal("signature bytes must not affect the order hash")
	}
}

func TestCriteriaRoot(t *testing.T) {
	_, err := CriteriaRoot(nil)
	if err != ErrNoCriteriaItems {
		t.Fatalf("empty set: got err %v, want ErrNoCriteriaItems", err)
	}

	// A single id's root is its leaf hash.
	id := big.NewInt(7)
	root, err := CriteriaRoot([]*big.Int{id})
	if err != nil {
		t.Fatal(err)
	}
	leaf := common.BytesToHash(gethcrypto.Keccak256(padBig(id)))
	if root != leaf {
		t.Fatalf("single-leaf root = %s, want %s", root, leaf)
	}
}

func TestCriteriaRootOrderIndependent(t *testing.T) {
	ids := []*big.Int{big.NewInt(5), big.NewInt(1), big.NewInt(9)}
	rev := []*big.Int{big.NewInt(9), big.NewInt(1), big.NewInt(5)}
	a, err := CriteriaRoot(ids)
	if err != nil {
		t.Fatal(err)
	}
	b, err := CriteriaRoot(rev)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("root depends on input order: %s vs %s", a, b)
	}
	// Input must not be reordered in place.
	if rev[0].Cmp(big.NewInt(9)) != 0 {
		t.Fatal("input slice was mutated")
	}
}

func TestRecoverSigner(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := gethcrypto.PubkeyToAddress(key.PublicKey)

	domain := DomainSeparator(1, common.HexToAddress("0x00000000006c3852cbEf3e08E8dF289169EdE581"))
	digest := SignatureDigest(domain, OrderHash(sampleOrder()))

	sig, err := gethcrypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("65-byte", func(t *testing.T) {
		got, err := RecoverSigner(digest, sig)
		if err != nil {
			t.Fatal(err)
		}
		if got != addr {
			t.Fatalf("recovered %s, want %s", got, addr)
		}
	})

	t.Run("65-byte v+27", func(t *testing.T) {
		shifted := append([]byte(nil), sig...)
		shifted[64] += 27
		got, err := RecoverSigner(digest, shifted)
		if err != nil {
			t.Fatal(err)
		}
		if got != addr {
			t.Fatalf("recovered %s, want %s", got, addr)
		}
	})

	t.Run("64-byte compact", func(t *testing.T) {
		compact := make([]byte, 64)
		copy(compact[:32], sig[:32])
		vs := new(big.Int).SetBytes(sig[32:64])
		if sig[64] == 1 {
			vs.SetBit(vs, 255, 1)
		}
		vs.FillBytes(compact[32:])
		got, err := RecoverSigner(digest, compact)
		if err != nil {
			t.Fatal(err)
		}
		if got != addr {
			t.Fatalf("recovered %s, want %s", got, addr)
		}
	})

	t.Run("bad length", func(t *testing.T) {
		if _, err := RecoverSigner(digest, sig[:40]); err != ErrBadSignatureLength {
			t.Fatalf("got err %v, want ErrBadSignatureLength", err)
		}
	})
}
