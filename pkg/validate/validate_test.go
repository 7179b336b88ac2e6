package validate

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/seaportgossip/seaport-gossip/pkg/crypto"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

func TestResultClassification(t *testing.T) {
	tests := []struct {
		name      string
		errors    []Code
		ok        bool
		transient bool
		ended     bool
	}{
		{"clean", nil, true, false, false},
		{"approval only", []Code{CodeERC721NotApproved}, false, true, false},
		{"balances only", []Code{CodeERC20InsufficientBalance, CodeNativeInsufficientBalance}, false, true, false},
		{"mixed transient and hard", []Code{CodeERC721NotApproved, CodeInvalidSignature}, false, false, false},
		{"cancelled", []Code{CodeOrderCancelled}, false, false, true},
		{"expired", []Code{CodeOrderExpired}, false, false, true},
		{"fully filled", []Code{CodeOrderFullyFilled}, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Result{Errors: tt.errors}
			if r.OK() != tt.ok {
				t.Errorf("OK() = %v, want %v", r.OK(), tt.ok)
			}
			if r.Transient() != tt.transient {
				t.Errorf("Transient() = %v, want %v", r.Transient(), tt.transient)
			}
			if r.Ended() != tt.ended {
				t.Errorf("Ended() = %v, want %v", r.Ended(), tt.ended)
			}
		})
	}
}

func TestFilterResidual(t *testing.T) {
	adapter := common.HexToAddress("0x7777777777777777777777777777777777777777")
	orderWithAdapter := &types.Order{
		Offer: []types.OfferItem{{ItemType: types.ItemERC1155, Token: adapter}},
	}
	orderWithout := &types.Order{
		Offer: []types.OfferItem{{ItemType: types.ItemERC1155, Token: common.HexToAddress("0x01")}},
	}

	res := Result{Errors: []Code{CodeInvalidToken, CodeERC1155NotApproved}}

	filtered := FilterResidual(orderWithAdapter, res, adapter)
	if filtered.Has(CodeInvalidToken) {
		t.Fatal("invalid-token error not filtered for lazy-mint adapter order")
	}
	if !filtered.Has(CodeERC1155NotApproved) {
		t.Fatal("unrelated error dropped by filter")
	}

	kept := FilterResidual(orderWithout, res, adapter)
	if !kept.Has(CodeInvalidToken) {
		t.Fatal("invalid-token error filtered for order not touching the adapter")
	}

	unset := FilterResidual(orderWithAdapter, res, common.Address{})
	if !unset.Has(CodeInvalidToken) {
		t.Fatal("filter applied with no adapter configured")
	}
}

// fakeStatus is a canned settlement-contract view.
type fakeStatus struct {
	status  types.OrderStatus
	counter uint64
}

func (f *fakeStatus) GetOrderStatus(ctx context.Context, _ common.Hash) (types.OrderStatus, error) {
	return f.status, nil
}

func (f *fakeStatus) Counter(ctx context.Context, _ common.Address) (uint64, error) {
	return f.counter, nil
}

const testNow = 1655000000

// signedOrder builds an order carrying a real signature over its digest.
// Mutations run before signing; mutate after the call to break the signature.
func signedOrder(t *testing.T, v *ChainValidator, mutate ...func(*types.Order)) *types.Order {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	o := &types.Order{
		ChainID:   1,
		Offerer:   gethcrypto.PubkeyToAddress(key.PublicKey),
		StartTime: testNow - 1000,
		EndTime:   testNow + 1000,
		Counter:   2,
		Salt:      big.NewInt(7),
		Offer: []types.OfferItem{{
			ItemType:             types.ItemERC721,
			Token:                common.HexToAddress("0x3333333333333333333333333333333333333333"),
			IdentifierOrCriteria: big.NewInt(1),
			StartAmount:          big.NewInt(1),
			EndAmount:            big.NewInt(1),
		}},
		Consideration: []types.ConsiderationItem{{
			ItemType:    types.ItemNative,
			StartAmount: big.NewInt(100),
			EndAmount:   big.NewInt(100),
		}},
	}
	for _, m := range mutate {
		m(o)
	}
	digest := crypto.SignatureDigest(v.domain, crypto.OrderHash(o))
	sig, err := gethcrypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatal(err)
	}
	o.Signature = sig
	return o
}

func newTestValidator(chain StatusReader) *ChainValidator {
	v := NewChainValidator(Config{
		ChainID:            1,
		SettlementContract: common.HexToAddress("0x00000000006c3852cbEf3e08E8dF289169EdE581"),
	}, chain)
	v.now = func() time.Time { return time.Unix(testNow, 0) }
	return v
}

func TestChainValidator(t *testing.T) {
	chain := &fakeStatus{counter: 2, status: types.OrderStatus{TotalFilled: new(big.Int), TotalSize: new(big.Int)}}
	v := newTestValidator(chain)
	ctx := context.Background()

	t.Run("valid order", func(t *testing.T) {
		res, err := v.ValidateOrder(ctx, signedOrder(t, v))
		if err != nil {
			t.Fatal(err)
		}
		if !res.OK() {
			t.Fatalf("valid order rejected: %v", res.Errors)
		}
	})

	t.Run("expired", func(t *testing.T) {
		o := signedOrder(t, v, func(o *types.Order) {
			o.EndTime = testNow - 1
		})
		res, err := v.ValidateOrder(ctx, o)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Has(CodeOrderExpired) {
			t.Fatalf("expired order passed: %v", res.Errors)
		}
	})

	t.Run("not yet valid warns", func(t *testing.T) {
		o := signedOrder(t, v, func(o *types.Order) {
			o.StartTime = testNow + 500
		})
		res, err := v.ValidateOrder(ctx, o)
		if err != nil {
			t.Fatal(err)
		}
		if !res.OK() {
			t.Fatalf("future start must be a warning, got errors %v", res.Errors)
		}
		if len(res.Warnings) == 0 {
			t.Fatal("no warning for future start time")
		}
	})

	t.Run("tampered signature", func(t *testing.T) {
		o := signedOrder(t, v)
		o.Salt = big.NewInt(8) // signed bytes no longer match
		res, err := v.ValidateOrder(ctx, o)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Has(CodeInvalidSignature) {
			t.Fatalf("tampered order passed signature check: %v", res.Errors)
		}
	})

	t.Run("cancelled on chain", func(t *testing.T) {
		cancelled := &fakeStatus{counter: 2, status: types.OrderStatus{IsCancelled: true, TotalFilled: new(big.Int), TotalSize: new(big.Int)}}
		vc := newTestValidator(cancelled)
		res, err := vc.ValidateOrder(ctx, signedOrder(t, vc))
		if err != nil {
			t.Fatal(err)
		}
		if !res.Has(CodeOrderCancelled) {
			t.Fatalf("cancelled order passed: %v", res.Errors)
		}
	})

	t.Run("fully filled on chain", func(t *testing.T) {
		filled := &fakeStatus{counter: 2, status: types.OrderStatus{TotalFilled: big.NewInt(4), TotalSize: big.NewInt(4)}}
		vf := newTestValidator(filled)
		res, err := vf.ValidateOrder(ctx, signedOrder(t, vf))
		if err != nil {
			t.Fatal(err)
		}
		if !res.Has(CodeOrderFullyFilled) {
			t.Fatalf("filled order passed: %v", res.Errors)
		}
	})

	t.Run("stale counter", func(t *testing.T) {
		bumped := &fakeStatus{counter: 3, status: types.OrderStatus{TotalFilled: new(big.Int), TotalSize: new(big.Int)}}
		vb := newTestValidator(bumped)
		res, err := vb.ValidateOrder(ctx, signedOrder(t, vb))
		if err != nil {
			t.Fatal(err)
		}
		if !res.Has(CodeInvalidCounter) {
			t.Fatalf("stale-counter order passed: %v", res.Errors)
		}
	})

	t.Run("fee recipient enforced", func(t *testing.T) {
		fee := common.HexToAddress("0x8888888888888888888888888888888888888888")
		vr := NewChainValidator(Config{
			ChainID:              1,
			SettlementContract:   common.HexToAddress("0x00000000006c3852cbEf3e08E8dF289169EdE581"),
			ValidateFeeRecipient: true,
			FeeRecipient:         fee,
		}, chain)
		vr.now = func() time.Time { return time.Unix(testNow, 0) }

		o := signedOrder(t, vr)
		res, err := vr.ValidateOrder(ctx, o)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Has(CodeInvalidFeeRecipient) {
			t.Fatalf("order without fee recipient passed: %v", res.Errors)
		}
	})
}
