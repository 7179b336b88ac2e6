package codec

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

func basicOrder() *types.Order {
	return &types.Order{
		ChainID:    1,
		Offerer:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Zone:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		ZoneHash:   common.HexToHash("0xaa"),
		StartTime:  1650000000,
		EndTime:    1660000000,
		OrderType:  types.PartialOpen,
		Counter:    7,
		Salt:       big.NewInt(424242),
		ConduitKey: common.HexToHash("0xbb"),
		Signature:  bytes.Repeat([]byte{0x5a}, 65),
		Offer: []types.OfferItem{{
			ItemType:             types.ItemERC721,
			Token:                common.HexToAddress("0x3333333333333333333333333333333333333333"),
			IdentifierOrCriteria: big.NewInt(99),
			StartAmount:          big.NewInt(1),
			EndAmount:            big.NewInt(1),
		}},
		Consideration: []types.ConsiderationItem{{
			ItemType:    types.ItemERC20,
			Token:       common.HexToAddress("0x4444444444444444444444444444444444444444"),
			StartAmount: big.NewInt(500),
			EndAmount:   big.NewInt(300),
			Recipient:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		}},
	}
}

func advancedOrder() *types.Order {
	o := basicOrder()
	o.Numerator = big.NewInt(1)
	o.Denominator = big.NewInt(4)
	o.ExtraData = []byte{0xde, 0xad, 0xbe, 0xef}
	o.AdditionalRecipients = []types.AdditionalRecipient{{
		Amount:    big.NewInt(25),
		Recipient: common.HexToAddress("0x5555555555555555555555555555555555555555"),
	}}
	return o
}

// Round trips are checked by re-encoding: two encodes of the same logical
// order must produce identical bytes, which is the property message-id
// derivation relies on.
func TestOrderRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		order *types.Order
	}{
		{"basic", basicOrder()},
		{"advanced", advancedOrder()},
		{"compact signature", func() *types.Order {
			o := basicOrder()
			o.Signature = bytes.Repeat([]byte{0x5a}, 64)
			return o
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := EncodeOrder(tt.order)
			if err != nil {
				t.Fatal(err)
			}
			dec, err := DecodeOrder(enc)
			if err != nil {
				t.Fatal(err)
			}
			re, err := EncodeOrder(dec)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(enc, re) {
				t.Fatal("re-encoding the decoded order produced different bytes")
			}
			if !bytes.Equal(dec.Signature, tt.order.Signature) {
				t.Fatalf("signature round trip: got %d bytes, want %d", len(dec.Signature), len(tt.order.Signature))
			}
		})
	}
}

func TestDecodeOrderDropsAdvancedDefaults(t *testing.T) {
	enc, err := EncodeOrder(basicOrder())
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodeOrder(enc)
	if err != nil {
		t.Fatal(err)
	}
	if dec.IsAdvanced() {
		t.Fatal("basic order decoded as advanced")
	}
	if dec.Numerator != nil || dec.Denominator != nil || dec.ExtraData != nil || dec.AdditionalRecipients != nil {
		t.Fatal("advanced defaults not dropped to absent")
	}
}

func TestDecodeOrderRejectsMalformed(t *testing.T) {
	enc, err := EncodeOrder(basicOrder())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeOrder(enc[:len(enc)/2]); err == nil {
		t.Error("truncated buffer accepted")
	}
	if _, err := DecodeOrder(append(append([]byte(nil), enc...), 0x00)); err != ErrTrailingData {
		t.Errorf("trailing byte: got %v, want ErrTrailingData", err)
	}
}

func TestEncodeOrderEnforcesCaps(t *testing.T) {
	o := basicOrder()
	item := o.Offer[0]
	for i := 0; i <= MaxOfferItems; i++ {
		o.Offer = append(o.Offer, item)
	}
	if _, err := EncodeOrder(o); err != ErrListTooLong {
		t.Fatalf("oversize offer list: got %v, want ErrListTooLong", err)
	}
}

func sampleEvent() *types.GossipEvent {
	return &types.GossipEvent{
		Kind:        types.EventFulfilled,
		OrderHash:   common.HexToHash("0x0102"),
		BlockNumber: 19_000_000,
		BlockHash:   common.HexToHash("0x0a0b"),
		Offerer:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Counter:     5,
	}
}

func TestEventRoundTrip(t *testing.T) {
	for _, withOrder := range []bool{false, true} {
		ev := sampleEvent()
		if withOrder {
			ev.Kind = types.EventNew
			ev.Order = basicOrder()
		}
		enc, err := EncodeEvent(ev)
		if err != nil {
			t.Fatal(err)
		}
		dec, err := DecodeEvent(enc)
		if err != nil {
			t.Fatal(err)
		}
		if dec.Kind != ev.Kind || dec.OrderHash != ev.OrderHash ||
			dec.BlockNumber != ev.BlockNumber || dec.BlockHash != ev.BlockHash ||
			dec.Offerer != ev.Offerer || dec.Counter != ev.Counter {
			t.Fatalf("event fields changed in round trip: %+v vs %+v", dec, ev)
		}
		if (dec.Order != nil) != withOrder {
			t.Fatalf("order presence: got %v, want %v", dec.Order != nil, withOrder)
		}
	}
}

func TestMessageID(t *testing.T) {
	const topic = "0x3333333333333333333333333333333333333333"
	ev := sampleEvent()
	enc, err := EncodeEvent(ev)
	if err != nil {
		t.Fatal(err)
	}

	id := MessageID(topic, enc)
	want := topic + string(byte(ev.Kind)) + string(ev.OrderHash.Bytes()) + string(ev.BlockHash.Bytes())
	if id != want {
		t.Fatal("message id is not topic|kind|orderHash|blockHash")
	}

	// Same logical event with a different block number still collides only
	// when block hash matches too.
	other := sampleEvent()
	other.BlockHash = common.HexToHash("0xff")
	encOther, err := EncodeEvent(other)
	if err != nil {
		t.Fatal(err)
	}
	if MessageID(topic, encOther) == id {
		t.Fatal("different block hash produced the same message id")
	}

	// Short payloads fall back to the raw bytes.
	if got := MessageID(topic, []byte{1, 2, 3}); got != topic+string([]byte{1, 2, 3}) {
		t.Fatal("short payload fallback id mismatch")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	for op := OpGetOrders; op <= OpCriteriaItems; op++ {
		h := EncodeHeader(op)
		got, err := DecodeHeader(h)
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		if got != op {
			t.Fatalf("decoded %s, want %s", got, op)
		}
	}

	bad := [][]byte{
		{0, 0, 0, 0},                 // short
		{1, 0, 0, 0, byte(OpOrders)}, // reserved bytes set
		{0, 0, 0, 0, 0},              // opcode zero
		{0, 0, 0, 0, 200},            // opcode out of range
	}
	for _, h := range bad {
		if _, err := DecodeHeader(h); err != ErrBadHeader {
			t.Errorf("header %v: got %v, want ErrBadHeader", h, err)
		}
	}
}

func TestRPCRoundTrips(t *testing.T) {
	hashes := []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}

	t.Run("GetOrdersReq", func(t *testing.T) {
		req := &GetOrdersReq{ReqID: 11, Hashes: hashes}
		b, err := req.Encode()
		if err != nil {
			t.Fatal(err)
		}
		dec, err := DecodeGetOrdersReq(b)
		if err != nil {
			t.Fatal(err)
		}
		if dec.ReqID != 11 || len(dec.Hashes) != 2 || dec.Hashes[1] != hashes[1] {
			t.Fatalf("round trip mismatch: %+v", dec)
		}
	})

	t.Run("OrdersResp", func(t *testing.T) {
		resp := &OrdersResp{ReqID: 12, Orders: []*types.Order{basicOrder(), advancedOrder()}}
		b, err := resp.Encode()
		if err != nil {
			t.Fatal(err)
		}
		dec, err := DecodeOrdersResp(b)
		if err != nil {
			t.Fatal(err)
		}
		if dec.ReqID != 12 || len(dec.Orders) != 2 {
			t.Fatalf("round trip mismatch: reqId=%d orders=%d", dec.ReqID, len(dec.Orders))
		}
	})

	t.Run("GetOrderHashesReq", func(t *testing.T) {
		req := &GetOrderHashesReq{
			ReqID:   13,
			Address: common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Opts:    QueryOpts{Side: types.SideBuy, Sort: types.SortOldest, Count: 50, Offset: 100},
		}
		b, err := req.Encode()
		if err != nil {
			t.Fatal(err)
		}
		dec, err := DecodeGetOrderHashesReq(b)
		if err != nil {
			t.Fatal(err)
		}
		if *dec != *req {
			t.Fatalf("round trip mismatch: %+v vs %+v", dec, req)
		}
	})

	t.Run("OrderCountResp", func(t *testing.T) {
		b, err := (&OrderCountResp{ReqID: 14, Count: 777}).Encode()
		if err != nil {
			t.Fatal(err)
		}
		dec, err := DecodeOrderCountResp(b)
		if err != nil {
			t.Fatal(err)
		}
		if dec.ReqID != 14 || dec.Count != 777 {
			t.Fatalf("round trip mismatch: %+v", dec)
		}
	})

	t.Run("CriteriaItemsResp", func(t *testing.T) {
		resp := &CriteriaItemsResp{
			ReqID: 15,
			Hash:  common.HexToHash("0x0c"),
			Items: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)},
		}
		b, err := resp.Encode()
		if err != nil {
			t.Fatal(err)
		}
		dec, err := DecodeCriteriaItemsResp(b)
		if err != nil {
			t.Fatal(err)
		}
		if dec.ReqID != 15 || dec.Hash != resp.Hash || len(dec.Items) != 3 || dec.Items[2].Int64() != 3 {
			t.Fatalf("round trip mismatch: %+v", dec)
		}
	})
}
