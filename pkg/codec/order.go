package codec

import (
	"bytes"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

var zeroExtraData = make([]byte, 32)

// EncodeOrder serializes an order into the canonical wire form.
//
// Layout: chainId u64 | offerer 20 | zone 20 | zoneHash 32 | startTime u64 |
// endTime u64 | orderType u8 | counter u64 | salt 32 | conduitKey 32 |
// signature 65 | offer list | consideration list | numerator 32 |
// denominator 32 | extraData var | additionalRecipients list.
//
// Signatures shorter than 65 bytes are left-padded with zero bytes. Absent
// advanced-order fields are written as their defaults (zero numerator and
// denominator, 32 zero bytes of extraData, empty recipient list).
func EncodeOrder(o *types.Order) ([]byte, error) {
	var w writer
	if err := encodeOrderTo(&w, o); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

func encodeOrderTo(w *writer, o *types.Order) error {
	if len(o.Offer) > MaxOfferItems || len(o.Consideration) > MaxConsiderationItems ||
		len(o.AdditionalRecipients) > MaxAdditionalRecipients {
		return ErrListTooLong
	}
	w.u64(o.ChainID)
	w.addr(o.Offerer)
	w.addr(o.Zone)
	w.hash(o.ZoneHash)
	w.u64(o.StartTime)
	w.u64(o.EndTime)
	w.u8(uint8(o.OrderType))
	w.u64(o.Counter)
	w.big256(o.Salt)
	w.hash(o.ConduitKey)

	var sig [65]byte
	copy(sig[65-len(o.Signature):], o.Signature)
	w.buf.Write(sig[:])

	w.u32(uint32(len(o.Offer)))
	for _, it := range o.Offer {
		w.u8(uint8(it.ItemType))
		w.addr(it.Token)
		w.big256(it.IdentifierOrCriteria)
		w.big256(it.StartAmount)
		w.big256(it.EndAmount)
	}
	w.u32(uint32(len(o.Consideration)))
	for _, it := range o.Consideration {
		w.u8(uint8(it.ItemType))
		w.addr(it.Token)
		w.big256(it.IdentifierOrCriteria)
		w.big256(it.StartAmount)
		w.big256(it.EndAmount)
		w.addr(it.Recipient)
	}

	w.big256(o.Numerator)
	w.big256(o.Denominator)
	if len(o.ExtraData) > 0 {
		w.bytesVar(o.ExtraData)
	} else {
		w.bytesVar(zeroExtraData)
	}
	w.u32(uint32(len(o.AdditionalRecipients)))
	for _, ar := range o.AdditionalRecipients {
		w.big256(ar.Amount)
		w.addr(ar.Recipient)
	}
	return nil
}

// DecodeOrder parses the canonical wire form. Signature padding is stripped
// and advanced-order defaults are dropped back to absent, so a round trip
// reproduces the original order.
func DecodeOrder(b []byte) (*types.Order, error) {
	r := &reader{b: b}
	o := decodeOrderFrom(r)
	if err := r.finish(); err != nil {
		return nil, err
	}
	return o, nil
}

func decodeOrderFrom(r *reader) *types.Order {
	o := &types.Order{}
	o.ChainID = r.u64()
	o.Offerer = r.addr()
	o.Zone = r.addr()
	o.ZoneHash = r.hash()
	o.StartTime = r.u64()
	o.EndTime = r.u64()
	o.OrderType = types.OrderType(r.u8())
	o.Counter = r.u64()
	o.Salt = r.big256()
	o.ConduitKey = r.hash()

	sig := r.take(65)
	if sig != nil {
		if sig[0] == 0x00 {
			sig = sig[1:]
		}
		o.Signature = append([]byte(nil), sig...)
	}

	n := r.listLen(MaxOfferItems)
	for i := 0; i < n && r.err == nil; i++ {
		o.Offer = append(o.Offer, types.OfferItem{
			ItemType:             types.ItemType(r.u8()),
			Token:                r.addr(),
			IdentifierOrCriteria: r.big256(),
			StartAmount:          r.big256(),
			EndAmount:            r.big256(),
		})
	}
	n = r.listLen(MaxConsiderationItems)
	for i := 0; i < n && r.err == nil; i++ {
		o.Consideration = append(o.Consideration, types.ConsiderationItem{
			ItemType:             types.ItemType(r.u8()),
			Token:                r.addr(),
			IdentifierOrCriteria: r.big256(),
			StartAmount:          r.big256(),
			EndAmount:            r.big256(),
			Recipient:            r.addr(),
		})
	}

	num := r.big256()
	den := r.big256()
	if num.Sign() != 0 || den.Sign() != 0 {
		o.Numerator, o.Denominator = num, den
	}
	extra := r.bytesVar(1 << 20)
	if !bytes.Equal(extra, zeroExtraData) {
		o.ExtraData = extra
	}
	n = r.listLen(MaxAdditionalRecipients)
	for i := 0; i < n && r.err == nil; i++ {
		o.AdditionalRecipients = append(o.AdditionalRecipients, types.AdditionalRecipient{
			Amount:    r.big256(),
			Recipient: r.addr(),
		})
	}

	return o
}
