package codec

import (
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// Gossip event layout: kind u8 | orderHash 32 | blockNumber u64 |
// blockHash 32 | offerer 20 | counter u64 | hasOrder u8 | [order].
// The fixed prefix lets MessageID read kind, order hash and block hash
// without a full decode.
const (
	eventKindOff      = 0
	eventOrderHashOff = 1
	eventBlockHashOff = 41
	eventFixedLen     = 102
)

// EncodeEvent serializes a gossip event.
func EncodeEvent(ev *types.GossipEvent) ([]byte, error) {
	var w writer
	w.u8(uint8(ev.Kind))
	w.hash(ev.OrderHash)
	w.u64(ev.BlockNumber)
	w.hash(ev.BlockHash)
	w.addr(ev.Offerer)
	w.u64(ev.Counter)
	if ev.Order != nil {
		w.u8(1)
		if err := encodeOrderTo(&w, ev.Order); err != nil {
			return nil, err
		}
	} else {
		w.u8(0)
	}
	return w.buf.Bytes(), nil
}

// DecodeEvent parses a gossip event.
func DecodeEvent(b []byte) (*types.GossipEvent, error) {
	r := &reader{b: b}
	ev := &types.GossipEvent{
		Kind:        types.EventKind(r.u8()),
		OrderHash:   r.hash(),
		BlockNumber: r.u64(),
		BlockHash:   r.hash(),
		Offerer:     r.addr(),
		Counter:     r.u64(),
	}
	if r.u8() == 1 {
		ev.Order = decodeOrderFrom(r)
	}
	if err := r.finish(); err != nil {
		return nil, err
	}
	return ev, nil
}

// MessageID derives the pub-sub message id for a raw event payload:
// topic bytes, event code, order hash, block hash. Two nodes observing the
// same logical event produce identical ids, which is what lets the pub-sub
// layer dedupe. Malformed payloads fall back to the raw data so they still
// get a stable id before validation rejects them.
func MessageID(topic string, data []byte) string {
	if len(data) < eventFixedLen {
		return topic + string(data)
	}
	id := make([]byte, 0, len(topic)+1+32+32)
	id = append(id, topic...)
	id = append(id, data[eventKindOff])
	id = append(id, data[eventOrderHashOff:eventOrderHashOff+32]...)
	id = append(id, data[eventBlockHashOff:eventBlockHashOff+32]...)
	return string(id)
}
