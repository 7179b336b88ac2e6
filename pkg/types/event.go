package types

import "github.com/ethereum/go-ethereum/common"

// EventKind tags a gossip event.
type EventKind uint8

const (
	EventNew EventKind = iota
	EventValidated
	EventInvalidated
	EventCancelled
	EventFulfilled
	EventCounterIncremented
)

func (k EventKind) String() string {
	switch k {
	case EventNew:
		return "NEW"
	case EventValidated:
		return "VALIDATED"
	case EventInvalidated:
		return "INVALIDATED"
	case EventCancelled:
		return "CANCELLED"
	case EventFulfilled:
		return "FULFILLED"
	case EventCounterIncremented:
		return "COUNTER_INCREMENTED"
	default:
		return "UNKNOWN"
	}
}

// GossipEvent is the unit of pub-sub traffic. Order is present only on NEW
// events. COUNTER_INCREMENTED carries Offerer and Counter with a zero
// OrderHash; its message id stays dedup-safe because the id includes the
// block hash.
type GossipEvent struct {
	Kind        EventKind
	OrderHash   common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
	Offerer     common.Address
	Counter     uint64
	Order       *Order
}
