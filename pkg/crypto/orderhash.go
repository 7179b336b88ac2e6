package crypto

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// EIP-712 type strings of the settlement contract. The order hash derived
// from these is the order's identity on the network, so they must match the
// contract byte for byte.
const (
	offerItemTypeString = "OfferItem(" +
		"uint8 itemType," +
		"address token," +
		"uint256 identifierOrCriteria," +
		"uint256 startAmount," +
		"uint256 endAmount)"

	considerationItemTypeString = "ConsiderationItem(" +
		"uint8 itemType," +
		"address token," +
		"uint256 identifierOrCriteria," +
		"uint256 startAmount," +
		"uint256 endAmount," +
		"address recipient)"

	orderComponentsPartial = "OrderComponents(" +
		"address offerer," +
		"address zone," +
		"OfferItem[] offer," +
		"ConsiderationItem[] consideration," +
		"uint8 orderType," +
		"uint256 startTime," +
		"uint256 endTime," +
		"bytes32 zoneHash," +
		"uint256 salt," +
		"bytes32 conduitKey," +
		"uint256 counter)"
)

// Referenced struct types are appended alphabetically per EIP-712:
// ConsiderationItem sorts before OfferItem.
var (
	offerItemTypeHash = crypto.Keccak256Hash([]byte(offerItemTypeString))
	considTypeHash    = crypto.Keccak256Hash([]byte(considerationItemTypeString))
	orderTypeHash     = crypto.Keccak256Hash([]byte(
		orderComponentsPartial + considerationItemTypeString + offerItemTypeString))
)

// pad32 left-pads b to 32 bytes big-endian.
func pad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func padUint64(v uint64) []byte {
	return pad32(new(big.Int).SetUint64(v).Bytes())
}

func padBig(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return pad32(v.Bytes())
}

func padAddr(a common.Address) []byte { return pad32(a.Bytes()) }

func hashOfferItem(it types.OfferItem) []byte {
	return crypto.Keccak256(
		offerItemTypeHash.Bytes(),
		padUint64(uint64(it.ItemType)),
		padAddr(it.Token),
		padBig(it.IdentifierOrCriteria),
		padBig(it.StartAmount),
		padBig(it.EndAmount),
	)
}

func hashConsiderationItem(it types.ConsiderationItem) []byte {
	return crypto.Keccak256(
		considTypeHash.Bytes(),
		padUint64(uint64(it.ItemType)),
		padAddr(it.Token),
		padBig(it.IdentifierOrCriteria),
		padBig(it.StartAmount),
		padBig(it.EndAmount),
		padAddr(it.Recipient),
	)
}

// OrderHash derives the settlement contract's order hash: the keccak-256 of
// the EIP-712 struct encoding of the order components.
func OrderHash(o *types.Order) common.Hash {
	offerHashes := make([]byte, 0, len(o.Offer)*32)
	for _, it := range o.Offer {
		offerHashes = append(offerHashes, hashOfferItem(it)...)
	}
	considHashes := make([]byte, 0, len(o.Consideration)*32)
	for _, it := range o.Consideration {
		considHashes = append(considHashes, hashConsiderationItem(it)...)
	}

	return common.BytesToHash(crypto.Keccak256(
		orderTypeHash.Bytes(),
		padAddr(o.Offerer),
		padAddr(o.Zone),
		crypto.Keccak256(offerHashes),
		crypto.Keccak256(considHashes),
		padUint64(uint64(o.OrderType)),
		padUint64(o.StartTime),
		padUint64(o.EndTime),
		o.ZoneHash.Bytes(),
		padBig(o.Salt),
		o.ConduitKey.Bytes(),
		padUint64(uint64(len(o.Consideration))),
		padUint64(o.Counter),
	))
}
