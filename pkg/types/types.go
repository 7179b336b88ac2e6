package types

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ItemType mirrors the settlement contract's item type enum.
type ItemType uint8

const (
	ItemNative ItemType = iota
	ItemERC20
	ItemERC721
	ItemERC1155
	ItemERC721WithCriteria
	ItemERC1155WithCriteria
)

// IsFungible reports whether amounts of this item type are additive
// (used when summing a fulfillment price).
func (t ItemType) IsFungible() bool {
	return t == ItemNative || t == ItemERC20
}

// IsCollection reports whether the item's token address names an NFT
// collection (and therefore a gossip topic).
func (t ItemType) IsCollection() bool {
	return t >= ItemERC721
}

// OrderType mirrors the settlement contract's order type enum.
type OrderType uint8

const (
	FullOpen OrderType = iota
	PartialOpen
	FullRestricted
	PartialRestricted
)

// IsRestricted reports whether fulfillment must be mediated by the zone.
func (t OrderType) IsRestricted() bool {
	return t == FullRestricted || t == PartialRestricted
}

// AuctionType classifies how an order's price evolves over time.
type AuctionType uint8

const (
	AuctionBasic AuctionType = iota
	AuctionEnglish
	AuctionDutch
)

// Side classifies an order by where the NFT sits: a SELL order offers the
// NFT and asks for payment, a BUY order offers payment for the NFT.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

// Sort orders results of a collection query by creation time.
type Sort uint8

const (
	SortNewest Sort = iota
	SortOldest
)

// OrderQuery narrows a collection-scoped order lookup. Count of zero means
// no explicit page size.
type OrderQuery struct {
	Side   Side
	Sort   Sort
	Count  uint32
	Offset uint32
}

// OfferItem is one entry on the offer side of an order.
type OfferItem struct {
	ItemType             ItemType
	Token                common.Address
	IdentifierOrCriteria *big.Int
	StartAmount          *big.Int
	EndAmount            *big.Int
}

// ConsiderationItem is one entry on the consideration side of an order.
type ConsiderationItem struct {
	ItemType             ItemType
	Token                common.Address
	IdentifierOrCriteria *big.Int
	StartAmount          *big.Int
	EndAmount            *big.Int
	Recipient            common.Address
}

// AdditionalRecipient is a basic-order tip recipient.
type AdditionalRecipient struct {
	Amount    *big.Int
	Recipient common.Address
}

// Order is a signed Seaport trade intent. Identity fields are immutable;
// mutable state lives in OrderMetadata, keyed by the order hash.
type Order struct {
	ChainID       uint64
	Offerer       common.Address
	Zone          common.Address
	ZoneHash      common.Hash
	StartTime     uint64
	EndTime       uint64
	OrderType     OrderType
	Counter       uint64
	Salt          *big.Int
	ConduitKey    common.Hash
	Signature     []byte // 64 or 65 bytes, kept in original form
	Offer         []OfferItem
	Consideration []ConsiderationItem

	// Advanced-order extensions; nil/empty means absent.
	Numerator            *big.Int
	Denominator          *big.Int
	ExtraData            []byte
	AdditionalRecipients []AdditionalRecipient
}

var (
	ErrEmptyOffer         = errors.New("order has no offer items")
	ErrEmptyConsideration = errors.New("order has no consideration items")
	ErrBadTimes           = errors.New("order endTime not after startTime")
	ErrBadSignature       = errors.New("order signature must be 64 or 65 bytes")
)

// CheckStructure verifies the structural invariants every order must hold
// before a hash is derived from it.
func (o *Order) CheckStructure() error {
	if len(o.Offer) == 0 {
		return ErrEmptyOffer
	}
	if len(o.Consideration) == 0 {
		return ErrEmptyConsideration
	}
	if o.EndTime <= o.StartTime {
		return ErrBadTimes
	}
	if n := len(o.Signature); n != 64 && n != 65 {
		return ErrBadSignature
	}
	return nil
}

// IsAdvanced reports whether any advanced-order extension is populated.
func (o *Order) IsAdvanced() bool {
	return (o.Numerator != nil && o.Numerator.Sign() != 0) ||
		(o.Denominator != nil && o.Denominator.Sign() != 0) ||
		len(o.ExtraData) > 0 || len(o.AdditionalRecipients) > 0
}

// Collections returns the distinct non-zero NFT token addresses appearing in
// the order's items. These are the gossip topics the order belongs to.
func (o *Order) Collections() []common.Address {
	seen := make(map[common.Address]struct{})
	var out []common.Address
	add := func(t ItemType, addr common.Address) {
		if !t.IsCollection() || addr == (common.Address{}) {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, it := range o.Offer {
		add(it.ItemType, it.Token)
	}
	for _, it := range o.Consideration {
		add(it.ItemType, it.Token)
	}
	return out
}

// Side classifies the order: SELL when an NFT sits on the offer side,
// BUY otherwise.
func (o *Order) Side() Side {
	for _, it := range o.Offer {
		if it.ItemType.IsCollection() {
			return SideSell
		}
	}
	return SideBuy
}

// OrderMetadata is the mutable row stored 1:1 with an order.
// Block numbers and prices are decimal strings to fit arbitrary width.
type OrderMetadata struct {
	OrderHash                common.Hash `json:"orderHash"`
	IsValid                  bool        `json:"isValid"`
	IsPinned                 bool        `json:"isPinned"`
	IsFullyFulfilled         bool        `json:"isFullyFulfilled"`
	LastValidatedBlockNumber string      `json:"lastValidatedBlockNumber"`
	LastValidatedBlockHash   common.Hash `json:"lastValidatedBlockHash"`
	LastFulfilledAt          string      `json:"lastFulfilledAt,omitempty"`
	LastFulfilledPrice       string      `json:"lastFulfilledPrice,omitempty"`
	AuctionType              AuctionType `json:"auctionType"`
	CreatedAt                uint64      `json:"createdAt"`
}

// ValidatedBlock parses LastValidatedBlockNumber; zero when unset.
func (m *OrderMetadata) ValidatedBlock() *big.Int {
	if m.LastValidatedBlockNumber == "" {
		return new(big.Int)
	}
	n, ok := new(big.Int).SetString(m.LastValidatedBlockNumber, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}

// OrderStatus is the settlement contract's view of an order, as returned by
// getOrderStatus.
type OrderStatus struct {
	IsValidated bool
	IsCancelled bool
	TotalFilled *big.Int
	TotalSize   *big.Int
}

// FullyFilled uses the strong form: an unfilled order (totalSize zero) is not
// considered fulfilled.
func (s OrderStatus) FullyFilled() bool {
	return s.TotalFilled != nil && s.TotalFilled.Sign() > 0 &&
		s.TotalSize != nil && s.TotalFilled.Cmp(s.TotalSize) == 0
}

// Criteria is a merkle root over an ordered set of token ids, expressing
// "any of these NFTs" in an offer or consideration item.
type Criteria struct {
	Hash     common.Hash
	Token    common.Address
	TokenIDs []*big.Int
}
