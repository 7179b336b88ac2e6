package types

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// OrderJSON is the external JSON form of an Order, as produced and consumed
// by marketplace APIs: uint256 values are decimal or 0x-hex strings, binary
// fields are 0x-hex.
type OrderJSON struct {
	ChainID       string                  `json:"chainId,omitempty"`
	Offerer       string                  `json:"offerer"`
	Zone          string                  `json:"zone"`
	ZoneHash      string                  `json:"zoneHash"`
	StartTime     string                  `json:"startTime"`
	EndTime       string                  `json:"endTime"`
	OrderType     uint8                   `json:"orderType"`
	Counter       string                  `json:"counter"`
	Salt          string                  `json:"salt"`
	ConduitKey    string                  `json:"conduitKey"`
	Signature     string                  `json:"signature"`
	Offer         []OfferItemJSON         `json:"offer"`
	Consideration []ConsiderationItemJSON `json:"consideration"`

	Numerator            string                    `json:"numerator,omitempty"`
	Denominator          string                    `json:"denominator,omitempty"`
	ExtraData            string                    `json:"extraData,omitempty"`
	AdditionalRecipients []AdditionalRecipientJSON `json:"additionalRecipients,omitempty"`
}

type OfferItemJSON struct {
	ItemType             uint8  `json:"itemType"`
	Token                string `json:"token"`
	IdentifierOrCriteria string `json:"identifierOrCriteria"`
	StartAmount          string `json:"startAmount"`
	EndAmount            string `json:"endAmount"`
}

type ConsiderationItemJSON struct {
	ItemType             uint8  `json:"itemType"`
	Token                string `json:"token"`
	IdentifierOrCriteria string `json:"identifierOrCriteria"`
	StartAmount          string `json:"startAmount"`
	EndAmount            string `json:"endAmount"`
	Recipient            string `json:"recipient"`
}

type AdditionalRecipientJSON struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

func parseBig(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid uint256 %q", field, s)
	}
	return n, nil
}

func parseU64(field, s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := parseBig(field, s)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%s: %q overflows uint64", field, s)
	}
	return n.Uint64(), nil
}

func parseHexBytes(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return b, nil
}

// ToOrder converts the JSON form into an Order. It validates syntax only;
// structural checks remain with Order.CheckStructure.
func (j *OrderJSON) ToOrder() (*Order, error) {
	o := &Order{
		Offerer:    common.HexToAddress(j.Offerer),
		Zone:       common.HexToAddress(j.Zone),
		ZoneHash:   common.HexToHash(j.ZoneHash),
		OrderType:  OrderType(j.OrderType),
		ConduitKey: common.HexToHash(j.ConduitKey),
	}
	var err error
	if o.ChainID, err = parseU64("chainId", j.ChainID); err != nil {
		return nil, err
	}
	if o.StartTime, err = parseU64("startTime", j.StartTime); err != nil {
		return nil, err
	}
	if o.EndTime, err = parseU64("endTime", j.EndTime); err != nil {
		return nil, err
	}
	if o.Counter, err = parseU64("counter", j.Counter); err != nil {
		return nil, err
	}
	if o.Salt, err = parseBig("salt", j.Salt); err != nil {
		return nil, err
	}
	if o.Salt == nil {
		o.Salt = new(big.Int)
	}
	if o.Signature, err = parseHexBytes("signature", j.Signature); err != nil {
		return nil, err
	}

	for i, it := range j.Offer {
		field := fmt.Sprintf("offer[%d]", i)
		item := OfferItem{
			ItemType: ItemType(it.ItemType),
			Token:    common.HexToAddress(it.Token),
		}
		if item.IdentifierOrCriteria, err = parseBig(field+".identifierOrCriteria", it.IdentifierOrCriteria); err != nil {
			return nil, err
		}
		if item.StartAmount, err = parseBig(field+".startAmount", it.StartAmount); err != nil {
			return nil, err
		}
		if item.EndAmount, err = parseBig(field+".endAmount", it.EndAmount); err != nil {
			return nil, err
		}
		fillBigDefaults(&item.IdentifierOrCriteria, &item.StartAmount, &item.EndAmount)
		o.Offer = append(o.Offer, item)
	}
	for i, it := range j.Consideration {
		field := fmt.Sprintf("consideration[%d]", i)
		item := ConsiderationItem{
			ItemType:  ItemType(it.ItemType),
			Token:     common.HexToAddress(it.Token),
			Recipient: common.HexToAddress(it.Recipient),
		}
		if item.IdentifierOrCriteria, err = parseBig(field+".identifierOrCriteria", it.IdentifierOrCriteria); err != nil {
			return nil, err
		}
		if item.StartAmount, err = parseBig(field+".startAmount", it.StartAmount); err != nil {
			return nil, err
		}
		if item.EndAmount, err = parseBig(field+".endAmount", it.EndAmount); err != nil {
			return nil, err
		}
		fillBigDefaults(&item.IdentifierOrCriteria, &item.StartAmount, &item.EndAmount)
		o.Consideration = append(o.Consideration, item)
	}

	if o.Numerator, err = parseBig("numerator", j.Numerator); err != nil {
		return nil, err
	}
	if o.Denominator, err = parseBig("denominator", j.Denominator); err != nil {
		return nil, err
	}
	if o.ExtraData, err = parseHexBytes("extraData", j.ExtraData); err != nil {
		return nil, err
	}
	for i, ar := range j.AdditionalRecipients {
		amt, err := parseBig(fmt.Sprintf("additionalRecipients[%d].amount", i), ar.Amount)
		if err != nil {
			return nil, err
		}
		if amt == nil {
			amt = new(big.Int)
		}
		o.AdditionalRecipients = append(o.AdditionalRecipients, AdditionalRecipient{
			Amount:    amt,
			Recipient: common.HexToAddress(ar.Recipient),
		})
	}
	return o, nil
}

func fillBigDefaults(bigs ...**big.Int) {
	for _, p := range bigs {
		if *p == nil {
			*p = new(big.Int)
		}
	}
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// OrderToJSON converts a stored order back to its external JSON form.
func OrderToJSON(o *Order) *OrderJSON {
	j := &OrderJSON{
		ChainID:    strconv.FormatUint(o.ChainID, 10),
		Offerer:    o.Offerer.Hex(),
		Zone:       o.Zone.Hex(),
		ZoneHash:   o.ZoneHash.Hex(),
		StartTime:  strconv.FormatUint(o.StartTime, 10),
		EndTime:    strconv.FormatUint(o.EndTime, 10),
		OrderType:  uint8(o.OrderType),
		Counter:    strconv.FormatUint(o.Counter, 10),
		Salt:       bigString(o.Salt),
		ConduitKey: o.ConduitKey.Hex(),
		Signature:  hexutil.Encode(o.Signature),
	}
	for _, it := range o.Offer {
		j.Offer = append(j.Offer, OfferItemJSON{
			ItemType:             uint8(it.ItemType),
			Token:                it.Token.Hex(),
			IdentifierOrCriteria: bigString(it.IdentifierOrCriteria),
			StartAmount:          bigString(it.StartAmount),
			EndAmount:            bigString(it.EndAmount),
		})
	}
	for _, it := range o.Consideration {
		j.Consideration = append(j.Consideration, ConsiderationItemJSON{
			ItemType:             uint8(it.ItemType),
			Token:                it.Token.Hex(),
			IdentifierOrCriteria: bigString(it.IdentifierOrCriteria),
			StartAmount:          bigString(it.StartAmount),
			EndAmount:            bigString(it.EndAmount),
			Recipient:            it.Recipient.Hex(),
		})
	}
	if o.Numerator != nil && o.Numerator.Sign() != 0 {
		j.Numerator = o.Numerator.String()
	}
	if o.Denominator != nil && o.Denominator.Sign() != 0 {
		j.Denominator = o.Denominator.String()
	}
	if len(o.ExtraData) > 0 {
		j.ExtraData = hexutil.Encode(o.ExtraData)
	}
	for _, ar := range o.AdditionalRecipients {
		j.AdditionalRecipients = append(j.AdditionalRecipients, AdditionalRecipientJSON{
			Amount:    bigString(ar.Amount),
			Recipient: ar.Recipient.Hex(),
		})
	}
	return j
}
