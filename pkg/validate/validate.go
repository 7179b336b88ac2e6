// Package validate wraps settlement-contract order validation. The engine
// only depends on the ContractValidator interface; the default implementation
// checks signatures, timestamps and on-chain order status, and operators can
// plug a richer external rule-checker behind the same interface.
package validate

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// Code identifies a validation issue. Codes follow the order-validator
// convention of section*100 + offset, so the section is recoverable from the
// code alone.
type Code uint16

const (
	// Status section.
	CodeOrderFullyFilled Code = 9
	CodeOrderCancelled   Code = 10
	CodeOrderExpired     Code = 11
	CodeOrderNotYetValid Code = 12

	// ERC721 section.
	CodeERC721NotOwner    Code = 202
	CodeERC721NotApproved Code = 203

	// Fee section.
	CodeInvalidFeeRecipient Code = 300

	// ERC1155 section.
	CodeERC1155NotApproved         Code = 303
	CodeERC1155InsufficientBalance Code = 304

	// Generic token section.
	CodeInvalidToken Code = 400

	// ERC20 section.
	CodeERC20InsufficientAllowance Code = 401
	CodeERC20InsufficientBalance   Code = 402

	// Signature section.
	CodeInvalidSignature Code = 700
	CodeInvalidCounter   Code = 701

	// Native balance section.
	CodeNativeInsufficientBalance Code = 1400
)

// transientCodes are approval/balance failures that can heal without the
// order changing; orders failing only on these stay in the store.
var transientCodes = map[Code]struct{}{
	CodeERC721NotOwner:             {},
	CodeERC721NotApproved:          {},
	CodeERC1155NotApproved:         {},
	CodeERC1155InsufficientBalance: {},
	CodeERC20InsufficientAllowance: {},
	CodeERC20InsufficientBalance:   {},
	CodeNativeInsufficientBalance:  {},
}

// Result is the outcome of one validation run.
type Result struct {
	Errors   []Code
	Warnings []Code
}

// OK reports whether validation produced no errors.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Has reports whether code is among the errors.
func (r Result) Has(code Code) bool {
	for _, c := range r.Errors {
		if c == code {
			return true
		}
	}
	return false
}

// Transient reports whether the result is a non-empty error set drawn
// entirely from approval/balance codes.
func (r Result) Transient() bool {
	if len(r.Errors) == 0 {
		return false
	}
	for _, c := range r.Errors {
		if _, ok := transientCodes[c]; !ok {
			return false
		}
	}
	return true
}

// Ended reports whether the errors mark the order as permanently over:
// fully filled, cancelled or expired.
func (r Result) Ended() bool {
	return r.Has(CodeOrderFullyFilled) || r.Has(CodeOrderCancelled) || r.Has(CodeOrderExpired)
}

// ContractValidator checks an order against settlement-contract rules.
type ContractValidator interface {
	ValidateOrder(ctx context.Context, order *types.Order) (Result, error)
}

// FilterResidual removes the invalid-token error when any item's token is the
// lazy-mint adapter: tokens minted on first fulfillment legitimately fail the
// existence probe.
func FilterResidual(order *types.Order, res Result, lazyMintAdapter common.Address) Result {
	if lazyMintAdapter == (common.Address{}) || !res.Has(CodeInvalidToken) {
		return res
	}
	matches := false
	for _, it := range order.Offer {
		if it.Token == lazyMintAdapter {
			matches = true
		}
	}
	for _, it := range order.Consideration {
		if it.Token == lazyMintAdapter {
			matches = true
		}
	}
	if !matches {
		return res
	}
	kept := res.Errors[:0:0]
	for _, c := range res.Errors {
		if c != CodeInvalidToken {
			kept = append(kept, c)
		}
	}
	res.Errors = kept
	return res
}
