package validate

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/crypto"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// StatusReader is the slice of the chain client the validator needs.
type StatusReader interface {
	GetOrderStatus(ctx context.Context, orderHash common.Hash) (types.OrderStatus, error)
	Counter(ctx context.Context, offerer common.Address) (uint64, error)
}

// Config holds the knobs the validator honors.
type Config struct {
	ChainID              uint64
	SettlementContract   common.Address
	ValidateFeeRecipient bool
	FeeRecipient         common.Address
}

// ChainValidator is the built-in ContractValidator: signature recovery
// against the Seaport EIP-712 domain, time-window checks, and order status
// and counter reads from the settlement contract.
type ChainValidator struct {
	cfg    Config
	chain  StatusReader
	domain common.Hash
	now    func() time.Time
}

func NewChainValidator(cfg Config, chain StatusReader) *ChainValidator {
	return &ChainValidator{
		cfg:    cfg,
		chain:  chain,
		domain: crypto.DomainSeparator(cfg.ChainID, cfg.SettlementContract),
		now:    time.Now,
	}
}

func (v *ChainValidator) ValidateOrder(ctx context.Context, order *types.Order) (Result, error) {
	var res Result
	fail := func(c Code) { res.Errors = append(res.Errors, c) }
	warn := func(c Code) { res.Warnings = append(res.Warnings, c) }

	now := uint64(v.now().Unix())
	if order.EndTime <= now {
		fail(CodeOrderExpired)
	}
	if order.StartTime > now {
		warn(CodeOrderNotYetValid)
	}

	hash := crypto.OrderHash(order)
	digest := crypto.SignatureDigest(v.domain, hash)
	signer, err := crypto.RecoverSigner(digest, order.Signature)
	if err != nil || signer != order.Offerer {
		fail(CodeInvalidSignature)
	}

	if v.chain != nil {
		status, err := v.chain.GetOrderStatus(ctx, hash)
		if err != nil {
			return res, err
		}
		if status.IsCancelled {
			fail(CodeOrderCancelled)
		}
		if status.FullyFilled() {
			fail(CodeOrderFullyFilled)
		}
		counter, err := v.chain.Counter(ctx, order.Offerer)
		if err != nil {
			return res, err
		}
		if order.Counter < counter {
			fail(CodeInvalidCounter)
		}
	}

	if v.cfg.ValidateFeeRecipient && v.cfg.FeeRecipient != (common.Address{}) {
		found := false
		for _, it := range order.Consideration {
			if it.Recipient == v.cfg.FeeRecipient {
				found = true
				break
			}
		}
		if !found {
			fail(CodeInvalidFeeRecipient)
		}
	}

	return res, nil
}

var _ ContractValidator = (*ChainValidator)(nil)
