// Package engine is the order lifecycle arbiter: admission, dedup, limits,
// metadata derivation, revalidation and deletion. Gossip, the wire protocol,
// the chain listener and the ingestor all funnel through it; admissions are
// serialized per order hash so at most one is in flight for a given order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/seaportgossip/seaport-gossip/params"
	"github.com/seaportgossip/seaport-gossip/pkg/crypto"
	"github.com/seaportgossip/seaport-gossip/pkg/metrics"
	"github.com/seaportgossip/seaport-gossip/pkg/storage"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
	"github.com/seaportgossip/seaport-gossip/pkg/validate"
)

const hashShards = 64

var (
	ErrMaxOrders        = errors.New("order limit reached")
	ErrOffererLimit     = errors.New("per-offerer order limit reached")
	ErrOrderWindow      = errors.New("order start or end time beyond accepted window")
	ErrInvalidOrderData = errors.New("invalid order data")
)

// ChainReader is the slice of the chain client the engine consults.
type ChainReader interface {
	LatestBlock(ctx context.Context) (uint64, common.Hash, error)
	IsEOA(ctx context.Context, addr common.Address) (bool, error)
	GetOrderStatus(ctx context.Context, orderHash common.Hash) (types.OrderStatus, error)
}

// EventPublisher pushes an outbound gossip event; nil disables gossip
// (standalone mode and tests).
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev *types.GossipEvent) error
}

// Engine coordinates the order lifecycle. Construct with New, then Start the
// revalidation loop.
type Engine struct {
	cfg       params.Config
	store     *storage.Store
	validator validate.ContractValidator
	chain     ChainReader
	log       *zap.SugaredLogger

	mu        sync.RWMutex
	publisher EventPublisher

	shards [hashShards]sync.Mutex

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(cfg params.Config, store *storage.Store, validator validate.ContractValidator, chain ChainReader, log *zap.SugaredLogger) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		validator: validator,
		chain:     chain,
		log:       log,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// SetPublisher wires the gossip layer in after construction (the two are
// mutually referencing).
func (e *Engine) SetPublisher(p EventPublisher) {
	e.mu.Lock()
	e.publisher = p
	e.mu.Unlock()
}

func (e *Engine) Store() *storage.Store { return e.store }

func (e *Engine) lockHash(h common.Hash) func() {
	m := &e.shards[h[0]%hashShards]
	m.Lock()
	return m.Unlock
}

// AdmissionOpts control one admission.
type AdmissionOpts struct {
	// Validate runs the contract validator; trusted sources (the ingestor)
	// turn it off.
	Validate bool
	// Pin marks the order locally submitted: exempt from the per-offerer
	// limit and protected from policy deletion.
	Pin bool
	// Broadcast publishes a NEW event on success. Off for orders that
	// arrived via gossip, where the pub-sub layer already propagates.
	Broadcast bool
	// AuctionType, when set, skips auction classification (the ingestor
	// precomputes it).
	AuctionType *types.AuctionType
}

// AddOrder runs the admission pipeline for one order and reports whether it
// was new, along with the stored metadata. The order is persisted when it is
// valid, already known, or pinned.
func (e *Engine) AddOrder(ctx context.Context, order *types.Order, opts AdmissionOpts) (bool, types.OrderMetadata, error) {
	if err := order.CheckStructure(); err != nil {
		metrics.Admissions.WithLabelValues("rejected").Inc()
		return false, types.OrderMetadata{}, fmt.Errorf("%w: %v", ErrInvalidOrderData, err)
	}
	now := uint64(e.now().Unix())
	if order.StartTime > now+uint64(e.cfg.MaxOrderStartTime.Seconds()) ||
		order.EndTime > now+uint64(e.cfg.MaxOrderEndTime.Seconds()) {
		metrics.Admissions.WithLabelValues("rejected").Inc()
		return false, types.OrderMetadata{}, ErrOrderWindow
	}

	hash := crypto.OrderHash(order)
	unlock := e.lockHash(hash)
	defer unlock()

	_, err := e.store.GetMetadata(hash)
	exists := err == nil
	if err != nil && err != storage.ErrOrderNotFound {
		return false, types.OrderMetadata{}, err
	}

	if !exists {
		if err := e.checkLimits(order, opts.Pin); err != nil {
			metrics.Admissions.WithLabelValues("rejected").Inc()
			return false, types.OrderMetadata{}, err
		}
	}

	res := validate.Result{}
	if opts.Validate {
		res, err = e.validator.ValidateOrder(ctx, order)
		if err != nil {
			return false, types.OrderMetadata{}, fmt.Errorf("validate order %s: %w", hash, err)
		}
		res = validate.FilterResidual(order, res, e.cfg.LazyMintAdapterAddress)
	}
	isValid := res.OK()

	var auction types.AuctionType
	if opts.AuctionType != nil {
		auction = *opts.AuctionType
	} else {
		auction = e.classifyAuction(ctx, order)
	}

	blockNum, blockHash, err := e.latestBlock(ctx)
	if err != nil {
		return false, types.OrderMetadata{}, err
	}

	meta := types.OrderMetadata{
		OrderHash:                hash,
		IsValid:                  isValid,
		IsPinned:                 opts.Pin,
		AuctionType:              auction,
		LastValidatedBlockNumber: strconv.FormatUint(blockNum, 10),
		LastValidatedBlockHash:   blockHash,
		CreatedAt:                now,
	}

	if !isValid && !exists && !opts.Pin {
		metrics.Admissions.WithLabelValues("invalid").Inc()
		e.log.Debugw("order_not_admitted", "hash", hash.Hex(), "errors", res.Errors)
		return false, meta, nil
	}

	isNew, stored, err := e.store.UpsertOrder(hash, order, meta)
	if err != nil {
		return false, types.OrderMetadata{}, err
	}
	if isNew {
		metrics.Admissions.WithLabelValues("new").Inc()
	} else {
		metrics.Admissions.WithLabelValues("known").Inc()
	}
	e.log.Infow("order_admitted",
		"hash", hash.Hex(), "new", isNew, "valid", isValid,
		"transient", res.Transient(), "pinned", opts.Pin)

	if isNew && isValid && opts.Broadcast {
		e.publish(ctx, &types.GossipEvent{
			Kind:        types.EventNew,
			OrderHash:   hash,
			BlockNumber: blockNum,
			BlockHash:   blockHash,
			Order:       order,
		})
	}
	return isNew, stored, nil
}

// AddOrders admits a batch, continuing past per-order failures. The returned
// slice is index-aligned with the input; failed entries carry their error.
type AddResult struct {
	Hash  common.Hash
	IsNew bool
	Meta  types.OrderMetadata
	Err   error
}

func (e *Engine) AddOrders(ctx context.Context, orders []*types.Order, opts AdmissionOpts) []AddResult {
	out := make([]AddResult, len(orders))
	for i, o := range orders {
		isNew, meta, err := e.AddOrder(ctx, o, opts)
		out[i] = AddResult{Hash: meta.OrderHash, IsNew: isNew, Meta: meta, Err: err}
		if err != nil {
			metrics.Admissions.WithLabelValues("error").Inc()
			e.log.Warnw("order_admission_failed", "index", i, "err", err)
		}
	}
	return out
}

func (e *Engine) checkLimits(order *types.Order, pin bool) error {
	total, err := e.store.CountAll()
	if err != nil {
		return err
	}
	// Pinned orders count toward the global cap.
	if total >= uint64(e.cfg.MaxOrders) {
		return ErrMaxOrders
	}
	if pin {
		return nil
	}
	perOfferer, err := e.store.CountByOfferer(order.Offerer)
	if err != nil {
		return err
	}
	if perOfferer >= e.cfg.MaxOrdersPerOfferer {
		return ErrOffererLimit
	}
	return nil
}

// classifyAuction: restricted orders with an EOA zone are English auctions;
// flat amounts are basic listings; anything else decays, i.e. Dutch.
func (e *Engine) classifyAuction(ctx context.Context, order *types.Order) types.AuctionType {
	if order.OrderType.IsRestricted() && e.chain != nil {
		eoa, err := e.chain.IsEOA(ctx, order.Zone)
		if err != nil {
			e.log.Warnw("zone_code_lookup_failed", "zone", order.Zone.Hex(), "err", err)
		} else if eoa {
			return types.AuctionEnglish
		}
	}
	for _, it := range order.Offer {
		if it.StartAmount.Cmp(it.EndAmount) != 0 {
			return types.AuctionDutch
		}
	}
	for _, it := range order.Consideration {
		if it.StartAmount.Cmp(it.EndAmount) != 0 {
			return types.AuctionDutch
		}
	}
	return types.AuctionBasic
}

func (e *Engine) latestBlock(ctx context.Context) (uint64, common.Hash, error) {
	if e.chain == nil {
		return 0, common.Hash{}, nil
	}
	return e.chain.LatestBlock(ctx)
}

func (e *Engine) publish(ctx context.Context, ev *types.GossipEvent) {
	e.mu.RLock()
	p := e.publisher
	e.mu.RUnlock()
	if p == nil {
		return
	}
	if err := p.PublishEvent(ctx, ev); err != nil {
		e.log.Warnw("gossip_publish_failed", "event", ev.Kind.String(), "hash", ev.OrderHash.Hex(), "err", err)
	}
}

// DeleteOrder removes an order and all its rows. With keepPinned set, pinned
// orders are left untouched.
func (e *Engine) DeleteOrder(hash common.Hash, keepPinned bool) error {
	unlock := e.lockHash(hash)
	defer unlock()
	return e.deleteLocked(hash, keepPinned)
}

func (e *Engine) deleteLocked(hash common.Hash, keepPinned bool) error {
	meta, err := e.store.GetMetadata(hash)
	if err == storage.ErrOrderNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if meta.IsPinned && keepPinned {
		return nil
	}
	return e.store.DeleteOrder(hash)
}

// Start launches the revalidation loop. Stop is idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.revalidateLoop(ctx)
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}
