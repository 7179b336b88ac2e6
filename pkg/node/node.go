// Package node assembles the full gossip node: store, chain client, order
// engine, gossip layer, chain listener and the optional ingestor, with one
// Start/Stop lifecycle around them.
package node

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/seaportgossip/seaport-gossip/params"
	"github.com/seaportgossip/seaport-gossip/pkg/chain"
	"github.com/seaportgossip/seaport-gossip/pkg/crypto"
	"github.com/seaportgossip/seaport-gossip/pkg/engine"
	"github.com/seaportgossip/seaport-gossip/pkg/ingest"
	"github.com/seaportgossip/seaport-gossip/pkg/p2p"
	"github.com/seaportgossip/seaport-gossip/pkg/storage"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
	"github.com/seaportgossip/seaport-gossip/pkg/validate"
)

var (
	ErrNodeNotRunning = errors.New("node is not running")
	ErrAlreadyRunning = errors.New("node is already running")
	ErrInvalidAddress = errors.New("invalid collection address")
)

// Node is the composed seaport-gossip node.
type Node struct {
	cfg params.Config
	log *zap.SugaredLogger

	mu       sync.Mutex
	running  bool
	store    *storage.Store
	chain    *chain.Client
	engine   *engine.Engine
	gossip   *p2p.GossipNode
	ingestor *ingest.Ingestor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg params.Config, log *zap.SugaredLogger) *Node {
	return &Node{cfg: cfg, log: log}
}

// Start brings every component up. Starting a running node is an error;
// a failed start leaves nothing running.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return ErrAlreadyRunning
	}

	store, err := storage.Open(n.cfg.Datadir)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	fail := func(err error) error {
		cancel()
		if n.chain != nil {
			n.chain.Close()
			n.chain = nil
		}
		store.Close()
		return err
	}

	if n.cfg.ChainProvider != "" {
		client, err := chain.Dial(ctx, n.cfg.ChainProvider, n.cfg.SettlementContractAddress)
		if err != nil {
			return fail(err)
		}
		n.chain = client
	} else {
		n.log.Warnw("no_chain_provider", "note", "running without chain validation")
	}

	var status validate.StatusReader
	var reader engine.ChainReader
	if n.chain != nil {
		status = n.chain
		reader = n.chain
	}
	validator := validate.NewChainValidator(validate.Config{
		ChainID:              n.cfg.ChainID,
		SettlementContract:   n.cfg.SettlementContractAddress,
		ValidateFeeRecipient: n.cfg.ValidateFeeRecipient,
		FeeRecipient:         n.cfg.FeeRecipient,
	}, status)

	eng := engine.New(n.cfg, store, validator, reader, n.log)

	gossip, err := p2p.NewGossipNode(runCtx, p2p.Config{
		Hostname:       n.cfg.Hostname,
		Port:           n.cfg.Port,
		Bootnodes:      n.cfg.Bootnodes,
		MinConnections: n.cfg.MinConnections,
		MaxConnections: n.cfg.MaxConnections,
		MaxOrders:      n.cfg.MaxOrders,
		Logger:         n.log,
	}, eng, store)
	if err != nil {
		return fail(err)
	}
	eng.SetPublisher(gossip)

	for _, collection := range n.cfg.CollectionAddresses {
		if err := gossip.Subscribe(runCtx, collection); err != nil {
			gossip.Close()
			return fail(err)
		}
	}

	if n.chain != nil {
		listener := chain.NewListener(n.chain, eng, n.log)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			listener.Run(runCtx)
		}()
	}

	if n.cfg.IngestExternalOrders && n.cfg.ExternalAPIBaseURL != "" {
		n.ingestor = ingest.New(ingest.Config{
			BaseURL:       n.cfg.ExternalAPIBaseURL,
			APIKey:        n.cfg.ExternalAPIKey,
			ChainID:       n.cfg.ChainID,
			RatePerSecond: n.cfg.IngestRatePerSecond,
			Collections:   n.cfg.CollectionAddresses,
			Logger:        n.log,
		}, eng)
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.ingestor.Run(runCtx)
		}()
	}

	eng.Start(runCtx)

	n.store = store
	n.engine = eng
	n.gossip = gossip
	n.cancel = cancel
	n.running = true
	n.log.Infow("node_started", "peer", gossip.Host().ID().String(), "collections", len(n.cfg.CollectionAddresses))
	return nil
}

// Stop tears the node down in reverse dependency order. Idempotent.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return nil
	}
	n.cancel()
	n.wg.Wait()
	n.engine.Stop()
	err := n.gossip.Close()
	if n.chain != nil {
		n.chain.Close()
		n.chain = nil
	}
	if cerr := n.store.Close(); err == nil {
		err = cerr
	}
	n.running = false
	n.log.Infow("node_stopped")
	return err
}

func (n *Node) guard() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return ErrNodeNotRunning
	}
	return nil
}

// Gossip exposes the p2p layer (peer id, manual dials, peer sync).
func (n *Node) Gossip() *p2p.GossipNode { return n.gossip }

// Engine exposes the order engine for embedding callers.
func (n *Node) Engine() *engine.Engine { return n.engine }

// AddOrders admits locally submitted orders: validated, pinned and broadcast.
func (n *Node) AddOrders(ctx context.Context, orders []*types.Order) ([]engine.AddResult, error) {
	if err := n.guard(); err != nil {
		return nil, err
	}
	return n.engine.AddOrders(ctx, orders, engine.AdmissionOpts{
		Validate:  true,
		Pin:       true,
		Broadcast: true,
	}), nil
}

// GetOrderByHash returns one stored order, or storage.ErrOrderNotFound.
func (n *Node) GetOrderByHash(hash common.Hash) (*types.Order, types.OrderMetadata, error) {
	if err := n.guard(); err != nil {
		return nil, types.OrderMetadata{}, err
	}
	order, err := n.store.GetOrder(hash)
	if err != nil {
		return nil, types.OrderMetadata{}, err
	}
	meta, err := n.store.GetMetadata(hash)
	if err != nil {
		return nil, types.OrderMetadata{}, err
	}
	return order, meta, nil
}

// GetOrdersByCollection queries the local store for a collection's orders.
func (n *Node) GetOrdersByCollection(collection common.Address, q types.OrderQuery) ([]*types.Order, error) {
	if err := n.guard(); err != nil {
		return nil, err
	}
	if collection == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	return n.store.FindOrders(collection, q)
}

// GetOrderCount counts a collection's stored orders on one side.
func (n *Node) GetOrderCount(collection common.Address, q types.OrderQuery) (uint64, error) {
	if err := n.guard(); err != nil {
		return 0, err
	}
	return n.store.CountOrders(collection, q)
}

// TotalOrderCount is the size of the whole local order book.
func (n *Node) TotalOrderCount() (uint64, error) {
	if err := n.guard(); err != nil {
		return 0, err
	}
	return n.store.CountAll()
}

// GetCriteria resolves a criteria root to its token ids.
func (n *Node) GetCriteria(hash common.Hash) (types.Criteria, error) {
	if err := n.guard(); err != nil {
		return types.Criteria{}, err
	}
	return n.store.GetCriteria(hash)
}

// AddCriteria stores a criteria set after checking the root matches.
func (n *Node) AddCriteria(token common.Address, tokenIDs []*big.Int) (common.Hash, error) {
	if err := n.guard(); err != nil {
		return common.Hash{}, err
	}
	root, err := crypto.CriteriaRoot(tokenIDs)
	if err != nil {
		return common.Hash{}, err
	}
	err = n.store.UpsertCriteria(types.Criteria{Hash: root, Token: token, TokenIDs: tokenIDs})
	return root, err
}

// Subscribe joins a collection topic at runtime.
func (n *Node) Subscribe(ctx context.Context, collection common.Address) error {
	if err := n.guard(); err != nil {
		return err
	}
	if collection == (common.Address{}) {
		return ErrInvalidAddress
	}
	return n.gossip.Subscribe(ctx, collection)
}

// OnEvent registers a callback for accepted gossip events (the websocket
// feed hangs off this).
func (n *Node) OnEvent(cb func(*types.GossipEvent)) error {
	if err := n.guard(); err != nil {
		return err
	}
	n.gossip.OnEvent(cb)
	return nil
}
