// Package p2p is the network face of the node: gossipsub topics per NFT
// collection for order propagation, and a request/response stream protocol
// for order discovery and bulk transfer.
package p2p

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/codec"
	"github.com/seaportgossip/seaport-gossip/pkg/engine"
	"github.com/seaportgossip/seaport-gossip/pkg/metrics"
	"github.com/seaportgossip/seaport-gossip/pkg/storage"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// Config collects what the gossip node needs from the top-level config.
type Config struct {
	Hostname       string
	Port           int
	Bootnodes      []string
	MinConnections int
	MaxConnections int
	MaxOrders      int
	Logger         *zap.SugaredLogger
}

type topicSub struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

// GossipNode owns the libp2p host, the per-collection topics and the wire
// protocol endpoints.
type GossipNode struct {
	h      host.Host
	ps     *pubsub.PubSub
	log    *zap.SugaredLogger
	engine *engine.Engine
	store  *storage.Store

	maxOrders int

	muTopics sync.Mutex
	topics   map[string]*topicSub

	muCb    sync.RWMutex
	onEvent func(*types.GossipEvent)

	reqID    atomic.Uint64
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// TopicName is the canonical gossip topic of a collection: its lowercase hex
// address including the 0x prefix. The same string feeds message-id
// derivation, so it must never vary between encode paths.
func TopicName(collection common.Address) string {
	return strings.ToLower(collection.Hex())
}

func NewGossipNode(ctx context.Context, cfg Config, eng *engine.Engine, store *storage.Store) (*GossipNode, error) {
	cm, err := connmgr.NewConnManager(cfg.MinConnections, cfg.MaxConnections)
	if err != nil {
		return nil, err
	}
	listen, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", cfg.Hostname, cfg.Port))
	if err != nil {
		return nil, err
	}
	h, err := libp2p.New(
		libp2p.ListenAddrs(listen),
		libp2p.ConnectionManager(cm),
	)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	ps, err := pubsub.NewGossipSub(runCtx, h,
		pubsub.WithMessageIdFn(func(m *pb.Message) string {
			return codec.MessageID(m.GetTopic(), m.GetData())
		}),
	)
	if err != nil {
		cancel()
		h.Close()
		return nil, err
	}

	n := &GossipNode{
		h:         h,
		ps:        ps,
		log:       cfg.Logger,
		engine:    eng,
		store:     store,
		maxOrders: cfg.MaxOrders,
		topics:    make(map[string]*topicSub),
		cancel:    cancel,
	}
	h.SetStreamHandler(ProtocolID, n.handleStream)

	for _, bn := range cfg.Bootnodes {
		if err := n.Connect(runCtx, bn); err != nil {
			cfg.Logger.Warnw("bootnode_connect_failed", "addr", bn, "err", err)
		}
	}

	cfg.Logger.Infow("gossip_ready", "peer", h.ID().String(), "listen", listen.String())
	return n, nil
}

// Host exposes the underlying libp2p host.
func (n *GossipNode) Host() host.Host { return n.h }

// Connect dials a peer multiaddr.
func (n *GossipNode) Connect(ctx context.Context, addr string) error {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return err
	}
	return n.h.Connect(ctx, *info)
}

// OnEvent registers a callback invoked for every accepted gossip event.
func (n *GossipNode) OnEvent(cb func(*types.GossipEvent)) {
	n.muCb.Lock()
	n.onEvent = cb
	n.muCb.Unlock()
}

// Subscribe joins the collection's topic, installs its validator and starts
// the receive loop. Subscribing twice is a no-op.
func (n *GossipNode) Subscribe(ctx context.Context, collection common.Address) error {
	name := TopicName(collection)

	n.muTopics.Lock()
	defer n.muTopics.Unlock()
	if _, ok := n.topics[name]; ok {
		return nil
	}

	if err := n.ps.RegisterTopicValidator(name, n.validate); err != nil {
		return err
	}
	topic, err := n.ps.Join(name)
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		return err
	}
	n.topics[name] = &topicSub{topic: topic, sub: sub}

	n.wg.Add(1)
	go n.receiveLoop(ctx, name, sub)

	n.log.Infow("topic_subscribed", "topic", name)
	return nil
}

// Subscriptions lists the currently subscribed topics.
func (n *GossipNode) Subscriptions() []string {
	n.muTopics.Lock()
	defer n.muTopics.Unlock()
	out := make([]string, 0, len(n.topics))
	for name := range n.topics {
		out = append(out, name)
	}
	return out
}

// validate is the gossipsub topic validator: it decodes the event, folds it
// into local state, and returns the acceptance that drives propagation and
// peer scoring. Rejected messages are never forwarded.
func (n *GossipNode) validate(ctx context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
	if from == n.h.ID() {
		return pubsub.ValidationAccept
	}
	ev, err := codec.DecodeEvent(msg.Data)
	if err != nil {
		metrics.GossipMessages.WithLabelValues("UNKNOWN", "reject").Inc()
		n.log.Debugw("gossip_decode_failed", "topic", msg.GetTopic(), "from", from.String(), "err", err)
		return pubsub.ValidationReject
	}
	msg.ValidatorData = ev

	acceptance := n.handleEvent(ctx, ev)
	label := "reject"
	if acceptance == pubsub.ValidationAccept {
		label = "accept"
	}
	metrics.GossipMessages.WithLabelValues(ev.Kind.String(), label).Inc()
	return acceptance
}

func (n *GossipNode) handleEvent(ctx context.Context, ev *types.GossipEvent) pubsub.ValidationResult {
	switch ev.Kind {
	case types.EventValidated, types.EventInvalidated, types.EventCancelled,
		types.EventFulfilled, types.EventCounterIncremented:
		if err := n.engine.ApplyRemoteEvent(ctx, ev); err != nil {
			n.log.Warnw("gossip_apply_failed", "event", ev.Kind.String(), "hash", ev.OrderHash.Hex(), "err", err)
		}
		return pubsub.ValidationAccept

	default:
		// NEW and unknown kinds carry the order through full admission;
		// only orders we judge valid propagate further.
		if ev.Order == nil {
			return pubsub.ValidationReject
		}
		_, meta, err := n.engine.AddOrder(ctx, ev.Order, engine.AdmissionOpts{Validate: true})
		if err != nil {
			n.log.Debugw("gossip_admission_failed", "hash", ev.OrderHash.Hex(), "err", err)
			return pubsub.ValidationReject
		}
		if !meta.IsValid {
			return pubsub.ValidationReject
		}
		return pubsub.ValidationAccept
	}
}

// receiveLoop drains accepted messages and feeds the user callback.
func (n *GossipNode) receiveLoop(ctx context.Context, name string, sub *pubsub.Subscription) {
	defer n.wg.Done()
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		ev := eventFromMessage(msg)
		if ev == nil {
			continue
		}
		n.muCb.RLock()
		cb := n.onEvent
		n.muCb.RUnlock()
		if cb != nil {
			cb(ev)
		}
	}
}

// eventFromMessage recovers the decoded event from a delivered message. The
// topic validator stashes it in ValidatorData, but self-published messages
// skip validation, so those are decoded here; the callback must fire for the
// node's own events too (the websocket feed hangs off it).
func eventFromMessage(msg *pubsub.Message) *types.GossipEvent {
	if ev, ok := msg.ValidatorData.(*types.GossipEvent); ok {
		return ev
	}
	ev, err := codec.DecodeEvent(msg.GetData())
	if err != nil {
		return nil
	}
	return ev
}

// PublishEvent encodes the event and publishes it on every topic it belongs
// to: the order's collections when known, or every subscribed topic for
// events without an order (counter increments). Duplicate publishes are
// deduped downstream by message id and never surface as errors.
func (n *GossipNode) PublishEvent(ctx context.Context, ev *types.GossipEvent) error {
	data, err := codec.EncodeEvent(ev)
	if err != nil {
		return err
	}
	for _, name := range n.topicsForEvent(ev) {
		t, err := n.joinedTopic(name)
		if err != nil {
			n.log.Warnw("topic_join_failed", "topic", name, "err", err)
			continue
		}
		if err := t.Publish(ctx, data); err != nil {
			n.log.Warnw("gossip_publish_failed", "topic", name, "event", ev.Kind.String(), "err", err)
		}
	}
	return nil
}

func (n *GossipNode) topicsForEvent(ev *types.GossipEvent) []string {
	order := ev.Order
	if order == nil && ev.OrderHash != (common.Hash{}) {
		if stored, err := n.store.GetOrder(ev.OrderHash); err == nil {
			order = stored
		}
	}
	if order != nil {
		cols := order.Collections()
		out := make([]string, 0, len(cols))
		for _, c := range cols {
			out = append(out, TopicName(c))
		}
		return out
	}
	return n.Subscriptions()
}

func (n *GossipNode) joinedTopic(name string) (*pubsub.Topic, error) {
	n.muTopics.Lock()
	defer n.muTopics.Unlock()
	if ts, ok := n.topics[name]; ok {
		return ts.topic, nil
	}
	topic, err := n.ps.Join(name)
	if err != nil {
		return nil, err
	}
	n.topics[name] = &topicSub{topic: topic}
	return topic, nil
}

// Close tears down subscriptions, the pubsub router and the host. Idempotent.
func (n *GossipNode) Close() error {
	var err error
	n.stopOnce.Do(func() {
		n.muTopics.Lock()
		for name, ts := range n.topics {
			if ts.sub != nil {
				ts.sub.Cancel()
			}
			ts.topic.Close()
			_ = n.ps.UnregisterTopicValidator(name)
		}
		n.topics = make(map[string]*topicSub)
		n.muTopics.Unlock()

		n.cancel()
		n.wg.Wait()
		err = n.h.Close()
	})
	return err
}
