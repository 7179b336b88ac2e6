package p2p

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/codec"
	"github.com/seaportgossip/seaport-gossip/pkg/metrics"
	"github.com/seaportgossip/seaport-gossip/pkg/storage"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// ProtocolID names the request/response stream protocol.
const ProtocolID = protocol.ID("/seaport-gossip/1.0.0")

// rpcTimeout bounds a full request/response exchange.
const rpcTimeout = 10 * time.Second

var (
	ErrRPCTimeout    = errors.New("rpc timeout")
	ErrReqIDMismatch = errors.New("response reqId does not match request")
	ErrBadResponse   = errors.New("unexpected response opcode")
)

// request performs one exchange: open stream, write frame, half-close, read
// the full response. Timeouts surface as ErrRPCTimeout and abandon the
// stream; the peer is not scored down for them.
func (n *GossipNode) request(ctx context.Context, to peer.ID, op codec.Opcode, body []byte) (codec.Opcode, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	s, err := n.h.NewStream(ctx, to, ProtocolID)
	if err != nil {
		return 0, nil, err
	}
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(rpcTimeout))

	metrics.WireRequests.WithLabelValues(op.String(), "out").Inc()
	if _, err := s.Write(codec.EncodeHeader(op)); err != nil {
		return 0, nil, wrapTimeout(err)
	}
	if _, err := s.Write(body); err != nil {
		return 0, nil, wrapTimeout(err)
	}
	if err := s.CloseWrite(); err != nil {
		return 0, nil, wrapTimeout(err)
	}

	resp, err := io.ReadAll(s)
	if err != nil {
		return 0, nil, wrapTimeout(err)
	}
	if len(resp) < codec.HeaderLen {
		return 0, nil, codec.ErrBadHeader
	}
	respOp, err := codec.DecodeHeader(resp[:codec.HeaderLen])
	if err != nil {
		return 0, nil, err
	}
	return respOp, resp[codec.HeaderLen:], nil
}

func wrapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrRPCTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return ErrRPCTimeout
	}
	return err
}

func (n *GossipNode) nextReqID() uint64 { return n.reqID.Add(1) }

// GetOrdersFromPeer requests full orders for the given hashes.
func (n *GossipNode) GetOrdersFromPeer(ctx context.Context, to peer.ID, hashes []common.Hash) ([]*types.Order, error) {
	req := &codec.GetOrdersReq{ReqID: n.nextReqID(), Hashes: hashes}
	body, err := req.Encode()
	if err != nil {
		return nil, err
	}
	op, respBody, err := n.request(ctx, to, codec.OpGetOrders, body)
	if err != nil {
		return nil, err
	}
	if op != codec.OpOrders {
		return nil, ErrBadResponse
	}
	resp, err := codec.DecodeOrdersResp(respBody)
	if err != nil {
		return nil, err
	}
	if resp.ReqID != req.ReqID {
		return nil, ErrReqIDMismatch
	}
	return resp.Orders, nil
}

// GetOrderHashesFromPeer requests order hashes of a collection.
func (n *GossipNode) GetOrderHashesFromPeer(ctx context.Context, to peer.ID, collection common.Address, opts types.OrderQuery) ([]common.Hash, error) {
	req := &codec.GetOrderHashesReq{ReqID: n.nextReqID(), Address: collection, Opts: opts}
	body, err := req.Encode()
	if err != nil {
		return nil, err
	}
	op, respBody, err := n.request(ctx, to, codec.OpGetOrderHashes, body)
	if err != nil {
		return nil, err
	}
	if op != codec.OpOrderHashes {
		return nil, ErrBadResponse
	}
	resp, err := codec.DecodeOrderHashesResp(respBody)
	if err != nil {
		return nil, err
	}
	if resp.ReqID != req.ReqID {
		return nil, ErrReqIDMismatch
	}
	return resp.Hashes, nil
}

// GetOrderCountFromPeer requests the peer's order count for a collection.
func (n *GossipNode) GetOrderCountFromPeer(ctx context.Context, to peer.ID, collection common.Address, opts types.OrderQuery) (uint64, error) {
	req := &codec.GetOrderCountReq{ReqID: n.nextReqID(), Address: collection, Opts: opts}
	body, err := req.Encode()
	if err != nil {
		return 0, err
	}
	op, respBody, err := n.request(ctx, to, codec.OpGetOrderCount, body)
	if err != nil {
		return 0, err
	}
	if op != codec.OpOrderCount {
		return 0, ErrBadResponse
	}
	resp, err := codec.DecodeOrderCountResp(respBody)
	if err != nil {
		return 0, err
	}
	if resp.ReqID != req.ReqID {
		return 0, ErrReqIDMismatch
	}
	return resp.Count, nil
}

// GetCriteriaFromPeer requests the token-id set behind a criteria root.
func (n *GossipNode) GetCriteriaFromPeer(ctx context.Context, to peer.ID, hash common.Hash) ([]*big.Int, error) {
	req := &codec.GetCriteriaReq{ReqID: n.nextReqID(), Hash: hash}
	body, err := req.Encode()
	if err != nil {
		return nil, err
	}
	op, respBody, err := n.request(ctx, to, codec.OpGetCriteria, body)
	if err != nil {
		return nil, err
	}
	if op != codec.OpCriteriaItems {
		return nil, ErrBadResponse
	}
	resp, err := codec.DecodeCriteriaItemsResp(respBody)
	if err != nil {
		return nil, err
	}
	if resp.ReqID != req.ReqID {
		return nil, ErrReqIDMismatch
	}
	return resp.Items, nil
}

// handleStream serves one inbound request. Malformed frames are logged and
// dropped without a response.
func (n *GossipNode) handleStream(s network.Stream) {
	defer s.Close()
	_ = s.SetDeadline(time.Now().Add(rpcTimeout))

	data, err := io.ReadAll(s)
	if err != nil || len(data) < codec.HeaderLen {
		n.log.Debugw("wire_read_failed", "peer", s.Conn().RemotePeer().String(), "err", err)
		return
	}
	op, err := codec.DecodeHeader(data[:codec.HeaderLen])
	if err != nil {
		n.log.Debugw("wire_bad_header", "peer", s.Conn().RemotePeer().String(), "err", err)
		return
	}
	metrics.WireRequests.WithLabelValues(op.String(), "in").Inc()
	body := data[codec.HeaderLen:]

	respOp, respBody, err := n.serve(op, body)
	if err != nil {
		n.log.Debugw("wire_request_failed", "opcode", op.String(), "err", err)
		return
	}
	if _, err := s.Write(codec.EncodeHeader(respOp)); err != nil {
		return
	}
	_, _ = s.Write(respBody)
}

func (n *GossipNode) serve(op codec.Opcode, body []byte) (codec.Opcode, []byte, error) {
	switch op {
	case codec.OpGetOrders:
		req, err := codec.DecodeGetOrdersReq(body)
		if err != nil {
			return 0, nil, err
		}
		hashes := req.Hashes
		if len(hashes) > codec.MaxOrdersPerResponse {
			hashes = hashes[:codec.MaxOrdersPerResponse]
		}
		orders, err := n.store.GetOrders(hashes)
		if err != nil {
			return 0, nil, err
		}
		if len(orders) > codec.MaxOrdersPerResponse {
			orders = orders[:codec.MaxOrdersPerResponse]
		}
		out, err := (&codec.OrdersResp{ReqID: req.ReqID, Orders: orders}).Encode()
		return codec.OpOrders, out, err

	case codec.OpGetOrderHashes:
		req, err := codec.DecodeGetOrderHashesReq(body)
		if err != nil {
			return 0, nil, err
		}
		hashes, err := n.store.FindOrderHashes(req.Address, req.Opts)
		if err != nil {
			return 0, nil, err
		}
		out, err := (&codec.OrderHashesResp{ReqID: req.ReqID, Hashes: hashes}).Encode()
		return codec.OpOrderHashes, out, err

	case codec.OpGetOrderCount:
		req, err := codec.DecodeGetOrderCountReq(body)
		if err != nil {
			return 0, nil, err
		}
		count, err := n.store.CountOrders(req.Address, req.Opts)
		if err != nil {
			return 0, nil, err
		}
		out, err := (&codec.OrderCountResp{ReqID: req.ReqID, Count: count}).Encode()
		return codec.OpOrderCount, out, err

	case codec.OpGetCriteria:
		req, err := codec.DecodeGetCriteriaReq(body)
		if err != nil {
			return 0, nil, err
		}
		var items []*big.Int
		if c, err := n.store.GetCriteria(req.Hash); err == nil {
			items = c.TokenIDs
		} else if err != storage.ErrCriteriaNotFound {
			return 0, nil, err
		}
		out, err := (&codec.CriteriaItemsResp{ReqID: req.ReqID, Hash: req.Hash, Items: items}).Encode()
		return codec.OpCriteriaItems, out, err

	default:
		return 0, nil, codec.ErrBadHeader
	}
}
