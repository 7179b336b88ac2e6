package codec

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// Opcode identifies a wire-protocol message.
type Opcode uint8

const (
	OpGetOrders Opcode = iota + 1
	OpOrders
	OpGetOrderHashes
	OpOrderHashes
	OpGetOrderCount
	OpOrderCount
	OpGetCriteria
	OpCriteriaItems
)

func (op Opcode) String() string {
	switch op {
	case OpGetOrders:
		return "GetOrders"
	case OpOrders:
		return "Orders"
	case OpGetOrderHashes:
		return "GetOrderHashes"
	case OpOrderHashes:
		return "OrderHashes"
	case OpGetOrderCount:
		return "GetOrderCount"
	case OpOrderCount:
		return "OrderCount"
	case OpGetCriteria:
		return "GetCriteria"
	case OpCriteriaItems:
		return "CriteriaItems"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(op))
	}
}

// HeaderLen is the stream frame header: four reserved zero bytes followed by
// the opcode byte.
const HeaderLen = 5

var ErrBadHeader = errors.New("codec: malformed frame header")

// EncodeHeader builds the 5-byte frame header for an opcode.
func EncodeHeader(op Opcode) []byte {
	return []byte{0, 0, 0, 0, byte(op)}
}

// DecodeHeader extracts the opcode from a frame header. The low four bytes
// are reserved and must be zero.
func DecodeHeader(h []byte) (Opcode, error) {
	if len(h) != HeaderLen {
		return 0, ErrBadHeader
	}
	if h[0] != 0 || h[1] != 0 || h[2] != 0 || h[3] != 0 {
		return 0, ErrBadHeader
	}
	op := Opcode(h[4])
	if op < OpGetOrders || op > OpCriteriaItems {
		return 0, ErrBadHeader
	}
	return op, nil
}

// QueryOpts narrows GetOrderHashes / GetOrderCount requests.
type QueryOpts = types.OrderQuery

// GetOrders / OrderHashes request-response bodies.

type GetOrdersReq struct {
	ReqID  uint64
	Hashes []common.Hash
}

type OrdersResp struct {
	ReqID  uint64
	Orders []*types.Order
}

type GetOrderHashesReq struct {
	ReqID   uint64
	Address common.Address
	Opts    QueryOpts
}

type OrderHashesResp struct {
	ReqID  uint64
	Hashes []common.Hash
}

type GetOrderCountReq struct {
	ReqID   uint64
	Address common.Address
	Opts    QueryOpts
}

type OrderCountResp struct {
	ReqID uint64
	Count uint64
}

type GetCriteriaReq struct {
	ReqID uint64
	Hash  common.Hash
}

type CriteriaItemsResp struct {
	ReqID uint64
	Hash  common.Hash
	Items []*big.Int
}

func encodeHashList(w *writer, hashes []common.Hash) {
	w.u32(uint32(len(hashes)))
	for _, h := range hashes {
		w.hash(h)
	}
}

func decodeHashList(r *reader, max int) []common.Hash {
	n := r.listLen(max)
	out := make([]common.Hash, 0, min(n, 4096))
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.hash())
	}
	return out
}

func encodeOpts(w *writer, o QueryOpts) {
	w.u8(uint8(o.Side))
	w.u8(uint8(o.Sort))
	w.u32(o.Count)
	w.u32(o.Offset)
}

func decodeOpts(r *reader) QueryOpts {
	return QueryOpts{
		Side:   types.Side(r.u8()),
		Sort:   types.Sort(r.u8()),
		Count:  r.u32(),
		Offset: r.u32(),
	}
}

func (m *GetOrdersReq) Encode() ([]byte, error) {
	if len(m.Hashes) > MaxHashesPerResponse {
		return nil, ErrListTooLong
	}
	var w writer
	w.u64(m.ReqID)
	encodeHashList(&w, m.Hashes)
	return w.buf.Bytes(), nil
}

func DecodeGetOrdersReq(b []byte) (*GetOrdersReq, error) {
	r := &reader{b: b}
	m := &GetOrdersReq{ReqID: r.u64(), Hashes: decodeHashList(r, MaxHashesPerResponse)}
	return m, r.finish()
}

func (m *OrdersResp) Encode() ([]byte, error) {
	if len(m.Orders) > MaxOrdersPerResponse {
		return nil, ErrListTooLong
	}
	var w writer
	w.u64(m.ReqID)
	w.u32(uint32(len(m.Orders)))
	for _, o := range m.Orders {
		if err := encodeOrderTo(&w, o); err != nil {
			return nil, err
		}
	}
	return w.buf.Bytes(), nil
}

func DecodeOrdersResp(b []byte) (*OrdersResp, error) {
	r := &reader{b: b}
	m := &OrdersResp{ReqID: r.u64()}
	n := r.listLen(MaxOrdersPerResponse)
	for i := 0; i < n && r.err == nil; i++ {
		m.Orders = append(m.Orders, decodeOrderFrom(r))
	}
	return m, r.finish()
}

func (m *GetOrderHashesReq) Encode() ([]byte, error) {
	var w writer
	w.u64(m.ReqID)
	w.addr(m.Address)
	encodeOpts(&w, m.Opts)
	return w.buf.Bytes(), nil
}

func DecodeGetOrderHashesReq(b []byte) (*GetOrderHashesReq, error) {
	r := &reader{b: b}
	m := &GetOrderHashesReq{ReqID: r.u64(), Address: r.addr(), Opts: decodeOpts(r)}
	return m, r.finish()
}

func (m *OrderHashesResp) Encode() ([]byte, error) {
	if len(m.Hashes) > MaxHashesPerResponse {
		return nil, ErrListTooLong
	}
	var w writer
	w.u64(m.ReqID)
	encodeHashList(&w, m.Hashes)
	return w.buf.Bytes(), nil
}

func DecodeOrderHashesResp(b []byte) (*OrderHashesResp, error) {
	r := &reader{b: b}
	m := &OrderHashesResp{ReqID: r.u64(), Hashes: decodeHashList(r, MaxHashesPerResponse)}
	return m, r.finish()
}

func (m *GetOrderCountReq) Encode() ([]byte, error) {
	var w writer
	w.u64(m.ReqID)
	w.addr(m.Address)
	encodeOpts(&w, m.Opts)
	return w.buf.Bytes(), nil
}

func DecodeGetOrderCountReq(b []byte) (*GetOrderCountReq, error) {
	r := &reader{b: b}
	m := &GetOrderCountReq{ReqID: r.u64(), Address: r.addr(), Opts: decodeOpts(r)}
	return m, r.finish()
}

func (m *OrderCountResp) Encode() ([]byte, error) {
	var w writer
	w.u64(m.ReqID)
	w.u64(m.Count)
	return w.buf.Bytes(), nil
}

func DecodeOrderCountResp(b []byte) (*OrderCountResp, error) {
	r := &reader{b: b}
	m := &OrderCountResp{ReqID: r.u64(), Count: r.u64()}
	return m, r.finish()
}

func (m *GetCriteriaReq) Encode() ([]byte, error) {
	var w writer
	w.u64(m.ReqID)
	w.hash(m.Hash)
	return w.buf.Bytes(), nil
}

func DecodeGetCriteriaReq(b []byte) (*GetCriteriaReq, error) {
	r := &reader{b: b}
	m := &GetCriteriaReq{ReqID: r.u64(), Hash: r.hash()}
	return m, r.finish()
}

func (m *CriteriaItemsResp) Encode() ([]byte, error) {
	if len(m.Items) > MaxCriteriaItems {
		return nil, ErrListTooLong
	}
	var w writer
	w.u64(m.ReqID)
	w.hash(m.Hash)
	w.u32(uint32(len(m.Items)))
	for _, id := range m.Items {
		w.big256(id)
	}
	return w.buf.Bytes(), nil
}

func DecodeCriteriaItemsResp(b []byte) (*CriteriaItemsResp, error) {
	r := &reader{b: b}
	m := &CriteriaItemsResp{ReqID: r.u64(), Hash: r.hash()}
	n := r.listLen(MaxCriteriaItems)
	for i := 0; i < n && r.err == nil; i++ {
		m.Items = append(m.Items, r.big256())
	}
	return m, r.finish()
}
