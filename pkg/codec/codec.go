// Package codec implements the deterministic binary wire format shared by
// gossip messages and the request/response protocol. Every node must emit
// identical bytes for the same logical value: pub-sub message ids are derived
// from the encoding, so nondeterminism would break network-wide dedup.
//
// Layout conventions: integers are big-endian fixed width, addresses are raw
// 20 bytes, hashes and 256-bit integers are raw/left-padded 32 bytes, lists
// carry a uint32 element-count prefix.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// List caps. Decoders reject anything larger before allocating.
const (
	MaxOfferItems           = 100
	MaxConsiderationItems   = 100
	MaxAdditionalRecipients = 50
	MaxOrdersPerResponse    = 1000
	MaxHashesPerResponse    = 1_000_000
	MaxCriteriaItems        = 10_000_000
)

var (
	ErrShortBuffer  = errors.New("codec: short buffer")
	ErrListTooLong  = errors.New("codec: list exceeds cap")
	ErrTrailingData = errors.New("codec: trailing bytes after value")
)

type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8) { w.buf.WriteByte(v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) addr(a common.Address) { w.buf.Write(a.Bytes()) }
func (w *writer) hash(h common.Hash)    { w.buf.Write(h.Bytes()) }

// big256 writes v left-padded to 32 bytes; nil writes zeroes.
func (w *writer) big256(v *big.Int) {
	var b [32]byte
	if v != nil {
		v.FillBytes(b[:])
	}
	w.buf.Write(b[:])
}

func (w *writer) bytesVar(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = ErrShortBuffer
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool { return r.u8() == 1 }

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) addr() common.Address {
	b := r.take(20)
	if b == nil {
		return common.Address{}
	}
	return common.BytesToAddress(b)
}

func (r *reader) hash() common.Hash {
	b := r.take(32)
	if b == nil {
		return common.Hash{}
	}
	return common.BytesToHash(b)
}

func (r *reader) big256() *big.Int {
	b := r.take(32)
	if b == nil {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(b)
}

func (r *reader) bytesVar(max uint32) []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if n > max {
		r.err = ErrListTooLong
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// listLen reads and bounds-checks a list count.
func (r *reader) listLen(max int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if int(n) > max {
		r.err = fmt.Errorf("%w: %d > %d", ErrListTooLong, n, max)
		return 0
	}
	return int(n)
}

func (r *reader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return ErrTrailingData
	}
	return nil
}
