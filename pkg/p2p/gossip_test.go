package p2p

import (
	"context"
	"errors"
	"testing"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"

	"github.com/ethereum/go-ethereum/common"

	"github.com/seaportgossip/seaport-gossip/pkg/codec"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

func TestTopicName(t *testing.T) {
	addr := common.HexToAddress("0x3F53082981815Ed8142384EDB1311025cA750Ef1")
	if got := TopicName(addr); got != "0x3f53082981815ed8142384edb1311025ca750ef1" {
		t.Fatalf("topic name = %q", got)
	}
}

func TestEventFromMessage(t *testing.T) {
	ev := &types.GossipEvent{
		Kind:        types.EventValidated,
		OrderHash:   common.HexToHash("0x01"),
		BlockNumber: 100,
		BlockHash:   common.HexToHash("0x02"),
		Offerer:     common.HexToAddress("0x03"),
	}
	enc, err := codec.EncodeEvent(ev)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("validator decoded", func(t *testing.T) {
		msg := &pubsub.Message{Message: &pb.Message{Data: enc}, ValidatorData: ev}
		if got := eventFromMessage(msg); got != ev {
			t.Fatal("stashed event not reused")
		}
	})

	// Self-published messages never pass through the topic validator, so the
	// event must come out of the raw payload.
	t.Run("self published", func(t *testing.T) {
		msg := &pubsub.Message{Message: &pb.Message{Data: enc}}
		got := eventFromMessage(msg)
		if got == nil {
			t.Fatal("self-published event dropped")
		}
		if got.Kind != ev.Kind || got.OrderHash != ev.OrderHash || got.BlockHash != ev.BlockHash {
			t.Fatalf("decoded event mismatch: %+v", got)
		}
	})

	t.Run("undecodable", func(t *testing.T) {
		msg := &pubsub.Message{Message: &pb.Message{Data: []byte{0x01, 0x02}}}
		if got := eventFromMessage(msg); got != nil {
			t.Fatalf("garbage payload produced an event: %+v", got)
		}
	})
}

type fakeTimeout struct{}

func (fakeTimeout) Error() string   { return "i/o timeout" }
func (fakeTimeout) Timeout() bool   { return true }
func (fakeTimeout) Temporary() bool { return true }

func TestWrapTimeout(t *testing.T) {
	if got := wrapTimeout(context.DeadlineExceeded); got != ErrRPCTimeout {
		t.Errorf("deadline exceeded: got %v", got)
	}
	if got := wrapTimeout(fakeTimeout{}); got != ErrRPCTimeout {
		t.Errorf("net timeout: got %v", got)
	}
	other := errors.New("stream reset")
	if got := wrapTimeout(other); got != other {
		t.Errorf("non-timeout error rewritten: got %v", got)
	}
}
