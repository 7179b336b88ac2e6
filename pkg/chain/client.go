// Package chain talks to the settlement contract over JSON-RPC: latest-block
// and code queries, getOrderStatus/getCounter calls, and the event feed the
// listener consumes.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/seaportgossip/seaport-gossip/pkg/metrics"
	gtypes "github.com/seaportgossip/seaport-gossip/pkg/types"
)

// seaportABI covers the read functions and events this node consumes.
const seaportABI = `[
  {"type":"function","name":"getOrderStatus","stateMutability":"view","inputs":[{"name":"orderHash","type":"bytes32"}],"outputs":[{"name":"isValidated","type":"bool"},{"name":"isCancelled","type":"bool"},{"name":"totalFilled","type":"uint256"},{"name":"totalSize","type":"uint256"}]},
  {"type":"function","name":"getCounter","stateMutability":"view","inputs":[{"name":"offerer","type":"address"}],"outputs":[{"name":"counter","type":"uint256"}]},
  {"type":"event","name":"OrderFulfilled","inputs":[{"name":"orderHash","type":"bytes32","indexed":false},{"name":"offerer","type":"address","indexed":true},{"name":"zone","type":"address","indexed":true},{"name":"recipient","type":"address","indexed":false},{"name":"offer","type":"tuple[]","indexed":false,"components":[{"name":"itemType","type":"uint8"},{"name":"token","type":"address"},{"name":"identifier","type":"uint256"},{"name":"amount","type":"uint256"}]},{"name":"consideration","type":"tuple[]","indexed":false,"components":[{"name":"itemType","type":"uint8"},{"name":"token","type":"address"},{"name":"identifier","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"}]}]},
  {"type":"event","name":"OrderCancelled","inputs":[{"name":"orderHash","type":"bytes32","indexed":false},{"name":"offerer","type":"address","indexed":true},{"name":"zone","type":"address","indexed":true}]},
  {"type":"event","name":"OrderValidated","inputs":[{"name":"orderHash","type":"bytes32","indexed":false},{"name":"offerer","type":"address","indexed":true},{"name":"zone","type":"address","indexed":true}]},
  {"type":"event","name":"CounterIncremented","inputs":[{"name":"newCounter","type":"uint256","indexed":false},{"name":"offerer","type":"address","indexed":true}]}
]`

// Client wraps an ethclient with the settlement-contract call surface.
// Safe for concurrent use.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
}

func Dial(ctx context.Context, rawurl string, contract common.Address) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dial chain provider: %w", err)
	}
	return NewClient(eth, contract)
}

func NewClient(eth *ethclient.Client, contract common.Address) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(seaportABI))
	if err != nil {
		return nil, err
	}
	return &Client{eth: eth, abi: parsed, contract: contract}, nil
}

func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

func (c *Client) Contract() common.Address { return c.contract }

func observe(method string, start time.Time) {
	metrics.ChainRPCDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// LatestBlock returns the current head's number and hash.
func (c *Client) LatestBlock(ctx context.Context) (uint64, common.Hash, error) {
	defer observe("eth_getBlockByNumber", time.Now())
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, common.Hash{}, err
	}
	return header.Number.Uint64(), header.Hash(), nil
}

// IsEOA reports whether addr carries no contract code.
func (c *Client) IsEOA(ctx context.Context, addr common.Address) (bool, error) {
	defer observe("eth_getCode", time.Now())
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, err
	}
	return len(code) == 0, nil
}

// GetOrderStatus calls the settlement contract's getOrderStatus.
func (c *Client) GetOrderStatus(ctx context.Context, orderHash common.Hash) (gtypes.OrderStatus, error) {
	defer observe("getOrderStatus", time.Now())
	data, err := c.abi.Pack("getOrderStatus", orderHash)
	if err != nil {
		return gtypes.OrderStatus{}, err
	}
	ret, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return gtypes.OrderStatus{}, err
	}
	vals, err := c.abi.Unpack("getOrderStatus", ret)
	if err != nil || len(vals) != 4 {
		return gtypes.OrderStatus{}, fmt.Errorf("unpack getOrderStatus: %w", err)
	}
	return gtypes.OrderStatus{
		IsValidated: vals[0].(bool),
		IsCancelled: vals[1].(bool),
		TotalFilled: vals[2].(*big.Int),
		TotalSize:   vals[3].(*big.Int),
	}, nil
}

// Counter calls the settlement contract's getCounter for an offerer.
func (c *Client) Counter(ctx context.Context, offerer common.Address) (uint64, error) {
	defer observe("getCounter", time.Now())
	data, err := c.abi.Pack("getCounter", offerer)
	if err != nil {
		return 0, err
	}
	ret, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return 0, err
	}
	vals, err := c.abi.Unpack("getCounter", ret)
	if err != nil || len(vals) != 1 {
		return 0, fmt.Errorf("unpack getCounter: %w", err)
	}
	return vals[0].(*big.Int).Uint64(), nil
}

// SubscribeContractLogs subscribes to all settlement-contract logs. Requires
// a websocket provider; callers fall back to polling on error.
func (c *Client) SubscribeContractLogs(ctx context.Context, ch chan<- types.Log) (ethereum.Subscription, error) {
	q := ethereum.FilterQuery{Addresses: []common.Address{c.contract}}
	return c.eth.SubscribeFilterLogs(ctx, q, ch)
}

// FilterContractLogs fetches settlement-contract logs for a block range.
func (c *Client) FilterContractLogs(ctx context.Context, from, to uint64) ([]types.Log, error) {
	defer observe("eth_getLogs", time.Now())
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.contract},
	}
	return c.eth.FilterLogs(ctx, q)
}

// EventID returns the topic hash of a named contract event.
func (c *Client) EventID(name string) common.Hash { return c.abi.Events[name].ID }

func (c *Client) unpackInto(out any, event string, data []byte) error {
	return c.abi.UnpackIntoInterface(out, event, data)
}
