package api

import (
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Types
// ==============================

// OrderEnvelope pairs an order with its derived hash and stored metadata.
type OrderEnvelope struct {
	Hash     string               `json:"hash"`
	Order    *types.OrderJSON     `json:"order"`
	Metadata *types.OrderMetadata `json:"metadata,omitempty"`
}

// SubmitOrdersRequest is the payload for POST /api/v1/orders.
type SubmitOrdersRequest struct {
	Orders []*types.OrderJSON `json:"orders"`
}

// SubmitResult reports one order's admission outcome.
type SubmitResult struct {
	Hash    string `json:"hash,omitempty"`
	New     bool   `json:"new"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
}

// SubmitOrdersResponse is returned from order submission, index-aligned with
// the request.
type SubmitOrdersResponse struct {
	Results []SubmitResult `json:"results"`
}

// CriteriaRequest is the payload for POST /api/v1/criteria.
type CriteriaRequest struct {
	Token    string   `json:"token"`
	TokenIDs []string `json:"tokenIds"`
}

// CriteriaResponse describes a stored criteria set.
type CriteriaResponse struct {
	Hash     string   `json:"hash"`
	Token    string   `json:"token"`
	TokenIDs []string `json:"tokenIds"`
}

// StatsResponse summarizes the node for GET /api/v1/stats.
type StatsResponse struct {
	PeerID        string   `json:"peerId"`
	Orders        uint64   `json:"orders"`
	Subscriptions []string `json:"subscriptions"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel subscriptions.
// Channels are lowercase collection addresses, or "*" for everything.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// EventMessage is broadcast to subscribed clients for every accepted gossip
// event.
type EventMessage struct {
	Type        string           `json:"type"` // lifecycle event name
	OrderHash   string           `json:"orderHash,omitempty"`
	Offerer     string           `json:"offerer,omitempty"`
	Counter     uint64           `json:"counter,omitempty"`
	BlockNumber uint64           `json:"blockNumber"`
	BlockHash   string           `json:"blockHash"`
	Order       *types.OrderJSON `json:"order,omitempty"`
}
