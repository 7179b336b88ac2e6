// Package api is the node's HTTP face: a REST surface over the local order
// book, a Prometheus metrics endpoint, and a WebSocket feed of gossip events.
package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/seaportgossip/seaport-gossip/pkg/crypto"
	"github.com/seaportgossip/seaport-gossip/pkg/metrics"
	"github.com/seaportgossip/seaport-gossip/pkg/node"
	"github.com/seaportgossip/seaport-gossip/pkg/storage"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	node   *node.Node
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger

	httpSrv *http.Server
}

// NewServer builds the server around a started node.
func NewServer(n *node.Node, log *zap.SugaredLogger) *Server {
	s := &Server{
		node:   n,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order endpoints
	api.HandleFunc("/orders", s.handleSubmitOrders).Methods("POST")
	api.HandleFunc("/orders/{hash}", s.handleGetOrder).Methods("GET")

	// Collection endpoints
	api.HandleFunc("/collections/{address}/orders", s.handleGetCollectionOrders).Methods("GET")
	api.HandleFunc("/collections/{address}/orders/count", s.handleGetCollectionCount).Methods("GET")

	// Criteria endpoints
	api.HandleFunc("/criteria", s.handleAddCriteria).Methods("POST")
	api.HandleFunc("/criteria/{hash}", s.handleGetCriteria).Methods("GET")

	// Node stats
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	// WebSocket event feed
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves until Shutdown. The hub is wired into the node's gossip event
// stream here.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	if err := s.node.OnEvent(s.broadcastEvent); err != nil {
		return err
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           c.Handler(s.router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("api_listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitOrders(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Orders) == 0 {
		respondError(w, http.StatusBadRequest, "no orders in request", "")
		return
	}

	orders := make([]*types.Order, 0, len(req.Orders))
	parseErrs := make(map[int]string)
	for i, j := range req.Orders {
		order, err := j.ToOrder()
		if err != nil {
			parseErrs[i] = err.Error()
			orders = append(orders, nil)
			continue
		}
		orders = append(orders, order)
	}

	results := make([]SubmitResult, len(orders))
	valid := make([]*types.Order, 0, len(orders))
	validIdx := make([]int, 0, len(orders))
	for i, o := range orders {
		if o == nil {
			results[i] = SubmitResult{Error: parseErrs[i]}
			continue
		}
		valid = append(valid, o)
		validIdx = append(validIdx, i)
	}

	added, err := s.node.AddOrders(r.Context(), valid)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "node unavailable", err.Error())
		return
	}
	for j, res := range added {
		i := validIdx[j]
		results[i] = SubmitResult{New: res.IsNew, Valid: res.Meta.IsValid}
		if res.Meta.OrderHash != (common.Hash{}) {
			results[i].Hash = res.Meta.OrderHash.Hex()
		}
		if res.Err != nil {
			results[i].Error = res.Err.Error()
		}
	}
	respondJSON(w, SubmitOrdersResponse{Results: results})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	hashStr := mux.Vars(r)["hash"]
	if len(hashStr) != 66 {
		respondError(w, http.StatusBadRequest, "invalid order hash", "")
		return
	}
	hash := common.HexToHash(hashStr)

	order, meta, err := s.node.GetOrderByHash(hash)
	if err == storage.ErrOrderNotFound {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "lookup failed", err.Error())
		return
	}
	respondJSON(w, OrderEnvelope{
		Hash:     hash.Hex(),
		Order:    types.OrderToJSON(order),
		Metadata: &meta,
	})
}

func parseQuery(r *http.Request) types.OrderQuery {
	q := types.OrderQuery{Side: types.SideSell, Sort: types.SortNewest, Count: 50}
	if v := r.URL.Query().Get("side"); v == "buy" {
		q.Side = types.SideBuy
	}
	if v := r.URL.Query().Get("sort"); v == "oldest" {
		q.Sort = types.SortOldest
	}
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			q.Count = uint32(n)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			q.Offset = uint32(n)
		}
	}
	return q
}

func (s *Server) handleGetCollectionOrders(w http.ResponseWriter, r *http.Request) {
	addrStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addrStr) {
		respondError(w, http.StatusBadRequest, "invalid collection address", "")
		return
	}
	collection := common.HexToAddress(addrStr)

	orders, err := s.node.GetOrdersByCollection(collection, parseQuery(r))
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "query failed", err.Error())
		return
	}
	out := make([]OrderEnvelope, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderEnvelope{
			Hash:  crypto.OrderHash(o).Hex(),
			Order: types.OrderToJSON(o),
		})
	}
	respondJSON(w, out)
}

func (s *Server) handleGetCollectionCount(w http.ResponseWriter, r *http.Request) {
	addrStr := mux.Vars(r)["address"]
	if !common.IsHexAddress(addrStr) {
		respondError(w, http.StatusBadRequest, "invalid collection address", "")
		return
	}
	count, err := s.node.GetOrderCount(common.HexToAddress(addrStr), parseQuery(r))
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "query failed", err.Error())
		return
	}
	respondJSON(w, map[string]uint64{"count": count})
}

func (s *Server) handleAddCriteria(w http.ResponseWriter, r *http.Request) {
	var req CriteriaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "invalid token address", "")
		return
	}
	ids := make([]*big.Int, 0, len(req.TokenIDs))
	for _, s := range req.TokenIDs {
		id, ok := new(big.Int).SetString(s, 10)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid token id", s)
			return
		}
		ids = append(ids, id)
	}
	root, err := s.node.AddCriteria(common.HexToAddress(req.Token), ids)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "criteria store failed", err.Error())
		return
	}
	respondJSON(w, CriteriaResponse{Hash: root.Hex(), Token: req.Token, TokenIDs: req.TokenIDs})
}

func (s *Server) handleGetCriteria(w http.ResponseWriter, r *http.Request) {
	hashStr := mux.Vars(r)["hash"]
	if len(hashStr) != 66 {
		respondError(w, http.StatusBadRequest, "invalid criteria hash", "")
		return
	}
	c, err := s.node.GetCriteria(common.HexToHash(hashStr))
	if err == storage.ErrCriteriaNotFound {
		respondError(w, http.StatusNotFound, "criteria not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "lookup failed", err.Error())
		return
	}
	resp := CriteriaResponse{Hash: c.Hash.Hex(), Token: c.Token.Hex()}
	for _, id := range c.TokenIDs {
		resp.TokenIDs = append(resp.TokenIDs, id.String())
	}
	respondJSON(w, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.node.TotalOrderCount()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "node unavailable", err.Error())
		return
	}
	respondJSON(w, StatsResponse{
		PeerID:        s.node.Gossip().Host().ID().String(),
		Orders:        count,
		Subscriptions: s.node.Gossip().Subscriptions(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Event Broadcast
// ==============================

// broadcastEvent fans an accepted gossip event out to subscribed WebSocket
// clients, channeled by the collections the order touches.
func (s *Server) broadcastEvent(ev *types.GossipEvent) {
	msg := EventMessage{
		Type:        ev.Kind.String(),
		BlockNumber: ev.BlockNumber,
		BlockHash:   ev.BlockHash.Hex(),
	}
	if ev.OrderHash != (common.Hash{}) {
		msg.OrderHash = ev.OrderHash.Hex()
	}
	if ev.Offerer != (common.Address{}) {
		msg.Offerer = ev.Offerer.Hex()
	}
	msg.Counter = ev.Counter
	if ev.Order != nil {
		msg.Order = types.OrderToJSON(ev.Order)
	}

	if ev.Order != nil {
		for _, c := range ev.Order.Collections() {
			s.hub.BroadcastToChannel(TopicChannel(c), msg)
		}
		return
	}
	// Events without an attached order (lifecycle updates, counter bumps)
	// go to every connected client.
	s.hub.BroadcastAll(msg)
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: detail})
}
