// Package ingest seeds the local order book from an external marketplace API.
// Fetched orders come from a trusted indexer, so they are admitted without
// chain validation; the engine's revalidation loop reconciles them against
// the chain afterwards.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seaportgossip/seaport-gossip/pkg/engine"
	"github.com/seaportgossip/seaport-gossip/pkg/types"
)

const (
	pageLimit    = 50
	maxPages     = 20
	fetchTimeout = 30 * time.Second
)

// Config for the ingestor. RatePerSecond throttles outbound API requests.
type Config struct {
	BaseURL       string
	APIKey        string
	ChainID       uint64
	RatePerSecond float64
	Interval      time.Duration
	Collections   []common.Address
	Logger        *zap.SugaredLogger
}

// Ingestor periodically pulls listings and offers for the configured
// collections and feeds them through engine admission.
type Ingestor struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	engine  *engine.Engine
	log     *zap.SugaredLogger
}

func New(cfg Config, eng *engine.Engine) *Ingestor {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Ingestor{
		cfg:     cfg,
		client:  &http.Client{Timeout: fetchTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		engine:  eng,
		log:     cfg.Logger,
	}
}

// Run ingests all collections once, then again every Interval until the
// context is cancelled.
func (in *Ingestor) Run(ctx context.Context) {
	in.ingestAll(ctx)
	ticker := time.NewTicker(in.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.ingestAll(ctx)
		}
	}
}

func (in *Ingestor) ingestAll(ctx context.Context) {
	for _, collection := range in.cfg.Collections {
		for _, side := range []string{"listings", "offers"} {
			added, err := in.IngestCollection(ctx, collection, side)
			if err != nil {
				in.log.Warnw("ingest_failed",
					"collection", collection.Hex(), "side", side, "err", err)
				continue
			}
			if added > 0 {
				in.log.Infow("ingest_done",
					"collection", collection.Hex(), "side", side, "added", added)
			}
		}
	}
}

// apiOrder is one order entry of the marketplace response: the signed
// parameters plus the detached signature.
type apiOrder struct {
	ProtocolData struct {
		Parameters types.OrderJSON `json:"parameters"`
		Signature  string          `json:"signature"`
	} `json:"protocol_data"`
}

type apiPage struct {
	Orders []apiOrder `json:"orders"`
	Next   string     `json:"next"`
}

// IngestCollection walks one side of one collection's order book, page by
// page, and returns how many previously unknown orders were stored.
func (in *Ingestor) IngestCollection(ctx context.Context, collection common.Address, side string) (int, error) {
	added := 0
	cursor := ""
	for page := 0; page < maxPages; page++ {
		resp, err := in.fetchPage(ctx, collection, side, cursor)
		if err != nil {
			return added, err
		}
		for _, entry := range resp.Orders {
			order, err := in.normalize(entry)
			if err != nil {
				in.log.Debugw("ingest_order_skipped", "err", err)
				continue
			}
			auction := in.classify(order)
			isNew, _, err := in.engine.AddOrder(ctx, order, engine.AdmissionOpts{
				Validate:    false,
				Broadcast:   true,
				AuctionType: &auction,
			})
			if err != nil {
				in.log.Debugw("ingest_admission_failed", "err", err)
				continue
			}
			if isNew {
				added++
			}
		}
		if resp.Next == "" || len(resp.Orders) == 0 {
			return added, nil
		}
		cursor = resp.Next
	}
	return added, nil
}

func (in *Ingestor) fetchPage(ctx context.Context, collection common.Address, side, cursor string) (*apiPage, error) {
	if err := in.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(fmt.Sprintf("%s/v2/orders/%s/seaport/%s",
		in.cfg.BaseURL, chainSlug(in.cfg.ChainID), side))
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("asset_contract_address", collection.Hex())
	q.Set("limit", strconv.Itoa(pageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", in.cfg.APIKey)
	}

	resp, err := in.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ingest fetch %s: status %d: %s", u.Path, resp.StatusCode, body)
	}

	var page apiPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("ingest decode: %w", err)
	}
	return &page, nil
}

func (in *Ingestor) normalize(entry apiOrder) (*types.Order, error) {
	params := entry.ProtocolData.Parameters
	if params.Signature == "" {
		params.Signature = entry.ProtocolData.Signature
	}
	order, err := params.ToOrder()
	if err != nil {
		return nil, err
	}
	if order.ChainID == 0 {
		order.ChainID = in.cfg.ChainID
	}
	if err := order.CheckStructure(); err != nil {
		return nil, err
	}
	return order, nil
}

// classify precomputes the auction type from the parameters alone; the
// indexer does not expose zone code, so restricted orders default to English.
func (in *Ingestor) classify(order *types.Order) types.AuctionType {
	if order.OrderType.IsRestricted() {
		return types.AuctionEnglish
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

func chainSlug(chainID uint64) string {
	switch chainID {
	case 1:
		return "ethereum"
	case 5:
		return "goerli"
	case 137:
		return "matic"
	default:
		return "ethereum"
	}
}
