package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seaportgossip/seaport-gossip/params"
	"github.com/seaportgossip/seaport-gossip/pkg/api"
	"github.com/seaportgossip/seaport-gossip/pkg/node"
	"github.com/seaportgossip/seaport-gossip/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLogger(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := node.New(cfg, sugar)
	if err := n.Start(ctx); err != nil {
		sugar.Fatalw("node_start_failed", "err", err)
	}

	sugar.Infow("node_running",
		"port", cfg.Port,
		"chain_id", cfg.ChainID,
		"collections", len(cfg.CollectionAddresses),
		"ingest", cfg.IngestExternalOrders)

	// ---- API Server ----
	apiServer := api.NewServer(n, sugar)
	go func() {
		if err := apiServer.Start(cfg.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
	if err := n.Stop(); err != nil {
		sugar.Errorw("node_stop_failed", "err", err)
	}
}
