package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/internal/config"
	"github.com/devlongs/mev-inspect/internal/decoder"
	"github.com/devlongs/mev-inspect/internal/dex"
	"github.com/devlongs/mev-inspect/internal/directory"
	"github.com/devlongs/mev-inspect/internal/eth"
	"github.com/devlongs/mev-inspect/internal/metrics"
	"github.com/devlongs/mev-inspect/internal/mev"
	"github.com/devlongs/mev-inspect/internal/output"
	"github.com/devlongs/mev-inspect/internal/poolcache"
	"github.com/devlongs/mev-inspect/internal/storage/postgres"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// Inspector is the main MEV inspection engine
type Inspector struct {
	client     *eth.Client
	chainID    types.ChainID
	native     common.Address
	decoder    *decoder.Decoder
	dispatcher *classifier.Dispatcher
	detector   *mev.Detector
	logger     *output.Logger
	store      *postgres.Store
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	cfg        *config.Config

	nextBlock uint64
	mu        sync.Mutex
}

// blockSummary counts what one block produced
type blockSummary struct {
	swaps     int
	transfers int
	failed    int
	arbs      []types.Arbitrage
}

// NewInspector creates a new MEV inspector
func NewInspector(ctx context.Context, cfg *config.Config) (*Inspector, error) {
	client, err := eth.NewClient(ctx, cfg.RPC)
	if err != nil {
		return nil, err
	}

	i, err := newInspector(ctx, cfg, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return i, nil
}

func newInspector(ctx context.Context, cfg *config.Config, client *eth.Client) (*Inspector, error) {
	nodeChain := types.ChainID(client.ChainID().Uint64())
	chainID := cfg.Inspector.ChainID
	if chainID == 0 {
		chainID = nodeChain
	} else if chainID != nodeChain {
		return nil, fmt.Errorf("configured chain %d but node serves chain %d", chainID, nodeChain)
	}

	dir := directory.Default()
	for _, f := range cfg.Directory.Factories {
		dir.AddFactory(types.ChainID(f.ChainID), types.Protocol(f.Protocol), types.Factory{
			Label:   f.Label,
			Address: common.HexToAddress(f.Address),
		})
	}
	native, ok := dir.NativeAsset(chainID)
	if !ok {
		return nil, fmt.Errorf("chain %d is not supported", chainID)
	}

	all, err := dex.Registry()
	if err != nil {
		return nil, err
	}
	registry := all.Only(cfg.Inspector.Protocols...)

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	cacheOpts := []poolcache.Option{poolcache.WithMetrics(m)}
	var store *postgres.Store
	if cfg.Storage.PostgresDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		cacheOpts = append(cacheOpts, poolcache.WithStore(store))
	}
	pools := poolcache.New(client, dir, registry.Fetchers(), cacheOpts...)

	log.Info().
		Uint64("chainID", uint64(chainID)).
		Int("classifiers", len(registry.Classifiers())).
		Bool("poolStore", store != nil).
		Msg("Inspector configured")

	return &Inspector{
		client:  client,
		chainID: chainID,
		native:  native,
		decoder: decoder.NewDecoder(registry),
		dispatcher: classifier.NewDispatcher(chainID, registry, dir, pools,
			classifier.WithWorkers(cfg.Inspector.WorkerCount),
			classifier.WithMetrics(m),
		),
		detector: mev.NewDetector(mev.WithDetectorMetrics(m)),
		logger:   output.NewLogger(native),
		store:    store,
		registry: promRegistry,
		metrics:  m,
		cfg:      cfg,
	}, nil
}

// ServeMetrics exposes the inspector's metrics until ctx is done
func (i *Inspector) ServeMetrics(ctx context.Context) {
	if i.cfg.Metrics.Listen == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, i.cfg.Metrics.Listen, i.registry); err != nil {
			i.logger.LogError(err, "serving metrics")
		}
	}()
}

// Start begins the inspection loop
func (i *Inspector) Start(ctx context.Context) error {
	log.Info().Msg("Starting MEV Inspector...")

	currentBlock, err := i.client.BlockNumber(ctx)
	if err != nil {
		return err
	}

	// Set starting block
	i.nextBlock = currentBlock
	if i.cfg.Inspector.StartBlock > 0 {
		i.nextBlock = i.cfg.Inspector.StartBlock
	}

	log.Info().
		Uint64("startBlock", i.nextBlock).
		Uint64("currentBlock", currentBlock).
		Msg("Inspector initialized")

	ticker := time.NewTicker(i.cfg.Inspector.PollInterval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(30 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down inspector...")
			return ctx.Err()

		case <-statsTicker.C:
			i.logger.LogStats()

		case <-ticker.C:
			if err := i.processNewBlocks(ctx); err != nil {
				i.logger.LogError(err, "processing blocks")
			}
		}
	}
}

// processNewBlocks fetches and processes any new blocks
func (i *Inspector) processNewBlocks(ctx context.Context) error {
	currentBlock, err := i.client.BlockNumber(ctx)
	if err != nil {
		return err
	}

	i.mu.Lock()
	fromBlock := i.nextBlock
	i.mu.Unlock()

	toBlock, ok := nextRange(fromBlock, currentBlock, i.cfg.Inspector.BatchSize)
	if !ok {
		return nil // No new blocks
	}

	log.Debug().
		Uint64("from", fromBlock).
		Uint64("to", toBlock).
		Msg("Processing block range")

	if _, err := i.processBlockRange(ctx, fromBlock, toBlock); err != nil {
		return err
	}

	i.mu.Lock()
	i.nextBlock = toBlock + 1
	i.mu.Unlock()

	return nil
}

// nextRange returns the last block of the batch starting at fromBlock, or
// false when the chain has not reached fromBlock yet
func nextRange(fromBlock, currentBlock uint64, batchSize int) (uint64, bool) {
	if currentBlock < fromBlock {
		return 0, false
	}
	if batchSize < 1 {
		batchSize = 1
	}
	toBlock := currentBlock
	if toBlock-fromBlock >= uint64(batchSize) {
		toBlock = fromBlock + uint64(batchSize) - 1
	}
	return toBlock, true
}

// processBlockRange inspects every block in [fromBlock, toBlock] and
// reports what it found
func (i *Inspector) processBlockRange(ctx context.Context, fromBlock, toBlock uint64) ([]types.Arbitrage, error) {
	startTime := time.Now()

	logs, err := i.decoder.FetchLogs(ctx, i.client, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}

	byBlock, err := i.inspect(ctx, logs)
	if err != nil {
		return nil, err
	}

	blocks := toBlock - fromBlock + 1
	perBlock := time.Since(startTime) / time.Duration(blocks)

	var found []types.Arbitrage
	for block := fromBlock; block <= toBlock; block++ {
		s := byBlock[block]
		if s == nil {
			s = &blockSummary{}
		}
		found = append(found, s.arbs...)
		i.logger.LogBlockComplete(block, s.swaps, s.transfers, len(s.arbs), s.failed, perBlock)
		i.metrics.BlockProcessed()
	}
	i.persist(ctx, found)

	return found, nil
}

// ProcessTransaction inspects the logs of a single transaction receipt
func (i *Inspector) ProcessTransaction(ctx context.Context, txHash common.Hash) ([]types.Arbitrage, error) {
	receipt, err := i.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}

	byBlock, err := i.inspect(ctx, i.decoder.FilterTransaction(receipt.Logs))
	if err != nil {
		return nil, err
	}

	var found []types.Arbitrage
	for _, s := range byBlock {
		found = append(found, s.arbs...)
		log.Info().
			Str("txHash", txHash.Hex()).
			Int("swaps", s.swaps).
			Int("transfers", s.transfers).
			Int("failedLogs", s.failed).
			Msg("Transaction processed")
	}
	i.persist(ctx, found)

	return found, nil
}

// inspect runs logs through decoding, classification and detection and
// groups the outcome per block
func (i *Inspector) inspect(ctx context.Context, logs []ethtypes.Log) (map[uint64]*blockSummary, error) {
	raw := i.decoder.DecodeAll(logs)

	res, err := i.dispatcher.ClassifyAll(ctx, raw)
	if err != nil {
		return nil, err
	}

	byBlock := make(map[uint64]*blockSummary)
	summary := func(block uint64) *blockSummary {
		s, ok := byBlock[block]
		if !ok {
			s = &blockSummary{}
			byBlock[block] = s
		}
		return s
	}

	for _, f := range res.Failures {
		summary(f.Log.BlockNumber).failed++
	}

	for _, tx := range mev.SplitByTransaction(res.Events) {
		s := summary(tx.BlockNumber)
		s.swaps += len(tx.Swaps)
		s.transfers += len(tx.Transfers)

		for j := range tx.Swaps {
			i.logger.LogSwap(&tx.Swaps[j])
		}

		for _, arb := range i.detector.GetArbitrages(tx.Swaps, tx.Transfers) {
			if i.cfg.Inspector.OnlyProfitable && arb.ProfitAsset != i.native {
				continue
			}
			i.logger.LogArbitrage(&arb)
			s.arbs = append(s.arbs, arb)
		}
	}

	return byBlock, nil
}

func (i *Inspector) persist(ctx context.Context, arbs []types.Arbitrage) {
	if i.store == nil || len(arbs) == 0 {
		return
	}
	if err := i.store.UpsertArbitrages(ctx, i.chainID, arbs); err != nil {
		i.logger.LogError(err, "storing arbitrages")
	}
}

// Close shuts down the inspector
func (i *Inspector) Close() {
	i.logger.LogStats()
	if i.store != nil {
		i.store.Close()
	}
	i.client.Close()
}
