package main

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/internal/config"
	"github.com/devlongs/mev-inspect/internal/decoder"
	"github.com/devlongs/mev-inspect/internal/dex"
	"github.com/devlongs/mev-inspect/internal/dex/uniswapv3"
	"github.com/devlongs/mev-inspect/internal/directory"
	"github.com/devlongs/mev-inspect/internal/mev"
	"github.com/devlongs/mev-inspect/internal/output"
	"github.com/devlongs/mev-inspect/pkg/types"
)

var (
	v3Factory = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	usdc      = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth      = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	poolA     = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	poolB     = common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")
	unknown   = common.HexToAddress("0x0000000000000000000000000000000000000bad")
	searcher  = common.HexToAddress("0x5555555555555555555555555555555555555555")
	arbTx     = common.HexToHash("0xa1")
)

type staticPools map[common.Address]types.Pool

func (s staticPools) Resolve(_ context.Context, chainID types.ChainID, protocol types.Protocol, address common.Address) (types.Pool, error) {
	pool, ok := s[address]
	if !ok {
		return types.Pool{}, &classifier.PoolResolutionError{ChainID: chainID, Protocol: protocol, Address: address, Err: errors.New("no code")}
	}
	return pool, nil
}

func v3Swap(t *testing.T, pool common.Address, amount0, amount1 int64, index uint) ethtypes.Log {
	t.Helper()
	parsed, err := uniswapv3.PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	event := parsed.Events["Swap"]
	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(amount0),
		big.NewInt(amount1),
		new(big.Int).Lsh(big.NewInt(1), 96),
		big.NewInt(1_000_000),
		big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return ethtypes.Log{
		Address: pool,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(searcher.Bytes()),
			common.BytesToHash(searcher.Bytes()),
		},
		Data:        data,
		BlockNumber: 100,
		TxHash:      arbTx,
		TxIndex:     3,
		Index:       index,
	}
}

func newTestInspector(t *testing.T, onlyProfitable bool) *Inspector {
	t.Helper()
	registry, err := dex.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	pools := staticPools{
		poolA: {Address: poolA, Factory: v3Factory, Assets: []common.Address{usdc, weth}},
		poolB: {Address: poolB, Factory: v3Factory, Assets: []common.Address{usdc, weth}},
	}
	cfg := &config.Config{}
	cfg.Inspector.OnlyProfitable = onlyProfitable

	return &Inspector{
		chainID:    types.ChainEthereum,
		native:     weth,
		decoder:    decoder.NewDecoder(registry),
		dispatcher: classifier.NewDispatcher(types.ChainEthereum, registry, directory.Default(), pools),
		detector:   mev.NewDetector(),
		logger:     output.NewLogger(weth),
		cfg:        cfg,
	}
}

// WETH -> USDC on poolA, USDC -> WETH on poolB for two WETH of profit
func cycleLogs(t *testing.T) []ethtypes.Log {
	return []ethtypes.Log{
		v3Swap(t, poolA, -3000, 10, 1),
		v3Swap(t, unknown, -1, 1, 2),
		v3Swap(t, poolB, 3000, -12, 3),
	}
}

func TestInspectDetectsArbitrage(t *testing.T) {
	i := newTestInspector(t, false)

	byBlock, err := i.inspect(context.Background(), cycleLogs(t))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	s := byBlock[100]
	if s == nil {
		t.Fatalf("no summary for block 100: %v", byBlock)
	}
	if s.swaps != 2 || s.failed != 1 {
		t.Fatalf("swaps=%d failed=%d", s.swaps, s.failed)
	}
	if len(s.arbs) != 1 {
		t.Fatalf("expected one arbitrage, got %d", len(s.arbs))
	}

	arb := s.arbs[0]
	if arb.TxHash != arbTx || arb.BlockNumber != 100 || arb.Account != searcher {
		t.Fatalf("unexpected arbitrage %+v", arb)
	}
	if arb.ProfitAsset != weth || arb.ProfitAmount.Int64() != 2 || len(arb.Swaps) != 2 {
		t.Fatalf("profit %s %s over %d swaps", arb.ProfitAsset.Hex(), arb.ProfitAmount, len(arb.Swaps))
	}

	if stats := i.logger.GetStats(); stats.ProfitByAsset[weth].Int64() != 2 {
		t.Fatalf("profit not reported: %v", stats.ProfitByAsset)
	}
}

func TestInspectOnlyProfitableFiltersForeignAssets(t *testing.T) {
	i := newTestInspector(t, true)
	i.native = usdc

	byBlock, err := i.inspect(context.Background(), cycleLogs(t))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if s := byBlock[100]; s == nil || s.swaps != 2 || len(s.arbs) != 0 {
		t.Fatalf("expected the WETH cycle to be filtered, got %+v", s)
	}
}

func TestInspectCanceled(t *testing.T) {
	i := newTestInspector(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := i.inspect(ctx, cycleLogs(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseTxHash(t *testing.T) {
	valid := "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
	h, err := parseTxHash(valid)
	if err != nil || h != common.HexToHash(valid) {
		t.Fatalf("parse %s: %s %v", valid, h.Hex(), err)
	}
	for _, bad := range []string{"", "0x", "5c504ed4", "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b220", "0xzz"} {
		if _, err := parseTxHash(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNextRange(t *testing.T) {
	tests := []struct {
		name          string
		from, current uint64
		batch         int
		want          uint64
		ok            bool
	}{
		{"genesis only", 0, 0, 100, 0, true},
		{"caught up", 11, 10, 100, 0, false},
		{"within batch", 5, 10, 100, 10, true},
		{"batch bound", 0, 1000, 100, 99, true},
		{"exact batch", 1, 100, 100, 100, true},
		{"zero batch", 7, 9, 0, 7, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextRange(tt.from, tt.current, tt.batch)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("nextRange(%d, %d, %d) = %d, %v; want %d, %v", tt.from, tt.current, tt.batch, got, ok, tt.want, tt.ok)
			}
		})
	}
}
