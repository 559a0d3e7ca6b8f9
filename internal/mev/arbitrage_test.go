package mev

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/pkg/types"
)

var (
	assetA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assetB = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	assetC = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	assetD = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")

	bot    = common.HexToAddress("0x0000000000000000000000000000000000000b07")
	router = common.HexToAddress("0x000000000000000000000000000000000000dead")
	owner  = common.HexToAddress("0x0000000000000000000000000000000000000a11")

	txHash = common.HexToHash("0xfeed")
)

// leg builds a swap in which taker supplies in of from and receives out of to
func leg(logIndex uint, from common.Address, in int64, to common.Address, out int64) types.Swap {
	return types.Swap{
		Protocol:    types.ProtocolUniswapV2,
		Maker:       common.BigToAddress(big.NewInt(int64(0x1000 + logIndex))),
		MakerAsset:  to,
		MakerAmount: big.NewInt(out),
		Taker:       bot,
		TakerAsset:  from,
		TakerAmount: big.NewInt(in),
		Transaction: types.TxRef{Hash: txHash, BlockNumber: 17_000_000, Index: 3},
		Event:       types.LogRef{LogIndex: logIndex},
	}
}

func TestGetArbitragesThreeLegCycle(t *testing.T) {
	swaps := []types.Swap{
		leg(1, assetA, 100, assetB, 98),
		leg(3, assetB, 98, assetC, 99),
		leg(5, assetC, 99, assetA, 101),
	}

	arbs := GetArbitrages(swaps, nil)
	if len(arbs) != 1 {
		t.Fatalf("expected one arbitrage, got %d", len(arbs))
	}
	arb := arbs[0]
	if arb.ProfitAsset != assetA || arb.ProfitAmount.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("profit = %s %s", arb.ProfitAsset.Hex(), arb.ProfitAmount)
	}
	if len(arb.Swaps) != 3 || arb.Account != bot || arb.TxHash != txHash || arb.BlockNumber != 17_000_000 {
		t.Fatalf("unexpected arbitrage %+v", arb)
	}
}

func TestGetArbitragesLosingCycle(t *testing.T) {
	swaps := []types.Swap{
		leg(1, assetA, 100, assetB, 98),
		leg(3, assetB, 98, assetC, 99),
		leg(5, assetC, 99, assetA, 98),
	}
	if arbs := GetArbitrages(swaps, nil); len(arbs) != 0 {
		t.Fatalf("expected no arbitrage, got %+v", arbs)
	}

	breakEven := []types.Swap{
		leg(1, assetA, 100, assetB, 98),
		leg(2, assetB, 98, assetA, 100),
	}
	if arbs := GetArbitrages(breakEven, nil); len(arbs) != 0 {
		t.Fatalf("break-even cycle reported: %+v", arbs)
	}
}

func TestGetArbitragesPrefersMaximalCycle(t *testing.T) {
	swaps := []types.Swap{
		leg(0, assetA, 100, assetB, 50),
		leg(1, assetB, 50, assetC, 60),
		leg(2, assetC, 60, assetB, 55),
		leg(3, assetB, 55, assetA, 120),
	}

	arbs := GetArbitrages(swaps, nil)
	if len(arbs) != 1 {
		t.Fatalf("expected one arbitrage, got %d: %+v", len(arbs), arbs)
	}
	if len(arbs[0].Swaps) != 4 || arbs[0].ProfitAsset != assetA || arbs[0].ProfitAmount.Int64() != 20 {
		t.Fatalf("unexpected arbitrage %+v", arbs[0])
	}
}

func TestGetArbitragesDisjointCycles(t *testing.T) {
	swaps := []types.Swap{
		leg(0, assetA, 10, assetB, 20),
		leg(1, assetB, 20, assetA, 11),
		leg(2, assetC, 5, assetD, 7),
		leg(3, assetD, 7, assetC, 9),
	}

	arbs := GetArbitrages(swaps, nil)
	if len(arbs) != 2 {
		t.Fatalf("expected two arbitrages, got %d", len(arbs))
	}
	if arbs[0].ProfitAsset != assetA || arbs[0].ProfitAmount.Int64() != 1 {
		t.Fatalf("first arbitrage %+v", arbs[0])
	}
	if arbs[1].ProfitAsset != assetC || arbs[1].ProfitAmount.Int64() != 4 {
		t.Fatalf("second arbitrage %+v", arbs[1])
	}
}

func TestGetArbitragesSeparatesAccounts(t *testing.T) {
	other := leg(1, assetB, 98, assetA, 150)
	other.Taker = common.HexToAddress("0x0000000000000000000000000000000000000777")

	swaps := []types.Swap{
		leg(0, assetA, 100, assetB, 98),
		other,
	}
	if arbs := GetArbitrages(swaps, nil); len(arbs) != 0 {
		t.Fatalf("cycle across different takers reported: %+v", arbs)
	}

	// an unknown taker, as for vault swaps, joins any path
	vaultLeg := leg(1, assetB, 98, assetA, 150)
	vaultLeg.Taker = common.Address{}
	arbs := GetArbitrages([]types.Swap{leg(0, assetA, 100, assetB, 98), vaultLeg}, nil)
	if len(arbs) != 1 || arbs[0].Account != bot {
		t.Fatalf("expected one arbitrage by the bot, got %+v", arbs)
	}
}

func TestGetArbitragesExcludesMalformedSwaps(t *testing.T) {
	zero := leg(2, assetB, 0, assetC, 0)
	same := leg(3, assetB, 5, assetB, 6)
	foreign := leg(4, assetB, 1, assetC, 1)
	foreign.Transaction.Hash = common.HexToHash("0xbeef")
	missing := leg(5, assetB, 1, assetC, 1)
	missing.MakerAmount = nil
	stale := leg(1, assetB, 1, assetD, 1)

	swaps := []types.Swap{
		leg(1, assetA, 100, assetB, 98),
		zero,
		same,
		foreign,
		missing,
		stale,
		leg(6, assetB, 98, assetA, 101),
	}

	var excluded []*DetectionInputError
	d := NewDetector()
	d.OnExcluded = func(err *DetectionInputError) {
		excluded = append(excluded, err)
	}

	arbs := d.GetArbitrages(swaps, nil)
	if len(excluded) != 5 {
		t.Fatalf("expected 5 exclusions, got %d", len(excluded))
	}
	for _, err := range excluded {
		if err.Reason == "" || err.Error() == "" {
			t.Fatalf("exclusion without reason: %+v", err)
		}
	}
	if len(arbs) != 1 || arbs[0].ProfitAmount.Int64() != 1 || len(arbs[0].Swaps) != 2 {
		t.Fatalf("expected detection to continue past bad swaps, got %+v", arbs)
	}
}

func TestGetArbitragesExcludesOnlyStrayLogIndex(t *testing.T) {
	swaps := []types.Swap{
		leg(10, assetC, 5, assetD, 6),
		leg(1, assetA, 100, assetB, 98),
		leg(2, assetB, 98, assetA, 101),
	}

	var excluded []*DetectionInputError
	d := NewDetector()
	d.OnExcluded = func(err *DetectionInputError) {
		excluded = append(excluded, err)
	}

	arbs := d.GetArbitrages(swaps, nil)
	if len(excluded) != 1 || excluded[0].Swap.Event.LogIndex != 10 {
		t.Fatalf("expected only the swap at log 10 excluded, got %+v", excluded)
	}
	if len(arbs) != 1 || arbs[0].ProfitAmount.Int64() != 3 || len(arbs[0].Swaps) != 2 {
		t.Fatalf("expected one arbitrage with profit 3, got %+v", arbs)
	}
}

func TestGetArbitragesIgnoresEarlierTransfers(t *testing.T) {
	first := leg(3, assetA, 100, assetB, 98)
	last := leg(5, assetB, 98, assetA, 105)
	first.Taker, last.Taker = router, router
	decoy := common.HexToAddress("0x0000000000000000000000000000000000000d0e")

	transfers := []types.Transfer{
		{Asset: assetA, From: last.Maker, To: decoy, Amount: big.NewInt(105), Event: types.LogRef{LogIndex: 1}},
		{Asset: assetA, From: last.Maker, To: router, Amount: big.NewInt(105), Event: types.LogRef{LogIndex: 4}},
		{Asset: assetA, From: router, To: owner, Amount: big.NewInt(105), Event: types.LogRef{LogIndex: 6}},
	}

	arbs := GetArbitrages([]types.Swap{first, last}, transfers)
	if len(arbs) != 1 || arbs[0].Account != owner {
		t.Fatalf("expected proceeds attributed to %s, got %+v", owner.Hex(), arbs)
	}
}

func TestGetArbitragesAttributesRoutedProceeds(t *testing.T) {
	first := leg(1, assetA, 100, assetB, 98)
	last := leg(3, assetB, 98, assetA, 105)
	first.Taker, last.Taker = router, router

	transfers := []types.Transfer{
		{Asset: assetA, From: owner, To: first.Maker, Amount: big.NewInt(100), Event: types.LogRef{LogIndex: 0}},
		{Asset: assetA, From: last.Maker, To: router, Amount: big.NewInt(105), Event: types.LogRef{LogIndex: 2}},
		{Asset: assetA, From: router, To: owner, Amount: big.NewInt(105), Event: types.LogRef{LogIndex: 4}},
	}

	arbs := GetArbitrages([]types.Swap{first, last}, transfers)
	if len(arbs) != 1 {
		t.Fatalf("expected one arbitrage, got %d", len(arbs))
	}
	if arbs[0].Account != owner {
		t.Fatalf("account = %s, want %s", arbs[0].Account.Hex(), owner.Hex())
	}

	// proceeds that stay with a pool of the cycle keep the taker
	transfers[2].To = first.Maker
	if arbs := GetArbitrages([]types.Swap{first, last}, transfers); arbs[0].Account != router {
		t.Fatalf("account = %s, want %s", arbs[0].Account.Hex(), router.Hex())
	}
}

func TestGetArbitragesNeedsTwoSwaps(t *testing.T) {
	if arbs := GetArbitrages([]types.Swap{leg(0, assetA, 1, assetB, 2)}, nil); arbs != nil {
		t.Fatalf("expected nil, got %+v", arbs)
	}
	if arbs := GetArbitrages(nil, nil); arbs != nil {
		t.Fatalf("expected nil, got %+v", arbs)
	}
}
