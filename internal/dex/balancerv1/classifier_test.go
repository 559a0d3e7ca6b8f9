package balancerv1

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/internal/directory"
	"github.com/devlongs/mev-inspect/pkg/types"
)

var (
	bpool    = common.HexToAddress("0x1eff8af5d577060ba4ac8a29a13525bb0ee2a3d5")
	bfactory = common.HexToAddress("0x9424B1412450D0f8Fc2255FAf6046b98213B76Bd")
	dai      = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	bal      = common.HexToAddress("0xba100000625a3754423978a60c9317c58a424e3D")
	caller   = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func logSwap(tokenIn, tokenOut common.Address, in, out int64) types.RawLog {
	return types.RawLog{
		Name:    "LOG_SWAP",
		Address: bpool,
		Values:  []interface{}{caller, tokenIn, tokenOut, big.NewInt(in), big.NewInt(out)},
	}
}

func TestParse(t *testing.T) {
	pool := &types.Pool{Address: bpool, Factory: bfactory, Assets: []common.Address{dai, weth}}

	event, err := Parse(pool, logSwap(dai, weth, 3000, 1))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	swap := event.(types.Swap)
	if swap.MakerAsset != weth || swap.MakerAmount.Int64() != 1 {
		t.Fatalf("maker = %s %s", swap.MakerAsset.Hex(), swap.MakerAmount)
	}
	if swap.TakerAsset != dai || swap.TakerAmount.Int64() != 3000 {
		t.Fatalf("taker = %s %s", swap.TakerAsset.Hex(), swap.TakerAmount)
	}
	if swap.Taker != caller || swap.Maker != bpool {
		t.Fatalf("parties = %s %s", swap.Maker.Hex(), swap.Taker.Hex())
	}
}

func TestParseRejectsForeignToken(t *testing.T) {
	pool := &types.Pool{Address: bpool, Factory: bfactory, Assets: []common.Address{dai, weth}}

	if _, err := Parse(pool, logSwap(bal, weth, 1, 1)); !errors.Is(err, classifier.ErrMalformedSwap) {
		t.Fatalf("expected malformed swap, got %v", err)
	}
	if _, err := Parse(pool, logSwap(dai, weth, 0, 1)); !errors.Is(err, classifier.ErrMalformedSwap) {
		t.Fatalf("expected malformed swap for zero input, got %v", err)
	}
}

type bpoolCaller struct {
	known  map[common.Address]bool
	tokens []common.Address
	calls  int
}

func (c *bpoolCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.calls++
	if err := parseABIs(); err != nil {
		return nil, err
	}
	if method, err := factoryABI.MethodById(msg.Data[:4]); err == nil {
		return method.Outputs.Pack(c.known[*msg.To])
	}
	method, err := poolABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(c.tokens)
}

func TestFetchPool(t *testing.T) {
	other := common.HexToAddress("0x4444444444444444444444444444444444444444")
	dir := directory.New(map[types.ChainID]directory.Chain{
		types.ChainEthereum: {
			SwapFactories: map[types.Protocol][]types.Factory{
				types.ProtocolBalancerV1: {
					{Label: "Other", Address: other},
					{Label: "Balancer V1", Address: bfactory},
				},
			},
		},
	})

	caller := &bpoolCaller{
		known:  map[common.Address]bool{bfactory: true},
		tokens: []common.Address{dai, weth, bal},
	}
	conn := classifier.Conn{ChainID: types.ChainEthereum, Caller: caller, Directory: dir}

	pool, err := FetchPool(context.Background(), conn, bpool)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if pool.Factory != bfactory {
		t.Fatalf("factory = %s", pool.Factory.Hex())
	}
	if len(pool.Assets) != 3 || pool.Assets[2] != bal {
		t.Fatalf("assets = %v", pool.Assets)
	}
}

func TestFetchPoolUnclaimed(t *testing.T) {
	dir := directory.New(map[types.ChainID]directory.Chain{
		types.ChainEthereum: {
			SwapFactories: map[types.Protocol][]types.Factory{
				types.ProtocolBalancerV1: {{Label: "Balancer V1", Address: bfactory}},
			},
		},
	})
	caller := &bpoolCaller{known: map[common.Address]bool{}}
	conn := classifier.Conn{ChainID: types.ChainEthereum, Caller: caller, Directory: dir}

	pool, err := FetchPool(context.Background(), conn, bpool)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if pool.Factory != (common.Address{}) || len(pool.Assets) != 0 {
		t.Fatalf("expected unclaimed pool, got %+v", pool)
	}
	if caller.calls != 1 {
		t.Fatalf("expected only the factory query, got %d calls", caller.calls)
	}
}
