package uniswapv3

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// event Swap(address indexed sender, address indexed recipient, int256 amount0, int256 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick)
const poolABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"sender","type":"address"},
    {"indexed":true,"name":"recipient","type":"address"},
    {"indexed":false,"name":"amount0","type":"int256"},
    {"indexed":false,"name":"amount1","type":"int256"},
    {"indexed":false,"name":"sqrtPriceX96","type":"uint160"},
    {"indexed":false,"name":"liquidity","type":"uint128"},
    {"indexed":false,"name":"tick","type":"int24"}],
   "name":"Swap","type":"event"},
  {"inputs":[],"name":"factory","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	poolABI     abi.ABI
	poolABIOnce sync.Once
	poolABIErr  error
)

// PoolABI returns the parsed V3 pool ABI
func PoolABI() (abi.ABI, error) {
	poolABIOnce.Do(func() {
		poolABI, poolABIErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return poolABI, poolABIErr
}

// FetchPool reads the creating factory and the token pair of a V3 pool
func FetchPool(ctx context.Context, conn classifier.Conn, address common.Address) (types.Pool, error) {
	parsed, err := PoolABI()
	if err != nil {
		return types.Pool{}, fmt.Errorf("parse pool abi: %w", err)
	}

	factory, err := classifier.CallAddress(ctx, conn.Caller, address, parsed, "factory")
	if err != nil {
		return types.Pool{}, err
	}
	token0, err := classifier.CallAddress(ctx, conn.Caller, address, parsed, "token0")
	if err != nil {
		return types.Pool{}, err
	}
	token1, err := classifier.CallAddress(ctx, conn.Caller, address, parsed, "token1")
	if err != nil {
		return types.Pool{}, err
	}

	return types.Pool{
		Address: address,
		Factory: factory,
		Assets:  []common.Address{token0, token1},
	}, nil
}

// Parse maps a decoded Swap log to a canonical swap.
// amount0 and amount1 are signed deltas from the pool's perspective.
func Parse(pool *types.Pool, log types.RawLog) (types.Event, error) {
	if pool == nil || len(pool.Assets) != 2 {
		return nil, classifier.Malformed("v3 pool needs two assets")
	}

	sender, err := classifier.AddressAt(log, 0)
	if err != nil {
		return nil, classifier.Malformed("sender: %v", err)
	}
	amount0, err := classifier.BigIntAt(log, 2)
	if err != nil {
		return nil, classifier.Malformed("amount0: %v", err)
	}
	amount1, err := classifier.BigIntAt(log, 3)
	if err != nil {
		return nil, classifier.Malformed("amount1: %v", err)
	}

	dir, err := classifier.ResolveDirection(pool.Assets, []*big.Int{amount0, amount1})
	if err != nil {
		return nil, err
	}
	return classifier.NewSwap(types.ProtocolUniswapV3, pool.Address, sender, dir, log), nil
}

// Classifiers returns the Uniswap V3 capability records
func Classifiers() ([]classifier.Classifier, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse uniswap v3 pool abi: %w", err)
	}
	return []classifier.Classifier{
		{
			Protocol: types.ProtocolUniswapV3,
			Event: classifier.EventDescriptor{
				Name:      "Swap",
				Kind:      types.KindSwap,
				Parse:     Parse,
				FetchPool: FetchPool,
			},
			ABI: parsed,
		},
	}, nil
}
