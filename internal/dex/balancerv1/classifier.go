package balancerv1

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// event LOG_SWAP(address indexed caller, address indexed tokenIn, address indexed tokenOut, uint256 tokenAmountIn, uint256 tokenAmountOut)
const poolABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"caller","type":"address"},
    {"indexed":true,"name":"tokenIn","type":"address"},
    {"indexed":true,"name":"tokenOut","type":"address"},
    {"indexed":false,"name":"tokenAmountIn","type":"uint256"},
    {"indexed":false,"name":"tokenAmountOut","type":"uint256"}],
   "name":"LOG_SWAP","type":"event"},
  {"inputs":[],"name":"getCurrentTokens","outputs":[{"name":"tokens","type":"address[]"}],"stateMutability":"view","type":"function"}
]`

const factoryABIJSON = `[
  {"inputs":[{"name":"b","type":"address"}],"name":"isBPool","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

var (
	abiOnce    sync.Once
	poolABI    abi.ABI
	factoryABI abi.ABI
	abiErr     error
)

func parseABIs() error {
	abiOnce.Do(func() {
		poolABI, abiErr = abi.JSON(strings.NewReader(poolABIJSON))
		if abiErr != nil {
			return
		}
		factoryABI, abiErr = abi.JSON(strings.NewReader(factoryABIJSON))
	})
	return abiErr
}

// PoolABI returns the parsed BPool ABI
func PoolABI() (abi.ABI, error) {
	if err := parseABIs(); err != nil {
		return abi.ABI{}, err
	}
	return poolABI, nil
}

// FetchPool asks each known BFactory whether it created the pool, then reads
// the pool's tokens. A pool no known factory claims comes back without a
// factory and without assets.
func FetchPool(ctx context.Context, conn classifier.Conn, address common.Address) (types.Pool, error) {
	if err := parseABIs(); err != nil {
		return types.Pool{}, fmt.Errorf("parse balancer v1 abi: %w", err)
	}
	if conn.Directory == nil {
		return types.Pool{}, errors.New("directory is nil")
	}

	pool := types.Pool{Address: address}
	for _, f := range conn.Directory.SwapFactories(conn.ChainID, types.ProtocolBalancerV1) {
		values, err := classifier.Call(ctx, conn.Caller, f.Address, factoryABI, "isBPool", address)
		if err != nil {
			return types.Pool{}, err
		}
		if ok, _ := values[0].(bool); ok {
			pool.Factory = f.Address
			break
		}
	}
	if pool.Factory == (common.Address{}) {
		return pool, nil
	}

	values, err := classifier.Call(ctx, conn.Caller, address, poolABI, "getCurrentTokens")
	if err != nil {
		return types.Pool{}, err
	}
	tokens, ok := values[0].([]common.Address)
	if !ok {
		return types.Pool{}, fmt.Errorf("getCurrentTokens: unexpected type %T", values[0])
	}
	pool.Assets = tokens
	return pool, nil
}

// Parse maps a LOG_SWAP to a canonical swap. The event names the traded
// tokens explicitly; the pool receives tokenIn and pays out tokenOut.
func Parse(pool *types.Pool, log types.RawLog) (types.Event, error) {
	if pool == nil {
		return nil, classifier.Malformed("balancer v1 swap needs a pool")
	}

	caller, err := classifier.AddressAt(log, 0)
	if err != nil {
		return nil, classifier.Malformed("caller: %v", err)
	}
	tokenIn, err := classifier.AddressAt(log, 1)
	if err != nil {
		return nil, classifier.Malformed("tokenIn: %v", err)
	}
	tokenOut, err := classifier.AddressAt(log, 2)
	if err != nil {
		return nil, classifier.Malformed("tokenOut: %v", err)
	}
	amountIn, err := classifier.BigIntAt(log, 3)
	if err != nil {
		return nil, classifier.Malformed("tokenAmountIn: %v", err)
	}
	amountOut, err := classifier.BigIntAt(log, 4)
	if err != nil {
		return nil, classifier.Malformed("tokenAmountOut: %v", err)
	}

	if !holds(pool, tokenIn) || !holds(pool, tokenOut) {
		return nil, classifier.Malformed("token not held by pool %s", pool.Address.Hex())
	}

	dir, err := classifier.ResolveDirection(
		[]common.Address{tokenIn, tokenOut},
		[]*big.Int{amountIn, new(big.Int).Neg(amountOut)},
	)
	if err != nil {
		return nil, err
	}
	return classifier.NewSwap(types.ProtocolBalancerV1, pool.Address, caller, dir, log), nil
}

func holds(pool *types.Pool, asset common.Address) bool {
	for _, a := range pool.Assets {
		if a == asset {
			return true
		}
	}
	return false
}

// Classifiers returns the Balancer V1 capability records
func Classifiers() ([]classifier.Classifier, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse balancer v1 pool abi: %w", err)
	}
	return []classifier.Classifier{
		{
			Protocol: types.ProtocolBalancerV1,
			Event: classifier.EventDescriptor{
				Name:      "LOG_SWAP",
				Kind:      types.KindSwap,
				Parse:     Parse,
				FetchPool: FetchPool,
			},
			ABI: parsed,
		},
	}, nil
}
