package uniswapv2

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

// Shared by Uniswap V2 and its forks.
// event Swap(address indexed sender, uint amount0In, uint amount1In, uint amount0Out, uint amount1Out, address indexed to)
const pairABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"sender","type":"address"},
    {"indexed":false,"name":"amount0In","type":"uint256"},
    {"indexed":false,"name":"amount1In","type":"uint256"},
    {"indexed":false,"name":"amount0Out","type":"uint256"},
    {"indexed":false,"name":"amount1Out","type":"uint256"},
    {"indexed":true,"name":"to","type":"address"}],
   "name":"Swap","type":"event"},
  {"inputs":[],"name":"factory","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	pairABI     abi.ABI
	pairABIOnce sync.Once
	pairABIErr  error
)

// PairABI returns the parsed V2 pair ABI
func PairABI() (abi.ABI, error) {
	pairABIOnce.Do(func() {
		pairABI, pairABIErr = abi.JSON(strings.NewReader(pairABIJSON))
	})
	return pairABI, pairABIErr
}

// FetchPool reads the creating factory and the token pair of a V2 pair
func FetchPool(ctx context.Context, conn classifier.Conn, address common.Address) (types.Pool, error) {
	parsed, err := PairABI()
	if err != nil {
		return types.Pool{}, fmt.Errorf("parse pair abi: %w", err)
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

// Parse maps a decoded Swap log to a canonical swap. The pair reports gross
// in and out amounts; their difference is the pool's delta per token.
func Parse(pool *types.Pool, log types.RawLog) (types.Event, error) {
	if pool == nil || len(pool.Assets) != 2 {
		return nil, classifier.Malformed("v2 pair needs two assets")
	}

	sender, err := classifier.AddressAt(log, 0)
	if err != nil {
		return nil, classifier.Malformed("sender: %v", err)
	}

	var amounts [4]*big.Int
	for i := range amounts {
		amounts[i], err = classifier.BigIntAt(log, i+1)
		if err != nil {
			return nil, classifier.Malformed("amount %d: %v", i, err)
		}
	}
	amount0In, amount1In, amount0Out, amount1Out := amounts[0], amounts[1], amounts[2], amounts[3]

	delta0 := new(big.Int).Sub(amount0In, amount0Out)
	delta1 := new(big.Int).Sub(amount1In, amount1Out)

	dir, err := classifier.ResolveDirection(pool.Assets, []*big.Int{delta0, delta1})
	if err != nil {
		return nil, err
	}
	return classifier.NewSwap(types.ProtocolUniswapV2, pool.Address, sender, dir, log), nil
}

// Classifiers returns the Uniswap V2 capability records
func Classifiers() ([]classifier.Classifier, error) {
	parsed, err := PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse uniswap v2 pair abi: %w", err)
	}
	return []classifier.Classifier{
		{
			Protocol: types.ProtocolUniswapV2,
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
