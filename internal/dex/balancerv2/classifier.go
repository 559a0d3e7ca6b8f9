package balancerv2

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

// Swaps are emitted by the vault, not by the pool.
// event Swap(bytes32 indexed poolId, address indexed tokenIn, address indexed tokenOut, uint256 amountIn, uint256 amountOut)
const vaultABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"poolId","type":"bytes32"},
    {"indexed":true,"name":"tokenIn","type":"address"},
    {"indexed":true,"name":"tokenOut","type":"address"},
    {"indexed":false,"name":"amountIn","type":"uint256"},
    {"indexed":false,"name":"amountOut","type":"uint256"}],
   "name":"Swap","type":"event"},
  {"inputs":[{"name":"poolId","type":"bytes32"}],"name":"getPoolTokens","outputs":[
    {"name":"tokens","type":"address[]"},
    {"name":"balances","type":"uint256[]"},
    {"name":"lastChangeBlock","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const poolABIJSON = `[
  {"inputs":[],"name":"getPoolId","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getVault","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	abiOnce  sync.Once
	vaultABI abi.ABI
	poolABI  abi.ABI
	abiErr   error
)

func parseABIs() error {
	abiOnce.Do(func() {
		vaultABI, abiErr = abi.JSON(strings.NewReader(vaultABIJSON))
		if abiErr != nil {
			return
		}
		poolABI, abiErr = abi.JSON(strings.NewReader(poolABIJSON))
	})
	return abiErr
}

// VaultABI returns the parsed vault ABI
func VaultABI() (abi.ABI, error) {
	if err := parseABIs(); err != nil {
		return abi.ABI{}, err
	}
	return vaultABI, nil
}

// PoolAddress returns the pool encoded in the leading 20 bytes of poolId
func PoolAddress(log types.RawLog) (common.Address, error) {
	poolID, err := classifier.Bytes32At(log, 0)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(poolID[:20]), nil
}

// FetchPool reads the pool's vault and registered tokens. The vault plays
// the role of the factory for membership checks.
func FetchPool(ctx context.Context, conn classifier.Conn, address common.Address) (types.Pool, error) {
	if err := parseABIs(); err != nil {
		return types.Pool{}, fmt.Errorf("parse balancer v2 abi: %w", err)
	}

	vault, err := classifier.CallAddress(ctx, conn.Caller, address, poolABI, "getVault")
	if err != nil {
		return types.Pool{}, err
	}
	values, err := classifier.Call(ctx, conn.Caller, address, poolABI, "getPoolId")
	if err != nil {
		return types.Pool{}, err
	}
	poolID, ok := values[0].([32]byte)
	if !ok {
		return types.Pool{}, fmt.Errorf("getPoolId: unexpected type %T", values[0])
	}

	values, err = classifier.Call(ctx, conn.Caller, vault, vaultABI, "getPoolTokens", poolID)
	if err != nil {
		return types.Pool{}, err
	}
	tokens, ok := values[0].([]common.Address)
	if !ok {
		return types.Pool{}, fmt.Errorf("getPoolTokens: unexpected type %T", values[0])
	}

	return types.Pool{
		Address: address,
		Factory: vault,
		Assets:  tokens,
	}, nil
}

// Parse maps a vault Swap log to a canonical swap. The event does not name
// the trader, so the taker is left unset.
func Parse(pool *types.Pool, log types.RawLog) (types.Event, error) {
	if pool == nil {
		return nil, classifier.Malformed("balancer v2 swap needs a pool")
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
		return nil, classifier.Malformed("amountIn: %v", err)
	}
	amountOut, err := classifier.BigIntAt(log, 4)
	if err != nil {
		return nil, classifier.Malformed("amountOut: %v", err)
	}

	dir, err := classifier.ResolveDirection(
		[]common.Address{tokenIn, tokenOut},
		[]*big.Int{amountIn, new(big.Int).Neg(amountOut)},
	)
	if err != nil {
		return nil, err
	}
	return classifier.NewSwap(types.ProtocolBalancerV2, pool.Address, common.Address{}, dir, log), nil
}

// Classifiers returns the Balancer V2 capability records
func Classifiers() ([]classifier.Classifier, error) {
	parsed, err := VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse balancer v2 vault abi: %w", err)
	}
	return []classifier.Classifier{
		{
			Protocol: types.ProtocolBalancerV2,
			Event: classifier.EventDescriptor{
				Name:        "Swap",
				Kind:        types.KindSwap,
				Parse:       Parse,
				FetchPool:   FetchPool,
				PoolAddress: PoolAddress,
			},
			ABI: parsed,
		},
	}, nil
}
