package classifier

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/pkg/types"
)

// Direction is the resolved trade direction of a swap
type Direction struct {
	MakerAsset  common.Address
	MakerAmount *big.Int
	TakerAsset  common.Address
	TakerAmount *big.Int
}

// ResolveDirection interprets per-asset deltas reported from the pool's
// perspective. The single negative delta is what the pool paid out (maker
// asset), the single positive delta is what it received (taker asset).
// Zero deltas mean the asset did not move and are ignored.
func ResolveDirection(assets []common.Address, deltas []*big.Int) (Direction, error) {
	if len(assets) != len(deltas) {
		return Direction{}, Malformed("%d assets but %d deltas", len(assets), len(deltas))
	}

	out, in := -1, -1
	for i, d := range deltas {
		if d == nil {
			return Direction{}, Malformed("missing delta for asset %d", i)
		}
		switch d.Sign() {
		case -1:
			if out >= 0 {
				return Direction{}, Malformed("more than one asset paid out")
			}
			out = i
		case 1:
			if in >= 0 {
				return Direction{}, Malformed("more than one asset received")
			}
			in = i
		}
	}
	if out < 0 || in < 0 {
		return Direction{}, Malformed("expected one outgoing and one incoming asset")
	}
	if assets[out] == assets[in] {
		return Direction{}, Malformed("same asset %s on both sides", assets[out].Hex())
	}

	return Direction{
		MakerAsset:  assets[out],
		MakerAmount: new(big.Int).Neg(deltas[out]),
		TakerAsset:  assets[in],
		TakerAmount: new(big.Int).Set(deltas[in]),
	}, nil
}

// NewSwap assembles a canonical swap from a resolved direction
func NewSwap(protocol types.Protocol, pool common.Address, taker common.Address, dir Direction, log types.RawLog) types.Swap {
	return types.Swap{
		Protocol:    protocol,
		Maker:       pool,
		MakerAsset:  dir.MakerAsset,
		MakerAmount: dir.MakerAmount,
		Taker:       taker,
		TakerAsset:  dir.TakerAsset,
		TakerAmount: dir.TakerAmount,
		Transaction: TxRefOf(log),
		Event:       LogRefOf(log),
	}
}

// TxRefOf returns the transaction reference of a log
func TxRefOf(log types.RawLog) types.TxRef {
	return types.TxRef{
		Hash:        log.TransactionHash,
		BlockNumber: log.BlockNumber,
		Index:       log.TransactionIndex,
	}
}

// LogRefOf returns the event reference of a log
func LogRefOf(log types.RawLog) types.LogRef {
	return types.LogRef{Address: log.Address, LogIndex: log.LogIndex}
}
