// Package mev projects classified events into ordered swaps and transfers
// and detects same-transaction arbitrage over them.
package mev

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/pkg/types"
)

// GetSwaps returns the swaps among events in chain order
func GetSwaps(events []types.Event) []types.Swap {
	var swaps []types.Swap
	for _, e := range events {
		switch s := e.(type) {
		case types.Swap:
			swaps = append(swaps, s)
		case *types.Swap:
			if s != nil {
				swaps = append(swaps, *s)
			}
		}
	}
	sort.SliceStable(swaps, func(i, j int) bool {
		return swaps[i].Position().Less(swaps[j].Position())
	})
	return swaps
}

// GetTransfers returns the transfers among events in chain order
func GetTransfers(events []types.Event) []types.Transfer {
	var transfers []types.Transfer
	for _, e := range events {
		switch t := e.(type) {
		case types.Transfer:
			transfers = append(transfers, t)
		case *types.Transfer:
			if t != nil {
				transfers = append(transfers, *t)
			}
		}
	}
	sort.SliceStable(transfers, func(i, j int) bool {
		return transfers[i].Position().Less(transfers[j].Position())
	})
	return transfers
}

// TxEvents holds the projected events of one transaction
type TxEvents struct {
	Hash        common.Hash
	BlockNumber uint64
	Index       uint
	Swaps       []types.Swap
	Transfers   []types.Transfer
}

// SplitByTransaction groups events per transaction. Groups come back in
// chain order of the transactions.
func SplitByTransaction(events []types.Event) []TxEvents {
	byHash := make(map[common.Hash][]types.Event)
	first := make(map[common.Hash]types.Position)
	for _, e := range events {
		if e == nil {
			continue
		}
		h := e.TxHash()
		if p, ok := first[h]; !ok || e.Position().Less(p) {
			first[h] = e.Position()
		}
		byHash[h] = append(byHash[h], e)
	}

	out := make([]TxEvents, 0, len(byHash))
	for h, group := range byHash {
		p := first[h]
		out = append(out, TxEvents{
			Hash:        h,
			BlockNumber: p.BlockNumber,
			Index:       p.TxIndex,
			Swaps:       GetSwaps(group),
			Transfers:   GetTransfers(group),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Hash.Hex() < out[j].Hash.Hex()
	})
	return out
}
