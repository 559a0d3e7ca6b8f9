package mev

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-inspect/internal/metrics"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// DetectionInputError reports a swap excluded from cycle search
type DetectionInputError struct {
	Swap   types.Swap
	Reason string
}

func (e *DetectionInputError) Error() string {
	return fmt.Sprintf("swap at log %d in tx %s excluded: %s",
		e.Swap.Event.LogIndex, e.Swap.Transaction.Hash.Hex(), e.Reason)
}

// Detector finds closed profitable swap cycles within one transaction.
// It holds no state between calls and is safe for concurrent use.
type Detector struct {
	// OnExcluded, if set, receives every swap dropped as malformed input
	OnExcluded func(*DetectionInputError)

	metrics *metrics.Metrics
}

// DetectorOption configures a Detector
type DetectorOption func(*Detector)

// WithDetectorMetrics records detections and exclusions
func WithDetectorMetrics(m *metrics.Metrics) DetectorOption {
	return func(d *Detector) {
		d.metrics = m
	}
}

// NewDetector creates a detector
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GetArbitrages runs a default detector over one transaction's events
func GetArbitrages(swaps []types.Swap, transfers []types.Transfer) []types.Arbitrage {
	return NewDetector().GetArbitrages(swaps, transfers)
}

// path is an open chain of swaps. It started by supplying startAmount of
// start and currently holds heldAmount of held.
type path struct {
	swaps       []int
	start       common.Address
	startAmount *big.Int
	held        common.Address
	heldAmount  *big.Int
	account     common.Address
}

type candidate struct {
	swaps  []int
	asset  common.Address
	profit *big.Int
}

// GetArbitrages returns the arbitrage cycles in swaps, which must belong to
// one transaction and be in log order. Overlapping cycles resolve to the one
// with the most swaps, then the earliest start. Results are ordered by the
// log index of their first swap.
func (d *Detector) GetArbitrages(swaps []types.Swap, transfers []types.Transfer) []types.Arbitrage {
	valid := d.validSwaps(swaps)
	if len(valid) < 2 {
		return nil
	}

	candidates := findCycles(valid)
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if len(candidates[i].swaps) != len(candidates[j].swaps) {
			return len(candidates[i].swaps) > len(candidates[j].swaps)
		}
		return valid[candidates[i].swaps[0]].Event.LogIndex < valid[candidates[j].swaps[0]].Event.LogIndex
	})

	used := make(map[int]bool)
	var accepted []candidate
	for _, c := range candidates {
		overlaps := false
		for _, i := range c.swaps {
			if used[i] {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		for _, i := range c.swaps {
			used[i] = true
		}
		accepted = append(accepted, c)
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].swaps[0] < accepted[j].swaps[0]
	})

	arbs := make([]types.Arbitrage, 0, len(accepted))
	for _, c := range accepted {
		cycle := make([]types.Swap, len(c.swaps))
		for k, i := range c.swaps {
			cycle[k] = valid[i]
		}
		arb := types.Arbitrage{
			TxHash:       cycle[0].Transaction.Hash,
			BlockNumber:  cycle[0].Transaction.BlockNumber,
			Account:      attributeAccount(cycle, transfers),
			ProfitAsset:  c.asset,
			ProfitAmount: c.profit,
			Swaps:        cycle,
		}
		log.Debug().
			Str("txHash", arb.TxHash.Hex()).
			Str("account", arb.Account.Hex()).
			Str("asset", arb.ProfitAsset.Hex()).
			Str("profit", arb.ProfitAmount.String()).
			Int("swaps", len(cycle)).
			Msg("Detected arbitrage")
		arbs = append(arbs, arb)
	}
	d.metrics.ArbitragesDetected(len(arbs))
	return arbs
}

func (d *Detector) validSwaps(swaps []types.Swap) []types.Swap {
	reasons := make([]string, len(swaps))
	var ordered []int
	for i, s := range swaps {
		switch {
		case s.MakerAmount == nil || s.TakerAmount == nil:
			reasons[i] = "missing amount"
		case s.MakerAmount.Sign() < 0 || s.TakerAmount.Sign() < 0:
			reasons[i] = "negative amount"
		case s.MakerAmount.Sign() == 0 && s.TakerAmount.Sign() == 0:
			reasons[i] = "zero amount on both sides"
		case s.MakerAsset == s.TakerAsset:
			reasons[i] = "same asset on both sides"
		case len(ordered) > 0 && s.Transaction.Hash != swaps[ordered[0]].Transaction.Hash:
			reasons[i] = "belongs to another transaction"
		default:
			ordered = append(ordered, i)
		}
	}
	for _, i := range outOfOrder(swaps, ordered) {
		reasons[i] = "log index out of order"
	}

	valid := make([]types.Swap, 0, len(swaps))
	for i, s := range swaps {
		if reasons[i] != "" {
			d.exclude(&DetectionInputError{Swap: s, Reason: reasons[i]})
			continue
		}
		valid = append(valid, s)
	}
	return valid
}

// outOfOrder returns the members of idx outside the longest run of strictly
// increasing log indexes. Ties keep the earliest run.
func outOfOrder(swaps []types.Swap, idx []int) []int {
	if len(idx) < 2 {
		return nil
	}
	length := make([]int, len(idx))
	prev := make([]int, len(idx))
	best := 0
	for j := range idx {
		length[j], prev[j] = 1, -1
		for k := 0; k < j; k++ {
			if swaps[idx[k]].Event.LogIndex < swaps[idx[j]].Event.LogIndex && length[k]+1 > length[j] {
				length[j], prev[j] = length[k]+1, k
			}
		}
		if length[j] > length[best] {
			best = j
		}
	}

	keep := make([]bool, len(idx))
	for j := best; j >= 0; j = prev[j] {
		keep[j] = true
	}
	var out []int
	for j, i := range idx {
		if !keep[j] {
			out = append(out, i)
		}
	}
	return out
}

func (d *Detector) exclude(err *DetectionInputError) {
	log.Debug().Err(err).Msg("Excluding swap from arbitrage detection")
	d.metrics.SwapExcluded()
	if d.OnExcluded != nil {
		d.OnExcluded(err)
	}
}

// findCycles extends open paths swap by swap. Paths are keyed by the asset
// they hold; a path closes when it holds its start asset again.
func findCycles(swaps []types.Swap) []candidate {
	open := make(map[common.Address][]*path)
	var found []candidate

	for i, s := range swaps {
		var kept, extended []*path
		for _, p := range open[s.TakerAsset] {
			if !sameAccount(p.account, s.Taker) {
				kept = append(kept, p)
				continue
			}
			next := p.extend(i, s)
			if next.held != next.start {
				extended = append(extended, next)
				continue
			}
			profit := new(big.Int).Sub(next.heldAmount, next.startAmount)
			if profit.Sign() > 0 {
				found = append(found, candidate{swaps: next.swaps, asset: next.start, profit: profit})
			}
		}
		if len(kept) == 0 {
			delete(open, s.TakerAsset)
		} else {
			open[s.TakerAsset] = kept
		}

		for _, p := range extended {
			open[p.held] = append(open[p.held], p)
		}
		open[s.MakerAsset] = append(open[s.MakerAsset], &path{
			swaps:       []int{i},
			start:       s.TakerAsset,
			startAmount: s.TakerAmount,
			held:        s.MakerAsset,
			heldAmount:  s.MakerAmount,
			account:     s.Taker,
		})
	}
	return found
}

func (p *path) extend(i int, s types.Swap) *path {
	account := p.account
	if account == (common.Address{}) {
		account = s.Taker
	}
	swaps := make([]int, len(p.swaps), len(p.swaps)+1)
	copy(swaps, p.swaps)
	return &path{
		swaps:       append(swaps, i),
		start:       p.start,
		startAmount: p.startAmount,
		held:        s.MakerAsset,
		heldAmount:  s.MakerAmount,
		account:     account,
	}
}

// sameAccount treats an unknown (zero) taker as compatible with any account
func sameAccount(a, b common.Address) bool {
	return a == b || a == (common.Address{}) || b == (common.Address{})
}

// attributeAccount returns the account that ended up with the proceeds. It
// starts from the cycle's taker and follows the final leg's output through
// later transfers of the same asset and amount, past routing contracts.
func attributeAccount(cycle []types.Swap, transfers []types.Transfer) common.Address {
	var account common.Address
	for _, s := range cycle {
		if s.Taker != (common.Address{}) {
			account = s.Taker
			break
		}
	}

	last := cycle[len(cycle)-1]
	pools := make(map[common.Address]bool, len(cycle))
	for _, s := range cycle {
		pools[s.Maker] = true
	}

	// pools pay out before logging the swap, so the final leg's output
	// follows the previous leg
	after := cycle[len(cycle)-2].Event.LogIndex
	hop := -1
	for i, t := range transfers {
		if t.Event.LogIndex > after && t.From == last.Maker && moves(t, last.MakerAsset, last.MakerAmount) {
			hop = i
			break
		}
	}
	if hop < 0 {
		return account
	}

	dest := transfers[hop].To
	for steps := 0; steps < len(transfers); steps++ {
		next := -1
		for i := hop + 1; i < len(transfers); i++ {
			t := transfers[i]
			if t.From == dest && moves(t, last.MakerAsset, last.MakerAmount) {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		hop, dest = next, transfers[next].To
	}

	if dest == (common.Address{}) || pools[dest] {
		return account
	}
	return dest
}

func moves(t types.Transfer, asset common.Address, amount *big.Int) bool {
	return t.Asset == asset && t.Amount != nil && t.Amount.Cmp(amount) == 0
}
