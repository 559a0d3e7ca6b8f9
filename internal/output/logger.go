package output

import (
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/devlongs/mev-inspect/internal/config"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// nativeDecimals is the precision of every supported chain's native asset
const nativeDecimals = 18

// Logger handles output formatting for detected MEV
type Logger struct {
	native common.Address

	mu    sync.Mutex
	stats *Stats
}

// Stats tracks MEV detection statistics
type Stats struct {
	BlocksProcessed uint64
	SwapsDetected   uint64
	TransfersSeen   uint64
	ArbitragesFound uint64
	FailedLogs      uint64
	ProfitByAsset   map[common.Address]*big.Int
	StartTime       time.Time
}

// Setup configures the global zerolog logger
func Setup(cfg config.LoggingConfig) {
	switch cfg.Format {
	case "json":
		// Default JSON output
	default:
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// NewLogger creates a reporter. native is the chain's wrapped native asset,
// whose amounts are formatted in whole units.
func NewLogger(native common.Address) *Logger {
	return &Logger{
		native: native,
		stats: &Stats{
			ProfitByAsset: make(map[common.Address]*big.Int),
			StartTime:     time.Now(),
		},
	}
}

// LogBlockComplete logs completion of block processing
func (l *Logger) LogBlockComplete(blockNumber uint64, swaps, transfers, arbs, failed int, duration time.Duration) {
	l.mu.Lock()
	l.stats.BlocksProcessed++
	l.stats.SwapsDetected += uint64(swaps)
	l.stats.TransfersSeen += uint64(transfers)
	l.stats.ArbitragesFound += uint64(arbs)
	l.stats.FailedLogs += uint64(failed)
	l.mu.Unlock()

	log.Info().
		Uint64("block", blockNumber).
		Int("swaps", swaps).
		Int("transfers", transfers).
		Int("arbitrages", arbs).
		Int("failedLogs", failed).
		Dur("duration", duration).
		Msg("Block processed")
}

// LogArbitrage logs a detected arbitrage
func (l *Logger) LogArbitrage(arb *types.Arbitrage) {
	l.mu.Lock()
	total, ok := l.stats.ProfitByAsset[arb.ProfitAsset]
	if !ok {
		total = new(big.Int)
		l.stats.ProfitByAsset[arb.ProfitAsset] = total
	}
	total.Add(total, arb.ProfitAmount)
	l.mu.Unlock()

	ev := log.Info().
		Str("txHash", arb.TxHash.Hex()).
		Uint64("block", arb.BlockNumber).
		Str("account", arb.Account.Hex()).
		Str("profitAsset", arb.ProfitAsset.Hex()).
		Str("profit", arb.ProfitAmount.String())
	if arb.ProfitAsset == l.native {
		ev = ev.Str("profitNative", FormatUnits(arb.ProfitAmount, nativeDecimals))
	}
	ev.Str("path", BuildPath(arb.Swaps)).
		Int("hops", len(arb.Swaps)).
		Msg("ARBITRAGE DETECTED")
}

// LogSwap logs a single swap event (debug level)
func (l *Logger) LogSwap(swap *types.Swap) {
	log.Debug().
		Str("txHash", swap.Transaction.Hash.Hex()).
		Uint("logIndex", swap.Event.LogIndex).
		Str("protocol", string(swap.Protocol)).
		Str("pool", swap.Maker.Hex()).
		Str("taker", swap.Taker.Hex()).
		Str("in", swap.TakerAsset.Hex()).
		Str("amountIn", swap.TakerAmount.String()).
		Str("out", swap.MakerAsset.Hex()).
		Str("amountOut", swap.MakerAmount.String()).
		Msg("Swap detected")
}

// LogStats logs current statistics
func (l *Logger) LogStats() {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.stats.StartTime)
	blocksPerSec := float64(l.stats.BlocksProcessed) / elapsed.Seconds()

	nativeProfit := new(big.Int)
	if p, ok := l.stats.ProfitByAsset[l.native]; ok {
		nativeProfit = p
	}

	log.Info().
		Uint64("blocksProcessed", l.stats.BlocksProcessed).
		Uint64("swapsDetected", l.stats.SwapsDetected).
		Uint64("transfersSeen", l.stats.TransfersSeen).
		Uint64("arbitragesFound", l.stats.ArbitragesFound).
		Uint64("failedLogs", l.stats.FailedLogs).
		Int("profitAssets", len(l.stats.ProfitByAsset)).
		Str("nativeProfit", FormatUnits(nativeProfit, nativeDecimals)).
		Float64("blocksPerSec", blocksPerSec).
		Dur("uptime", elapsed).
		Msg("MEV Inspector Stats")
}

// LogError logs an error
func (l *Logger) LogError(err error, context string) {
	log.Error().
		Err(err).
		Str("context", context).
		Msg("Error occurred")
}

// GetStats returns a copy of the current statistics
func (l *Logger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := *l.stats
	s.ProfitByAsset = make(map[common.Address]*big.Int, len(l.stats.ProfitByAsset))
	for asset, amount := range l.stats.ProfitByAsset {
		s.ProfitByAsset[asset] = new(big.Int).Set(amount)
	}
	return s
}

// FormatUnits renders an integer amount with the given number of decimals,
// fixed to six places
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0.000000"
	}
	return decimal.NewFromBigInt(amount, -decimals).StringFixed(6)
}

// BuildPath renders the token flow of a cycle, e.g. 0xC02aaA39 -> 0xA0b86991 -> 0xC02aaA39
func BuildPath(swaps []types.Swap) string {
	if len(swaps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(short(swaps[0].TakerAsset))
	for _, s := range swaps {
		b.WriteString(" -> ")
		b.WriteString(short(s.MakerAsset))
	}
	return b.String()
}

func short(a common.Address) string {
	return a.Hex()[:10]
}
