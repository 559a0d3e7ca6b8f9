package decoder

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// LogFilterer fetches logs from the chain
type LogFilterer interface {
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error)
}

// Decoder turns node logs into decoded records using the ABIs of the
// registered classifiers
type Decoder struct {
	events map[common.Hash]abi.Event
	topics []common.Hash
}

// NewDecoder creates a decoder for every event the registry recognises
func NewDecoder(registry *classifier.Registry) *Decoder {
	d := &Decoder{
		events: make(map[common.Hash]abi.Event),
		topics: registry.Topics(),
	}
	for _, c := range registry.Classifiers() {
		topic := c.Topic()
		if _, ok := d.events[topic]; ok {
			continue
		}
		d.events[topic] = c.ABI.Events[c.Event.Name]
	}
	return d
}

// Topics returns the event signatures the decoder understands
func (d *Decoder) Topics() []common.Hash {
	return append([]common.Hash(nil), d.topics...)
}

// FetchLogs fetches every log in the block range carrying a known event
// signature, in chain order
func (d *Decoder) FetchLogs(ctx context.Context, client LogFilterer, fromBlock, toBlock uint64) ([]ethtypes.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Topics:    [][]common.Hash{d.topics},
	}
	logs, err := client.GetLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get logs %d-%d: %w", fromBlock, toBlock, err)
	}
	SortLogs(logs)
	return logs, nil
}

// FilterTransaction keeps the logs of one transaction with a known event
// signature, in chain order
func (d *Decoder) FilterTransaction(logs []*ethtypes.Log) []ethtypes.Log {
	var out []ethtypes.Log
	for _, l := range logs {
		if l == nil || len(l.Topics) == 0 {
			continue
		}
		if _, ok := d.events[l.Topics[0]]; ok {
			out = append(out, *l)
		}
	}
	SortLogs(out)
	return out
}

// Decode decodes one log. ok is false when the signature is unknown or the
// log was removed by a reorg.
func (d *Decoder) Decode(l ethtypes.Log) (raw types.RawLog, ok bool, err error) {
	if len(l.Topics) == 0 || l.Removed {
		return types.RawLog{}, false, nil
	}
	event, known := d.events[l.Topics[0]]
	if !known {
		return types.RawLog{}, false, nil
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	// same signature, different indexing (ERC721 Transfer vs ERC20)
	if len(l.Topics)-1 != len(indexed) {
		return types.RawLog{}, false, fmt.Errorf("%s: expected %d indexed topics, got %d", event.Name, len(indexed), len(l.Topics)-1)
	}

	fields := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return types.RawLog{}, false, fmt.Errorf("%s topics: %w", event.Name, err)
	}
	data, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return types.RawLog{}, false, fmt.Errorf("%s data: %w", event.Name, err)
	}

	values := make([]interface{}, 0, len(event.Inputs))
	next := 0
	for _, arg := range event.Inputs {
		if arg.Indexed {
			values = append(values, fields[arg.Name])
			continue
		}
		values = append(values, data[next])
		next++
	}

	return types.RawLog{
		Values:           values,
		Name:             event.Name,
		Topic0:           l.Topics[0],
		Address:          l.Address,
		TransactionHash:  l.TxHash,
		TransactionIndex: l.TxIndex,
		LogIndex:         l.Index,
		BlockNumber:      l.BlockNumber,
		BlockHash:        l.BlockHash,
	}, true, nil
}

// DecodeAll decodes logs, skipping unknown and undecodable ones
func (d *Decoder) DecodeAll(logs []ethtypes.Log) []types.RawLog {
	out := make([]types.RawLog, 0, len(logs))
	for _, l := range logs {
		raw, ok, err := d.Decode(l)
		if err != nil {
			log.Debug().
				Err(err).
				Str("txHash", l.TxHash.Hex()).
				Uint("logIndex", l.Index).
				Str("address", l.Address.Hex()).
				Msg("Skipping undecodable log")
			continue
		}
		if ok {
			out = append(out, raw)
		}
	}
	return out
}

// GroupByTransaction groups logs by transaction hash
func GroupByTransaction(logs []types.RawLog) map[common.Hash][]types.RawLog {
	groups := make(map[common.Hash][]types.RawLog)
	for _, l := range logs {
		groups[l.TransactionHash] = append(groups[l.TransactionHash], l)
	}
	return groups
}

// SortLogs orders logs by block number, transaction index and log index
func SortLogs(logs []ethtypes.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		if logs[i].TxIndex != logs[j].TxIndex {
			return logs[i].TxIndex < logs[j].TxIndex
		}
		return logs[i].Index < logs[j].Index
	})
}
