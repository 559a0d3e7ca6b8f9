// Package classifier turns protocol-specific decoded logs into canonical
// swaps and transfers. Each protocol contributes independent capability
// records; the dispatcher routes logs to them without protocol knowledge.
package classifier

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/internal/directory"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// ContractCaller issues read-only contract calls
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Conn is what a pool fetcher needs to query topology on one chain
type Conn struct {
	ChainID   types.ChainID
	Caller    ContractCaller
	Directory directory.Directory
}

// FetchPoolFunc loads the immutable topology of a pool
type FetchPoolFunc func(ctx context.Context, conn Conn, address common.Address) (types.Pool, error)

// ParseFunc maps a decoded log to a canonical event. It must be pure.
// pool is nil for events that need no pool context.
type ParseFunc func(pool *types.Pool, log types.RawLog) (types.Event, error)

// PoolAddressFunc extracts the pool from a log emitted by a shared
// deployment rather than by the pool itself
type PoolAddressFunc func(log types.RawLog) (common.Address, error)

// EventDescriptor describes one recognised event of a protocol
type EventDescriptor struct {
	Name  string
	Kind  types.EventKind
	Parse ParseFunc

	// FetchPool is nil when the event needs no pool context
	FetchPool FetchPoolFunc

	// PoolAddress is nil when the emitting contract is the pool
	PoolAddress PoolAddressFunc
}

// Classifier is the capability record of one (protocol, event) pair
type Classifier struct {
	Protocol types.Protocol
	Event    EventDescriptor
	ABI      abi.ABI
}

// Topic returns the event signature hash this classifier recognises
func (c Classifier) Topic() common.Hash {
	return c.ABI.Events[c.Event.Name].ID
}

// NeedsPool reports whether classification requires pool resolution
func (c Classifier) NeedsPool() bool {
	return c.Event.FetchPool != nil
}
