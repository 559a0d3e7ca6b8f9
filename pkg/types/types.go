package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID identifies a supported network
type ChainID uint64

const (
	ChainEthereum ChainID = 1
	ChainPolygon  ChainID = 137
	ChainArbitrum ChainID = 42161
)

// Protocol tags the protocol family a classifier or deployment belongs to
type Protocol string

const (
	ProtocolUniswapV2  Protocol = "UniswapV2"
	ProtocolUniswapV3  Protocol = "UniswapV3"
	ProtocolBalancerV1 Protocol = "BalancerV1"
	ProtocolBalancerV2 Protocol = "BalancerV2"
	ProtocolERC20      Protocol = "ERC20"

	ProtocolCompoundV2 Protocol = "CompoundV2"
	ProtocolAaveV2     Protocol = "AaveV2"
	ProtocolAaveV3     Protocol = "AaveV3"
)

// SwapProtocols lists the protocols that emit swaps
var SwapProtocols = []Protocol{
	ProtocolUniswapV2,
	ProtocolUniswapV3,
	ProtocolBalancerV1,
	ProtocolBalancerV2,
}

// LendingProtocols lists the protocols with lending deployments
var LendingProtocols = []Protocol{
	ProtocolCompoundV2,
	ProtocolAaveV2,
	ProtocolAaveV3,
}

// EventKind is the canonical kind a classifier produces
type EventKind string

const (
	KindSwap     EventKind = "swap"
	KindTransfer EventKind = "transfer"
)

// Factory is a known deployment that creates pools
type Factory struct {
	Label   string
	Address common.Address
}

// AddressGroup is a set of cooperating contracts treated as one lending deployment
type AddressGroup []common.Address

// Pool holds the immutable topology of a liquidity venue.
// Factory is the deployment that created the pool (zero if unknown).
type Pool struct {
	Address common.Address
	Factory common.Address
	Assets  []common.Address
}

// RawLog is an already ABI-decoded log record.
// Values follow the event's input order, indexed arguments included.
type RawLog struct {
	Values           []interface{}
	Name             string
	Topic0           common.Hash
	Address          common.Address
	TransactionHash  common.Hash
	TransactionIndex uint
	LogIndex         uint
	BlockNumber      uint64
	BlockHash        common.Hash
}

// Position is the chain-order key of an event
type Position struct {
	BlockNumber uint64
	TxIndex     uint
	LogIndex    uint
}

// Less reports whether p comes before o in chain order
func (p Position) Less(o Position) bool {
	if p.BlockNumber != o.BlockNumber {
		return p.BlockNumber < o.BlockNumber
	}
	if p.TxIndex != o.TxIndex {
		return p.TxIndex < o.TxIndex
	}
	return p.LogIndex < o.LogIndex
}

// TxRef locates the transaction an event belongs to
type TxRef struct {
	Hash        common.Hash
	BlockNumber uint64
	Index       uint
}

// LogRef locates the log an event was classified from
type LogRef struct {
	Address  common.Address
	LogIndex uint
}

// Event is a canonical event produced by classification
type Event interface {
	Kind() EventKind
	Position() Position
	TxHash() common.Hash
}

// Swap is a canonical trade. The maker is the pool, the taker the trader.
// Amounts are non-negative magnitudes.
type Swap struct {
	Protocol    Protocol
	Maker       common.Address
	MakerAsset  common.Address
	MakerAmount *big.Int
	Taker       common.Address
	TakerAsset  common.Address
	TakerAmount *big.Int
	Transaction TxRef
	Event       LogRef
}

func (s Swap) Kind() EventKind { return KindSwap }
func (s Swap) TxHash() common.Hash { return s.Transaction.Hash }
func (s Swap) Position() Position {
	return Position{BlockNumber: s.Transaction.BlockNumber, TxIndex: s.Transaction.Index, LogIndex: s.Event.LogIndex}
}

// Transfer is a canonical token movement
type Transfer struct {
	Asset       common.Address
	From        common.Address
	To          common.Address
	Amount      *big.Int
	Transaction TxRef
	Event       LogRef
}

func (t Transfer) Kind() EventKind { return KindTransfer }
func (t Transfer) TxHash() common.Hash { return t.Transaction.Hash }
func (t Transfer) Position() Position {
	return Position{BlockNumber: t.Transaction.BlockNumber, TxIndex: t.Transaction.Index, LogIndex: t.Event.LogIndex}
}

// Arbitrage is a closed loop of swaps that left the account with more of ProfitAsset
type Arbitrage struct {
	TxHash       common.Hash
	BlockNumber  uint64
	Account      common.Address
	ProfitAsset  common.Address
	ProfitAmount *big.Int
	Swaps        []Swap
}
