package decoder

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/devlongs/mev-inspect/internal/dex"
	"github.com/devlongs/mev-inspect/internal/dex/uniswapv3"
	"github.com/devlongs/mev-inspect/pkg/types"
)

var (
	pool   = common.HexToAddress("0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640")
	sender = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	recip  = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func newDecoder(t *testing.T) *Decoder {
	t.Helper()
	registry, err := dex.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewDecoder(registry)
}

func packV3Swap(t *testing.T, block uint64, txIndex, index uint) ethtypes.Log {
	t.Helper()
	parsed, err := uniswapv3.PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	event := parsed.Events["Swap"]
	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(-100),
		big.NewInt(97),
		new(big.Int).Lsh(big.NewInt(1), 96),
		big.NewInt(1_000_000),
		big.NewInt(-5),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return ethtypes.Log{
		Address: pool,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(recip.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.HexToHash("0x0a"),
		TxIndex:     txIndex,
		Index:       index,
	}
}

func TestDecodeV3Swap(t *testing.T) {
	d := newDecoder(t)

	raw, ok, err := d.Decode(packV3Swap(t, 10, 1, 4))
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if raw.Name != "Swap" || raw.Address != pool || raw.LogIndex != 4 || raw.TransactionIndex != 1 {
		t.Fatalf("unexpected metadata %+v", raw)
	}
	if len(raw.Values) != 7 {
		t.Fatalf("expected 7 values, got %d", len(raw.Values))
	}
	if raw.Values[0].(common.Address) != sender || raw.Values[1].(common.Address) != recip {
		t.Fatalf("indexed values out of order: %v", raw.Values[:2])
	}
	if raw.Values[2].(*big.Int).Int64() != -100 || raw.Values[3].(*big.Int).Int64() != 97 {
		t.Fatalf("amounts = %v %v", raw.Values[2], raw.Values[3])
	}

	// decoded output feeds the parser directly
	event, err := uniswapv3.Parse(&types.Pool{Address: pool, Assets: []common.Address{{1}, {2}}}, raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if swap := event.(types.Swap); swap.MakerAmount.Int64() != 100 || swap.Taker != sender {
		t.Fatalf("unexpected swap %+v", swap)
	}
}

func TestDecodeSkipsUnknownAndRemoved(t *testing.T) {
	d := newDecoder(t)

	unknown := packV3Swap(t, 1, 0, 0)
	unknown.Topics[0] = common.HexToHash("0x1234")
	if _, ok, err := d.Decode(unknown); ok || err != nil {
		t.Fatalf("unknown topic: ok=%v err=%v", ok, err)
	}

	removed := packV3Swap(t, 1, 0, 0)
	removed.Removed = true
	if _, ok, err := d.Decode(removed); ok || err != nil {
		t.Fatalf("removed log: ok=%v err=%v", ok, err)
	}

	if _, ok, err := d.Decode(ethtypes.Log{}); ok || err != nil {
		t.Fatalf("anonymous log: ok=%v err=%v", ok, err)
	}
}

func TestDecodeRejectsTopicMismatch(t *testing.T) {
	d := newDecoder(t)

	// ERC721 Transfer shares the ERC20 signature but indexes the token id
	transferTopic := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	nft := ethtypes.Log{
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(recip.Bytes()),
			common.BigToHash(big.NewInt(7)),
		},
	}
	if _, ok, err := d.Decode(nft); ok || err == nil {
		t.Fatalf("expected topic count error, got ok=%v err=%v", ok, err)
	}

	if got := d.DecodeAll([]ethtypes.Log{nft, packV3Swap(t, 1, 0, 1)}); len(got) != 1 {
		t.Fatalf("expected one decoded log, got %d", len(got))
	}
}

type fakeFilterer struct {
	query ethereum.FilterQuery
	logs  []ethtypes.Log
}

func (f *fakeFilterer) GetLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	f.query = q
	return f.logs, nil
}

func TestFetchLogsSortsAndFilters(t *testing.T) {
	d := newDecoder(t)
	f := &fakeFilterer{logs: []ethtypes.Log{
		packV3Swap(t, 11, 0, 0),
		packV3Swap(t, 10, 2, 9),
		packV3Swap(t, 10, 2, 3),
		packV3Swap(t, 10, 1, 20),
	}}

	logs, err := d.FetchLogs(context.Background(), f, 10, 11)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if f.query.FromBlock.Uint64() != 10 || f.query.ToBlock.Uint64() != 11 {
		t.Fatalf("unexpected range %v-%v", f.query.FromBlock, f.query.ToBlock)
	}
	if len(f.query.Topics) != 1 || len(f.query.Topics[0]) != len(d.Topics()) {
		t.Fatalf("unexpected topic filter %v", f.query.Topics)
	}

	want := [][3]uint64{{10, 1, 20}, {10, 2, 3}, {10, 2, 9}, {11, 0, 0}}
	for i, l := range logs {
		got := [3]uint64{l.BlockNumber, uint64(l.TxIndex), uint64(l.Index)}
		if got != want[i] {
			t.Fatalf("log %d = %v, want %v", i, got, want[i])
		}
	}
}

func TestGroupByTransaction(t *testing.T) {
	a, b := common.HexToHash("0x0a"), common.HexToHash("0x0b")
	logs := []types.RawLog{
		{TransactionHash: a, LogIndex: 0},
		{TransactionHash: b, LogIndex: 1},
		{TransactionHash: a, LogIndex: 2},
	}
	groups := GroupByTransaction(logs)
	if len(groups[a]) != 2 || len(groups[b]) != 1 {
		t.Fatalf("unexpected groups %v", groups)
	}
	if groups[a][1].LogIndex != 2 {
		t.Fatalf("group order not preserved")
	}
}
