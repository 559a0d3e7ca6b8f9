package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/devlongs/mev-inspect/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	chain_id     BIGINT NOT NULL,
	pool_address TEXT   NOT NULL,
	factory      TEXT   NOT NULL,
	assets       TEXT[] NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS arbitrages (
	chain_id        BIGINT  NOT NULL,
	tx_hash         TEXT    NOT NULL,
	start_log_index BIGINT  NOT NULL,
	block_number    BIGINT  NOT NULL,
	account         TEXT    NOT NULL,
	profit_asset    TEXT    NOT NULL,
	profit_amount   NUMERIC NOT NULL,
	pools           TEXT[]  NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, tx_hash, start_log_index)
);
`

// Store provides Postgres persistence for pool topology and detections
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadPool returns a stored pool topology
func (s *Store) LoadPool(ctx context.Context, chainID types.ChainID, address common.Address) (types.Pool, bool, error) {
	var factory string
	var assets []string
	err := s.pool.QueryRow(ctx, `
		SELECT factory, assets FROM pools WHERE chain_id = $1 AND pool_address = $2
	`, int64(chainID), addressKey(address)).Scan(&factory, &assets)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Pool{}, false, nil
	}
	if err != nil {
		return types.Pool{}, false, err
	}

	pool, err := decodePool(address, factory, assets)
	if err != nil {
		return types.Pool{}, false, err
	}
	return pool, true, nil
}

// SavePool stores a pool topology. Topology never changes, so an existing
// row is left untouched.
func (s *Store) SavePool(ctx context.Context, chainID types.ChainID, pool types.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (chain_id, pool_address, factory, assets, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (chain_id, pool_address) DO NOTHING
	`,
		int64(chainID),
		addressKey(pool.Address),
		addressKey(pool.Factory),
		encodeAddresses(pool.Assets),
	)
	return err
}

// UpsertArbitrages inserts or updates detected arbitrages
func (s *Store) UpsertArbitrages(ctx context.Context, chainID types.ChainID, arbs []types.Arbitrage) error {
	if len(arbs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, arb := range arbs {
		if len(arb.Swaps) == 0 || arb.ProfitAmount == nil {
			continue
		}
		pools := make([]common.Address, len(arb.Swaps))
		for i, swap := range arb.Swaps {
			pools[i] = swap.Maker
		}
		batch.Queue(`
			INSERT INTO arbitrages (
				chain_id, tx_hash, start_log_index, block_number, account,
				profit_asset, profit_amount, pools, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, now())
			ON CONFLICT (chain_id, tx_hash, start_log_index)
			DO UPDATE SET
				account = EXCLUDED.account,
				profit_asset = EXCLUDED.profit_asset,
				profit_amount = EXCLUDED.profit_amount,
				pools = EXCLUDED.pools
		`,
			int64(chainID),
			strings.ToLower(arb.TxHash.Hex()),
			int64(arb.Swaps[0].Event.LogIndex),
			int64(arb.BlockNumber),
			addressKey(arb.Account),
			addressKey(arb.ProfitAsset),
			arb.ProfitAmount.String(),
			encodeAddresses(pools),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func encodeAddresses(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = addressKey(a)
	}
	return out
}

func decodePool(address common.Address, factory string, assets []string) (types.Pool, error) {
	if !common.IsHexAddress(factory) {
		return types.Pool{}, fmt.Errorf("pool %s: invalid factory %q", address.Hex(), factory)
	}
	pool := types.Pool{
		Address: address,
		Factory: common.HexToAddress(factory),
		Assets:  make([]common.Address, len(assets)),
	}
	for i, a := range assets {
		if !common.IsHexAddress(a) {
			return types.Pool{}, fmt.Errorf("pool %s: invalid asset %q", address.Hex(), a)
		}
		pool.Assets[i] = common.HexToAddress(a)
	}
	return pool, nil
}
