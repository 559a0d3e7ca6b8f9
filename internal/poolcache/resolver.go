// Package poolcache resolves and caches immutable pool topology.
package poolcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/internal/directory"
	"github.com/devlongs/mev-inspect/internal/metrics"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// Store is an optional second-level cache that outlives the process
type Store interface {
	LoadPool(ctx context.Context, chainID types.ChainID, address common.Address) (types.Pool, bool, error)
	SavePool(ctx context.Context, chainID types.ChainID, pool types.Pool) error
}

type cacheKey struct {
	chainID types.ChainID
	address common.Address
}

// Resolver is a read-through pool cache. Concurrent misses for the same key
// share one fetch; failed fetches are never cached.
type Resolver struct {
	caller   classifier.ContractCaller
	dir      directory.Directory
	fetchers map[types.Protocol]classifier.FetchPoolFunc

	mu    sync.RWMutex
	pools map[cacheKey]types.Pool

	group   singleflight.Group
	store   Store
	metrics *metrics.Metrics
}

// Option configures a Resolver
type Option func(*Resolver)

// WithStore backs the in-memory cache with a persistent store
func WithStore(s Store) Option {
	return func(r *Resolver) {
		r.store = s
	}
}

// WithMetrics records cache hits, misses and fetches
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// New creates a resolver using the protocol fetchers of a registry
func New(caller classifier.ContractCaller, dir directory.Directory, fetchers map[types.Protocol]classifier.FetchPoolFunc, opts ...Option) *Resolver {
	r := &Resolver{
		caller:   caller,
		dir:      dir,
		fetchers: fetchers,
		pools:    make(map[cacheKey]types.Pool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a cached pool without any I/O
func (r *Resolver) Get(chainID types.ChainID, address common.Address) (types.Pool, bool) {
	r.mu.RLock()
	pool, ok := r.pools[cacheKey{chainID: chainID, address: address}]
	r.mu.RUnlock()
	return pool, ok
}

// Len returns the number of cached pools
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// Resolve returns the pool topology, fetching it on a miss
func (r *Resolver) Resolve(ctx context.Context, chainID types.ChainID, protocol types.Protocol, address common.Address) (types.Pool, error) {
	key := cacheKey{chainID: chainID, address: address}
	if pool, ok := r.Get(chainID, address); ok {
		r.metrics.PoolCacheHit()
		return pool, nil
	}
	r.metrics.PoolCacheMiss()

	fetch, ok := r.fetchers[protocol]
	if !ok {
		return types.Pool{}, &classifier.PoolResolutionError{
			ChainID:  chainID,
			Protocol: protocol,
			Address:  address,
			Err:      fmt.Errorf("no pool fetcher registered"),
		}
	}

	flightKey := fmt.Sprintf("%d:%s", chainID, address.Hex())
	// the fetch is shared, so one waiter's cancellation must not fail the others
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(flightKey, func() (interface{}, error) {
		return r.load(loadCtx, key, protocol, fetch)
	})

	select {
	case <-ctx.Done():
		return types.Pool{}, &classifier.PoolResolutionError{
			ChainID:  chainID,
			Protocol: protocol,
			Address:  address,
			Err:      ctx.Err(),
		}
	case res := <-ch:
		if res.Err != nil {
			return types.Pool{}, &classifier.PoolResolutionError{
				ChainID:  chainID,
				Protocol: protocol,
				Address:  address,
				Err:      res.Err,
			}
		}
		return res.Val.(types.Pool), nil
	}
}

// load runs once per in-flight key. The entry is stored before waiters are
// released so late arrivals hit the cache.
func (r *Resolver) load(ctx context.Context, key cacheKey, protocol types.Protocol, fetch classifier.FetchPoolFunc) (types.Pool, error) {
	if pool, ok := r.Get(key.chainID, key.address); ok {
		return pool, nil
	}

	if r.store != nil {
		pool, found, err := r.store.LoadPool(ctx, key.chainID, key.address)
		if err != nil {
			log.Warn().Err(err).Str("pool", key.address.Hex()).Msg("Pool store lookup failed")
		} else if found {
			return r.put(key, pool), nil
		}
	}

	conn := classifier.Conn{ChainID: key.chainID, Caller: r.caller, Directory: r.dir}
	pool, err := fetch(ctx, conn, key.address)
	r.metrics.PoolFetched(string(protocol), err)
	if err != nil {
		return types.Pool{}, err
	}
	pool.Address = key.address
	pool = r.put(key, pool)

	log.Debug().
		Str("pool", key.address.Hex()).
		Str("protocol", string(protocol)).
		Str("factory", pool.Factory.Hex()).
		Int("assets", len(pool.Assets)).
		Msg("Cached pool")

	if r.store != nil {
		if err := r.store.SavePool(ctx, key.chainID, pool); err != nil {
			log.Warn().Err(err).Str("pool", key.address.Hex()).Msg("Failed to persist pool")
		}
	}
	return pool, nil
}

// put stores a private copy of pool and returns it
func (r *Resolver) put(key cacheKey, pool types.Pool) types.Pool {
	pool.Assets = append([]common.Address(nil), pool.Assets...)
	r.mu.Lock()
	r.pools[key] = pool
	r.mu.Unlock()
	return pool
}
