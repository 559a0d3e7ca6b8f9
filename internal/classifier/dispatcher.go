package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/devlongs/mev-inspect/internal/directory"
	"github.com/devlongs/mev-inspect/internal/metrics"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// PoolResolver returns the topology of a pool, fetching it at most once
type PoolResolver interface {
	Resolve(ctx context.Context, chainID types.ChainID, protocol types.Protocol, address common.Address) (types.Pool, error)
}

// Dispatcher routes decoded logs to the classifier that owns them
type Dispatcher struct {
	chainID  types.ChainID
	registry *Registry
	dir      directory.Directory
	pools    PoolResolver
	workers  int
	metrics  *metrics.Metrics
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithWorkers bounds the concurrency of ClassifyAll
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithMetrics records classification outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher for one chain
func NewDispatcher(chainID types.ChainID, registry *Registry, dir directory.Directory, pools PoolResolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		chainID:  chainID,
		registry: registry,
		dir:      dir,
		pools:    pools,
		workers:  4,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Classify returns the canonical event of a log, or nil when no registered
// classifier owns it
func (d *Dispatcher) Classify(ctx context.Context, raw types.RawLog) (types.Event, error) {
	candidates := d.registry.ByTopic(raw.Topic0)
	if len(candidates) == 0 {
		d.metrics.EventUnrecognized()
		return nil, nil
	}

	for _, c := range candidates {
		event, err := d.classifyWith(ctx, c, raw)
		if err != nil {
			d.metrics.EventFailed(failureReason(err))
			return nil, fmt.Errorf("%s/%s log %d in tx %s: %w",
				c.Protocol, c.Event.Name, raw.LogIndex, raw.TransactionHash.Hex(), err)
		}
		if event != nil {
			d.metrics.EventClassified(string(c.Protocol), string(event.Kind()))
			return event, nil
		}
	}

	d.metrics.EventUnrecognized()
	return nil, nil
}

func (d *Dispatcher) classifyWith(ctx context.Context, c Classifier, raw types.RawLog) (types.Event, error) {
	if !c.NeedsPool() {
		return c.Event.Parse(nil, raw)
	}

	poolAddress := raw.Address
	if c.Event.PoolAddress != nil {
		// emitted by a shared deployment, which must itself be known
		if _, ok := d.dir.FactoryByAddress(d.chainID, c.Protocol, raw.Address); !ok {
			return nil, nil
		}
		addr, err := c.Event.PoolAddress(raw)
		if err != nil {
			return nil, Malformed("pool address: %v", err)
		}
		poolAddress = addr
	}

	pool, err := d.pools.Resolve(ctx, d.chainID, c.Protocol, poolAddress)
	if err != nil {
		return nil, err
	}

	if _, ok := d.dir.FactoryByAddress(d.chainID, c.Protocol, pool.Factory); !ok {
		log.Debug().
			Str("protocol", string(c.Protocol)).
			Str("pool", poolAddress.Hex()).
			Str("factory", pool.Factory.Hex()).
			Msg("Pool not created by a known deployment")
		return nil, nil
	}

	return c.Event.Parse(&pool, raw)
}

// Failure records a log whose classification failed
type Failure struct {
	Log types.RawLog
	Err error
}

// Result is the outcome of classifying a batch
type Result struct {
	Events   []types.Event
	Failures []Failure
}

// ClassifyAll classifies logs concurrently. Events keep the input order.
// Per-log failures are collected; only cancellation or a systemic
// collaborator failure is returned as an error.
func (d *Dispatcher) ClassifyAll(ctx context.Context, logs []types.RawLog) (Result, error) {
	events := make([]types.Event, len(logs))
	errs := make([]error, len(logs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i := range logs {
		i := i
		g.Go(func() error {
			event, err := d.Classify(gctx, logs[i])
			if err != nil {
				if IsSystemic(err) || ctx.Err() != nil {
					return err
				}
				errs[i] = err
				return nil
			}
			events[i] = event
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var res Result
	for i := range logs {
		if errs[i] != nil {
			log.Warn().
				Err(errs[i]).
				Str("txHash", logs[i].TransactionHash.Hex()).
				Uint("logIndex", logs[i].LogIndex).
				Str("address", logs[i].Address.Hex()).
				Msg("Failed to classify log")
			res.Failures = append(res.Failures, Failure{Log: logs[i], Err: errs[i]})
			continue
		}
		if events[i] != nil {
			res.Events = append(res.Events, events[i])
		}
	}
	return res, nil
}

func failureReason(err error) string {
	var poolErr *PoolResolutionError
	switch {
	case errors.As(err, &poolErr):
		return "pool_resolution"
	case errors.Is(err, ErrMalformedSwap):
		return "malformed_swap"
	default:
		return "parse"
	}
}
