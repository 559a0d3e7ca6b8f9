package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/devlongs/mev-inspect/internal/config"
)

// ErrUnavailable matches every UnavailableError
var ErrUnavailable = errors.New("node unavailable")

// UnavailableError reports that the node cannot be reached: the breaker is
// open or every retry failed. Callers cannot recover from it locally.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: node unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Systemic marks the error as fatal to a whole batch
func (e *UnavailableError) Systemic() bool {
	return true
}

// backend is the subset of ethclient the inspector uses
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Client wraps the Ethereum client with retry, rate limiting and a circuit breaker
type Client struct {
	client  backend
	cfg     config.RPCConfig
	chainID *big.Int
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
}

// NewClient connects to the node and reads its chain ID
func NewClient(ctx context.Context, cfg config.RPCConfig) (*Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	c := newClient(client, cfg)
	chainID, err := do(ctx, c, "chain id", func(ctx context.Context) (*big.Int, error) {
		return c.client.ChainID(ctx)
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	c.chainID = chainID

	log.Info().
		Str("url", cfg.URL).
		Str("chainID", chainID.String()).
		Msg("Connected to Ethereum node")

	return c, nil
}

func newClient(client backend, cfg config.RPCConfig) *Client {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	c := &Client{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
	}
	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "eth-rpc",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
		IsSuccessful: nodeAnswered,
	})
	return c
}

// nodeAnswered reports whether err still proves the node is reachable.
// A JSON-RPC error response, such as a revert, is the node answering.
func nodeAnswered(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ethereum.NotFound) {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

// do runs fn through the limiter and the breaker, retrying transport
// failures. Node error responses are returned without retry.
func do[T any](ctx context.Context, c *Client, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var err error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return zero, fmt.Errorf("%s: rate limit: %w", op, werr)
		}

		var res any
		res, err = c.breaker.Execute(func() (any, error) {
			callCtx := ctx
			if c.cfg.RequestTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
				defer cancel()
			}
			return fn(callCtx)
		})
		if err == nil {
			return res.(T), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &UnavailableError{Op: op, Err: err}
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if nodeAnswered(err) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}

		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("RPC request failed, retrying...")
		if attempt < c.cfg.RetryAttempts {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(c.cfg.RetryDelay):
			}
		}
	}

	return zero, &UnavailableError{
		Op:  op,
		Err: fmt.Errorf("failed after %d attempts: %w", c.cfg.RetryAttempts, err),
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.client.Close()
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return do(ctx, c, "block number", func(ctx context.Context) (uint64, error) {
		return c.client.BlockNumber(ctx)
	})
}

// GetLogs fetches logs with the given filter
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return do(ctx, c, "get logs", func(ctx context.Context) ([]types.Log, error) {
		return c.client.FilterLogs(ctx, query)
	})
}

// TransactionReceipt returns the receipt of a transaction
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return do(ctx, c, "receipt", func(ctx context.Context) (*types.Receipt, error) {
		return c.client.TransactionReceipt(ctx, txHash)
	})
}

// CallContract executes a read-only contract call
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return do(ctx, c, "call", func(ctx context.Context) ([]byte, error) {
		return c.client.CallContract(ctx, msg, blockNumber)
	})
}
