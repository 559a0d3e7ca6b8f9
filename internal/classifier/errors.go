package classifier

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/pkg/types"
)

// ErrMalformedSwap matches every MalformedSwapError
var ErrMalformedSwap = errors.New("malformed swap data")

// PoolResolutionError reports a failed pool topology fetch. It is scoped to
// the event that triggered it.
type PoolResolutionError struct {
	ChainID  types.ChainID
	Protocol types.Protocol
	Address  common.Address
	Err      error
}

func (e *PoolResolutionError) Error() string {
	return fmt.Sprintf("resolve %s pool %s on chain %d: %v", e.Protocol, e.Address.Hex(), e.ChainID, e.Err)
}

func (e *PoolResolutionError) Unwrap() error {
	return e.Err
}

// MalformedSwapError reports swap deltas that cannot be interpreted
type MalformedSwapError struct {
	Reason string
}

func (e *MalformedSwapError) Error() string {
	return "malformed swap data: " + e.Reason
}

func (e *MalformedSwapError) Is(target error) bool {
	return target == ErrMalformedSwap
}

// Malformed builds a MalformedSwapError
func Malformed(format string, args ...interface{}) error {
	return &MalformedSwapError{Reason: fmt.Sprintf(format, args...)}
}

// systemic is implemented by collaborator errors no local recovery can handle,
// such as an unavailable node
type systemic interface {
	Systemic() bool
}

// IsSystemic reports whether err must abort a whole batch
func IsSystemic(err error) bool {
	var s systemic
	return errors.As(err, &s) && s.Systemic()
}
