package classifier

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/mev-inspect/pkg/types"
)

// AddressAt returns decoded value i of log as an address
func AddressAt(log types.RawLog, i int) (common.Address, error) {
	if i >= len(log.Values) {
		return common.Address{}, fmt.Errorf("value %d missing, log has %d", i, len(log.Values))
	}
	return asAddress(log.Values[i])
}

// BigIntAt returns decoded value i of log as a copy of an integer
func BigIntAt(log types.RawLog, i int) (*big.Int, error) {
	if i >= len(log.Values) {
		return nil, fmt.Errorf("value %d missing, log has %d", i, len(log.Values))
	}
	return asBigInt(log.Values[i])
}

// Bytes32At returns decoded value i of log as a 32 byte word
func Bytes32At(log types.RawLog, i int) ([32]byte, error) {
	if i >= len(log.Values) {
		return [32]byte{}, fmt.Errorf("value %d missing, log has %d", i, len(log.Values))
	}
	switch v := log.Values[i].(type) {
	case [32]byte:
		return v, nil
	case common.Hash:
		return v, nil
	case []byte:
		if len(v) != 32 {
			return [32]byte{}, fmt.Errorf("value %d: expected 32 bytes, got %d", i, len(v))
		}
		var out [32]byte
		copy(out[:], v)
		return out, nil
	default:
		return [32]byte{}, fmt.Errorf("value %d: unsupported bytes32 type %T", i, v)
	}
}

// Call packs method, performs an eth_call against to and unpacks the result
func Call(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

// CallAddress performs a call whose first output is an address
func CallAddress(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, args ...interface{}) (common.Address, error) {
	values, err := Call(ctx, caller, to, parsed, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", method, err)
	}
	return addr, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		if v == nil {
			return common.Address{}, fmt.Errorf("nil address")
		}
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
