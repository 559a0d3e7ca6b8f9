package erc20

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/devlongs/mev-inspect/internal/classifier"
	"github.com/devlongs/mev-inspect/pkg/types"
)

// event Transfer(address indexed from, address indexed to, uint256 value)
const tokenABIJSON = `[
  {"anonymous":false,"inputs":[
    {"indexed":true,"name":"from","type":"address"},
    {"indexed":true,"name":"to","type":"address"},
    {"indexed":false,"name":"value","type":"uint256"}],
   "name":"Transfer","type":"event"}
]`

var (
	tokenABI     abi.ABI
	tokenABIOnce sync.Once
	tokenABIErr  error
)

// TokenABI returns the parsed ERC20 event ABI
func TokenABI() (abi.ABI, error) {
	tokenABIOnce.Do(func() {
		tokenABI, tokenABIErr = abi.JSON(strings.NewReader(tokenABIJSON))
	})
	return tokenABI, tokenABIErr
}

// Parse maps a Transfer log to a canonical transfer of the emitting token
func Parse(_ *types.Pool, log types.RawLog) (types.Event, error) {
	from, err := classifier.AddressAt(log, 0)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	to, err := classifier.AddressAt(log, 1)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	amount, err := classifier.BigIntAt(log, 2)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}

	return types.Transfer{
		Asset:       log.Address,
		From:        from,
		To:          to,
		Amount:      amount,
		Transaction: classifier.TxRefOf(log),
		Event:       classifier.LogRefOf(log),
	}, nil
}

// Classifiers returns the ERC20 capability records
func Classifiers() ([]classifier.Classifier, error) {
	parsed, err := TokenABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return []classifier.Classifier{
		{
			Protocol: types.ProtocolERC20,
			Event: classifier.EventDescriptor{
				Name:  "Transfer",
				Kind:  types.KindTransfer,
				Parse: Parse,
			},
			ABI: parsed,
		},
	}, nil
}
