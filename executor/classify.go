package executor

import (
	"github.com/vultisig/txobserver/types"
)

// Classify names the failure of a mined transaction. Consuming exactly the
// requested gas is read as running out of gas, anything less as a revert.
func Classify(receipt *types.Receipt, requestedGas uint64) error {
	if receipt.GasUsed == requestedGas {
		return &types.OutOfGasError{
			Receipt: receipt,
			Gas:     requestedGas,
		}
	}
	return &types.RevertedError{
		Receipt: receipt,
	}
}
