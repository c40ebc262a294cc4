package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Receipt is the caller facing view of a transaction receipt.
type Receipt struct {
	TxHash            common.Hash      `json:"transactionHash"`
	BlockHash         common.Hash      `json:"blockHash"`
	BlockNumber       uint64           `json:"blockNumber"`
	TransactionIndex  uint             `json:"transactionIndex"`
	Status            bool             `json:"status"`
	GasUsed           uint64           `json:"gasUsed"`
	CumulativeGasUsed uint64           `json:"cumulativeGasUsed"`
	EffectiveGasPrice *big.Int         `json:"effectiveGasPrice,omitempty"`
	ContractAddress   *common.Address  `json:"contractAddress,omitempty"`
	Logs              []*gethtypes.Log `json:"logs"`
}

// NewReceipt projects a node receipt onto Receipt. A nil input gives nil.
func NewReceipt(r *gethtypes.Receipt) *Receipt {
	if r == nil {
		return nil
	}

	out := &Receipt{
		TxHash:            r.TxHash,
		BlockHash:         r.BlockHash,
		TransactionIndex:  r.TransactionIndex,
		Status:            r.Status == gethtypes.ReceiptStatusSuccessful,
		GasUsed:           r.GasUsed,
		CumulativeGasUsed: r.CumulativeGasUsed,
		Logs:              r.Logs,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		out.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
	// contract address is only meaningful for contract creations
	if r.ContractAddress != (common.Address{}) {
		addr := r.ContractAddress
		out.ContractAddress = &addr
	}
	if out.Logs == nil {
		out.Logs = []*gethtypes.Log{}
	}
	return out
}

// Confirmation is a single observation of a mined transaction.
// Count is the number of blocks mined on top of the receipt's block.
type Confirmation struct {
	Count   uint64
	Receipt *gethtypes.Receipt
}
