package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/vultisig/txobserver/types"
)

func SendTransaction(req types.TransactionRequest) Method[common.Hash] {
	return Method[common.Hash]{
		Name:   "eth_sendTransaction",
		Arity:  1,
		Params: []any{req},
		Before: formatTransactionParam,
		After:  decodeHash,
	}
}

func SendRawTransaction(rawTx []byte) Method[common.Hash] {
	return Method[common.Hash]{
		Name:   "eth_sendRawTransaction",
		Arity:  1,
		Params: []any{hexutil.Bytes(rawTx)},
		After:  decodeHash,
	}
}

func GetTransactionReceipt(hash common.Hash) Method[*gethtypes.Receipt] {
	return Method[*gethtypes.Receipt]{
		Name:   "eth_getTransactionReceipt",
		Arity:  1,
		Params: []any{hash},
		After:  decodeReceipt,
	}
}

func GetTransactionByHash(hash common.Hash) Method[*gethtypes.Transaction] {
	return Method[*gethtypes.Transaction]{
		Name:   "eth_getTransactionByHash",
		Arity:  1,
		Params: []any{hash},
		After: func(raw json.RawMessage) (*gethtypes.Transaction, error) {
			if isNull(raw) {
				return nil, nil
			}
			tx := new(gethtypes.Transaction)
			err := tx.UnmarshalJSON(raw)
			if err != nil {
				return nil, fmt.Errorf("tx.UnmarshalJSON: %w", err)
			}
			return tx, nil
		},
	}
}

func BlockNumber() Method[uint64] {
	return Method[uint64]{
		Name:  "eth_blockNumber",
		Arity: 0,
		After: decodeUint64,
	}
}

func GasPrice() Method[*big.Int] {
	return Method[*big.Int]{
		Name:  "eth_gasPrice",
		Arity: 0,
		After: decodeBig,
	}
}

func ChainID() Method[*big.Int] {
	return Method[*big.Int]{
		Name:  "eth_chainId",
		Arity: 0,
		After: decodeBig,
	}
}

func EstimateGas(req types.TransactionRequest) Method[uint64] {
	return Method[uint64]{
		Name:   "eth_estimateGas",
		Arity:  1,
		Params: []any{req},
		Before: formatTransactionParam,
		After:  decodeUint64,
	}
}

func Call(req types.TransactionRequest, block gethrpc.BlockNumber) Method[[]byte] {
	return Method[[]byte]{
		Name:   "eth_call",
		Arity:  2,
		Params: []any{req, block},
		Before: func(params []any) ([]any, error) {
			params, err := formatTransactionParam(params)
			if err != nil {
				return nil, err
			}
			tag, err := formatBlockNumber(params[1])
			if err != nil {
				return nil, err
			}
			params[1] = tag
			return params, nil
		},
		After: decodeBytes,
	}
}

func GetCode(address common.Address, block gethrpc.BlockNumber) Method[[]byte] {
	return Method[[]byte]{
		Name:   "eth_getCode",
		Arity:  2,
		Params: []any{address, block},
		Before: func(params []any) ([]any, error) {
			addr, ok := params[0].(common.Address)
			if !ok {
				return nil, fmt.Errorf("expected common.Address, got %T", params[0])
			}
			tag, err := formatBlockNumber(params[1])
			if err != nil {
				return nil, err
			}
			return []any{addr.Hex(), tag}, nil
		},
		After: decodeBytes,
	}
}

// Accounts returns the node's accounts; common.Address renders them checksummed.
func Accounts() Method[[]common.Address] {
	return Method[[]common.Address]{
		Name:  "eth_accounts",
		Arity: 0,
	}
}

type TxPoolStatus struct {
	Pending uint64
	Queued  uint64
}

func GetTxPoolStatus() Method[TxPoolStatus] {
	return Method[TxPoolStatus]{
		Name:  "txpool_status",
		Arity: 0,
		After: func(raw json.RawMessage) (TxPoolStatus, error) {
			if isNull(raw) {
				return TxPoolStatus{}, nil
			}
			var res struct {
				Pending hexutil.Uint64 `json:"pending"`
				Queued  hexutil.Uint64 `json:"queued"`
			}
			err := json.Unmarshal(raw, &res)
			if err != nil {
				return TxPoolStatus{}, fmt.Errorf("json.Unmarshal: %w", err)
			}
			return TxPoolStatus{
				Pending: uint64(res.Pending),
				Queued:  uint64(res.Queued),
			}, nil
		},
	}
}

func GetUncleByBlockNumberAndIndex(block gethrpc.BlockNumber, index uint) Method[*gethtypes.Header] {
	return Method[*gethtypes.Header]{
		Name:   "eth_getUncleByBlockNumberAndIndex",
		Arity:  2,
		Params: []any{block, index},
		Before: func(params []any) ([]any, error) {
			tag, err := formatBlockNumber(params[0])
			if err != nil {
				return nil, err
			}
			idx, ok := params[1].(uint)
			if !ok {
				return nil, fmt.Errorf("expected uint, got %T", params[1])
			}
			return []any{tag, hexutil.Uint(idx)}, nil
		},
		After: func(raw json.RawMessage) (*gethtypes.Header, error) {
			if isNull(raw) {
				return nil, nil
			}
			header := new(gethtypes.Header)
			err := header.UnmarshalJSON(raw)
			if err != nil {
				return nil, fmt.Errorf("header.UnmarshalJSON: %w", err)
			}
			return header, nil
		},
	}
}
