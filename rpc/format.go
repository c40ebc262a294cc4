package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/vultisig/txobserver/types"
)

// TransactionArgs is the wire encoding of a TransactionRequest.
type TransactionArgs struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     *hexutil.Bytes  `json:"data,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
}

func FormatTransaction(req types.TransactionRequest) TransactionArgs {
	args := TransactionArgs{
		From: req.From,
		To:   req.To,
	}
	if req.Gas != 0 {
		gas := hexutil.Uint64(req.Gas)
		args.Gas = &gas
	}
	if req.GasPrice != nil {
		args.GasPrice = (*hexutil.Big)(new(big.Int).Set(req.GasPrice))
	}
	if req.Value != nil {
		args.Value = (*hexutil.Big)(new(big.Int).Set(req.Value))
	}
	if len(req.Data) > 0 {
		data := hexutil.Bytes(common.CopyBytes(req.Data))
		args.Data = &data
	}
	if req.Nonce != nil {
		nonce := hexutil.Uint64(*req.Nonce)
		args.Nonce = &nonce
	}
	return args
}

// Request converts wire arguments back into a TransactionRequest.
func (a TransactionArgs) Request() types.TransactionRequest {
	req := types.TransactionRequest{
		From: a.From,
		To:   a.To,
	}
	if a.Gas != nil {
		req.Gas = uint64(*a.Gas)
	}
	if a.GasPrice != nil {
		req.GasPrice = new(big.Int).Set(a.GasPrice.ToInt())
	}
	if a.Value != nil {
		req.Value = new(big.Int).Set(a.Value.ToInt())
	}
	if a.Data != nil {
		req.Data = common.CopyBytes(*a.Data)
	}
	if a.Nonce != nil {
		nonce := uint64(*a.Nonce)
		req.Nonce = &nonce
	}
	return req
}

func formatTransactionParam(params []any) ([]any, error) {
	req, ok := params[0].(types.TransactionRequest)
	if !ok {
		return nil, fmt.Errorf("expected types.TransactionRequest, got %T", params[0])
	}
	params[0] = FormatTransaction(req)
	return params, nil
}

func formatBlockNumber(v any) (string, error) {
	block, ok := v.(gethrpc.BlockNumber)
	if !ok {
		return "", fmt.Errorf("expected rpc.BlockNumber, got %T", v)
	}
	if block < gethrpc.SafeBlockNumber {
		return "", fmt.Errorf("invalid block number %d", block)
	}
	return block.String(), nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeJSON[T any](raw json.RawMessage) (T, error) {
	var res T
	if isNull(raw) {
		return res, nil
	}
	err := json.Unmarshal(raw, &res)
	if err != nil {
		return res, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return res, nil
}

func decodeHash(raw json.RawMessage) (common.Hash, error) {
	if isNull(raw) {
		return common.Hash{}, fmt.Errorf("empty transaction hash")
	}
	var hash common.Hash
	err := json.Unmarshal(raw, &hash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return hash, nil
}

func decodeUint64(raw json.RawMessage) (uint64, error) {
	var v hexutil.Uint64
	err := json.Unmarshal(raw, &v)
	if err != nil {
		return 0, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return uint64(v), nil
}

func decodeBig(raw json.RawMessage) (*big.Int, error) {
	var v hexutil.Big
	err := json.Unmarshal(raw, &v)
	if err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return v.ToInt(), nil
}

func decodeBytes(raw json.RawMessage) ([]byte, error) {
	var v hexutil.Bytes
	err := json.Unmarshal(raw, &v)
	if err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return v, nil
}

// a receipt is absent (nil, no error) while the transaction is still pending
func decodeReceipt(raw json.RawMessage) (*gethtypes.Receipt, error) {
	if isNull(raw) {
		return nil, nil
	}
	var rec gethtypes.Receipt
	err := json.Unmarshal(raw, &rec)
	if err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return &rec, nil
}
