package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// TransactionRequest holds the caller supplied fields of a transaction.
// Gas and GasPrice may be left empty for the executor to prefill.
type TransactionRequest struct {
	From     common.Address  `json:"from" validate:"required"`
	To       *common.Address `json:"to,omitempty"`
	Value    *big.Int        `json:"value,omitempty"`
	Gas      uint64          `json:"gas,omitempty"`
	GasPrice *big.Int        `json:"gasPrice,omitempty"`
	Data     []byte          `json:"data,omitempty"`
	Nonce    *uint64         `json:"nonce,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(transactionRequestStructLevel, TransactionRequest{})
	return v
}

// a transaction either moves value to a recipient or carries a payload (contract creation)
func transactionRequestStructLevel(sl validator.StructLevel) {
	req, ok := sl.Current().Interface().(TransactionRequest)
	if !ok {
		return
	}
	if req.To == nil && len(req.Data) == 0 {
		sl.ReportError(req.To, "To", "to", "to_or_data", "")
	}
	if req.Value != nil && req.Value.Sign() < 0 {
		sl.ReportError(req.Value, "Value", "value", "gte_zero", "")
	}
}

func (r TransactionRequest) Validate() error {
	err := validate.Struct(r)
	if err != nil {
		return fmt.Errorf("invalid transaction request: %w", err)
	}
	return nil
}

// Copy returns a request that shares no mutable state with r.
func (r TransactionRequest) Copy() TransactionRequest {
	out := r
	if r.To != nil {
		to := *r.To
		out.To = &to
	}
	if r.Value != nil {
		out.Value = new(big.Int).Set(r.Value)
	}
	if r.GasPrice != nil {
		out.GasPrice = new(big.Int).Set(r.GasPrice)
	}
	if r.Data != nil {
		out.Data = common.CopyBytes(r.Data)
	}
	if r.Nonce != nil {
		nonce := *r.Nonce
		out.Nonce = &nonce
	}
	return out
}

func (r TransactionRequest) Fields() logrus.Fields {
	fields := logrus.Fields{
		"from": r.From.Hex(),
		"gas":  r.Gas,
	}
	if r.To != nil {
		fields["to"] = r.To.Hex()
	}
	if r.Nonce != nil {
		fields["nonce"] = *r.Nonce
	}
	return fields
}
