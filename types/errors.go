package types

import (
	"errors"
	"fmt"
)

var (
	ErrTransport = errors.New("transport error")
	ErrOutOfGas  = errors.New("transaction ran out of gas")
	ErrReverted  = errors.New("transaction has been reverted by the EVM")
)

// TransportError is a submission or observation failure with no known on-chain outcome.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil || e.Err == nil {
		return ErrTransport.Error()
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ObserverError is a failure of the confirmation stream itself.
// It matches ErrTransport: the executor treats it as a transport failure.
type ObserverError struct {
	Err error
}

func (e *ObserverError) Error() string {
	if e == nil || e.Err == nil {
		return "observer failed"
	}
	return "observer: " + e.Err.Error()
}

func (e *ObserverError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ObserverError) Is(target error) bool {
	return target == ErrTransport
}

// OutOfGasError is an on-chain failure where the consumed gas equals the requested limit.
type OutOfGasError struct {
	Receipt *Receipt
	Gas     uint64
}

func (e *OutOfGasError) Error() string {
	if e == nil || e.Receipt == nil {
		return ErrOutOfGas.Error()
	}
	return fmt.Sprintf(
		"%s, please provide more gas: tx_hash=%s, block=%d, gas_used=%d, gas=%d",
		ErrOutOfGas.Error(),
		e.Receipt.TxHash.Hex(),
		e.Receipt.BlockNumber,
		e.Receipt.GasUsed,
		e.Gas,
	)
}

func (e *OutOfGasError) Is(target error) bool {
	return target == ErrOutOfGas
}

// RevertedError is an on-chain failure where the consumed gas is below the requested limit.
type RevertedError struct {
	Receipt *Receipt
	Reason  string
}

func (e *RevertedError) Error() string {
	if e == nil || e.Receipt == nil {
		return ErrReverted.Error()
	}
	msg := fmt.Sprintf(
		"%s: tx_hash=%s, block=%d, gas_used=%d",
		ErrReverted.Error(),
		e.Receipt.TxHash.Hex(),
		e.Receipt.BlockNumber,
		e.Receipt.GasUsed,
	)
	if e.Reason != "" {
		msg += ", reason=" + e.Reason
	}
	return msg
}

func (e *RevertedError) Is(target error) bool {
	return target == ErrReverted
}

// StatusOf maps a terminal error onto the status recorded for it.
func StatusOf(err error) TxStatus {
	switch {
	case err == nil:
		return TxSuccess
	case errors.Is(err, ErrOutOfGas):
		return TxOutOfGas
	case errors.Is(err, ErrReverted):
		return TxReverted
	default:
		return TxTransportError
	}
}
