package types

type TxStatus string

const (
	TxPending        TxStatus = "PENDING"
	TxSuccess        TxStatus = "SUCCESS"
	TxOutOfGas       TxStatus = "OUT_OF_GAS"
	TxReverted       TxStatus = "REVERTED"
	TxTransportError TxStatus = "TRANSPORT_ERROR"
	TxLost           TxStatus = "LOST"
)

func (s TxStatus) Terminal() bool {
	return s != TxPending && s != ""
}
