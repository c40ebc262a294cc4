package rpc

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	panicSelector = [4]byte{0x4e, 0x48, 0x7b, 0x71}
	errorSelector = [4]byte{0x08, 0xc3, 0x79, 0xa0}
)

// DecodeRevert decodes Error(string) and Panic(uint256) revert payloads.
func DecodeRevert(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}

	msg, err := abi.UnpackRevert(data)
	if err == nil && msg != "" {
		return msg, true
	}

	if len(data) >= 36 {
		var selector [4]byte
		copy(selector[:], data[:4])
		if selector == panicSelector {
			code := new(big.Int).SetBytes(data[4:36]).Uint64()
			return formatPanicCode(code), true
		}
	}

	return "", false
}

func formatPanicCode(code uint64) string {
	switch code {
	case 0x00:
		return "panic: generic/compiler inserted"
	case 0x01:
		return "panic: assertion failed"
	case 0x11:
		return "panic: arithmetic overflow"
	case 0x12:
		return "panic: division by zero"
	case 0x21:
		return "panic: invalid enum value"
	case 0x22:
		return "panic: storage byte array encoding error"
	case 0x31:
		return "panic: pop on empty array"
	case 0x32:
		return "panic: array index out of bounds"
	case 0x41:
		return "panic: memory allocation overflow"
	case 0x51:
		return "panic: zero initialized variable"
	default:
		return fmt.Sprintf("panic: code 0x%x", code)
	}
}

type dataError interface {
	ErrorData() interface{}
}

// RevertData digs the revert payload out of an eth_call error.
func RevertData(err error) []byte {
	if err == nil {
		return nil
	}

	var de dataError
	if errors.As(err, &de) {
		switch v := de.ErrorData().(type) {
		case []byte:
			return v
		case string:
			if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
				return common.FromHex(v)
			}
			return nil
		}
	}

	errStr := err.Error()
	idx := strings.Index(errStr, "0x")
	if idx < 0 {
		return nil
	}
	hexPart := errStr[idx:]
	endIdx := strings.IndexAny(hexPart, " \n\t\"'")
	if endIdx > 0 {
		hexPart = hexPart[:endIdx]
	}
	decoded := common.FromHex(hexPart)
	if len(decoded) < 4 {
		return nil
	}
	var sel [4]byte
	copy(sel[:], decoded[:4])
	if sel == errorSelector || sel == panicSelector {
		return decoded
	}
	return nil
}
