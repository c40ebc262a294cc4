package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vultisig/txobserver/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		gasUsed uint64
		gas     uint64
		want    error
	}{
		{"used_all_gas", 21_000, 21_000, types.ErrOutOfGas},
		{"used_less_gas", 20_999, 21_000, types.ErrReverted},
		{"estimated_limit_never_matches", 30_000, 31_500, types.ErrReverted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &types.Receipt{GasUsed: tc.gasUsed}
			err := Classify(rec, tc.gas)
			require.ErrorIs(t, err, tc.want)
		})
	}
}
