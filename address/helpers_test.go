package address

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/require"
)

func mustBech32(t *testing.T, hrp string, raw []byte) string {
	t.Helper()
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	require.NoError(t, err)
	encoded, err := bech32.Encode(hrp, data)
	require.NoError(t, err)
	return encoded
}

func corruptLast(value string) string {
	last := value[len(value)-1]
	replacement := byte('q')
	if last == replacement {
		replacement = 'p'
	}
	return value[:len(value)-1] + string(replacement)
}
