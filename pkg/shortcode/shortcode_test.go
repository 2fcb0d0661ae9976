package shortcode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igresolver/pkg/errors"
)

func TestToID(t *testing.T) {
	tests := []struct {
		code string
		want int64
	}{
		{"", 0},
		{"A", 0},
		{"B", 1},
		{"_", 63},
		{"BA", 64},
		{"AA", 0},
		{"CxYz", 2*64*64*64 + 49*64*64 + 24*64 + 51},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := ToID(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToIDInvalidCharacter(t *testing.T) {
	for _, code := range []string{"abc!", "a b", "é", "Cx/z"} {
		_, err := ToID(code)
		assert.ErrorIs(t, err, errs.ErrInvalidCharacter, code)
	}
}

func TestToIDOverflow(t *testing.T) {
	_, err := ToID("____________")
	assert.ErrorIs(t, err, errs.ErrInvalidCharacter)
}

func TestFromID(t *testing.T) {
	assert.Equal(t, "", FromID(0))
	assert.Equal(t, "B", FromID(1))
	assert.Equal(t, "BA", FromID(64))
	assert.Equal(t, "", FromID(-5))
}

func TestRoundTrip(t *testing.T) {
	ids := []int64{1, 63, 64, 4095, 4096, 2934820199391783, 3158246346612345678, math.MaxInt64}
	for _, id := range ids {
		got, err := ToID(FromID(id))
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	// Leading zero digits are dropped on the way back
	id, err := ToID("AAB")
	require.NoError(t, err)
	assert.Equal(t, "B", FromID(id))
}

func TestKnownShortcode(t *testing.T) {
	id, err := ToID("CuRE1VPrbYn")
	require.NoError(t, err)
	assert.Equal(t, "CuRE1VPrbYn", FromID(id))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("3158246346612345678")
	require.NoError(t, err)
	assert.Equal(t, int64(3158246346612345678), id)

	_, err = ParseID("12a")
	assert.ErrorIs(t, err, errs.ErrInvalidCharacter)

	_, err = ParseID("99999999999999999999")
	assert.ErrorIs(t, err, errs.ErrInvalidCharacter)
}
