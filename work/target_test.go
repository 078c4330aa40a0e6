package work

import (
	"encoding/hex"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNBitsToTarget_BoundaryValue(t *testing.T) {
	target, err := NBitsToTarget(0x1d00ffff)
	require.NoError(t, err)
	var want [32]byte
	want[4] = 0xff
	want[5] = 0xff
	assert.Equal(t, hex.EncodeToString(want[:]), hex.EncodeToString(target[:]))
}

func TestNBitsToTarget_ZeroIsInvalid(t *testing.T) {
	_, err := NBitsToTarget(0)
	assert.ErrorIs(t, err, ErrZeroTarget)
}

func TestHashMeetsTarget_EqualityMeets(t *testing.T) {
	var h, tgt [32]byte
	for i := range tgt {
		tgt[i] = byte(i)
		h[TargetSize-1-i] = byte(i)
	}
	assert.True(t, HashMeetsTarget(h, tgt))
}

func TestHashMeetsTarget_HighOrderByteDecides(t *testing.T) {
	var h, tgt [32]byte
	tgt[0] = 0x10
	h[31] = 0x0f
	assert.True(t, HashMeetsTarget(h, tgt))

	h[31] = 0x11
	assert.False(t, HashMeetsTarget(h, tgt))
}

func TestDifficultyToTarget_RoundTrip(t *testing.T) {
	for _, d := range []float64{1, 2, 100, 65535, 1 << 20} {
		target, err := DifficultyToTarget(d)
		require.NoError(t, err)
		got := TargetToDifficulty(target)
		assert.InEpsilon(t, d, got, 1e-6, "difficulty %v round-trip", d)
	}
}

func TestShareDifficulty_ZeroHashSaturatesToInf(t *testing.T) {
	var zero [32]byte
	assert.True(t, math.IsInf(ShareDifficulty(zero), 1))
}

func TestDifficultyToTarget_RejectsNonPositive(t *testing.T) {
	_, err := DifficultyToTarget(0)
	assert.Error(t, err)
	_, err = DifficultyToTarget(-1)
	assert.Error(t, err)
}
