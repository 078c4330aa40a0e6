package work

import (
	"errors"
	"math"
	"math/big"
)

// ErrZeroTarget is returned when a target/difficulty conversion would
// produce the zero target, which is never a valid share threshold.
var ErrZeroTarget = errors.New("work: zero target is invalid")

// diff1Target is Bitcoin's difficulty-1 target, 0x00000000FFFF0000...
// padded to 256 bits (the mantissa 0xffff at exponent 0x1d).
var diff1Target = func() *big.Int {
	t, _ := big.NewInt(0).SetString("00000000FFFF0000000000000000000000000000000000000000000000000000", 16)
	return t
}()

// NBitsToTarget converts a compact nBits encoding into a 32-byte
// big-endian target, per the Bitcoin difficulty encoding: the top
// byte is the exponent (number of significant mantissa bytes), the
// bottom three bytes are the mantissa.
func NBitsToTarget(nbits uint32) ([TargetSize]byte, error) {
	var target [TargetSize]byte

	exponent := int(nbits >> 24)
	mantissa := nbits & 0x00ffffff

	mantissaBytes := [4]byte{
		byte(mantissa >> 24),
		byte(mantissa >> 16),
		byte(mantissa >> 8),
		byte(mantissa),
	}

	switch {
	case exponent <= 3:
		start := TargetSize - exponent
		if start >= 0 && start < TargetSize {
			copy(target[start:TargetSize], mantissaBytes[4-exponent:4])
		}
	case exponent <= 32:
		start := TargetSize - exponent
		copy(target[start:start+3], mantissaBytes[1:4])
	}

	if isZero(target[:]) {
		return target, ErrZeroTarget
	}

	return target, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// TargetToDifficulty converts a 32-byte big-endian target into the
// equivalent share difficulty: diff1_target / target.
func TargetToDifficulty(target [TargetSize]byte) float64 {
	t := new(big.Int).SetBytes(target[:])
	if t.Sign() == 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(diff1Target, t)
	f, _ := ratio.Float64()
	return f
}

// DifficultyToTarget converts a share difficulty into its 32-byte
// big-endian target: target = diff1_target / difficulty. Uses
// math/big.Rat so precision is not lost for very large or very small
// difficulties.
func DifficultyToTarget(difficulty float64) ([TargetSize]byte, error) {
	var target [TargetSize]byte

	if difficulty <= 0 {
		return target, errors.New("work: difficulty must be positive")
	}

	diffRat := new(big.Rat).SetFloat64(difficulty)
	if diffRat == nil {
		return target, errors.New("work: difficulty is not representable")
	}

	ratio := new(big.Rat).Quo(new(big.Rat).SetInt(diff1Target), diffRat)
	quotient := new(big.Int).Quo(ratio.Num(), ratio.Denom())

	maxTarget := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if quotient.Cmp(maxTarget) > 0 {
		quotient = maxTarget
	}

	b := quotient.Bytes()
	if len(b) > TargetSize {
		b = b[len(b)-TargetSize:]
	}
	copy(target[TargetSize-len(b):], b)

	if isZero(target[:]) {
		return target, ErrZeroTarget
	}

	return target, nil
}

// HashMeetsTarget reports whether hash qualifies as a share: hash is
// interpreted as a little-endian 256-bit integer (as ShareDifficulty
// reads it), target as the big-endian integer NBitsToTarget and
// DifficultyToTarget produce, and hash must be <= target. The
// comparison walks from the high-order end (hash index 31 against
// target index 0); equality counts as meeting the target.
func HashMeetsTarget(hash, target [TargetSize]byte) bool {
	for i := 0; i < TargetSize; i++ {
		hb := hash[TargetSize-1-i]
		switch {
		case hb < target[i]:
			return true
		case hb > target[i]:
			return false
		}
	}
	return true
}

// ShareDifficulty computes the share difficulty of a found hash:
// diff1_target / hash_as_u256, saturating at +Inf for a zero hash.
func ShareDifficulty(hash [TargetSize]byte) float64 {
	h := new(big.Int).SetBytes(reverseCopy(hash[:]))
	if h.Sign() == 0 {
		return math.Inf(1)
	}
	ratio := new(big.Rat).SetFrac(diff1Target, h)
	f, _ := ratio.Float64()
	return f
}

func reverseCopy(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
