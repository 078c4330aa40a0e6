package work

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/scrypt"
	x11 "gitlab.com/samli88/go-x11-hash"
)

// Algorithm identifies a proof-of-work hash function. SHA256d is the
// default; Scrypt and X11 can be selected per backend through the
// algorithm config key and share the same device/work plumbing.
type Algorithm string

const (
	SHA256d Algorithm = "sha256d"
	Scrypt   Algorithm = "scrypt"
	X11      Algorithm = "x11"
)

// ErrUnknownAlgorithm is returned by ParseAlgorithm for unrecognized names.
var ErrUnknownAlgorithm = errors.New("work: unknown algorithm")

// ParseAlgorithm parses a config string into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case SHA256d, Scrypt, X11:
		return Algorithm(s), nil
	}
	return "", ErrUnknownAlgorithm
}

// HashFunc returns the hashing function for the algorithm. The
// standard library's sha256 is used for SHA256d deliberately: the
// hot path must never suspend and no third-party
// implementation in the pack out-performs the standard library's
// (assembly-optimized) sha256 without cgo, which would reintroduce a
// blocking FFI boundary into a loop explicitly required to stay
// synchronous.
func (a Algorithm) HashFunc() func([]byte) [32]byte {
	switch a {
	case SHA256d:
		return DoubleSHA256
	case Scrypt:
		return scryptHash
	case X11:
		return x11Hash
	}
	panic("work: algorithm hash function not defined: " + string(a))
}

// DoubleSHA256 computes SHA-256(SHA-256(data)), Bitcoin's block
// header hashing function.
func DoubleSHA256(data []byte) [32]byte {
	h1 := sha256.Sum256(data)
	return sha256.Sum256(h1[:])
}

func scryptHash(data []byte) [32]byte {
	// Litecoin's scrypt parameters: N=1024, r=1, p=1, 32-byte output,
	// salt equal to the input itself.
	out, err := scrypt.Key(data, data, 1024, 1, 1, 32)
	if err != nil {
		panic(err)
	}
	var h [32]byte
	copy(h[:], out)
	return h
}

func x11Hash(data []byte) [32]byte {
	out := make([]byte, 32)
	x11.New().Hash(data, out)
	var h [32]byte
	copy(h[:], out)
	return h
}

// FoldMerkleBranches folds a coinbase hash through the sibling merkle
// branches to produce the merkle root.
func FoldMerkleBranches(coinbaseHash [32]byte, branches [][]byte) [32]byte {
	root := coinbaseHash
	for _, branch := range branches {
		buf := make([]byte, 0, 64)
		buf = append(buf, root[:]...)
		buf = append(buf, branch...)
		root = DoubleSHA256(buf)
	}
	return root
}
