// Package work implements the canonical job, target and share model
// shared by every pool and device backend: the header template,
// difficulty/target conversions, merkle root computation and the
// SHA-256d hot path.
package work

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLifetime is how long a freshly created Work is considered
// current when the pool does not otherwise supersede it.
const DefaultLifetime = 120 * time.Second

// HeaderSize is the fixed length of a Bitcoin-style block header.
const HeaderSize = 80

// TargetSize is the fixed length of a 256-bit target or hash.
const TargetSize = 32

// Work is an immutable snapshot of one mining job, as synthesized from
// a pool's mining.notify plus the subscription's extranonce1/target.
type Work struct {
	ID   uuid.UUID
	JobID string

	HeaderTemplate [HeaderSize]byte
	Target         [TargetSize]byte
	Difficulty     float64

	Version uint32
	NBits   uint32
	NTime   uint32

	Coinbase1        []byte
	Coinbase2        []byte
	Extranonce1      []byte
	Extranonce2Size  int
	MerkleBranches   [][]byte

	PoolID string

	CreatedAt time.Time
	ExpiresAt time.Time

	CleanJobs bool

	// StartExtranonce2 is the counter value a device should begin
	// searching from. The dispatcher assigns a distinct starting value
	// per device for round-robin/quota pools so that two devices mining
	// the same job don't redundantly search the same extranonce2 lane.
	StartExtranonce2 uint32
}

// WithStartExtranonce2 returns a shallow copy of w with StartExtranonce2
// set to seed. The copy shares w's slices and backing arrays; callers
// must not mutate them.
func (w *Work) WithStartExtranonce2(seed uint32) *Work {
	cp := *w
	cp.StartExtranonce2 = seed
	return &cp
}

// Params groups the fields needed to synthesize a Work from a
// mining.notify plus the pool's subscription state.
type Params struct {
	JobID           string
	PoolID          string
	PrevHash        []byte // 32 bytes, as received (big-endian wire order)
	Coinbase1       []byte
	Coinbase2       []byte
	MerkleBranches  [][]byte
	Version         uint32
	NBits           uint32
	NTime           uint32
	Extranonce1     []byte
	Extranonce2Size int
	Difficulty      float64
	CleanJobs       bool
}

// New synthesizes a Work from stratum job parameters. The header
// template's merkle root (bytes 36..68) and nonce (bytes 76..80) are
// left zeroed; HeaderFor fills in both for a given extranonce2 and
// nonce before hashing.
func New(p Params) (*Work, error) {
	if len(p.PrevHash) != 32 {
		return nil, fmt.Errorf("%w: previous hash must be 32 bytes, got %d",
			ErrMalformed, len(p.PrevHash))
	}
	if p.Extranonce2Size <= 0 {
		return nil, fmt.Errorf("%w: extranonce2 size must be positive", ErrMalformed)
	}

	now := time.Now()

	w := &Work{
		ID:              uuid.New(),
		JobID:           p.JobID,
		PoolID:          p.PoolID,
		Version:         p.Version,
		NBits:           p.NBits,
		NTime:           p.NTime,
		Coinbase1:       p.Coinbase1,
		Coinbase2:       p.Coinbase2,
		Extranonce1:     p.Extranonce1,
		Extranonce2Size: p.Extranonce2Size,
		MerkleBranches:  p.MerkleBranches,
		Difficulty:      p.Difficulty,
		CreatedAt:       now,
		ExpiresAt:       now.Add(DefaultLifetime),
		CleanJobs:       p.CleanJobs,
	}

	target, err := NBitsToTarget(p.NBits)
	if err != nil {
		return nil, err
	}
	w.Target = target

	putUint32LE(w.HeaderTemplate[0:4], p.Version)
	copy(w.HeaderTemplate[4:36], p.PrevHash)
	putUint32LE(w.HeaderTemplate[68:72], p.NTime)
	putUint32LE(w.HeaderTemplate[72:76], p.NBits)

	return w, nil
}

// IsExpired reports whether the Work has passed its expiry timestamp.
// A Work expiring at exactly the check time is treated as expired.
func (w *Work) IsExpired() bool {
	return !time.Now().Before(w.ExpiresAt)
}

// IsExpiredAt reports expiry relative to an explicit instant, useful
// for deterministic tests.
func (w *Work) IsExpiredAt(t time.Time) bool {
	return !t.Before(w.ExpiresAt)
}

// BuildCoinbase concatenates coinbase1 ‖ extranonce1 ‖ extranonce2 ‖
// coinbase2 for a given extranonce2.
func (w *Work) BuildCoinbase(extranonce2 []byte) []byte {
	out := make([]byte, 0, len(w.Coinbase1)+len(w.Extranonce1)+len(extranonce2)+len(w.Coinbase2))
	out = append(out, w.Coinbase1...)
	out = append(out, w.Extranonce1...)
	out = append(out, extranonce2...)
	out = append(out, w.Coinbase2...)
	return out
}

// MerkleRoot computes the coinbase hash folded with the merkle
// branches into the merkle root for a given extranonce2.
func (w *Work) MerkleRoot(extranonce2 []byte) [32]byte {
	coinbaseHash := DoubleSHA256(w.BuildCoinbase(extranonce2))
	return FoldMerkleBranches(coinbaseHash, w.MerkleBranches)
}

// HeaderFor returns a full 80-byte header with the merkle root for
// extranonce2 written into bytes 36..68 and nonce written into bytes
// 76..80 (little-endian), ready to hash.
func (w *Work) HeaderFor(extranonce2 []byte, nonce uint32) [HeaderSize]byte {
	header := w.HeaderTemplate
	root := w.MerkleRoot(extranonce2)
	copy(header[36:68], root[:])
	putUint32LE(header[76:80], nonce)
	return header
}

func putUint32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}
