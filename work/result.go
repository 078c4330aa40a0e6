package work

import (
	"time"

	"github.com/google/uuid"
)

// Result is a MiningResult: produced by a device,
// consumed once by the collector.
type Result struct {
	WorkID          uuid.UUID
	JobID           string
	DeviceID        string
	Algorithm       Algorithm
	Nonce           uint32
	Extranonce2     []byte
	Hash            [32]byte
	ShareDifficulty float64
	MeetsTarget     bool
	Timestamp       time.Time
}

// NewResult builds a Result for a hash found against work, computing
// MeetsTarget against the work's target and ShareDifficulty from the
// hash alone. algo records
// which hash function produced hash, so the collector can
// re-verify it deterministically.
func NewResult(deviceID string, algo Algorithm, w *Work, extranonce2 []byte, nonce uint32, hash [32]byte) Result {
	return Result{
		WorkID:          w.ID,
		JobID:           w.JobID,
		DeviceID:        deviceID,
		Algorithm:       algo,
		Nonce:           nonce,
		Extranonce2:     append([]byte(nil), extranonce2...),
		Hash:            hash,
		ShareDifficulty: ShareDifficulty(hash),
		MeetsTarget:     HashMeetsTarget(hash, w.Target),
		Timestamp:       time.Now(),
	}
}
