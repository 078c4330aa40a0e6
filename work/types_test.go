package work

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		JobID:           "J1",
		PoolID:          "pool-0",
		PrevHash:        make([]byte, 32),
		Coinbase1:       []byte{0x01},
		Coinbase2:       []byte{0x02},
		Version:         0x20000000,
		NBits:           0x207fffff,
		NTime:           0x5e000000,
		Extranonce1:     []byte{0xaa, 0xbb},
		Extranonce2Size: 4,
		Difficulty:      1,
	}
}

func TestNew_HeaderTemplateIs80Bytes(t *testing.T) {
	w, err := New(validParams())
	require.NoError(t, err)
	assert.Len(t, w.HeaderTemplate, HeaderSize)
	assert.Len(t, w.Target, TargetSize)
}

func TestNew_RejectsBadPrevHashLength(t *testing.T) {
	p := validParams()
	p.PrevHash = []byte{0x01}
	_, err := New(p)
	assert.Error(t, err)
}

func TestWork_IsExpired(t *testing.T) {
	w, err := New(validParams())
	require.NoError(t, err)

	assert.False(t, w.IsExpiredAt(w.CreatedAt))
	assert.True(t, w.IsExpiredAt(w.ExpiresAt)) // expiring exactly at this instant is stale
	assert.True(t, w.IsExpiredAt(w.ExpiresAt.Add(time.Second)))
}

func TestWork_AllZeroExtranonce2IsValid(t *testing.T) {
	w, err := New(validParams())
	require.NoError(t, err)

	extranonce2 := make([]byte, w.Extranonce2Size)
	header := w.HeaderFor(extranonce2, 0)
	assert.Len(t, header, HeaderSize)
}

func TestWork_MerkleRootWrittenBeforeHashing(t *testing.T) {
	w, err := New(validParams())
	require.NoError(t, err)

	extranonce2 := []byte{0, 0, 0, 0}
	header := w.HeaderFor(extranonce2, 42)
	root := w.MerkleRoot(extranonce2)
	assert.Equal(t, root[:], header[36:68])
}
