package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupWindow_FirstSeenIsNotDuplicate(t *testing.T) {
	w := newDedupWindow(10, time.Minute)
	assert.False(t, w.CheckAndAdd("job-1", 42, []byte{0x01}))
}

func TestDedupWindow_RepeatIsDuplicate(t *testing.T) {
	w := newDedupWindow(10, time.Minute)
	require := assert.New(t)
	require.False(w.CheckAndAdd("job-1", 42, []byte{0x01}))
	require.True(w.CheckAndAdd("job-1", 42, []byte{0x01}))
}

func TestDedupWindow_DifferentNonceIsNotDuplicate(t *testing.T) {
	w := newDedupWindow(10, time.Minute)
	assert.False(t, w.CheckAndAdd("job-1", 1, nil))
	assert.False(t, w.CheckAndAdd("job-1", 2, nil))
}

func TestDedupWindow_EvictsOldestWhenFull(t *testing.T) {
	w := newDedupWindow(2, time.Minute)
	w.CheckAndAdd("job-1", 1, nil)
	w.CheckAndAdd("job-1", 2, nil)
	w.CheckAndAdd("job-1", 3, nil) // evicts nonce 1

	assert.False(t, w.CheckAndAdd("job-1", 1, nil), "entry evicted by capacity should no longer count as duplicate")
	assert.Equal(t, 2, w.Len())
}

func TestDedupWindow_EvictsByAge(t *testing.T) {
	w := newDedupWindow(100, time.Millisecond)
	w.CheckAndAdd("job-1", 1, nil)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, w.CheckAndAdd("job-1", 1, nil), "entry past the age bound should no longer count as duplicate")
}
