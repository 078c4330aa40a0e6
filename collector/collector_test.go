package collector_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgminer-rs/cgominer/collector"
	"github.com/cgminer-rs/cgominer/work"
)

type fakeDevice struct {
	accepted, rejected, stale, hwErrors int
}

func (f *fakeDevice) RecordAccepted()      { f.accepted++ }
func (f *fakeDevice) RecordRejected()      { f.rejected++ }
func (f *fakeDevice) RecordStale()         { f.stale++ }
func (f *fakeDevice) RecordHardwareError() { f.hwErrors++ }

type fakeSubmitter struct {
	submitted int
}

func (f *fakeSubmitter) Submit(ctx context.Context, jobID string, extranonce2 []byte, ntime, nonce uint32) error {
	f.submitted++
	return nil
}

func trivialWork(t *testing.T) *work.Work {
	t.Helper()
	w, err := work.New(work.Params{
		JobID:           "J1",
		PoolID:          "pool-0",
		PrevHash:        make([]byte, 32),
		Coinbase1:       []byte{0x01},
		Coinbase2:       []byte{0x02},
		Version:         1,
		NBits:           0x207fffff,
		NTime:           0x5e000000,
		Extranonce1:     []byte{0xaa, 0xbb},
		Extranonce2Size: 4,
		Difficulty:      1e-6,
	})
	require.NoError(t, err)
	return w
}

// findShare brute-forces a nonce that meets w's (trivial) target for
// the zero extranonce2, so tests don't depend on a hard-coded vector.
func findShare(t *testing.T, w *work.Work) (extranonce2 []byte, nonce uint32, hash [32]byte) {
	t.Helper()
	extranonce2 = []byte{0, 0, 0, 0}
	for n := uint32(0); n < 1_000_000; n++ {
		header := w.HeaderFor(extranonce2, n)
		h := work.DoubleSHA256(header[:])
		if work.HashMeetsTarget(h, w.Target) {
			return extranonce2, n, h
		}
	}
	t.Fatal("no share found within search bound at trivial difficulty")
	return nil, 0, [32]byte{}
}

func TestCollector_AcceptsValidShare(t *testing.T) {
	w := trivialWork(t)
	extranonce2, nonce, hash := findShare(t, w)
	result := work.NewResult("dev-0", work.SHA256d, w, extranonce2, nonce, hash)

	lookup := func(jobID string) (*work.Work, bool) {
		if jobID == w.JobID {
			return w, true
		}
		return nil, false
	}
	submitter := &fakeSubmitter{}
	c := collector.NewCollector(collector.Config{}, lookup,
		func(string) collector.ShareSubmitter { return submitter }, nil)

	device := &fakeDevice{}
	results := make(chan collector.Collected, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, func(r collector.Collected) { results <- r })

	require.True(t, c.Submit(collector.Pending{DeviceID: "dev-0", Device: device, Result: result}))

	select {
	case r := <-results:
		assert.Equal(t, collector.OutcomeAccepted, r.Outcome)
	case <-time.After(time.Second):
		t.Fatal("collector did not process result in time")
	}

	assert.Equal(t, 1, device.accepted)
	assert.Equal(t, 1, submitter.submitted)
}

func TestCollector_DropsUnknownJobAsStale(t *testing.T) {
	w := trivialWork(t)
	extranonce2, nonce, hash := findShare(t, w)
	result := work.NewResult("dev-0", work.SHA256d, w, extranonce2, nonce, hash)

	lookup := func(jobID string) (*work.Work, bool) { return nil, false }
	c := collector.NewCollector(collector.Config{}, lookup,
		func(string) collector.ShareSubmitter { return nil }, nil)

	device := &fakeDevice{}
	results := make(chan collector.Collected, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, func(r collector.Collected) { results <- r })

	c.Submit(collector.Pending{DeviceID: "dev-0", Device: device, Result: result})

	select {
	case r := <-results:
		assert.Equal(t, collector.OutcomeStale, r.Outcome)
	case <-time.After(time.Second):
		t.Fatal("collector did not process result in time")
	}
	assert.Equal(t, 1, device.stale)
}

func TestCollector_RejectsDuplicateShare(t *testing.T) {
	w := trivialWork(t)
	extranonce2, nonce, hash := findShare(t, w)
	result := work.NewResult("dev-0", work.SHA256d, w, extranonce2, nonce, hash)

	lookup := func(jobID string) (*work.Work, bool) { return w, true }
	c := collector.NewCollector(collector.Config{}, lookup,
		func(string) collector.ShareSubmitter { return &fakeSubmitter{} }, nil)

	device := &fakeDevice{}
	results := make(chan collector.Collected, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, func(r collector.Collected) { results <- r })

	c.Submit(collector.Pending{DeviceID: "dev-0", Device: device, Result: result})
	c.Submit(collector.Pending{DeviceID: "dev-0", Device: device, Result: result})

	first := <-results
	second := <-results
	assert.Equal(t, collector.OutcomeAccepted, first.Outcome)
	assert.Equal(t, collector.OutcomeDuplicate, second.Outcome)
}

func TestCollector_InvalidShareTouchesOnlyInvalidCounter(t *testing.T) {
	w, err := work.New(work.Params{
		JobID:           "J1",
		PoolID:          "pool-0",
		PrevHash:        make([]byte, 32),
		Coinbase1:       []byte{0x01},
		Coinbase2:       []byte{0x02},
		Version:         1,
		NBits:           0x1d00ffff, // hard target: an arbitrary nonce won't meet it
		NTime:           0x5e000000,
		Extranonce1:     []byte{0xaa, 0xbb},
		Extranonce2Size: 4,
		Difficulty:      1,
	})
	require.NoError(t, err)

	extranonce2 := []byte{0, 0, 0, 0}
	header := w.HeaderFor(extranonce2, 0)
	hash := work.DoubleSHA256(header[:])
	require.False(t, work.HashMeetsTarget(hash, w.Target), "test requires a hash that fails the target check")

	result := work.NewResult("dev-0", work.SHA256d, w, extranonce2, 0, hash)

	lookup := func(jobID string) (*work.Work, bool) { return w, true }
	c := collector.NewCollector(collector.Config{}, lookup,
		func(string) collector.ShareSubmitter { return nil }, nil)

	device := &fakeDevice{}
	results := make(chan collector.Collected, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, func(r collector.Collected) { results <- r })

	c.Submit(collector.Pending{DeviceID: "dev-0", Device: device, Result: result})

	select {
	case r := <-results:
		assert.Equal(t, collector.OutcomeInvalidShare, r.Outcome)
	case <-time.After(time.Second):
		t.Fatal("collector did not process result in time")
	}

	assert.Equal(t, uint64(1), c.Stats().InvalidShare)
	assert.Zero(t, device.accepted)
	assert.Zero(t, device.rejected)
	assert.Zero(t, device.stale)
	assert.Zero(t, device.hwErrors)
}

func TestCollector_RejectsHashMismatchAsHardwareError(t *testing.T) {
	w := trivialWork(t)
	extranonce2, nonce, _ := findShare(t, w)
	var bogusHash [32]byte // does not match the recomputed double-SHA256
	result := work.NewResult("dev-0", work.SHA256d, w, extranonce2, nonce, bogusHash)

	lookup := func(jobID string) (*work.Work, bool) { return w, true }
	c := collector.NewCollector(collector.Config{}, lookup,
		func(string) collector.ShareSubmitter { return nil }, nil)

	device := &fakeDevice{}
	results := make(chan collector.Collected, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, func(r collector.Collected) { results <- r })

	c.Submit(collector.Pending{DeviceID: "dev-0", Device: device, Result: result})

	select {
	case r := <-results:
		assert.Equal(t, collector.OutcomeHardwareError, r.Outcome)
	case <-time.After(time.Second):
		t.Fatal("collector did not process result in time")
	}
	assert.Equal(t, 1, device.hwErrors)
}
