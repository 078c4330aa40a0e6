package hashmeter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cgminer-rs/cgominer/hashmeter"
)

func TestMeter_RatesZeroWithNoSamples(t *testing.T) {
	m := hashmeter.NewMeter()
	assert.Equal(t, hashmeter.Hashrate{}, m.Rates())
}

func TestMeter_CurrentHzReflectsRecentGrowth(t *testing.T) {
	m := hashmeter.NewMeter()
	m.Sample(0)
	time.Sleep(20 * time.Millisecond)
	m.Sample(2000)

	rates := m.Rates()
	assert.Greater(t, rates.CurrentHz, 0.0)
	assert.Greater(t, rates.AvgTotal, 0.0)
}

func TestMeter_CounterResetYieldsZeroNotNegative(t *testing.T) {
	m := hashmeter.NewMeter()
	m.Sample(5000)
	time.Sleep(10 * time.Millisecond)
	m.Sample(10) // device restarted, counter went backwards

	rates := m.Rates()
	assert.Equal(t, 0.0, rates.CurrentHz)
}

func TestAggregator_PerDeviceAndTotal(t *testing.T) {
	a := hashmeter.NewAggregator()

	a.Device("dev-0").Sample(0)
	a.Device("dev-1").Sample(0)
	time.Sleep(20 * time.Millisecond)
	a.Device("dev-0").Sample(1000)
	a.Device("dev-1").Sample(2000)

	perDevice := a.PerDevice()
	assert.Len(t, perDevice, 2)

	total := a.Total()
	assert.Greater(t, total.CurrentHz, 0.0)
}

func TestAggregator_RemoveDeviceDropsItFromPerDevice(t *testing.T) {
	a := hashmeter.NewAggregator()
	a.Device("dev-0").Sample(100)
	a.RemoveDevice("dev-0")

	assert.Empty(t, a.PerDevice())
}
