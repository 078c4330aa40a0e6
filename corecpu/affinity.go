package corecpu

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
)

// AffinityStrategy is the CPU core assignment policy for a worker.
// Assignment is a pure decision, made once per worker at core
// initialization; the chosen core index is recorded on the Device, and
// no OS-specific core handle is ever exposed through the core API.
type AffinityStrategy int

const (
	AffinityRoundRobin AffinityStrategy = iota
	AffinityManual
	AffinityPerformanceFirst
	AffinityPhysicalCoresOnly
	AffinityIntelligent
	AffinityLoadBalanced
)

// AffinityManager decides which logical CPU core a worker should run
// on. It only computes the assignment: neither the manager nor the
// worker goroutine pins a thread to that core, so workers run wherever
// the Go scheduler places them.
type AffinityManager struct {
	strategy       AffinityStrategy
	manual         map[uint32]int
	available      int
	physical       int
	loadByCore     []float64
}

// NewAffinityManager builds a manager for the given strategy. manual
// is only consulted for AffinityManual and may be nil otherwise.
func NewAffinityManager(strategy AffinityStrategy, manual map[uint32]int) *AffinityManager {
	available := runtime.NumCPU()

	physical := available
	if counts, err := cpu.Counts(false); err == nil && counts > 0 {
		physical = counts
	}

	return &AffinityManager{
		strategy:  strategy,
		manual:    manual,
		available: available,
		physical:  physical,
	}
}

// AssignCore returns the logical core index a worker should be pinned
// to, given its worker id (0-based, dense) and the CPU load snapshot
// for load-balanced assignment (pass nil to fall back to round robin).
func (m *AffinityManager) AssignCore(workerID uint32, loadPercentPerCore []float64) int {
	if m.available == 0 {
		return 0
	}

	switch m.strategy {
	case AffinityManual:
		if core, ok := m.manual[workerID]; ok && core < m.available {
			return core
		}
		return int(workerID) % m.available

	case AffinityPerformanceFirst:
		// Best-effort: treat the first half of cores as "performance"
		// cores and prefer them. There is no real heterogeneous-core
		// detection here.
		perfCount := m.available / 2
		if perfCount == 0 {
			perfCount = m.available
		}
		return int(workerID) % perfCount

	case AffinityPhysicalCoresOnly:
		if m.physical == 0 {
			return int(workerID) % m.available
		}
		return int(workerID) % m.physical

	case AffinityIntelligent, AffinityLoadBalanced:
		if len(loadPercentPerCore) == 0 {
			return int(workerID) % m.available
		}
		least := 0
		for i, load := range loadPercentPerCore {
			if load < loadPercentPerCore[least] {
				least = i
			}
		}
		return least

	default: // AffinityRoundRobin
		return int(workerID) % m.available
	}
}

// AvailableCores returns the number of logical CPUs the manager sees.
func (m *AffinityManager) AvailableCores() int { return m.available }

// PhysicalCores returns the number of physical CPU cores detected.
func (m *AffinityManager) PhysicalCores() int { return m.physical }
