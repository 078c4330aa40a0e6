package coordinator

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/cgminer-rs/cgominer/collector"
	"github.com/cgminer-rs/cgominer/core"
	"github.com/cgminer-rs/cgominer/dispatch"
	"github.com/cgminer-rs/cgominer/hashmeter"
	"github.com/cgminer-rs/cgominer/pool"
)

// MiningStats is the operator-facing snapshot returned by get_stats().
type MiningStats struct {
	Uptime         time.Duration
	Hashrate       hashmeter.Hashrate
	PerDevice      map[string]hashmeter.Hashrate
	Devices        []core.DeviceStats
	Dispatcher     dispatch.Stats
	Collector      collector.Stats
	Pools          []pool.PoolStatus
}

// SystemStatus is the host-level snapshot returned by
// get_system_status(): it never touches mining semantics, only the
// machine the process runs on.
type SystemStatus struct {
	CPUPercent  float64
	MemPercent  float64
	HostUptime  time.Duration
	NumCPU      int
}

// CollectSystemStatus samples host telemetry via gopsutil. It never
// returns an error: a failed sensor read degrades to zero values
// rather than blocking status reporting.
func CollectSystemStatus() SystemStatus {
	var status SystemStatus

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemPercent = vm.UsedPercent
	}
	if uptimeSecs, err := host.Uptime(); err == nil {
		status.HostUptime = time.Duration(uptimeSecs) * time.Second
	}
	if counts, err := cpu.Counts(true); err == nil {
		status.NumCPU = counts
	}

	return status
}
