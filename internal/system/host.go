package system

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostStats is a point-in-time view of the machine and this process.
type HostStats struct {
	NumCPU        int
	CPUPercent    float64
	MemTotal      uint64
	MemUsedPct    float64
	ProcessRSS    uint64
	ProcessCPUPct float64
}

// CollectHostStats samples host load for the render report. Fields that
// cannot be read on this platform are left zero.
func CollectHostStats(ctx context.Context) HostStats {
	stats := HostStats{NumCPU: runtime.NumCPU()}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemTotal = vm.Total
		stats.MemUsedPct = vm.UsedPercent
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil {
			stats.ProcessRSS = mi.RSS
		}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			stats.ProcessCPUPct = pct
		}
	}
	return stats
}
