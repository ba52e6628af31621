package status

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// hostStats is a coarse resource snapshot of the machine and this process.
type hostStats struct {
	Hostname     string  `json:"hostname,omitempty"`
	UptimeSec    uint64  `json:"uptime_sec,omitempty"`
	Load1        float64 `json:"load1"`
	Load5        float64 `json:"load5"`
	Load15       float64 `json:"load15"`
	MemUsedPct   float64 `json:"mem_used_pct"`
	ProcRSSBytes uint64  `json:"proc_rss_bytes"`
	Goroutines   int     `json:"goroutines"`
	PID          int     `json:"pid"`
}

// collectHostStats gathers what it can and leaves the rest zeroed.
// Every probe can fail on exotic platforms or restricted containers,
// and a partial answer is still useful.
func collectHostStats() hostStats {
	st := hostStats{
		Goroutines: runtime.NumGoroutine(),
		PID:        os.Getpid(),
	}
	if info, err := host.Info(); err == nil {
		st.Hostname = info.Hostname
		st.UptimeSec = info.Uptime
	}
	if avg, err := load.Avg(); err == nil {
		st.Load1 = avg.Load1
		st.Load5 = avg.Load5
		st.Load15 = avg.Load15
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		st.MemUsedPct = vm.UsedPercent
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
			st.ProcRSSBytes = mi.RSS
		}
	}
	return st
}
