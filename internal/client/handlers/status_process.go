package handlers

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo describes the daemon process.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
	Uptime     int64   `json:"uptime_ms"`
}

// currentProcess reports what the os knows about this process. Fields the
// platform cannot provide stay zero.
func currentProcess(now time.Time) *ProcessInfo {
	pid := int32(os.Getpid())
	info := &ProcessInfo{PID: pid}

	p, err := process.NewProcess(pid)
	if err != nil {
		return info
	}
	if cpu, err := p.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		info.MemoryRSS = mem.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		info.NumThreads = threads
	}
	if created, err := p.CreateTime(); err == nil {
		info.Uptime = now.UnixMilli() - created
	}
	return info
}
