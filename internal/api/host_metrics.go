package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HostMetrics показатели процесса и хоста для /api/stats
type HostMetrics struct {
	StartTime time.Time
	proc      *process.Process
}

// HostStats снимок показателей
type HostStats struct {
	Uptime        string  `json:"uptime"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	HeapMB        float64 `json:"heap_mb"`
	RSSMB         float64 `json:"rss_mb,omitempty"`
	ProcessCPU    float64 `json:"process_cpu_percent"`
	SystemCPU     float64 `json:"system_cpu_percent"`
	SystemMemUsed float64 `json:"system_mem_used_percent,omitempty"`
}

// NewHostMetrics запоминает время старта и открывает текущий процесс
func NewHostMetrics() *HostMetrics {
	hm := &HostMetrics{StartTime: time.Now()}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		hm.proc = p
	}
	return hm
}

// Uptime время работы в виде "1д 2ч 3м 4с"
func (hm *HostMetrics) Uptime() string {
	uptime := time.Since(hm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// Snapshot собирает показатели. Недоступные счетчики хоста остаются нулевыми.
func (hm *HostMetrics) Snapshot() HostStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	st := HostStats{
		Uptime:        hm.Uptime(),
		UptimeSeconds: int64(time.Since(hm.StartTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		HeapMB:        float64(m.HeapAlloc) / 1024 / 1024,
	}

	if hm.proc != nil {
		if pct, err := hm.proc.CPUPercent(); err == nil {
			st.ProcessCPU = pct
		}
		if info, err := hm.proc.MemoryInfo(); err == nil {
			st.RSSMB = float64(info.RSS) / 1024 / 1024
		}
	}
	// Интервал 0 сравнивает с предыдущим вызовом и не блокирует запрос
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		st.SystemCPU = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		st.SystemMemUsed = vm.UsedPercent
	}
	return st
}
