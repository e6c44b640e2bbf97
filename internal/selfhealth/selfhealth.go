// Package selfhealth reports the rule engine process's own resource usage
// (CPU, memory, goroutine count) using gopsutil, aimed at the engine
// process itself rather than a monitored host.
package selfhealth

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is one point-in-time reading of the engine process's own health.
type Snapshot struct {
	Time          time.Time
	CPUPercent    float64
	MemoryRSSMB   float64
	MemoryPercent float64
	Goroutines    int
	OpenFiles     int
}

// Reporter samples the current process via gopsutil.
type Reporter struct {
	proc *process.Process
}

// NewReporter binds a Reporter to the calling process.
func NewReporter() (*Reporter, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("selfhealth: resolve own process: %w", err)
	}
	return &Reporter{proc: p}, nil
}

// Sample collects one Snapshot. CPUPercent is measured over interval; pass 0
// for a non-blocking instantaneous read.
func (r *Reporter) Sample(interval time.Duration) (Snapshot, error) {
	cpuPct, err := r.proc.Percent(interval)
	if err != nil {
		return Snapshot{}, fmt.Errorf("selfhealth: cpu percent: %w", err)
	}

	memInfo, err := r.proc.MemoryInfo()
	if err != nil {
		return Snapshot{}, fmt.Errorf("selfhealth: memory info: %w", err)
	}

	memPct, err := r.proc.MemoryPercent()
	if err != nil {
		return Snapshot{}, fmt.Errorf("selfhealth: memory percent: %w", err)
	}

	openFiles, err := r.proc.OpenFiles()
	if err != nil {
		openFiles = nil // not fatal: some sandboxes disallow /proc/*/fd listing
	}

	return Snapshot{
		Time:          time.Now(),
		CPUPercent:    math.Round(cpuPct*10) / 10,
		MemoryRSSMB:   roundMB(memInfo.RSS),
		MemoryPercent: math.Round(float64(memPct)*10) / 10,
		Goroutines:    runtime.NumGoroutine(),
		OpenFiles:     len(openFiles),
	}, nil
}

// SystemHeadroom reports host-wide memory availability as the percentage
// of memory not in use. Nothing in the engine consults it to limit metric
// ingestion.
func SystemHeadroom() (availablePercent float64, err error) {
	m, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("selfhealth: virtual memory: %w", err)
	}
	return math.Round((100-m.UsedPercent)*10) / 10, nil
}

// HostCPUPercent reports total host CPU load, independent of this process's
// own share of it.
func HostCPUPercent() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return 0, fmt.Errorf("selfhealth: host cpu percent: %w", err)
	}
	return math.Round(percents[0]*10) / 10, nil
}

func roundMB(bytes uint64) float64 {
	return float64(int(float64(bytes)/(1024*1024)*10)) / 10
}
