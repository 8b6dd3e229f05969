package system

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type Metrics struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
	DiskUsed    uint64
}

// Snapshot samples host load. Disk usage is taken for the filesystem
// holding path.
func Snapshot(path string) (Metrics, error) {
	if path == "" {
		path = "."
	}
	cpuPct, err := cpu.Percent(0, false)
	if err != nil {
		return Metrics{}, fmt.Errorf("cpu: %w", err)
	}
	if len(cpuPct) == 0 {
		return Metrics{}, fmt.Errorf("cpu: no samples")
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		return Metrics{}, fmt.Errorf("mem: %w", err)
	}
	diskStat, err := disk.Usage(path)
	if err != nil {
		return Metrics{}, fmt.Errorf("disk: %w", err)
	}
	return Metrics{
		CPUPercent:  cpuPct[0],
		MemPercent:  memStat.UsedPercent,
		DiskPercent: diskStat.UsedPercent,
		DiskUsed:    diskStat.Used,
	}, nil
}

func FormatMetrics(m Metrics) string {
	return fmt.Sprintf("cpu %.0f%% | mem %.0f%% | disk %.0f%% (%s)",
		m.CPUPercent, m.MemPercent, m.DiskPercent, FormatBytes(m.DiskUsed))
}

func FormatBytes(v uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case v >= GB:
		return fmt.Sprintf("%.1f GB", float64(v)/GB)
	case v >= MB:
		return fmt.Sprintf("%.1f MB", float64(v)/MB)
	case v >= KB:
		return fmt.Sprintf("%.1f KB", float64(v)/KB)
	default:
		return fmt.Sprintf("%d B", v)
	}
}
