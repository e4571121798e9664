package system

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/edvin/homedock/internal/model"
)

// HostReader reads host statistics through gopsutil. HOST_PROC, HOST_SYS
// and HOST_ROOT point it at the host when running inside a container.
type HostReader struct{}

func NewHostReader() *HostReader {
	return &HostReader{}
}

// System returns memory, CPU, load and uptime. Only memory is required;
// the rest is left zero when unavailable.
func (HostReader) System(ctx context.Context) (*model.SystemStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read memory stats: %w", err)
	}
	if vm.Total == 0 {
		return nil, fmt.Errorf("read memory stats: total is zero")
	}

	used := vm.Total - min(vm.Available, vm.Total)
	sys := &model.SystemStats{
		MemoryTotal:   vm.Total,
		MemoryUsed:    used,
		MemoryPercent: float64(used) / float64(vm.Total) * 100,
	}

	// A zero interval measures against the previous call.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		sys.CPUPercent = pct[0]
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		sys.Load1, sys.Load5, sys.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		sys.UptimeSeconds = float64(up)
	}
	return sys, nil
}

func (HostReader) Storage(ctx context.Context, path string) (*model.StorageStats, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read disk usage of %s: %w", path, err)
	}
	return &model.StorageStats{
		Path:    path,
		Total:   u.Total,
		Used:    u.Used,
		Free:    u.Free,
		Percent: u.UsedPercent,
	}, nil
}

// Network sums received and transmitted bytes over every interface except
// loopback.
func (HostReader) Network(ctx context.Context) (*model.NetworkStats, error) {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("read network counters: %w", err)
	}
	return sumCounters(counters), nil
}

func sumCounters(counters []psnet.IOCountersStat) *model.NetworkStats {
	stats := &model.NetworkStats{}
	for _, c := range counters {
		if c.Name == "lo" {
			continue
		}
		stats.Interfaces++
		stats.RxBytes += c.BytesRecv
		stats.TxBytes += c.BytesSent
	}
	return stats
}
