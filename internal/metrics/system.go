// Package metrics collects host resource usage for the admin system panel.
package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of host resource usage. Desktop sessions
// are memory-hungry, so this is what an admin checks before enabling more
// catalog entries.
type Snapshot struct {
	CPU     CPUUsage    `json:"cpu"`
	Memory  MemoryUsage `json:"memory"`
	Disks   []DiskUsage `json:"disks"`
	Uptime  int64       `json:"uptime"`
	LoadAvg []float64   `json:"load_avg"`
}

type CPUUsage struct {
	UsagePercent float64 `json:"usage_percent"`
	Cores        int     `json:"cores"`
}

type MemoryUsage struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
	SwapTotal   uint64  `json:"swap_total"`
	SwapUsed    uint64  `json:"swap_used"`
}

type DiskUsage struct {
	Device      string  `json:"device"`
	MountPoint  string  `json:"mount_point"`
	Filesystem  string  `json:"filesystem"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	UsedPercent float64 `json:"used_percent"`
}

// Collect gathers a snapshot of host usage. Individual probes that fail leave
// their section zeroed rather than failing the whole snapshot.
func Collect(ctx context.Context) (*Snapshot, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	snap := &Snapshot{}

	if percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(percents) > 0 {
		snap.CPU.UsagePercent = percents[0]
	}
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPU.Cores = cores
	}

	if vmem, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.Memory = MemoryUsage{
			Total:       vmem.Total,
			Used:        vmem.Used,
			Available:   vmem.Available,
			UsedPercent: vmem.UsedPercent,
		}
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		snap.Memory.SwapTotal = swap.Total
		snap.Memory.SwapUsed = swap.Used
	}

	if partitions, err := disk.PartitionsWithContext(ctx, false); err == nil {
		for _, p := range partitions {
			if virtualFilesystems[p.Fstype] {
				continue
			}
			usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
			if err != nil {
				continue
			}
			snap.Disks = append(snap.Disks, DiskUsage{
				Device:      p.Device,
				MountPoint:  p.Mountpoint,
				Filesystem:  p.Fstype,
				Total:       usage.Total,
				Used:        usage.Used,
				Available:   usage.Free,
				UsedPercent: usage.UsedPercent,
			})
		}
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.Uptime = int64(info.Uptime)
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return snap, nil
}

// virtualFilesystems are pseudo-filesystems excluded from disk reporting.
// Session containers add overlay mounts constantly; they would drown out the
// real disks.
var virtualFilesystems = map[string]bool{
	"sysfs": true, "proc": true, "devfs": true, "devpts": true,
	"tmpfs": true, "debugfs": true, "securityfs": true, "cgroup": true,
	"cgroup2": true, "pstore": true, "bpf": true, "autofs": true,
	"mqueue": true, "hugetlbfs": true, "fusectl": true, "configfs": true,
	"devtmpfs": true, "overlay": true, "squashfs": true, "nsfs": true,
	"ramfs": true,
}
