package telemetry

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// GPUInfo is best-effort accelerator information.
type GPUInfo struct {
	Name       string  `json:"name"`
	MemTotalMB float64 `json:"mem_total_mb,omitempty"`
	MemUsedMB  float64 `json:"mem_used_mb,omitempty"`
	MemValid   bool    `json:"mem_valid"`
}

// HostInfo describes the machine a run executes on.
type HostInfo struct {
	Hostname    string    `json:"hostname"`
	Platform    string    `json:"platform"`
	OS          string    `json:"os"`
	Arch        string    `json:"arch"`
	CPUModel    string    `json:"cpu_model"`
	CPUCores    int       `json:"cpu_cores"`
	CPUThreads  int       `json:"cpu_threads"`
	MemTotalGB  float64   `json:"mem_total_gb"`
	MemUsedGB   float64   `json:"mem_used_gb"`
	SwapTotalGB float64   `json:"swap_total_gb"`
	SwapUsedGB  float64   `json:"swap_used_gb"`
	GPUs        []GPUInfo `json:"gpus,omitempty"`
}

// HostInfoCollector caches static hardware facts and refreshes usage on
// every call.
type HostInfoCollector struct {
	mu        sync.Mutex
	collected bool
	static    HostInfo
}

// NewHostInfoCollector creates a collector.
func NewHostInfoCollector() *HostInfoCollector {
	return &HostInfoCollector{}
}

// Collect gathers host information. Individual probe failures leave the
// corresponding fields empty.
func (c *HostInfoCollector) Collect(ctx context.Context) HostInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.collected {
		c.static = collectStatic(ctx)
		c.collected = true
	}

	info := c.static
	info.GPUs = append([]GPUInfo(nil), c.static.GPUs...)

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemTotalGB = bytesToGB(vm.Total)
		info.MemUsedGB = bytesToGB(vm.Used)
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		info.SwapTotalGB = bytesToGB(sw.Total)
		info.SwapUsedGB = bytesToGB(sw.Used)
	}
	return info
}

func collectStatic(ctx context.Context) HostInfo {
	info := HostInfo{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.Platform = strings.TrimSpace(h.Platform + " " + h.PlatformVersion)
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		info.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if cores, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.CPUCores = cores
	}
	if threads, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUThreads = threads
	}
	info.GPUs = queryGPUs(ctx)
	return info
}

func queryGPUs(ctx context.Context) []GPUInfo {
	if gpus := queryNvidiaSMI(ctx); len(gpus) > 0 {
		return gpus
	}
	return queryGhwGPU()
}

func queryNvidiaSMI(ctx context.Context) []GPUInfo {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total,memory.used", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil
	}
	return parseNvidiaCSV(string(out))
}

func parseNvidiaCSV(out string) []GPUInfo {
	var gpus []GPUInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			continue
		}
		total, totalErr := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		used, usedErr := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		gpus = append(gpus, GPUInfo{
			Name:       strings.TrimSpace(fields[0]),
			MemTotalMB: total,
			MemUsedMB:  used,
			MemValid:   totalErr == nil && usedErr == nil,
		})
	}
	return gpus
}

func queryGhwGPU() []GPUInfo {
	info, err := ghw.GPU()
	if err != nil || info == nil || len(info.GraphicsCards) == 0 {
		return nil
	}

	gpus := make([]GPUInfo, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		name := ""
		if card.DeviceInfo != nil {
			switch {
			case card.DeviceInfo.Vendor != nil && card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name + " " + card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Product != nil:
				name = strings.TrimSpace(card.DeviceInfo.Product.Name)
			case card.DeviceInfo.Vendor != nil:
				name = strings.TrimSpace(card.DeviceInfo.Vendor.Name)
			}
		}
		if name == "" {
			name = fmt.Sprintf("GPU %d", card.Index)
		}
		gpus = append(gpus, GPUInfo{Name: name})
	}
	return gpus
}

func bytesToGB(b uint64) float64 {
	return float64(b) / 1024 / 1024 / 1024
}
