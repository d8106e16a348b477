package metrics

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
)

// DefaultCalibrationWindow is the CPU sampling interval used for baseline calibration.
const DefaultCalibrationWindow = 500 * time.Millisecond

// CPUBaseline samples total CPU utilization once.
// Params: ctx for cancellation; window sampling interval (0 compares with the previous call).
// Returns: utilization percent clamped to [0,100] or error.
func CPUBaseline(ctx context.Context, window time.Duration) (float64, error) {
	total, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, fmt.Errorf("read total CPU percent: %w", err)
	}
	if len(total) == 0 {
		return 0, fmt.Errorf("read total CPU percent: empty result")
	}
	return clampPercent(total[0]), nil
}

// HostTags reads host descriptors suitable for point tags.
// Params: ctx for cancellation.
// Returns: os/platform/kernel tags or error.
func HostTags(ctx context.Context) (map[string]string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", err)
	}
	return hostTagsFromInfo(info), nil
}

// MergeTags overlays configured tags on top of detected ones.
// Params: configured static tags; detected host tags.
// Returns: new map where configured keys win.
func MergeTags(configured, detected map[string]string) map[string]string {
	out := make(map[string]string, len(configured)+len(detected))
	for key, value := range detected {
		out[key] = value
	}
	for key, value := range configured {
		out[key] = value
	}
	return out
}

// hostTagsFromInfo maps non-empty host info fields to tag keys.
func hostTagsFromInfo(info *host.InfoStat) map[string]string {
	tags := make(map[string]string, 4)
	if info == nil {
		return tags
	}
	put := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			tags[key] = value
		}
	}
	put("os", info.OS)
	put("platform", info.Platform)
	put("platform_version", info.PlatformVersion)
	put("kernel_arch", info.KernelArch)
	return tags
}

func clampPercent(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	return math.Min(100, math.Max(0, value))
}
