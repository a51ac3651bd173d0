package metrics

import (
	"context"

	"github.com/shirou/gopsutil/v4/mem"
)

// hostMemoryUsedPct reads the host memory utilisation. Used when the
// workflow application does not export its own memory gauge.
func hostMemoryUsedPct(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}
