package pool

import (
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

type availableMemory func() (uint64, error)

func systemAvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// slots returns how many tasks may run at once: the configured concurrency,
// never more than there are tasks, lowered when memory is short. At least
// one slot always runs.
func (p *Pool) slots(tasks int) int {
	n := min(p.cfg.Concurrency, tasks)
	if p.cfg.MemoryPerWorker == 0 || p.memory == nil {
		return n
	}
	avail, err := p.memory()
	if err != nil {
		p.logger.Warn("reading available memory failed; using configured concurrency", zap.Error(err))
		return n
	}
	if byMemory := int(avail / p.cfg.MemoryPerWorker); byMemory < n {
		p.logger.Info("concurrency lowered by available memory",
			zap.Uint64("available_bytes", avail),
			zap.Int("slots", max(byMemory, 1)),
		)
		n = byMemory
	}
	return max(n, 1)
}
