// Package resources samples the active worker's resource usage so the
// restart loop's health is visible from outside without touching the
// worker itself.
package resources

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/simplco/botkeeper/pkg/logging"
	"github.com/simplco/botkeeper/pkg/metrics"
)

// PIDFunc reports the PID of the active worker invocation, if any
type PIDFunc func() (int, bool)

// DefaultInterval is how often the worker process is sampled
const DefaultInterval = 15 * time.Second

// Sampler periodically reads CPU and RSS of the active worker process
// and feeds the harness gauges
type Sampler struct {
	pid      PIDFunc
	metrics  *metrics.Metrics
	interval time.Duration
	log      *logging.Logger
}

// NewSampler creates a sampler. interval <= 0 selects DefaultInterval.
func NewSampler(pid PIDFunc, m *metrics.Metrics, interval time.Duration, log *logging.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{
		pid:      pid,
		metrics:  m,
		interval: interval,
		log:      log.WithComponent("resources"),
	}
}

// Run samples until ctx is cancelled
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	pid, ok := s.pid()
	if !ok {
		return
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		// Worker exited between the PID read and the sample
		return
	}

	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		s.metrics.WorkerRSSBytes.Set(float64(mem.RSS))
	}

	if cpu, err := proc.CPUPercent(); err == nil {
		s.metrics.WorkerCPUPercent.Set(cpu)
	} else {
		s.log.Debug("cpu sample failed", map[string]interface{}{
			"pid":   pid,
			"error": err.Error(),
		})
	}
}
