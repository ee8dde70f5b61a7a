package resources

import (
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/simplco/botkeeper/pkg/logging"
	"github.com/simplco/botkeeper/pkg/metrics"
)

func TestSample_OwnProcess(t *testing.T) {
	m := metrics.New()
	s := NewSampler(func() (int, bool) {
		return os.Getpid(), true
	}, m, time.Second, logging.New(logging.ERROR, false))

	s.sample()

	if got := testutil.ToFloat64(m.WorkerRSSBytes); got <= 0 {
		t.Errorf("RSS gauge = %v, want > 0 for a live process", got)
	}
}

func TestSample_NoActiveWorker(t *testing.T) {
	m := metrics.New()
	s := NewSampler(func() (int, bool) {
		return 0, false
	}, m, time.Second, logging.New(logging.ERROR, false))

	// Must be a no-op, not a crash
	s.sample()

	if got := testutil.ToFloat64(m.WorkerRSSBytes); got != 0 {
		t.Errorf("RSS gauge = %v, want untouched 0", got)
	}
}

func TestSample_DeadPID(t *testing.T) {
	m := metrics.New()
	s := NewSampler(func() (int, bool) {
		// PIDs this large don't exist on Linux by default
		return 1 << 30, true
	}, m, time.Second, logging.New(logging.ERROR, false))

	s.sample()

	if got := testutil.ToFloat64(m.WorkerRSSBytes); got != 0 {
		t.Errorf("RSS gauge = %v, want untouched 0", got)
	}
}
