package supervisor

import (
	"fmt"
	"syscall"
	"time"
)

// ExitReason describes why a worker invocation terminated
type ExitReason string

const (
	ExitReasonSuccess ExitReason = "success" // Exit code 0
	ExitReasonError   ExitReason = "error"   // Exit code != 0
	ExitReasonSignal  ExitReason = "signal"  // Killed by signal
	ExitReasonUnknown ExitReason = "unknown"
)

// ExitStatus is the observed outcome of a worker invocation. The
// supervisor records it and relaunches regardless of its value; it never
// treats one outcome differently from another.
type ExitStatus struct {
	Code   int        `json:"code"`
	Signal string     `json:"signal,omitempty"`
	Reason ExitReason `json:"reason"`
}

func (s ExitStatus) String() string {
	if s.Reason == ExitReasonSignal {
		return fmt.Sprintf("killed by %s", s.Signal)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

// Invocation is one execution attempt of the supervised worker. At most
// one invocation is active at any time.
type Invocation struct {
	Seq       int        `json:"seq"`
	PID       int        `json:"pid"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time,omitzero"`
	Status    ExitStatus `json:"status,omitempty"`
}

// Uptime returns how long the invocation ran, or has been running
func (i *Invocation) Uptime() time.Duration {
	if i.EndTime.IsZero() {
		return time.Since(i.StartTime)
	}
	return i.EndTime.Sub(i.StartTime)
}

// determineExitStatus analyzes a wait outcome
func determineExitStatus(code int, waitStatus syscall.WaitStatus) ExitStatus {
	if waitStatus.Signaled() {
		return ExitStatus{
			Code:   code,
			Signal: signalName(waitStatus.Signal()),
			Reason: ExitReasonSignal,
		}
	}

	if waitStatus.Exited() {
		if code == 0 {
			return ExitStatus{Code: 0, Reason: ExitReasonSuccess}
		}
		return ExitStatus{Code: code, Reason: ExitReasonError}
	}

	return ExitStatus{Code: code, Reason: ExitReasonUnknown}
}

// signalName returns the signal name for a signal number
func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	default:
		return fmt.Sprintf("SIG%d", sig)
	}
}
