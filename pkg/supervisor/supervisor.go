// Package supervisor keeps the worker process alive. It spawns the
// configured worker command, blocks until the invocation terminates,
// records the exit status, and immediately spawns the next invocation.
// All worker outcomes are treated identically; the loop only ends when
// the harness itself is told to shut down or a spawn fails outright.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/simplco/botkeeper/pkg/logging"
)

// Supervisor drives the restart loop. It is single-threaded by design:
// spawn, wait, relaunch, strictly in sequence, so no two invocations can
// ever overlap.
type Supervisor struct {
	cmd     Command
	spawner Spawner
	policy  RestartPolicy
	grace   time.Duration
	log     *logging.Logger

	onSpawn func(inv Invocation)
	onExit  func(inv Invocation)

	mu      sync.RWMutex
	current *Invocation
	spawns  int
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithSpawner overrides the process spawner (used by tests)
func WithSpawner(sp Spawner) Option {
	return func(s *Supervisor) { s.spawner = sp }
}

// WithPolicy sets the restart delay policy
func WithPolicy(p RestartPolicy) Option {
	return func(s *Supervisor) { s.policy = p }
}

// WithGracePeriod sets how long a worker gets to stop after SIGTERM
// before it is killed during harness shutdown
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// WithLogger sets the logger
func WithLogger(log *logging.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// OnSpawn registers a hook called after each invocation starts
func OnSpawn(fn func(inv Invocation)) Option {
	return func(s *Supervisor) { s.onSpawn = fn }
}

// OnExit registers a hook called after each invocation's exit status has
// been observed
func OnExit(fn func(inv Invocation)) Option {
	return func(s *Supervisor) { s.onExit = fn }
}

// DefaultGracePeriod is how long a worker gets to exit after SIGTERM
const DefaultGracePeriod = 10 * time.Second

// New creates a Supervisor for the given worker command
func New(cmd Command, opts ...Option) *Supervisor {
	s := &Supervisor{
		cmd:     cmd,
		spawner: NewExecSpawner(),
		policy:  Immediate{},
		grace:   DefaultGracePeriod,
		log:     logging.New(logging.INFO, false),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the restart loop. It does not return under normal
// operation: it blocks until ctx is cancelled (operator shutdown, returns
// nil after stopping the active worker) or a spawn fails (*SpawnError).
func (s *Supervisor) Run(ctx context.Context) error {
	for seq := 1; ; seq++ {
		if ctx.Err() != nil {
			return nil
		}

		proc, err := s.spawner.Spawn(s.cmd)
		if err != nil {
			s.log.Error("cannot spawn worker", map[string]interface{}{
				"command": s.cmd.String(),
				"error":   err.Error(),
			})
			return &SpawnError{Path: s.cmd.Path, Err: err}
		}

		inv := Invocation{
			Seq:       seq,
			PID:       proc.PID(),
			StartTime: time.Now(),
		}
		s.setCurrent(&inv)

		s.log.Info("worker invocation started", map[string]interface{}{
			"seq": inv.Seq,
			"pid": inv.PID,
		})
		if s.onSpawn != nil {
			s.onSpawn(inv)
		}

		done := make(chan ExitStatus, 1)
		go func() {
			done <- proc.Wait()
		}()

		var st ExitStatus
		select {
		case st = <-done:
		case <-ctx.Done():
			st = s.stop(proc, done)
			s.finish(&inv, st)
			s.log.Info("worker stopped for harness shutdown", map[string]interface{}{
				"seq":    inv.Seq,
				"status": st.String(),
			})
			return nil
		}

		s.finish(&inv, st)
		s.log.Info("worker exited, relaunching", map[string]interface{}{
			"seq":    inv.Seq,
			"status": st.String(),
			"reason": string(st.Reason),
			"uptime": inv.Uptime().Round(time.Millisecond).String(),
		})

		if delay := s.policy.NextDelay(st, inv.Uptime()); delay > 0 {
			s.log.Debug("restart delayed", map[string]interface{}{
				"delay": delay.String(),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// stop performs the graceful-then-forceful shutdown of an active worker
func (s *Supervisor) stop(proc Process, done <-chan ExitStatus) ExitStatus {
	s.log.Info("shutdown requested, terminating worker", map[string]interface{}{
		"pid":   proc.PID(),
		"grace": s.grace.String(),
	})

	if err := proc.Terminate(); err != nil {
		s.log.Warn("failed to signal worker", map[string]interface{}{
			"error": err.Error(),
		})
	}

	select {
	case st := <-done:
		return st
	case <-time.After(s.grace):
	}

	s.log.Warn("worker ignored SIGTERM, killing", map[string]interface{}{
		"pid": proc.PID(),
	})
	if err := proc.Kill(); err != nil {
		s.log.Warn("failed to kill worker", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return <-done
}

func (s *Supervisor) setCurrent(inv *Invocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = inv
	s.spawns++
}

func (s *Supervisor) finish(inv *Invocation, st ExitStatus) {
	s.mu.Lock()
	inv.EndTime = time.Now()
	inv.Status = st
	s.current = nil
	s.mu.Unlock()

	if s.onExit != nil {
		s.onExit(*inv)
	}
}

// Current returns a copy of the active invocation, if any
func (s *Supervisor) Current() (Invocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Invocation{}, false
	}
	return *s.current, true
}

// Spawns returns the number of invocations started since harness start
func (s *Supervisor) Spawns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spawns
}
