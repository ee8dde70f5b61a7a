package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/simplco/botkeeper/pkg/logging"
)

// fakeProcess is a scripted worker invocation. If exit is pre-filled the
// process "exits" immediately; otherwise it runs until Terminate or Kill.
type fakeProcess struct {
	pid        int
	exit       chan ExitStatus
	mu         sync.Mutex
	terminated bool
	killed     bool
	stubborn   bool // ignores Terminate
	done       bool
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Wait() ExitStatus {
	st := <-p.exit
	p.mu.Lock()
	p.done = true
	p.mu.Unlock()
	return st
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
	if !p.stubborn {
		p.exit <- ExitStatus{Code: -1, Signal: "SIGTERM", Reason: ExitReasonSignal}
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	p.exit <- ExitStatus{Code: -1, Signal: "SIGKILL", Reason: ExitReasonSignal}
	return nil
}

func (p *fakeProcess) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.done
}

// fakeSpawner plays back a script of exit statuses. Once the script is
// exhausted it hands out long-running processes. It also verifies the
// single-invocation invariant: a spawn while a previous process is still
// running is recorded as an overlap.
type fakeSpawner struct {
	mu       sync.Mutex
	script   []ExitStatus
	stubborn bool
	spawnErr error
	procs    []*fakeProcess
	overlaps int
}

func (s *fakeSpawner) Spawn(cmd Command) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spawnErr != nil {
		return nil, s.spawnErr
	}

	for _, prev := range s.procs {
		if prev.running() {
			s.overlaps++
		}
	}

	p := &fakeProcess{
		pid:      1000 + len(s.procs),
		exit:     make(chan ExitStatus, 1),
		stubborn: s.stubborn,
	}
	if len(s.script) > 0 {
		p.exit <- s.script[0]
		s.script = s.script[1:]
	}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) spawnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeSpawner) lastProc() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

func quietLogger() *logging.Logger {
	log := logging.New(logging.ERROR, false)
	return log
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRun_RelaunchesAfterEveryExit(t *testing.T) {
	// Three worker crashes must yield exactly four spawns: three
	// completed invocations plus the in-flight one.
	spawner := &fakeSpawner{
		script: []ExitStatus{
			{Code: 1, Reason: ExitReasonError},
			{Code: 1, Reason: ExitReasonError},
			{Code: 1, Reason: ExitReasonError},
		},
	}

	sup := New(Command{Path: "worker"},
		WithSpawner(spawner),
		WithLogger(quietLogger()),
		WithGracePeriod(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	waitFor(t, "fourth spawn", func() bool { return spawner.spawnCount() == 4 })

	cancel()
	if err := <-runDone; err != nil {
		t.Errorf("Run returned error on clean shutdown: %v", err)
	}

	if got := spawner.spawnCount(); got != 4 {
		t.Errorf("expected 4 spawns, got %d", got)
	}
	if got := sup.Spawns(); got != 4 {
		t.Errorf("Spawns() = %d, want 4", got)
	}
	if spawner.overlaps != 0 {
		t.Errorf("observed %d overlapping invocations, want 0", spawner.overlaps)
	}
}

func TestRun_SuccessExitAlsoRelaunches(t *testing.T) {
	// A clean exit is treated exactly like a crash: relaunch.
	spawner := &fakeSpawner{
		script: []ExitStatus{
			{Code: 0, Reason: ExitReasonSuccess},
			{Code: 0, Reason: ExitReasonSuccess},
		},
	}

	sup := New(Command{Path: "worker"},
		WithSpawner(spawner),
		WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	waitFor(t, "third spawn", func() bool { return spawner.spawnCount() == 3 })
	cancel()
	<-runDone

	if got := spawner.spawnCount(); got != 3 {
		t.Errorf("expected 3 spawns, got %d", got)
	}
}

func TestRun_CancelTerminatesWorkerAndStopsSpawning(t *testing.T) {
	spawner := &fakeSpawner{} // no script: first worker runs until told to stop

	sup := New(Command{Path: "worker"},
		WithSpawner(spawner),
		WithLogger(quietLogger()),
		WithGracePeriod(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	waitFor(t, "first spawn", func() bool { return spawner.spawnCount() == 1 })
	cancel()

	if err := <-runDone; err != nil {
		t.Errorf("Run returned error on clean shutdown: %v", err)
	}

	proc := spawner.lastProc()
	if !proc.terminated {
		t.Error("active worker was not asked to terminate")
	}
	if proc.killed {
		t.Error("worker was killed although it honored SIGTERM")
	}
	if got := spawner.spawnCount(); got != 1 {
		t.Errorf("spawned %d invocations after cancellation, want 1", got)
	}
	if _, ok := sup.Current(); ok {
		t.Error("Current() still reports an active invocation after shutdown")
	}
}

func TestRun_KillsWorkerThatIgnoresTerminate(t *testing.T) {
	spawner := &fakeSpawner{stubborn: true}

	sup := New(Command{Path: "worker"},
		WithSpawner(spawner),
		WithLogger(quietLogger()),
		WithGracePeriod(50*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	waitFor(t, "first spawn", func() bool { return spawner.spawnCount() == 1 })
	cancel()

	if err := <-runDone; err != nil {
		t.Errorf("Run returned error: %v", err)
	}

	proc := spawner.lastProc()
	if !proc.terminated {
		t.Error("worker was not asked to terminate first")
	}
	if !proc.killed {
		t.Error("stubborn worker was not killed after the grace period")
	}
}

func TestRun_SpawnFailureIsFatal(t *testing.T) {
	spawner := &fakeSpawner{spawnErr: errors.New("fork: resource temporarily unavailable")}

	sup := New(Command{Path: "worker"},
		WithSpawner(spawner),
		WithLogger(quietLogger()),
	)

	err := sup.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when spawning fails")
	}

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %T: %v", err, err)
	}
	if spawnErr.Path != "worker" {
		t.Errorf("SpawnError.Path = %q, want %q", spawnErr.Path, "worker")
	}
}

func TestRun_HooksObserveEveryInvocation(t *testing.T) {
	spawner := &fakeSpawner{
		script: []ExitStatus{
			{Code: 2, Reason: ExitReasonError},
			{Code: 0, Reason: ExitReasonSuccess},
		},
	}

	var mu sync.Mutex
	var spawned, exited []int

	sup := New(Command{Path: "worker"},
		WithSpawner(spawner),
		WithLogger(quietLogger()),
		OnSpawn(func(inv Invocation) {
			mu.Lock()
			spawned = append(spawned, inv.Seq)
			mu.Unlock()
		}),
		OnExit(func(inv Invocation) {
			mu.Lock()
			exited = append(exited, inv.Seq)
			mu.Unlock()
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	waitFor(t, "third spawn", func() bool { return spawner.spawnCount() == 3 })
	cancel()
	<-runDone

	mu.Lock()
	defer mu.Unlock()

	if len(spawned) != 3 {
		t.Errorf("OnSpawn fired %d times, want 3", len(spawned))
	}
	// All three invocations exit: two scripted, one stopped at shutdown
	if len(exited) != 3 {
		t.Errorf("OnExit fired %d times, want 3", len(exited))
	}
	for i, seq := range spawned {
		if seq != i+1 {
			t.Errorf("spawn %d has sequence %d, want %d", i, seq, i+1)
		}
	}
}

func TestRun_RestartDelayHonorsCancellation(t *testing.T) {
	// With a long fixed delay pending, cancellation must end the loop
	// without another spawn.
	spawner := &fakeSpawner{
		script: []ExitStatus{{Code: 1, Reason: ExitReasonError}},
	}

	sup := New(Command{Path: "worker"},
		WithSpawner(spawner),
		WithLogger(quietLogger()),
		WithPolicy(Fixed{Delay: time.Minute}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	waitFor(t, "first exit", func() bool { return sup.Spawns() == 1 })
	// Give the loop a moment to enter the delay, then cancel
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation during restart delay")
	}

	if got := spawner.spawnCount(); got != 1 {
		t.Errorf("spawned %d invocations, want 1", got)
	}
}
