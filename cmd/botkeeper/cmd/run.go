package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/simplco/botkeeper/pkg/config"
	"github.com/simplco/botkeeper/pkg/logging"
	"github.com/simplco/botkeeper/pkg/metrics"
	"github.com/simplco/botkeeper/pkg/preflight"
	"github.com/simplco/botkeeper/pkg/resources"
	"github.com/simplco/botkeeper/pkg/shutdown"
	"github.com/simplco/botkeeper/pkg/supervisor"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [-- command args...]",
	Short: "Check the data store, then supervise the worker",
	Long: `Runs the dependency preflight check and, on success, starts the worker
under the restart loop. The worker command comes from configuration or,
if given, from the arguments after --.

The command does not return during normal operation. It exits 0 only
after an operator signal (SIGINT/SIGTERM), and non-zero when the
preflight check fails or the worker cannot be spawned at all.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if len(args) > 0 {
		cfg.Worker.Command = args[0]
		cfg.Worker.Args = args[1:]
	}
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	log := newLogger(cfg)
	m := metrics.New()

	// Preflight: one liveness command against the store. Any failure
	// here aborts before a single worker spawn; a worker that cannot
	// reach its store would be restarted forever without ever working.
	if err := runPreflight(cmd.Context(), cfg, log, m); err != nil {
		return err
	}

	mgr := shutdown.New(cfg.GracePeriod+5*time.Second, log)
	ctx, cancel := mgr.Context(cmd.Context())
	defer cancel()

	sup := supervisor.New(
		workerCommand(cfg),
		supervisor.WithPolicy(buildPolicy(cfg.Restart)),
		supervisor.WithGracePeriod(cfg.GracePeriod),
		supervisor.WithLogger(log.WithComponent("supervisor")),
		supervisor.OnSpawn(func(inv supervisor.Invocation) {
			m.RecordSpawn(inv.StartTime)
		}),
		supervisor.OnExit(func(inv supervisor.Invocation) {
			m.RecordExit(string(inv.Status.Reason))
		}),
	)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.ListenAddr, m, healthPayload(sup), log)
		srv.Start()
		mgr.Register("metrics server", srv.Shutdown)

		sampler := resources.NewSampler(currentPID(sup), m, cfg.Metrics.SampleInterval, log)
		go sampler.Run(ctx)
	}

	err = sup.Run(ctx)
	mgr.Shutdown()

	if err != nil {
		return err
	}

	log.Info("harness stopped cleanly")
	return nil
}

// runPreflight executes the store liveness check and logs the outcome
func runPreflight(ctx context.Context, cfg *config.Config, log *logging.Logger, m *metrics.Metrics) error {
	checker, err := preflight.New(cfg.StoreURI, cfg.PreflightTimeout)
	if err != nil {
		log.Error("store configuration invalid", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	start := time.Now()
	if err := checker.Check(ctx); err != nil {
		log.Error("store dependency check failed", map[string]interface{}{
			"store": checker.Name(),
			"error": err.Error(),
		})
		return err
	}
	latency := time.Since(start)
	m.ObservePreflight(latency)

	log.Info("store dependency reachable", map[string]interface{}{
		"store":    checker.Name(),
		"endpoint": preflight.Redact(cfg.StoreURI),
		"latency":  latency.Round(time.Millisecond).String(),
	})
	return nil
}

// workerCommand builds the immutable worker command. The worker
// inherits the harness environment (store credentials included) plus any
// configured extras.
func workerCommand(cfg *config.Config) supervisor.Command {
	env := os.Environ()
	for k, v := range cfg.Worker.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	return supervisor.Command{
		Path: cfg.Worker.Command,
		Args: cfg.Worker.Args,
		Dir:  cfg.Worker.Dir,
		Env:  env,
	}
}

func buildPolicy(r config.Restart) supervisor.RestartPolicy {
	switch r.Policy {
	case config.PolicyFixed:
		return supervisor.Fixed{Delay: r.Delay}
	case config.PolicyExponential:
		return supervisor.NewExponential(r.InitialDelay, r.MaxDelay, r.ResetAfter)
	default:
		return supervisor.Immediate{}
	}
}

func healthPayload(sup *supervisor.Supervisor) metrics.HealthFunc {
	return func() interface{} {
		payload := map[string]interface{}{
			"status": "ok",
			"spawns": sup.Spawns(),
		}
		if inv, ok := sup.Current(); ok {
			payload["invocation"] = inv
		}
		return payload
	}
}

func currentPID(sup *supervisor.Supervisor) resources.PIDFunc {
	return func() (int, bool) {
		inv, ok := sup.Current()
		return inv.PID, ok
	}
}
