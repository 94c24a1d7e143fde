// Package worker is the child side of the supervision engine. It is wired
// into the binary through a re-exec entry: when the parent launches the
// current executable with the worker entry name as argv[0], Main runs
// instead of the CLI.
package worker

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/moby/sys/reexec"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/strainlabs/strain/internal/engine"
	"github.com/strainlabs/strain/internal/oom"
	"github.com/strainlabs/strain/internal/proc"
	"github.com/strainlabs/strain/internal/spawn"
	"github.com/strainlabs/strain/internal/stressor"
)

func init() {
	reexec.Register(spawn.WorkerEntry, Main)
}

// Main is the worker process body. It never returns.
func Main() {
	spec, err := decodeSpec(os.Getenv(spawn.SpecEnv))
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Error().Err(err).Msg("worker: bad spec")
		os.Exit(engine.ExitFailure)
	}
	log := newLogger(spec)

	rc := engine.NewRunContext(spec, engine.NewGate())
	rc.EnableProcTitle()
	rc.SetState(engine.StateStart)

	// The parent cannot close our gate across the process boundary, so it
	// signals instead: SIGALRM on parent death or escalation, SIGTERM and
	// SIGINT for orderly shutdown. All of them close the gate.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGALRM, unix.SIGTERM, unix.SIGINT)
	go func() {
		sig := <-sigCh
		log.Debug().Str("signal", sig.String()).Msg("stopping on signal")
		rc.Stop()
	}()

	if err := proc.ParentDeathAlarm(); err != nil {
		log.Debug().Err(err).Msg("cannot arm parent death signal")
	}

	adj := oom.NewAdjuster(spec.NoOomAdjust, spec.Oomable, log)
	adj.Set(spec.Stressor, spec.Instance, true, true)

	if spec.DropCaps {
		if err := proc.DropCapabilities(); err != nil {
			log.Debug().Err(err).Msg("cannot drop capabilities")
		}
	}

	// The setup above takes real time; re-check before starting work.
	if !rc.Continuing() || rc.Expired(time.Now()) {
		exit(rc, engine.ExitSuccess)
	}

	st, ok := stressor.Lookup(spec.Stressor)
	if !ok {
		log.Error().Str("stressor", spec.Stressor).Msg("unknown stressor")
		exit(rc, engine.ExitFailure)
	}

	rc.SetState(engine.StateRun)
	code := st.Run(rc, stressor.Params{
		VMBytes: spec.VMBytes,
		MaxOps:  spec.MaxOps,
		Verify:  spec.Verify,
	})
	if status, failed := rc.FailureStatus(); failed {
		code = status
	}
	log.Debug().
		Uint64("ops", rc.Ops()).
		Int("status", code).
		Msg("workload finished")
	exit(rc, code)
}

func exit(rc *engine.RunContext, code int) {
	rc.SetState(engine.StateExit)
	os.Exit(code)
}

func decodeSpec(raw string) (spawn.Spec, error) {
	var spec spawn.Spec
	if raw == "" {
		return spec, errors.New("missing " + spawn.SpecEnv)
	}
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return spec, err
	}
	if spec.Stressor == "" {
		return spec, errors.New("spec names no stressor")
	}
	return spec, nil
}

func newLogger(spec spawn.Spec) zerolog.Logger {
	level := zerolog.DebugLevel
	if spec.Quiet {
		level = zerolog.ErrorLevel
	}
	return zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Str("stressor", spec.Stressor).
		Uint32("instance", spec.Instance).
		Logger()
}
