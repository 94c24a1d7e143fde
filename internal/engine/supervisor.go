package engine

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/strainlabs/strain/internal/proc"
	"github.com/strainlabs/strain/internal/spawn"
)

const (
	// Delay before retrying a spawn that failed from resource
	// exhaustion.
	spawnRetryDelay = 100 * time.Millisecond

	// Delay between escalation steps after the first, giving the child a
	// chance to die from a milder signal before the next one.
	escalationDelay = 500 * time.Millisecond
)

// Detector reports whether a pid shows up in the kernel log as OOM killed.
// It is consulted after ambiguous signaled deaths; being a heuristic with
// expected false negatives, its answer colors diagnostics but never decides
// the restart outcome.
type Detector interface {
	WasOomed(pid int) bool
}

// Supervisor runs one supervised unit: it spawns the unit's worker child,
// waits for it, escalates signals when waiting goes wrong, classifies
// signaled deaths and decides whether to retry, accept, or give up. One
// child at a time; parallelism comes from the caller running independent
// supervisors.
type Supervisor struct {
	spawner  spawn.Spawner
	detector Detector
	events   chan<- Event
	log      zerolog.Logger

	now        func() time.Time
	sleep      func(time.Duration)
	logMemInfo func()
	cleanWork  func(string)
}

func NewSupervisor(spawner spawn.Spawner, detector Detector, events chan<- Event, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		spawner:    spawner,
		detector:   detector,
		events:     events,
		log:        log,
		now:        time.Now,
		sleep:      time.Sleep,
		logMemInfo: func() { proc.LogMemInfo(log) },
		cleanWork: func(dir string) {
			if dir != "" {
				_ = os.RemoveAll(dir)
			}
		},
	}
}

// Run supervises the unit described by spec until it finishes, the
// continuation gate closes, or the deadline passes. It returns a
// process-style exit status; StatusSpawnFailed means no child could be
// started at all.
func (s *Supervisor) Run(rc *RunContext, spec spawn.Spec, quiet bool) int {
	var counters DeathCounters
	status := ExitSuccess

spawning:
	for {
		// Shutdown and timeout close the loop here instead of starting
		// doomed work.
		if !rc.Continuing() || rc.Expired(s.now()) {
			return ExitSuccess
		}

		handle, err := s.spawner.Spawn(spec)
		if err != nil {
			// Transient resource pressure: keep trying.
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOMEM) {
				s.sleep(spawnRetryDelay)
				continue
			}
			if !quiet {
				s.log.Error().Str("stressor", rc.Name).Err(err).Msg("spawn failed")
			}
			sendEvent(s.events, Event{
				Stressor: rc.Name, Instance: rc.Instance,
				Type: EventTypeFailed, Reason: ReasonSpawnFailed, Err: err,
			})
			return StatusSpawnFailed
		}
		sendEvent(s.events, Event{
			Stressor: rc.Name, Instance: rc.Instance,
			Type: EventTypeSpawned, Pid: handle.Pid(),
		})

		// A closing gate must interrupt a child mid-run, not just stop
		// future spawns. SIGTERM closes the worker's own gate.
		reapedCh := make(chan struct{})
		go func(h spawn.Handle) {
			select {
			case <-rc.Done():
				_ = h.Signal(unix.SIGTERM)
			case <-reapedCh:
			}
		}(handle)

		signalIdx := 0
		var death spawn.Status
		reaped := false
		gaveUp := false

		for {
			rc.SetState(StateWait)
			st, werr := handle.Wait()
			rc.SetState(StateRun)
			if werr == nil {
				death = st
				reaped = true
				break
			}
			// Already gone and reaped elsewhere.
			if errors.Is(werr, unix.ECHILD) {
				break
			}
			if errors.Is(werr, unix.EINTR) {
				continue
			}
			if !quiet {
				s.log.Debug().Str("stressor", rc.Name).Err(werr).Msg("wait failed")
			}
			_ = handle.Signal(escalationSchedule[signalIdx])
			sendEvent(s.events, Event{
				Stressor: rc.Name, Instance: rc.Instance,
				Type: EventTypeEscalating, Pid: handle.Pid(),
				Signal: escalationSchedule[signalIdx],
			})
			signalIdx++
			if signalIdx >= len(escalationSchedule) {
				// Even SIGKILL did not let us reap the child.
				if !quiet {
					s.log.Error().Str("stressor", rc.Name).Int("pid", handle.Pid()).
						Msg("child could not be reaped, giving up")
				}
				sendEvent(s.events, Event{
					Stressor: rc.Name, Instance: rc.Instance,
					Type: EventTypeFailed, Reason: ReasonWaitExhausted, Pid: handle.Pid(),
				})
				status = ExitFailure
				gaveUp = true
				break
			}
			// First escalation rewaits immediately in case the child
			// reaps quickly, later ones back off.
			if signalIdx > 1 {
				s.sleep(escalationDelay)
			}
		}
		close(reapedCh)

		if reaped && death.Signaled {
			if !quiet {
				s.log.Debug().Str("stressor", rc.Name).Uint32("instance", rc.Instance).
					Str("signal", signalName(death.Signal)).Msg("child died")
			}
			switch {
			case death.Signal == unix.SIGBUS:
				// Bus errors are treated as transient.
				counters.BusErrs++
				s.emitRestart(rc, ReasonBusError, death)
				continue spawning

			case death.Signal == unix.SIGKILL && !killReached(signalIdx):
				// SIGKILL arrived before our own schedule reached it,
				// so something external sent it; the OOM killer is the
				// plausible sender. A child that SIGKILLs itself at
				// the same schedule position is misclassified here and
				// that is accepted.
				confirmed := s.detector != nil && s.detector.WasOomed(handle.Pid())
				s.logMemInfo()
				if rc.Oomable {
					if !quiet {
						s.log.Debug().Str("stressor", rc.Name).Uint32("instance", rc.Instance).
							Bool("in_kernel_log", confirmed).
							Msg("assuming killed by OOM killer, bailing out")
					}
					s.cleanWork(rc.WorkDir)
					sendEvent(s.events, Event{
						Stressor: rc.Name, Instance: rc.Instance,
						Type: EventTypeOomKilled, Pid: handle.Pid(),
					})
					return ExitSuccess
				}
				if !quiet {
					s.log.Debug().Str("stressor", rc.Name).Uint32("instance", rc.Instance).
						Bool("in_kernel_log", confirmed).
						Msg("assuming killed by OOM killer, restarting again")
				}
				counters.Ooms++
				s.emitRestart(rc, ReasonOomKill, death)
				continue spawning

			case death.Signal == unix.SIGSEGV:
				if !quiet {
					s.log.Debug().Str("stressor", rc.Name).Uint32("instance", rc.Instance).
						Msg("killed by SIGSEGV, restarting again")
				}
				counters.Segvs++
				s.emitRestart(rc, ReasonSegfault, death)
				continue spawning

			default:
				status = 128 + int(death.Signal)
			}
		} else if reaped && death.Exited {
			status = death.ExitCode
		}

		// A child already reported as failed gets exactly one terminal
		// event, not a second exited one on top.
		if !gaveUp {
			sendEvent(s.events, Event{
				Stressor: rc.Name, Instance: rc.Instance,
				Type: EventTypeExited, Status: status,
			})
		}
		break
	}

	if counters.Total() > 0 && !quiet {
		s.log.Debug().Str("stressor", rc.Name).
			Int("oom_restarts", counters.Ooms).
			Int("sigsegv_restarts", counters.Segvs).
			Int("sigbus_restarts", counters.BusErrs).
			Msg("restart summary")
		sendEvent(s.events, Event{
			Stressor: rc.Name, Instance: rc.Instance,
			Type: EventTypeSummary,
		})
	}
	return status
}

func (s *Supervisor) emitRestart(rc *RunContext, reason string, death spawn.Status) {
	sendEvent(s.events, Event{
		Stressor: rc.Name, Instance: rc.Instance,
		Type: EventTypeRestarted, Reason: reason, Signal: death.Signal,
	})
}

func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return sig.String()
}
