package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/strainlabs/strain/internal/metrics"
	"github.com/strainlabs/strain/internal/spawn"
)

// Unit is one stressor to run, fanned out across Workers independent
// supervisor instances.
type Unit struct {
	Spec    spawn.Spec
	Workers int
}

// SessionConfig wires a session's collaborators.
type SessionConfig struct {
	Spawner  spawn.Spawner
	Detector Detector
	Log      zerolog.Logger
	Quiet    bool

	// Deadline applies to every unit; zero means none.
	Deadline time.Time

	// WorkRoot, when set, gives each worker instance a scratch
	// directory underneath it.
	WorkRoot string

	// EventSink receives a copy of every event, best effort: a sink
	// that cannot keep up loses events rather than stalling
	// supervision.
	EventSink chan<- Event
}

// Session fans stressor units out as one supervisor per worker instance,
// funnels their events into logging and metrics, and aggregates a single
// exit status. Cancelling the context closes the shared continuation gate;
// supervisors notice at their next spawn boundary.
type Session struct {
	cfg SessionConfig
}

func NewSession(cfg SessionConfig) *Session {
	return &Session{cfg: cfg}
}

// Run blocks until every unit has finished or stopped. The returned status
// is the first non-zero unit status observed, zero otherwise.
func (s *Session) Run(ctx context.Context, units []Unit) int {
	gate := NewGate()
	stop := context.AfterFunc(ctx, gate.Close)
	defer stop()

	events := make(chan Event, 128)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for evt := range events {
			s.dispatch(evt)
		}
	}()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	status := ExitSuccess

	for _, unit := range units {
		for i := 0; i < unit.Workers; i++ {
			spec := unit.Spec
			spec.Instance = uint32(i)
			spec.Deadline = s.cfg.Deadline
			if s.cfg.WorkRoot != "" {
				spec.WorkDir = filepath.Join(s.cfg.WorkRoot, fmt.Sprintf("%s-%d", spec.Stressor, i))
				if err := os.MkdirAll(spec.WorkDir, 0o700); err != nil {
					s.cfg.Log.Debug().Err(err).Str("dir", spec.WorkDir).
						Msg("cannot create scratch directory")
					spec.WorkDir = ""
				}
			}

			wg.Add(1)
			go func(spec spawn.Spec) {
				defer wg.Done()
				sup := NewSupervisor(s.cfg.Spawner, s.cfg.Detector, events, s.cfg.Log)
				rc := NewRunContext(spec, gate)
				if st := sup.Run(rc, spec, s.cfg.Quiet); st != ExitSuccess {
					mu.Lock()
					if status == ExitSuccess {
						status = st
					}
					mu.Unlock()
				}
			}(spec)
		}
	}

	wg.Wait()
	close(events)
	<-drained
	return status
}

func (s *Session) dispatch(evt Event) {
	switch evt.Type {
	case EventTypeSpawned:
		metrics.WorkerSpawned(evt.Stressor)
	case EventTypeRestarted:
		metrics.WorkerExited(evt.Stressor)
		metrics.WorkerRestarted(evt.Stressor, evt.Reason)
	case EventTypeOomKilled:
		metrics.WorkerExited(evt.Stressor)
		metrics.OomKillAccepted(evt.Stressor)
	case EventTypeExited:
		metrics.WorkerExited(evt.Stressor)
	case EventTypeFailed:
		if evt.Reason == ReasonWaitExhausted {
			metrics.WorkerExited(evt.Stressor)
		}
	}

	if s.cfg.EventSink != nil {
		select {
		case s.cfg.EventSink <- evt:
		default:
		}
	}
}
