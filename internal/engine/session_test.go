package engine

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/strainlabs/strain/internal/metrics"
	"github.com/strainlabs/strain/internal/spawn"
)

// recordingSpawner is safe for the session's concurrent supervisors.
type recordingSpawner struct {
	mu    sync.Mutex
	specs []spawn.Spec
}

func (r *recordingSpawner) Spawn(spec spawn.Spec) (spawn.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
	return &fakeHandle{pid: 1000 + len(r.specs)}, nil
}

func TestSessionFansOutWorkerInstances(t *testing.T) {
	spawner := &recordingSpawner{}
	sess := NewSession(SessionConfig{
		Spawner:  spawner,
		Detector: &fakeDetector{},
		Log:      zerolog.Nop(),
	})

	status := sess.Run(context.Background(), []Unit{
		{Spec: spawn.Spec{Stressor: "vm"}, Workers: 3},
		{Spec: spawn.Spec{Stressor: "fork"}, Workers: 1},
	})
	if status != ExitSuccess {
		t.Fatalf("session status = %d, want %d", status, ExitSuccess)
	}
	if len(spawner.specs) != 4 {
		t.Fatalf("spawned %d workers, want 4", len(spawner.specs))
	}

	var vmInstances []int
	for _, spec := range spawner.specs {
		if spec.Stressor == "vm" {
			vmInstances = append(vmInstances, int(spec.Instance))
		}
	}
	sort.Ints(vmInstances)
	if len(vmInstances) != 3 || vmInstances[0] != 0 || vmInstances[2] != 2 {
		t.Fatalf("vm instances = %v, want 0..2", vmInstances)
	}
}

func TestSessionCreatesScratchDirectories(t *testing.T) {
	root := t.TempDir()
	spawner := &recordingSpawner{}
	sess := NewSession(SessionConfig{
		Spawner:  spawner,
		Detector: &fakeDetector{},
		Log:      zerolog.Nop(),
		WorkRoot: root,
	})

	if status := sess.Run(context.Background(), []Unit{
		{Spec: spawn.Spec{Stressor: "vm"}, Workers: 2},
	}); status != ExitSuccess {
		t.Fatalf("session status = %d", status)
	}

	for i := 0; i < 2; i++ {
		dir := filepath.Join(root, fmt.Sprintf("vm-%d", i))
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("scratch dir %s: %v", dir, err)
		}
	}
	for _, spec := range spawner.specs {
		if spec.WorkDir == "" {
			t.Fatalf("spec %+v has no scratch directory", spec)
		}
	}
}

func TestSessionPastDeadlineStopsSpawning(t *testing.T) {
	spawner := &recordingSpawner{}
	sess := NewSession(SessionConfig{
		Spawner:  spawner,
		Detector: &fakeDetector{},
		Log:      zerolog.Nop(),
		Deadline: time.Now().Add(-time.Minute),
	})
	if status := sess.Run(context.Background(), []Unit{{Spec: spawn.Spec{Stressor: "vm"}, Workers: 2}}); status != ExitSuccess {
		t.Fatalf("session status = %d, want clean stop", status)
	}
	if len(spawner.specs) != 0 {
		t.Fatalf("spawned %d workers past the deadline, want 0", len(spawner.specs))
	}
}

func TestSessionForwardsEventsToSink(t *testing.T) {
	sink := make(chan Event, 16)
	sess := NewSession(SessionConfig{
		Spawner:   &recordingSpawner{},
		Detector:  &fakeDetector{},
		Log:       zerolog.Nop(),
		EventSink: sink,
	})
	if status := sess.Run(context.Background(), []Unit{
		{Spec: spawn.Spec{Stressor: "vm"}, Workers: 1},
	}); status != ExitSuccess {
		t.Fatalf("session status = %d", status)
	}

	var sawSpawned, sawExited bool
	for len(sink) > 0 {
		evt := <-sink
		switch evt.Type {
		case EventTypeSpawned:
			sawSpawned = true
		case EventTypeExited:
			sawExited = true
		}
	}
	if !sawSpawned || !sawExited {
		t.Fatalf("sink missed lifecycle events: spawned=%v exited=%v", sawSpawned, sawExited)
	}
}

func TestSessionWorkersRunningBalancedAfterUnreapableChild(t *testing.T) {
	waitErr := waitResult{err: unix.EIO}
	handle := &fakeHandle{waits: []waitResult{
		waitErr, waitErr, waitErr, waitErr, waitErr, waitErr,
	}}
	spawner := &fakeSpawner{script: []spawnResult{{handle: handle}}}
	sess := NewSession(SessionConfig{
		Spawner:  spawner,
		Detector: &fakeDetector{},
		Log:      zerolog.Nop(),
	})

	status := sess.Run(context.Background(), []Unit{
		{Spec: spawn.Spec{Stressor: "session_exhaust_test"}, Workers: 1},
	})
	if status != ExitFailure {
		t.Fatalf("session status = %d, want %d", status, ExitFailure)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(rec, req)
	body := rec.Body.String()

	want := `strain_workers_running{stressor="session_exhaust_test"} 0`
	if !strings.Contains(body, want) {
		t.Fatalf("expected gauge line %q, got:\n%s", want, body)
	}
}
