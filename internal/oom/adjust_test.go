package oom

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

type fakeProc struct {
	opens    map[string]int
	writes   map[string]int
	values   map[string][]string
	openErr  map[string]error
	writeErr map[string]error
}

func newFakeProc() *fakeProc {
	return &fakeProc{
		opens:    make(map[string]int),
		writes:   make(map[string]int),
		values:   make(map[string][]string),
		openErr:  make(map[string]error),
		writeErr: make(map[string]error),
	}
}

func (p *fakeProc) open(path string) (io.WriteCloser, error) {
	p.opens[path]++
	if err := p.openErr[path]; err != nil {
		return nil, err
	}
	return &recordingFile{proc: p, path: path}, nil
}

type recordingFile struct {
	proc *fakeProc
	path string
}

func (f *recordingFile) Write(b []byte) (int, error) {
	f.proc.writes[f.path]++
	if err := f.proc.writeErr[f.path]; err != nil {
		return -1, err
	}
	f.proc.values[f.path] = append(f.proc.values[f.path], string(b))
	return len(b), nil
}

func (f *recordingFile) Close() error { return nil }

func newTestAdjuster(proc *fakeProc, privileged bool) *Adjuster {
	a := NewAdjuster(false, false, zerolog.Nop())
	a.modern = "modern"
	a.legacy = "legacy"
	a.open = proc.open
	a.privileged = func() bool { return privileged }
	return a
}

func lastValue(t *testing.T, proc *fakeProc, path string) string {
	t.Helper()
	vals := proc.values[path]
	if len(vals) == 0 {
		t.Fatalf("no value written to %s", path)
	}
	return vals[len(vals)-1]
}

func TestAdjusterValueSelection(t *testing.T) {
	cases := []struct {
		name       string
		privileged bool
		child      bool
		killable   bool
		oomable    bool
		want       string
	}{
		{name: "killable", killable: true, want: scoreAdjMax},
		{name: "protected privileged", privileged: true, want: scoreAdjMin},
		{name: "protected unprivileged", want: "0"},
		{name: "oomable forces child killable", child: true, oomable: true, want: scoreAdjMax},
		{name: "oomable leaves main alone", child: false, oomable: true, privileged: true, want: scoreAdjMin},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := newFakeProc()
			a := newTestAdjuster(proc, tc.privileged)
			a.Oomable = tc.oomable

			a.Set("vm", 0, tc.child, tc.killable)

			if got := lastValue(t, proc, "modern"); got != tc.want {
				t.Fatalf("wrote %q, want %q", got, tc.want)
			}
			if proc.opens["legacy"] != 0 {
				t.Fatalf("legacy interface touched on modern success")
			}
		})
	}
}

func TestAdjusterDisabled(t *testing.T) {
	proc := newFakeProc()
	a := newTestAdjuster(proc, true)
	a.Disabled = true

	a.Set("vm", 0, true, true)

	if len(proc.opens) != 0 {
		t.Fatalf("adjuster opened %v while disabled", proc.opens)
	}
}

func TestAdjusterLegacyFallbackOnlyOnNotFound(t *testing.T) {
	t.Run("not found falls back", func(t *testing.T) {
		proc := newFakeProc()
		proc.openErr["modern"] = unix.ENOENT
		a := newTestAdjuster(proc, true)

		a.Set("vm", 0, true, true)

		if proc.opens["legacy"] != 1 {
			t.Fatalf("legacy opens = %d, want 1", proc.opens["legacy"])
		}
		if got := lastValue(t, proc, "legacy"); got != adjMax {
			t.Fatalf("legacy value = %q, want %q", got, adjMax)
		}
	})

	t.Run("permission denied is final", func(t *testing.T) {
		proc := newFakeProc()
		proc.openErr["modern"] = unix.EACCES
		a := newTestAdjuster(proc, true)

		a.Set("vm", 0, true, true)

		if proc.opens["legacy"] != 0 {
			t.Fatalf("legacy attempted after non-ENOENT failure")
		}
	})

	t.Run("legacy never-kill sentinel", func(t *testing.T) {
		proc := newFakeProc()
		proc.openErr["modern"] = unix.ENOENT
		a := newTestAdjuster(proc, true)

		a.Set("vm", 0, false, false)

		if got := lastValue(t, proc, "legacy"); got != adjNoOom {
			t.Fatalf("legacy value = %q, want %q", got, adjNoOom)
		}
	})
}

func TestWriteAdjustmentRetryBound(t *testing.T) {
	t.Run("eagain retried exactly 32 times", func(t *testing.T) {
		proc := newFakeProc()
		proc.writeErr["modern"] = unix.EAGAIN
		a := newTestAdjuster(proc, false)

		err := a.writeAdjustment("vm", 0, "modern", "0")

		if err == nil {
			t.Fatalf("expected failure after retries exhausted")
		}
		if proc.writes["modern"] != writeAttempts {
			t.Fatalf("writes = %d, want %d", proc.writes["modern"], writeAttempts)
		}
	})

	t.Run("other write error aborts immediately", func(t *testing.T) {
		proc := newFakeProc()
		proc.writeErr["modern"] = unix.EACCES
		a := newTestAdjuster(proc, false)

		err := a.writeAdjustment("vm", 0, "modern", "0")

		if err == nil {
			t.Fatalf("expected write failure")
		}
		if proc.writes["modern"] != 1 {
			t.Fatalf("writes = %d, want 1", proc.writes["modern"])
		}
	})
}
