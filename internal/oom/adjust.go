package oom

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const (
	modernPath = "/proc/self/oom_score_adj"
	legacyPath = "/proc/self/oom_adj"

	scoreAdjMin = "-1000"
	scoreAdjMax = "1000"

	// Legacy interface values. -17 is the kernel's never-OOM sentinel,
	// not just the low end of the adjustable range.
	adjNoOom = "-17"
	adjMin   = "-16"
	adjMax   = "15"

	writeAttempts = 32
)

// Adjuster biases the OOM-killer priority of the calling process, either
// toward "never kill me" or "kill me first". Adjustment failures are logged
// and swallowed: a run degrades without OOM hints, it does not stop.
type Adjuster struct {
	// Disabled turns every adjustment into a no-op.
	Disabled bool

	// Oomable forces every child adjustment to maximum killability,
	// regardless of what the caller asked for.
	Oomable bool

	log zerolog.Logger

	modern     string
	legacy     string
	open       func(path string) (io.WriteCloser, error)
	privileged func() bool
}

func NewAdjuster(disabled, oomable bool, log zerolog.Logger) *Adjuster {
	return &Adjuster{
		Disabled:   disabled,
		Oomable:    oomable,
		log:        log,
		modern:     modernPath,
		legacy:     legacyPath,
		open:       defaultOpen,
		privileged: defaultPrivileged,
	}
}

func defaultOpen(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY, 0)
}

func defaultPrivileged() bool {
	return os.Getuid() == 0 && os.Geteuid() == 0
}

// Set applies an OOM priority hint for the current process. child marks the
// caller as a supervised worker rather than the coordinating process; only
// workers are forced killable by the Oomable policy. Never returns an
// error: the supervising run must not fail because a proc file would not
// cooperate.
func (a *Adjuster) Set(name string, instance uint32, child, killable bool) {
	if a.Disabled {
		return
	}

	highPriv := a.privileged()
	makeKillable := killable
	if child && a.Oomable {
		makeKillable = true
	}

	var value string
	switch {
	case makeKillable:
		value = scoreAdjMax
	case highPriv:
		value = scoreAdjMin
	default:
		value = "0"
	}
	err := a.writeAdjustment(name, instance, a.modern, value)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return
	}

	// Modern interface missing entirely, fall back to the old one. Any
	// other modern-interface outcome is final.
	switch {
	case makeKillable:
		value = adjMax
	case highPriv:
		value = adjNoOom
	default:
		value = adjMin
	}
	_ = a.writeAdjustment(name, instance, a.legacy, value)
}

// writeAdjustment writes value to path in a single attempt per open,
// retrying only when the write fails with EAGAIN or EINTR. Open failures
// are returned untouched so the caller can tell "path not found" apart
// from a write that went wrong.
func (a *Adjuster) writeAdjustment(name string, instance uint32, path, value string) error {
	var lastErr error
	for i := 0; i < writeAttempts; i++ {
		f, err := a.open(path)
		if err != nil {
			return err
		}
		n, werr := f.Write([]byte(value))
		_ = f.Close()
		if werr == nil && n > 0 {
			return nil
		}
		lastErr = werr
		if werr != nil && !errors.Is(werr, unix.EAGAIN) && !errors.Is(werr, unix.EINTR) {
			a.report(name, instance, path, werr)
			return werr
		}
	}
	a.report(name, instance, path, lastErr)
	if lastErr == nil {
		lastErr = errors.New("write returned no data")
	}
	return fmt.Errorf("oom adjustment retries exhausted: %w", lastErr)
}

// report logs an adjustment failure, from the reporting instance only so a
// large run does not repeat the same complaint once per worker.
func (a *Adjuster) report(name string, instance uint32, path string, err error) {
	if instance != 0 {
		return
	}
	a.log.Debug().
		Str("stressor", name).
		Str("path", path).
		Err(err).
		Msg("cannot set oom adjustment")
}
