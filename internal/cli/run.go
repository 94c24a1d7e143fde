package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/strainlabs/strain/internal/engine"
	"github.com/strainlabs/strain/internal/metrics"
	"github.com/strainlabs/strain/internal/oom"
	"github.com/strainlabs/strain/internal/plan"
	"github.com/strainlabs/strain/internal/resources"
	"github.com/strainlabs/strain/internal/spawn"
	"github.com/strainlabs/strain/internal/stressor"
	"github.com/strainlabs/strain/internal/tui"
)

func newRunCmd(verbose *bool) *cobra.Command {
	var (
		planFile    string
		workers     int
		timeout     time.Duration
		oomable     bool
		noOomAdjust bool
		dropCaps    bool
		verify      bool
		quiet       bool
		vmBytes     string
		maxOps      uint64
		metricsAddr string
		useTUI      bool
	)

	cmd := &cobra.Command{
		Use:   "run [stressor]...",
		Short: "Run stressors under supervision",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(*verbose)

			units, planTimeout, err := buildUnits(args, planFile, unitFlags{
				workers:     workers,
				oomable:     oomable,
				noOomAdjust: noOomAdjust,
				dropCaps:    dropCaps,
				verify:      verify,
				quiet:       quiet,
				vmBytes:     vmBytes,
				maxOps:      maxOps,
			})
			if err != nil {
				return err
			}
			if timeout == 0 && planTimeout > 0 {
				timeout = planTimeout
			}

			// The supervisor itself must survive the memory pressure it
			// orchestrates, so shield it before any worker starts.
			oom.NewAdjuster(noOomAdjust, oomable, log).Set("main", 0, false, false)

			workRoot, err := os.MkdirTemp("", "strain-")
			if err != nil {
				return fmt.Errorf("create work root: %w", err)
			}
			defer os.RemoveAll(workRoot)

			if metricsAddr != "" {
				shutdown := serveMetrics(metricsAddr, log)
				defer shutdown()
			}

			var deadline time.Time
			if timeout > 0 {
				deadline = time.Now().Add(timeout)
			}

			var sink chan engine.Event
			var ui *tui.UI
			if useTUI {
				sink = make(chan engine.Event, 256)
				ui = tui.New(sink)
			}

			sess := engine.NewSession(engine.SessionConfig{
				Spawner:   spawn.NewReexec(),
				Detector:  oom.NewDetector(),
				Log:       log,
				Quiet:     quiet,
				Deadline:  deadline,
				WorkRoot:  workRoot,
				EventSink: sink,
			})

			var status int
			if ui != nil {
				runCtx, cancel := stdcontext.WithCancel(cmd.Context())
				defer cancel()
				done := make(chan struct{})
				go func() {
					defer close(done)
					status = sess.Run(runCtx, units)
					close(sink)
				}()
				uiErr := ui.Run(cmd.Context())
				// Quitting the dashboard stops the run too.
				cancel()
				<-done
				if uiErr != nil {
					return uiErr
				}
			} else {
				status = sess.Run(cmd.Context(), units)
			}

			if status != engine.ExitSuccess {
				return fmt.Errorf("stress run failed with status %d", status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&planFile, "file", "f", "", "Path to a plan file; replaces positional stressors")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Workers per stressor")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Stop all workers after this duration")
	cmd.Flags().BoolVar(&oomable, "oomable", false, "Treat kernel OOM kills of workers as a clean stop instead of restarting them")
	cmd.Flags().BoolVar(&noOomAdjust, "no-oom-adjust", false, "Leave kernel OOM scoring untouched")
	cmd.Flags().BoolVar(&dropCaps, "drop-caps", false, "Drop capabilities in workers before running workloads")
	cmd.Flags().BoolVar(&verify, "verify", false, "Enable workload self-checks")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress per-worker reporting")
	cmd.Flags().StringVar(&vmBytes, "vm-bytes", "", "Memory footprint for the vm stressor (e.g. 1Gi, 80%)")
	cmd.Flags().Uint64Var(&maxOps, "max-ops", 0, "Stop each worker after this many bogo operations")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Show a live dashboard instead of log output")

	return cmd
}

type unitFlags struct {
	workers     int
	oomable     bool
	noOomAdjust bool
	dropCaps    bool
	verify      bool
	quiet       bool
	vmBytes     string
	maxOps      uint64
}

// buildUnits translates either a plan file or positional stressor names
// plus flags into session units.
func buildUnits(args []string, planFile string, flags unitFlags) ([]engine.Unit, time.Duration, error) {
	if planFile != "" {
		if len(args) > 0 {
			return nil, 0, errors.New("positional stressors and --file are mutually exclusive")
		}
		return unitsFromPlan(planFile, flags.quiet)
	}
	if len(args) == 0 {
		return nil, 0, errors.New("name at least one stressor or pass --file")
	}
	if flags.workers < 1 {
		return nil, 0, errors.New("--workers must be at least 1")
	}
	bytes, err := resources.ParseSize(flags.vmBytes)
	if err != nil {
		return nil, 0, err
	}

	seen := make(map[string]bool, len(args))
	units := make([]engine.Unit, 0, len(args))
	for _, name := range args {
		if _, ok := stressor.Lookup(name); !ok {
			return nil, 0, fmt.Errorf("unknown stressor %q (see: strain list)", name)
		}
		if seen[name] {
			return nil, 0, fmt.Errorf("stressor %q named twice", name)
		}
		seen[name] = true
		units = append(units, engine.Unit{
			Spec: spawn.Spec{
				Stressor:    name,
				Oomable:     flags.oomable,
				NoOomAdjust: flags.noOomAdjust,
				DropCaps:    flags.dropCaps,
				Verify:      flags.verify,
				Quiet:       flags.quiet,
				VMBytes:     bytes,
				MaxOps:      flags.maxOps,
			},
			Workers: flags.workers,
		})
	}
	return units, 0, nil
}

func unitsFromPlan(path string, quiet bool) ([]engine.Unit, time.Duration, error) {
	doc, err := plan.ParseFile(path)
	if err != nil {
		return nil, 0, err
	}
	units := make([]engine.Unit, 0, len(doc.Stressors))
	for _, name := range sortedEntryNames(doc.Stressors) {
		entry := doc.Stressors[name]
		units = append(units, engine.Unit{
			Spec: spawn.Spec{
				Stressor:    name,
				Oomable:     entry.IsOomable(doc.Defaults),
				NoOomAdjust: entry.IsNoOomAdjust(doc.Defaults),
				DropCaps:    entry.IsDropCaps(doc.Defaults),
				Verify:      entry.IsVerify(doc.Defaults),
				Quiet:       quiet,
				VMBytes:     entry.ResolvedVMBytes(),
				MaxOps:      entry.MaxOps,
			},
			Workers: entry.Workers,
		})
	}
	return units, doc.Timeout.Duration, nil
}

func sortedEntryNames(entries map[string]*plan.Entry) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func serveMetrics(addr string, log zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	return func() {
		ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
