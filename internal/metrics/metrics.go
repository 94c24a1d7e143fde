package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	workersRunning = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "strain",
		Name:      "workers_running",
		Help:      "Number of worker children currently spawned per stressor.",
	}, []string{"stressor"})

	workerRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strain",
		Name:      "worker_restarts_total",
		Help:      "Total worker restarts, labelled by presumed death cause.",
	}, []string{"stressor", "cause"})

	oomKillsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "strain",
		Name:      "oom_kills_accepted_total",
		Help:      "OOM kills accepted as a clean stop under oomable policy.",
	}, []string{"stressor"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "strain",
		Name:      "build_info",
		Help:      "Build metadata for the running strain binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(workersRunning, workerRestarts, oomKillsAccepted, buildInfo)
}

// Registry returns the Prometheus registry containing all strain metrics.
func Registry() *prometheus.Registry {
	return registry
}

// WorkerSpawned records a newly spawned worker child.
func WorkerSpawned(stressor string) {
	if stressor == "" {
		return
	}
	workersRunning.WithLabelValues(stressor).Inc()
}

// WorkerExited records a worker child that will not be respawned.
func WorkerExited(stressor string) {
	if stressor == "" {
		return
	}
	workersRunning.WithLabelValues(stressor).Dec()
}

// WorkerRestarted increments the restart counter for a death cause.
func WorkerRestarted(stressor, cause string) {
	if stressor == "" {
		return
	}
	if cause == "" {
		cause = "unknown"
	}
	workerRestarts.WithLabelValues(stressor, cause).Inc()
}

// OomKillAccepted records an OOM kill treated as a clean stop.
func OomKillAccepted(stressor string) {
	if stressor == "" {
		return
	}
	oomKillsAccepted.WithLabelValues(stressor).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
