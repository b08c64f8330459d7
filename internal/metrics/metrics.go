package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes recorded by ObserveRun.
const (
	OutcomeCompleted  = "completed"
	OutcomeTimedOut   = "timed_out"
	OutcomeCanceled   = "canceled"
	OutcomeSpawnError = "spawn_error"
)

// Kill reasons recorded by IncrementKill.
const (
	KillTimeout  = "timeout"
	KillCanceled = "canceled"
	KillSignal   = "signal"
)

var (
	registry = prometheus.NewRegistry()

	runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cmdrun",
		Name:      "runs_total",
		Help:      "Total number of command executions by outcome.",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cmdrun",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of command executions in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
	}, []string{"outcome"})

	kills = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cmdrun",
		Name:      "kills_total",
		Help:      "Total number of process tree kills by reason.",
	}, []string{"reason"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cmdrun",
		Name:      "build_info",
		Help:      "Build metadata for the running cmdrun binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(runs, runDuration, kills, buildInfo)
}

// Registry returns the Prometheus registry containing all cmdrun metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveRun records one finished execution.
func ObserveRun(outcome string, d time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	runs.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSpawnError {
		runDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// IncrementKill records a forced process tree termination.
func IncrementKill(reason string) {
	if reason == "" {
		return
	}
	kills.WithLabelValues(reason).Inc()
}

// WriteTextfile writes the registry in the text exposition format, suitable
// for the node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
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

// BuildVersion returns the main module version and VCS revision, if known.
func BuildVersion() (version, revision string) {
	version = "(devel)"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version, ""
	}
	if info.Main.Version != "" {
		version = info.Main.Version
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			revision = setting.Value
		}
	}
	return version, revision
}
