// Package metrics exposes Prometheus metrics for process and resource activity.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit kinds recorded by ObserveExit.
const (
	ExitCode   = "code"
	ExitSignal = "signal"
)

var (
	registry = prometheus.NewRegistry()

	processesSpawned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "luaproc",
		Name:      "processes_spawned_total",
		Help:      "Total number of child processes started.",
	})

	spawnFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "luaproc",
		Name:      "spawn_failures_total",
		Help:      "Total number of child processes that failed to start.",
	})

	processExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "luaproc",
		Name:      "process_exits_total",
		Help:      "Observed child terminations by kind (code or signal).",
	}, []string{"kind"})

	signalsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "luaproc",
		Name:      "signals_sent_total",
		Help:      "Signals delivered through kill, labelled by outcome.",
	}, []string{"result"})

	permissionDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "luaproc",
		Name:      "permission_denials_total",
		Help:      "Operations rejected by the capability gate.",
	}, []string{"op"})

	openResources = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "luaproc",
		Name:      "open_resources",
		Help:      "Number of entries in the resource table.",
	})

	scriptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "luaproc",
		Name:      "script_duration_seconds",
		Help:      "Wall time of script runs in seconds.",
	}, []string{"result"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "luaproc",
		Name:      "build_info",
		Help:      "Build metadata for the running luaproc binary.",
	}, []string{"go_version", "version"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(
		processesSpawned, spawnFailures, processExits, signalsSent,
		permissionDenials, openResources, scriptDuration, buildInfo,
	)
}

// Registry returns the Prometheus registry containing all luaproc metrics.
func Registry() *prometheus.Registry {
	return registry
}

// Handler returns an HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncSpawned counts a successfully started child.
func IncSpawned() {
	processesSpawned.Inc()
}

// IncSpawnFailure counts a child that failed to start.
func IncSpawnFailure() {
	spawnFailures.Inc()
}

// ObserveExit counts a termination of the given kind.
func ObserveExit(kind string) {
	processExits.WithLabelValues(kind).Inc()
}

// ObserveSignal counts a signal delivery attempt.
func ObserveSignal(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	signalsSent.WithLabelValues(result).Inc()
}

// IncPermissionDenied counts an operation rejected by the capability gate.
func IncPermissionDenied(op string) {
	if op == "" {
		op = "unknown"
	}
	permissionDenials.WithLabelValues(op).Inc()
}

// SetOpenResources records the current resource table size.
func SetOpenResources(n int) {
	openResources.Set(float64(n))
}

// ObserveScript records the duration of a script run.
func ObserveScript(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	scriptDuration.WithLabelValues(result).Observe(d.Seconds())
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo(version string) {
	buildInfoOnce.Do(func() {
		goVersion := runtime.Version()
		if info, ok := debug.ReadBuildInfo(); ok && info.GoVersion != "" {
			goVersion = info.GoVersion
		}
		buildInfo.WithLabelValues(goVersion, version).Set(1)
	})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
