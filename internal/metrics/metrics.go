package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	instanceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nuko",
			Subsystem: "instance",
			Name:      "starts_total",
			Help:      "Number of successful worker spawns.",
		}, []string{"instance"},
	)
	instanceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nuko",
			Subsystem: "instance",
			Name:      "stops_total",
			Help:      "Number of stop requests, by mode (graceful or signal).",
		}, []string{"instance", "mode"},
	)
	instanceKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nuko",
			Subsystem: "instance",
			Name:      "kills_total",
			Help:      "Number of forceful terminations.",
		}, []string{"instance"},
	)
	instanceExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nuko",
			Subsystem: "instance",
			Name:      "exits_total",
			Help:      "Number of worker exits observed by the reaper.",
		}, []string{"instance"},
	)
	instanceRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nuko",
			Subsystem: "instance",
			Name:      "running",
			Help:      "1 while a worker spawned by this manager is alive.",
		}, []string{"instance"},
	)
	instanceCPU = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nuko",
			Subsystem: "instance",
			Name:      "cpu_percent",
			Help:      "CPU usage summed over the instance's processes at the last sample.",
		}, []string{"instance"},
	)
	instanceMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nuko",
			Subsystem: "instance",
			Name:      "memory_bytes",
			Help:      "Resident memory summed over the instance's processes at the last sample.",
		}, []string{"instance"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{instanceStarts, instanceStops, instanceKills, instanceExits, instanceRunning, instanceCPU, instanceMemory}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(id string) {
	if regOK.Load() {
		instanceStarts.WithLabelValues(id).Inc()
	}
}

func IncStop(id, mode string) {
	if regOK.Load() {
		instanceStops.WithLabelValues(id, mode).Inc()
	}
}

func IncKill(id string) {
	if regOK.Load() {
		instanceKills.WithLabelValues(id).Inc()
	}
}

func IncExit(id string) {
	if regOK.Load() {
		instanceExits.WithLabelValues(id).Inc()
	}
}

func SetRunning(id string, running bool) {
	if regOK.Load() {
		v := 0.0
		if running {
			v = 1
		}
		instanceRunning.WithLabelValues(id).Set(v)
	}
}

func SetUsage(id string, cpuPercent float64, memoryBytes uint64) {
	if regOK.Load() {
		instanceCPU.WithLabelValues(id).Set(cpuPercent)
		instanceMemory.WithLabelValues(id).Set(float64(memoryBytes))
	}
}
