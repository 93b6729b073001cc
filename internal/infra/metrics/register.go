package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prefix is prepended to every collector declared in this package.
const Prefix = "market_genome_"

var (
	registry = prometheus.NewRegistry()

	mu      sync.Mutex
	pending []prometheus.Collector
	done    bool
)

// register queues collectors from the init funcs of this package. They
// reach the registry on MustRegister.
func register(cs ...prometheus.Collector) {
	mu.Lock()
	defer mu.Unlock()
	pending = append(pending, cs...)
}

// MustRegister installs the queued collectors plus the runtime and process
// collectors. Calls after the first are no-ops.
func MustRegister() {
	mu.Lock()
	defer mu.Unlock()
	if done {
		return
	}
	done = true
	prometheus.WrapRegistererWithPrefix(Prefix, registry).MustRegister(pending...)
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pending = nil
}

// Gatherer exposes the registry, mostly for tests.
func Gatherer() prometheus.Gatherer { return registry }

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{Name: "build_info", Help: "Always 1, labelled with the running version and commit."},
	[]string{"version", "commit"},
)

func init() { register(buildInfo) }

// SetBuildInfo records the binary's version. Empty values become "unknown".
func SetBuildInfo(version, commit string) {
	if version == "" {
		version = "unknown"
	}
	if commit == "" {
		commit = "unknown"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit).Set(1)
}
