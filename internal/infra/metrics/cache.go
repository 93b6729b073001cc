package metrics

import "github.com/prometheus/client_golang/prometheus"

// Lookup results accepted by IncCacheRequest.
const (
	LookupHit  = "hit"
	LookupMiss = "miss"
)

var lookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lookups_total",
		Help: "Cache and context lookups by source and outcome.",
	},
	[]string{"source", "result"},
)

func init() { register(lookups) }

// IncCacheRequest counts one lookup against source. Any result other than
// a hit is recorded as a miss.
func IncCacheRequest(source, result string) {
	if norm(result) != LookupHit {
		result = LookupMiss
	}
	lookups.WithLabelValues(norm(source), norm(result)).Inc()
}
