package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	aiTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Tokens reported by the analysis backend, split into prompt and completion.",
		},
		[]string{"provider", "model", "direction"},
	)

	aiCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "ai_call_duration_seconds",
			Help: "Analysis backend call latency.",
			// 50ms .. ~100s
			Buckets: prometheus.ExponentialBuckets(0.05, 2.5, 9),
		},
		[]string{"provider", "op", "success"},
	)

	aiRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_retries_total",
			Help: "Retried analysis backend calls per operation.",
		},
		[]string{"op"},
	)
)

func init() { register(aiTokens, aiCallSeconds, aiRetries) }

// ObserveAICall records one backend call. op is "chat", "image" or "count".
func ObserveAICall(provider, model, op string, tokensIn, tokensOut int, latency time.Duration, success bool) {
	provider, model = norm(provider), norm(model)
	if tokensIn > 0 {
		aiTokens.WithLabelValues(provider, model, "prompt").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		aiTokens.WithLabelValues(provider, model, "completion").Add(float64(tokensOut))
	}
	aiCallSeconds.WithLabelValues(provider, norm(op), strconv.FormatBool(success)).Observe(latency.Seconds())
}

func IncAIRetry(op string) { aiRetries.WithLabelValues(norm(op)).Inc() }
