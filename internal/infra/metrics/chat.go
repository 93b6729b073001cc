package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(chatMessagesTotal, chatHandlerFailures, chatSessionsActive, chatSessionsEvicted)
}

var (
	chatMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages answered, labeled by action category.",
		},
		[]string{"action"},
	)

	chatHandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_handler_failures_total",
			Help: "Chat handler failures answered with an apology.",
		},
		[]string{"action"},
	)

	chatSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Live chat sessions.",
		},
	)

	chatSessionsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_evicted_total",
			Help: "Chat sessions closed by the inactivity sweep.",
		},
	)
)

func IncChatMessage(action string)        { chatMessagesTotal.WithLabelValues(norm(action)).Inc() }
func IncChatHandlerFailure(action string) { chatHandlerFailures.WithLabelValues(norm(action)).Inc() }
func SetActiveSessions(n int)             { chatSessionsActive.Set(float64(n)) }
func AddSessionsEvicted(n int)            { chatSessionsEvicted.Add(float64(n)) }
