package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_sessions",
		Help: "Number of currently connected sessions",
	})

	AuthResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_auth_results_total",
		Help: "Authentication attempts by outcome",
	}, []string{"result"})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Routed messages by per-recipient outcome",
	}, []string{"outcome"})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_commands_total",
		Help: "Dispatched commands by name",
	}, []string{"command"})

	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_command_duration_seconds",
		Help:    "Time to dispatch each command",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(ConnectedSessions)
	prometheus.MustRegister(AuthResults)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
}
