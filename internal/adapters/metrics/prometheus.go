// Package metrics implements port.Metrics with Prometheus collectors.
package metrics

import (
	"strconv"
	"time"
	"timebot/internal/core/port"

	"github.com/prometheus/client_golang/prometheus"
)

var commandBuckets = []float64{
	.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5,
}

type Prometheus struct {
	guildsActive    prometheus.Gauge
	eventsRouted    *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	guildsClosed    *prometheus.CounterVec
	mailboxDepth    prometheus.Gauge
	commandsHandled *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
}

var _ port.Metrics = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them on reg. It panics if any of them is
// already registered.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		guildsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timebot_guilds_active",
			Help: "Number of guilds with a running handler",
		}),

		eventsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timebot_events_routed_total",
			Help: "Events forwarded to a guild handler",
		}, []string{"kind"}),

		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timebot_events_dropped_total",
			Help: "Events the supervisor could not route",
		}, []string{"kind", "reason"}),

		guildsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timebot_guild_handlers_closed_total",
			Help: "Guild handler closes, by whether the close timed out",
		}, []string{"timed_out"}),

		mailboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timebot_supervisor_mailbox_depth",
			Help: "Events waiting in the supervisor mailbox",
		}),

		commandsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timebot_commands_handled_total",
			Help: "Interactions handled, by kind and outcome",
		}, []string{"kind", "outcome"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timebot_command_duration_seconds",
			Help:    "Time spent handling an interaction in seconds",
			Buckets: commandBuckets,
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.guildsActive,
		m.eventsRouted,
		m.eventsDropped,
		m.guildsClosed,
		m.mailboxDepth,
		m.commandsHandled,
		m.commandDuration,
	)

	return m
}

func (m *Prometheus) GuildsActive(count int) {
	m.guildsActive.Set(float64(count))
}

func (m *Prometheus) EventRouted(kind string) {
	m.eventsRouted.WithLabelValues(kind).Inc()
}

func (m *Prometheus) EventDropped(kind string, reason string) {
	m.eventsDropped.WithLabelValues(kind, reason).Inc()
}

func (m *Prometheus) GuildClosed(timedOut bool) {
	m.guildsClosed.WithLabelValues(strconv.FormatBool(timedOut)).Inc()
}

func (m *Prometheus) MailboxDepth(depth int) {
	m.mailboxDepth.Set(float64(depth))
}

func (m *Prometheus) CommandHandled(kind string, outcome string, elapsed time.Duration) {
	m.commandsHandled.WithLabelValues(kind, outcome).Inc()
	m.commandDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
