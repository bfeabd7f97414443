package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg)

	m.GuildsActive(3)
	m.EventRouted("interaction")
	m.EventRouted("interaction")
	m.EventDropped("message", "unknown_guild")
	m.GuildClosed(false)
	m.GuildClosed(true)
	m.GuildClosed(true)
	m.MailboxDepth(7)
	m.CommandHandled("command", "ok", 20*time.Millisecond)

	assert.InDelta(t, 3, testutil.ToFloat64(m.guildsActive), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.eventsRouted.WithLabelValues("interaction")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.eventsDropped.WithLabelValues("message", "unknown_guild")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.guildsClosed.WithLabelValues("false")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.guildsClosed.WithLabelValues("true")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.mailboxDepth), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.commandsHandled.WithLabelValues("command", "ok")), 0)

	count, err := testutil.GatherAndCount(reg, "timebot_command_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewPrometheus_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheus(reg)

	assert.Panics(t, func() { NewPrometheus(reg) })
}
