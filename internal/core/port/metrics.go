package port

import "time"

// Metrics receives instrumentation from the routing core and the command handlers.
// Implementations must be safe for concurrent use.
type Metrics interface {
	GuildsActive(count int)
	EventRouted(kind string)
	EventDropped(kind string, reason string)
	GuildClosed(timedOut bool)
	MailboxDepth(depth int)
	CommandHandled(kind string, outcome string, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) GuildsActive(int)                             {}
func (nopMetrics) EventRouted(string)                           {}
func (nopMetrics) EventDropped(string, string)                  {}
func (nopMetrics) GuildClosed(bool)                             {}
func (nopMetrics) MailboxDepth(int)                             {}
func (nopMetrics) CommandHandled(string, string, time.Duration) {}

// NopMetrics returns a Metrics implementation that discards everything.
func NopMetrics() Metrics { return nopMetrics{} }
