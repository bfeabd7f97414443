package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type GuildOptions struct {
	// Logger defaults to the global logger.
	Logger  *zerolog.Logger
	Metrics port.Metrics
}

// GuildHandler processes the events of a single guild one at a time, in the order they were sent.
type GuildHandler struct {
	id      domain.GuildID
	name    string
	handler EventHandler
	mailbox *Mailbox[Event]
	log     zerolog.Logger
	metrics port.Metrics

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func NewGuildHandler(id domain.GuildID, name string, handler EventHandler, opts GuildOptions) *GuildHandler {
	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}

	if opts.Metrics == nil {
		opts.Metrics = port.NopMetrics()
	}

	return &GuildHandler{
		id:      id,
		name:    name,
		handler: handler,
		mailbox: NewMailbox[Event](),
		log:     base.With().Stringer("guildId", id).Str("guildName", name).Logger(),
		metrics: opts.Metrics,
		done:    make(chan struct{}),
	}
}

func (g *GuildHandler) ID() domain.GuildID {
	return g.id
}

func (g *GuildHandler) Name() string {
	return g.name
}

// Start spawns the processing loop and returns immediately. Calls after the first, or after
// Close, do nothing.
func (g *GuildHandler) Start(ctx context.Context) {
	g.startOnce.Do(func() {
		ctx, g.cancel = context.WithCancel(ctx)
		go g.loop(ctx)
	})
}

// Send queues ev for processing. It fails with domain.ErrMailboxClosed once the handler is
// closing or its loop has exited.
func (g *GuildHandler) Send(ev Event) error {
	return g.mailbox.Send(ev)
}

// Done is closed when the processing loop has exited.
func (g *GuildHandler) Done() <-chan struct{} {
	return g.done
}

// Close asks the loop to stop after the events already queued and waits up to timeout for it.
// On timeout the loop's context is cancelled and domain.ErrCloseTimeout is returned. Every call
// returns the result of the first one.
func (g *GuildHandler) Close(timeout time.Duration) error {
	g.closeOnce.Do(func() {
		g.closeErr = g.close(timeout)
	})

	return g.closeErr
}

func (g *GuildHandler) close(timeout time.Duration) error {
	// never started: there is no loop to wait for
	g.startOnce.Do(func() {
		g.cancel = func() {}
		g.mailbox.Discard()
		close(g.done)
	})

	_ = g.mailbox.Send(Shutdown{})
	g.mailbox.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-g.done:
		g.log.Info().Msg("guild handler closed")
		g.metrics.GuildClosed(false)
		return nil
	case <-timer.C:
		g.cancel()
		g.log.Warn().Dur("timeout", timeout).Msg("guild handler did not stop in time, cancelled")
		g.metrics.GuildClosed(true)
		return fmt.Errorf("guild %s: %w", g.id, domain.ErrCloseTimeout)
	}
}

func (g *GuildHandler) loop(ctx context.Context) {
	defer close(g.done)
	defer g.mailbox.Discard()

	g.log.Info().Msg("guild handler started")

	events := g.mailbox.Receive()
	for {
		select {
		case <-ctx.Done():
			g.log.Warn().Err(ctx.Err()).Msg("guild handler cancelled")
			return
		case ev, ok := <-events:
			if !ok {
				g.log.Debug().Msg("guild mailbox drained")
				return
			}

			if _, stop := ev.(Shutdown); stop {
				g.log.Debug().Int("dropped", g.mailbox.Len()).Msg("guild handler shutting down")
				return
			}

			g.handle(ctx, ev)
		}
	}
}

func (g *GuildHandler) handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().
				Interface("panic", r).
				Str("event", ev.Kind()).
				Str("stack", string(debug.Stack())).
				Msg("recovered from panic while handling event")
		}
	}()

	var err error
	switch e := ev.(type) {
	case Interaction:
		err = g.handler.HandleInteraction(ctx, g.id, e.Payload)
	case Message:
		err = g.handler.HandleMessage(ctx, g.id, e.Payload)
	default:
		g.log.Error().Str("event", ev.Kind()).Msg("guild handler cannot process event")
		return
	}

	if err != nil {
		g.log.Error().Err(err).Str("event", ev.Kind()).Msg("failed to handle event")
	}
}
