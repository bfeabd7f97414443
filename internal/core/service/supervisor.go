package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"

	"github.com/bwmarrin/discordgo"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultCloseTimeout = 5 * time.Second

var errAlreadyRunning = errors.New("supervisor is already running")

type SupervisorOptions struct {
	// CloseTimeout bounds how long a removed guild handler may take to stop.
	CloseTimeout time.Duration
	// Logger defaults to the global logger.
	Logger  *zerolog.Logger
	Metrics port.Metrics
}

// Supervisor owns the table of guild handlers and routes every gateway event to the handler of
// the guild it belongs to. The table is only touched by the goroutine running Run.
type Supervisor struct {
	mailbox      *Mailbox[Event]
	guilds       map[domain.GuildID]*GuildHandler
	closing      map[uuid.UUID]domain.GuildID
	closeDone    chan closeResult
	closeTimeout time.Duration
	shuttingDown bool

	running atomic.Bool
	stopped chan struct{}

	log     zerolog.Logger
	metrics port.Metrics
}

type closeResult struct {
	task  uuid.UUID
	guild domain.GuildID
	err   error
}

func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}

	base := log.Logger
	if opts.Logger != nil {
		base = *opts.Logger
	}

	if opts.Metrics == nil {
		opts.Metrics = port.NopMetrics()
	}

	return &Supervisor{
		mailbox:      NewMailbox[Event](),
		guilds:       make(map[domain.GuildID]*GuildHandler),
		closing:      make(map[uuid.UUID]domain.GuildID),
		closeDone:    make(chan closeResult),
		closeTimeout: opts.CloseTimeout,
		stopped:      make(chan struct{}),
		log:          base.With().Str("component", "supervisor").Logger(),
		metrics:      opts.Metrics,
	}
}

// Sender returns the producer side of the supervisor's mailbox. Sends never block.
func (s *Supervisor) Sender() EventSender {
	return s.mailbox
}

// Guilds returns the IDs of the guilds currently in the table, in ascending order.
func (s *Supervisor) Guilds(ctx context.Context) ([]domain.GuildID, error) {
	reply := make(chan []domain.GuildID, 1)
	if err := s.mailbox.Send(listGuilds{reply: reply}); err != nil {
		return nil, err
	}

	select {
	case ids := <-reply:
		return ids, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		return nil, domain.ErrMailboxClosed
	}
}

// Run processes events until a Shutdown has been handled and every guild handler it closed has
// stopped, in which case it returns nil. It returns domain.ErrDuplicateGuild when a guild is
// announced twice, domain.ErrSourcesExhausted when the mailbox is closed without a Shutdown, and
// the context's error when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}

	defer close(s.stopped)
	defer s.abandon()

	s.log.Info().Dur("closeTimeout", s.closeTimeout).Msg("supervisor started")

	events := s.mailbox.Receive()
	for {
		select {
		case <-ctx.Done():
			s.log.Warn().Err(ctx.Err()).Int("pendingCloses", len(s.closing)).Msg("supervisor cancelled")
			return ctx.Err()
		case res := <-s.closeDone:
			s.closed(res)
		case ev, ok := <-events:
			if !ok {
				events = nil
				break
			}

			s.metrics.MailboxDepth(s.mailbox.Len())

			if err := s.dispatch(ev); err != nil {
				s.log.Error().Err(err).Str("event", ev.Kind()).Msg("supervisor stopped on fatal event")
				return err
			}
		}

		if events == nil && len(s.closing) == 0 {
			if s.shuttingDown {
				s.log.Info().Msg("supervisor stopped")
				return nil
			}

			s.log.Error().Err(domain.ErrSourcesExhausted).Msg("supervisor has nothing left to wait on")
			return domain.ErrSourcesExhausted
		}
	}
}

func (s *Supervisor) dispatch(ev Event) error {
	switch e := ev.(type) {
	case NewGuild:
		return s.addGuild(e.Handler)
	case DeletedGuild:
		s.removeGuild(e.ID)
	case Interaction:
		s.routeInteraction(e)
	case Message:
		s.routeMessage(e)
	case Shutdown:
		s.shutdown()
	case listGuilds:
		e.reply <- s.guildIDs()
	default:
		s.log.Error().Str("event", ev.Kind()).Msg("supervisor cannot process event")
	}

	return nil
}

func (s *Supervisor) addGuild(h *GuildHandler) error {
	if h == nil {
		s.log.Error().Msg("new guild announced without a handler")
		return nil
	}

	l := s.log.With().Stringer("guildId", h.ID()).Str("guildName", h.Name()).Logger()

	if s.shuttingDown {
		l.Warn().Msg("guild announced during shutdown, closing its handler")
		s.startClose(h)
		return nil
	}

	if _, exists := s.guilds[h.ID()]; exists {
		go h.Close(s.closeTimeout)
		return fmt.Errorf("guild %s (%s): %w", h.ID(), h.Name(), domain.ErrDuplicateGuild)
	}

	s.guilds[h.ID()] = h
	s.metrics.GuildsActive(len(s.guilds))

	l.Info().Int("guilds", len(s.guilds)).Msg("guild registered")

	return nil
}

func (s *Supervisor) removeGuild(id domain.GuildID) {
	h, ok := s.guilds[id]
	if !ok {
		s.log.Error().Err(domain.ErrUnknownGuild).Stringer("guildId", id).Msg("cannot delete guild")
		s.metrics.EventDropped(DeletedGuild{}.Kind(), "unknown_guild")
		return
	}

	delete(s.guilds, id)
	s.metrics.GuildsActive(len(s.guilds))

	s.log.Info().Stringer("guildId", id).Str("guildName", h.Name()).Msg("guild removed")

	s.startClose(h)
}

func (s *Supervisor) routeInteraction(e Interaction) {
	if e.Payload == nil {
		s.log.Error().Msg("interaction without payload")
		s.metrics.EventDropped(e.Kind(), "empty")
		return
	}

	if e.Payload.Type == discordgo.InteractionPing {
		s.log.Error().Str("interactionId", e.Payload.ID).Msg("ping interactions are not supported")
		s.metrics.EventDropped(e.Kind(), "ping")
		return
	}

	id, err := domain.ParseGuildID(e.Payload.GuildID)
	if err != nil {
		s.log.Error().Err(err).
			Str("interactionId", e.Payload.ID).
			Stringer("type", e.Payload.Type).
			Msg("interaction outside of a guild is not supported")
		s.metrics.EventDropped(e.Kind(), "no_guild")
		return
	}

	s.forward(id, e)
}

func (s *Supervisor) routeMessage(e Message) {
	if e.Payload == nil {
		s.log.Error().Msg("message without payload")
		s.metrics.EventDropped(e.Kind(), "empty")
		return
	}

	id, err := domain.ParseGuildID(e.Payload.GuildID)
	if err != nil {
		lvl := zerolog.ErrorLevel
		if errors.Is(err, domain.ErrNoGuild) {
			lvl = zerolog.WarnLevel
		}
		s.log.WithLevel(lvl).Err(err).Str("messageId", e.Payload.ID).Msg("message outside of a guild is not supported")
		s.metrics.EventDropped(e.Kind(), "no_guild")
		return
	}

	s.forward(id, e)
}

func (s *Supervisor) forward(id domain.GuildID, ev Event) {
	h, ok := s.guilds[id]
	if !ok {
		s.log.Error().Err(domain.ErrUnknownGuild).Stringer("guildId", id).Str("event", ev.Kind()).Msg("dropping event")
		s.metrics.EventDropped(ev.Kind(), "unknown_guild")
		return
	}

	if err := h.Send(ev); err != nil {
		// the handler's loop is gone; keep routing errors from piling up on a dead entry
		s.log.Error().Err(err).Stringer("guildId", id).Str("event", ev.Kind()).Msg("guild handler unreachable, evicting")
		s.metrics.EventDropped(ev.Kind(), "send_failed")

		delete(s.guilds, id)
		s.metrics.GuildsActive(len(s.guilds))
		s.startClose(h)
		return
	}

	s.metrics.EventRouted(ev.Kind())
}

func (s *Supervisor) shutdown() {
	if s.shuttingDown {
		s.log.Debug().Msg("shutdown already in progress")
		return
	}

	s.shuttingDown = true
	s.log.Info().Int("guilds", len(s.guilds)).Msg("shutting down guild handlers")

	for id, h := range s.guilds {
		delete(s.guilds, id)
		s.startClose(h)
	}
	s.metrics.GuildsActive(0)

	s.mailbox.Close()
}

// startClose closes h in its own goroutine and tracks the task until closed is called for it.
func (s *Supervisor) startClose(h *GuildHandler) {
	task := uuid.Must(uuid.NewV4())
	s.closing[task] = h.ID()

	s.log.Debug().Stringer("task", task).Stringer("guildId", h.ID()).Msg("closing guild handler")

	go func() {
		err := h.Close(s.closeTimeout)

		select {
		case s.closeDone <- closeResult{task: task, guild: h.ID(), err: err}:
		case <-s.stopped:
		}
	}()
}

func (s *Supervisor) closed(res closeResult) {
	delete(s.closing, res.task)

	l := s.log.With().Stringer("task", res.task).Stringer("guildId", res.guild).Int("pendingCloses", len(s.closing)).Logger()
	if res.err != nil {
		l.Warn().Err(res.err).Msg("guild handler abandoned")
		return
	}

	l.Debug().Msg("guild handler close finished")
}

func (s *Supervisor) guildIDs() []domain.GuildID {
	ids := make([]domain.GuildID, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// abandon releases every handler the supervisor still knows about when Run exits early.
func (s *Supervisor) abandon() {
	for id, h := range s.guilds {
		delete(s.guilds, id)
		go h.Close(s.closeTimeout)
	}

	s.mailbox.Close()

	go func() {
		for ev := range s.mailbox.Receive() {
			if ng, ok := ev.(NewGuild); ok && ng.Handler != nil {
				go ng.Handler.Close(s.closeTimeout)
			}
		}
	}()
}
