package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"timebot/internal/core/domain"
	"timebot/internal/core/service"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

// GuildFactory builds the (not yet started) handler for a guild the bot joined.
type GuildFactory func(id domain.GuildID, name string) *service.GuildHandler

// Descriptors exports the command schema registered with Discord.
type Descriptors interface {
	Descriptors() []domain.CommandDescriptor
}

// CommandRegistrar is the part of *discordgo.Session used to register application commands.
type CommandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

type Config struct {
	Token        string
	Events       service.EventSender
	Identity     *service.Identity
	State        *service.State
	Commands     Descriptors
	Allowlist    *service.GuildAllowlist
	NewGuild     GuildFactory
	CloseTimeout time.Duration

	// HandlerContext bounds the guild handlers started by the gateway. It must outlive the
	// context given to Run so handlers can finish their queued work after the gateway stops.
	// Defaults to context.Background().
	HandlerContext context.Context
}

// Gateway connects to Discord and feeds the supervisor. It is the only producer of guild
// lifecycle events.
type Gateway struct {
	session *discordgo.Session
	config  Config
	log     zerolog.Logger

	ctx context.Context

	mu        sync.Mutex
	announced map[domain.GuildID]struct{}
}

func New(config Config) (*Gateway, error) {
	if config.Token == "" {
		return nil, errors.New("no discord token configured")
	}

	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = Intents

	if config.CloseTimeout <= 0 {
		config.CloseTimeout = service.DefaultCloseTimeout
	}
	if config.HandlerContext == nil {
		config.HandlerContext = context.Background()
	}

	return &Gateway{
		session:   session,
		config:    config,
		log:       log.With().Str("component", "gateway").Logger(),
		ctx:       context.Background(),
		announced: make(map[domain.GuildID]struct{}),
	}, nil
}

// Session is the underlying discordgo session, used for the reply path.
func (g *Gateway) Session() *discordgo.Session {
	return g.session
}

// Run opens the gateway connection and blocks until ctx is cancelled. On the way out it tells
// the supervisor to shut down and closes the session.
func (g *Gateway) Run(ctx context.Context) error {
	g.ctx = ctx

	g.session.AddHandler(g.onReady)
	g.session.AddHandler(g.onGuildCreate)
	g.session.AddHandler(g.onGuildDelete)
	g.session.AddHandler(g.onInteractionCreate)
	g.session.AddHandler(g.onMessageCreate)
	g.session.AddHandler(g.onConnect)
	g.session.AddHandler(g.onDisconnect)

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway connection: %w", err)
	}
	g.log.Info().Msg("gateway connection opened")

	<-ctx.Done()

	g.log.Info().Msg("closing gateway connection")
	g.shutdown()

	if err := g.session.Close(); err != nil {
		return fmt.Errorf("failed to close gateway connection: %w", err)
	}

	return nil
}

func (g *Gateway) shutdown() {
	if err := g.config.Events.Send(service.Shutdown{}); err != nil {
		g.log.Warn().Err(err).Msg("could not ask supervisor to shut down")
	}
}

func (g *Gateway) onReady(s *discordgo.Session, r *discordgo.Ready) {
	g.handleReady(s, r)
}

func (g *Gateway) onGuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	g.handleGuildCreate(e)
}

func (g *Gateway) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	g.handleGuildDelete(e)
}

func (g *Gateway) onInteractionCreate(_ *discordgo.Session, e *discordgo.InteractionCreate) {
	g.send(service.Interaction{Payload: e.Interaction})
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	g.send(service.Message{Payload: e.Message})
}

func (g *Gateway) onConnect(_ *discordgo.Session, _ *discordgo.Connect) {
	g.config.State.Connect()
	g.log.Info().Int64("connections", g.config.State.Connected()).Msg("gateway connected")
}

func (g *Gateway) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	g.config.State.Disconnect()
	g.log.Warn().Int64("connections", g.config.State.Connected()).Msg("gateway disconnected")
}

func (g *Gateway) handleReady(reg CommandRegistrar, r *discordgo.Ready) {
	if r.User == nil {
		g.log.Error().Msg("ready event without user")
		return
	}

	me := service.BotIdentity{
		UserID:        r.User.ID,
		ApplicationID: r.User.ID,
		Username:      r.User.Username,
	}
	if r.Application != nil && r.Application.ID != "" {
		me.ApplicationID = r.Application.ID
	}

	if g.config.Identity.Set(me) {
		g.log.Info().Str("user", me.Username).Str("userId", me.UserID).Msg("bot identity known")
	}

	cmds := ApplicationCommands(g.config.Commands.Descriptors())
	if _, err := reg.ApplicationCommandBulkOverwrite(me.ApplicationID, "", cmds, discordgo.WithContext(g.ctx)); err != nil {
		g.log.Error().Err(err).Msg("failed to register application commands")
		return
	}

	g.log.Info().Int("commands", len(cmds)).Msg("registered application commands")
}

func (g *Gateway) handleGuildCreate(e *discordgo.GuildCreate) {
	if e.Guild == nil {
		return
	}

	l := g.log.With().Str("guildId", e.ID).Str("guildName", e.Name).Logger()

	if e.Unavailable {
		l.Warn().Msg("guild unavailable")
		return
	}

	id, err := domain.ParseGuildID(e.ID)
	if err != nil {
		l.Error().Err(err).Msg("invalid guild id")
		return
	}

	if !g.config.Allowlist.IsAllowed(id) {
		l.Warn().Msg("guild is not on the allowlist, ignoring")
		return
	}

	// a new session replays every guild; the supervisor treats a second announce as fatal
	if !g.markAnnounced(id) {
		l.Debug().Msg("guild already announced")
		return
	}

	if _, err := g.config.Identity.Wait(g.ctx); err != nil {
		l.Warn().Err(err).Msg("gave up waiting for bot identity")
		g.forget(id)
		return
	}

	h := g.config.NewGuild(id, e.Name)
	h.Start(g.config.HandlerContext)

	if err := g.config.Events.Send(service.NewGuild{Handler: h}); err != nil {
		l.Error().Err(err).Msg("could not announce guild")
		g.forget(id)
		go h.Close(g.config.CloseTimeout)
		return
	}

	l.Info().Msg("joined guild")
}

func (g *Gateway) handleGuildDelete(e *discordgo.GuildDelete) {
	if e.Guild == nil {
		return
	}

	l := g.log.With().Str("guildId", e.ID).Logger()

	// an outage, the guild comes back with another GuildCreate
	if e.Unavailable {
		l.Warn().Msg("guild became unavailable")
		return
	}

	id, err := domain.ParseGuildID(e.ID)
	if err != nil {
		l.Error().Err(err).Msg("invalid guild id")
		return
	}

	g.forget(id)
	g.send(service.DeletedGuild{ID: id})

	l.Info().Msg("left guild")
}

func (g *Gateway) send(ev service.Event) {
	if err := g.config.Events.Send(ev); err != nil {
		g.log.Error().Err(err).Str("event", ev.Kind()).Msg("could not forward event")
	}
}

func (g *Gateway) markAnnounced(id domain.GuildID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.announced[id]; ok {
		return false
	}
	g.announced[id] = struct{}{}

	return true
}

func (g *Gateway) forget(id domain.GuildID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.announced, id)
}

// ApplicationCommands converts the command descriptors into Discord's registration format.
// Every command is limited to administrators and disabled in direct messages.
func ApplicationCommands(descriptors []domain.CommandDescriptor) []*discordgo.ApplicationCommand {
	cmds := make([]*discordgo.ApplicationCommand, 0, len(descriptors))

	for _, d := range descriptors {
		perms := int64(discordgo.PermissionAdministrator)
		dm := false

		opts := make([]*discordgo.ApplicationCommandOption, 0, len(d.Options))
		for _, o := range d.Options {
			opt := &discordgo.ApplicationCommandOption{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         o.Name,
				Description:  o.Description,
				Required:     o.Required,
				Autocomplete: o.Autocomplete,
				MaxLength:    o.MaxLength,
			}
			for _, c := range o.Choices {
				opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
			}
			opts = append(opts, opt)
		}

		cmds = append(cmds, &discordgo.ApplicationCommand{
			Type:                     discordgo.ChatApplicationCommand,
			Name:                     d.Name,
			Description:              d.Description,
			Options:                  opts,
			DefaultMemberPermissions: &perms,
			DMPermission:             &dm,
		})
	}

	return cmds
}
