package handler

import (
	"context"
	"fmt"
	"time"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"
	"timebot/internal/core/service"

	"github.com/bwmarrin/discordgo"
	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 3 * time.Second

// Responder delivers replies to the interaction that asked for them.
type Responder interface {
	Respond(ctx context.Context, i *discordgo.Interaction, resp *domain.Response) error
	RespondAutocomplete(ctx context.Context, i *discordgo.Interaction, choices []domain.Choice) error
}

// Self reports the bot's own identity once it is known.
type Self interface {
	Get() (service.BotIdentity, bool)
}

// Events turns the payloads routed to a guild into dispatcher calls and sends the results back.
// One instance is shared by every guild handler.
type Events struct {
	dispatcher port.Dispatcher
	responder  Responder
	self       Self
	metrics    port.Metrics
	timeout    time.Duration
}

func NewEvents(dispatcher port.Dispatcher, responder Responder, self Self, metrics port.Metrics, timeout time.Duration) *Events {
	if metrics == nil {
		metrics = port.NopMetrics()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Events{
		dispatcher: dispatcher,
		responder:  responder,
		self:       self,
		metrics:    metrics,
		timeout:    timeout,
	}
}

var _ service.EventHandler = (*Events)(nil)

func (e *Events) HandleInteraction(ctx context.Context, guildID domain.GuildID, i *discordgo.Interaction) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	l := log.With().
		Stringer("guildId", guildID).
		Str("channelId", i.ChannelID).
		Str("interactionId", i.ID).
		Stringer("requestId", uuid.Must(uuid.NewV4())).
		Logger()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		req := commandRequest(guildID, i)
		l = l.With().Str("command", req.Name).Logger()
		l.Debug().Msg("received command")

		resp, err := e.dispatcher.Command(ctx, req)
		return e.reply(ctx, l, "command", start, i, resp, err)

	case discordgo.InteractionApplicationCommandAutocomplete:
		req := commandRequest(guildID, i)
		l = l.With().Str("command", req.Name).Logger()

		choices, err := e.dispatcher.Autocomplete(ctx, req)
		outcome := "ok"
		if err != nil {
			cmdErr := domain.AsCommandError(err)
			logFailure(l, cmdErr, "autocomplete failed")
			outcome = string(cmdErr.Kind)
			choices = nil
		}
		e.metrics.CommandHandled("autocomplete", outcome, time.Since(start))

		if err := e.responder.RespondAutocomplete(ctx, i, choices); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, err)
		}
		return nil

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		l = l.With().Str("customId", data.CustomID).Logger()
		l.Debug().Msg("received component interaction")

		resp, err := e.dispatcher.Component(ctx, &domain.ComponentRequest{
			GuildID:   guildID,
			ChannelID: i.ChannelID,
			UserID:    userID(i),
			CustomID:  data.CustomID,
			Values:    data.Values,
		})
		return e.reply(ctx, l, "component", start, i, resp, err)

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		l = l.With().Str("customId", data.CustomID).Logger()
		l.Debug().Msg("received modal submission")

		resp, err := e.dispatcher.Modal(ctx, &domain.ModalRequest{
			GuildID:   guildID,
			ChannelID: i.ChannelID,
			UserID:    userID(i),
			CustomID:  data.CustomID,
			Fields:    modalFields(data.Components),
		})
		return e.reply(ctx, l, "modal", start, i, resp, err)

	default:
		return fmt.Errorf("interaction type %s: %w", i.Type, domain.ErrUnsupportedCommand)
	}
}

func (e *Events) HandleMessage(_ context.Context, guildID domain.GuildID, m *discordgo.Message) error {
	if m.Author == nil {
		return nil
	}

	if me, ok := e.self.Get(); ok && m.Author.ID == me.UserID {
		return nil
	}

	log.Debug().
		Stringer("guildId", guildID).
		Str("channelId", m.ChannelID).
		Str("messageId", m.ID).
		Msg("received message")

	return nil
}

// reply sends resp, or the user-facing part of err when the dispatch failed.
func (e *Events) reply(
	ctx context.Context,
	l zerolog.Logger,
	kind string,
	start time.Time,
	i *discordgo.Interaction,
	resp *domain.Response,
	err error,
) error {
	outcome := "ok"
	if err != nil {
		cmdErr := domain.AsCommandError(err)
		logFailure(l, cmdErr, "failed to handle interaction")
		outcome = string(cmdErr.Kind)
		resp = &domain.Response{Content: cmdErr.Response, Ephemeral: true}
	}
	e.metrics.CommandHandled(kind, outcome, time.Since(start))

	if err := e.responder.Respond(ctx, i, resp); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, err)
	}

	return nil
}

func logFailure(l zerolog.Logger, cmdErr *domain.CommandError, msg string) {
	lvl := zerolog.ErrorLevel
	switch cmdErr.Kind {
	case domain.FailureWarning:
		lvl = zerolog.WarnLevel
	case domain.FailureInfo:
		lvl = zerolog.InfoLevel
	}

	l.WithLevel(lvl).
		Err(cmdErr.Err).
		Str("response", cmdErr.Response).
		Str("detail", cmdErr.LogMessage).
		Msg(msg)
}

func commandRequest(guildID domain.GuildID, i *discordgo.Interaction) *domain.CommandRequest {
	data := i.ApplicationCommandData()

	opts := make([]domain.Option, 0, len(data.Options))
	for _, o := range data.Options {
		opts = append(opts, domain.Option{Name: o.Name, Value: o.Value, Focused: o.Focused})
	}

	return &domain.CommandRequest{
		GuildID:   guildID,
		ChannelID: i.ChannelID,
		UserID:    userID(i),
		Name:      data.Name,
		Options:   opts,
	}
}

func userID(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}

	return ""
}

// modalFields flattens the text inputs of a submitted modal into a map keyed by custom ID.
func modalFields(components []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)

	var walk func(c discordgo.MessageComponent)
	walk = func(c discordgo.MessageComponent) {
		switch v := c.(type) {
		case *discordgo.ActionsRow:
			for _, inner := range v.Components {
				walk(inner)
			}
		case discordgo.ActionsRow:
			for _, inner := range v.Components {
				walk(inner)
			}
		case *discordgo.TextInput:
			fields[v.CustomID] = v.Value
		case discordgo.TextInput:
			fields[v.CustomID] = v.Value
		}
	}

	for _, c := range components {
		walk(c)
	}

	return fields
}
