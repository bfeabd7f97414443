package service

import (
	"context"
	"timebot/internal/core/domain"

	"github.com/bwmarrin/discordgo"
)

// Event is anything that travels through the supervisor's or a guild handler's mailbox.
type Event interface {
	// Kind is a stable label used in logs and metrics.
	Kind() string
	isEvent()
}

// NewGuild announces a started guild handler that the supervisor should take ownership of.
type NewGuild struct {
	Handler *GuildHandler
}

type DeletedGuild struct {
	ID domain.GuildID
}

type Interaction struct {
	Payload *discordgo.Interaction
}

type Message struct {
	Payload *discordgo.Message
}

// Shutdown stops the supervisor and, when forwarded, a guild handler.
type Shutdown struct{}

type listGuilds struct {
	reply chan<- []domain.GuildID
}

func (NewGuild) Kind() string     { return "new_guild" }
func (DeletedGuild) Kind() string { return "deleted_guild" }
func (Interaction) Kind() string  { return "interaction" }
func (Message) Kind() string      { return "message" }
func (Shutdown) Kind() string     { return "shutdown" }
func (listGuilds) Kind() string   { return "list_guilds" }

func (NewGuild) isEvent()     {}
func (DeletedGuild) isEvent() {}
func (Interaction) isEvent()  {}
func (Message) isEvent()      {}
func (Shutdown) isEvent()     {}
func (listGuilds) isEvent()   {}

// EventSender is the producer side of a mailbox.
type EventSender interface {
	Send(ev Event) error
}

// EventHandler processes the payloads routed to one guild.
type EventHandler interface {
	HandleInteraction(ctx context.Context, guildID domain.GuildID, i *discordgo.Interaction) error
	HandleMessage(ctx context.Context, guildID domain.GuildID, m *discordgo.Message) error
}
