package sender

import (
	"context"
	"errors"
	"fmt"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const (
	DiscordMessageLimit = 2000
	buttonsPerRow       = 5
)

// Session is the part of *discordgo.Session the sender needs.
type Session interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordSender struct {
	session Session
}

var _ port.MessageSender = (*DiscordSender)(nil)

func NewDiscordSender(session Session) *DiscordSender {
	return &DiscordSender{session: session}
}

// SendChannelMessage posts content to the channel, split into as many messages as the length
// limit requires. It returns the ID of the first message.
func (s *DiscordSender) SendChannelMessage(ctx context.Context, channelID string, content string) (string, error) {
	if content == "" {
		return "", errors.New("refusing to send empty message")
	}

	var first string
	for _, chunk := range chunkMessage(content, DiscordMessageLimit) {
		msg, err := s.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx))
		if err != nil {
			log.Error().Err(err).Str("channelId", channelID).Msg("failed to send channel message")
			return first, fmt.Errorf("sending message to channel %s: %w", channelID, err)
		}

		if first == "" && msg != nil {
			first = msg.ID
		}
	}

	return first, nil
}

// Respond answers an interaction with resp.
func (s *DiscordSender) Respond(ctx context.Context, i *discordgo.Interaction, resp *domain.Response) error {
	if resp == nil {
		return errors.New("no response to send")
	}

	return s.session.InteractionRespond(i, renderResponse(resp), discordgo.WithContext(ctx))
}

// RespondAutocomplete answers an autocomplete interaction. An empty list is a valid answer.
func (s *DiscordSender) RespondAutocomplete(ctx context.Context, i *discordgo.Interaction, choices []domain.Choice) error {
	out := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(choices))
	for _, c := range choices {
		out = append(out, &discordgo.ApplicationCommandOptionChoice{Name: c.Name, Value: c.Value})
	}

	return s.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: out},
	}, discordgo.WithContext(ctx))
}

func renderResponse(resp *domain.Response) *discordgo.InteractionResponse {
	if resp.Modal != nil {
		return renderModal(resp.Modal)
	}

	typ := discordgo.InteractionResponseChannelMessageWithSource
	if resp.Update {
		typ = discordgo.InteractionResponseUpdateMessage
	}

	data := &discordgo.InteractionResponseData{Content: resp.Content}
	if resp.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	for start := 0; start < len(resp.Buttons); start += buttonsPerRow {
		end := min(start+buttonsPerRow, len(resp.Buttons))

		row := discordgo.ActionsRow{}
		for _, b := range resp.Buttons[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: b.CustomID,
			})
		}
		data.Components = append(data.Components, row)
	}

	return &discordgo.InteractionResponse{Type: typ, Data: data}
}

func renderModal(m *domain.Modal) *discordgo.InteractionResponse {
	rows := make([]discordgo.MessageComponent, 0, len(m.Fields))
	for _, f := range m.Fields {
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:  f.CustomID,
					Label:     f.Label,
					Style:     discordgo.TextInputParagraph,
					Required:  f.Required,
					MaxLength: f.MaxLength,
				},
			},
		})
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   m.CustomID,
			Title:      m.Title,
			Components: rows,
		},
	}
}

// chunkMessage splits text into pieces of at most limit runes.
func chunkMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
