package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const (
	sayOption    = "text"
	sayMaxLength = 1900

	sayAgainID = "say:again"
	sayModalID = "say:modal"
)

// Say makes the bot post a message to the channel the command was used in. The confirmation
// carries a button that reopens the same prompt as a modal.
type Say struct {
	sender port.MessageSender
}

func NewSay(sender port.MessageSender) *Say {
	return &Say{sender: sender}
}

func (s *Say) Name() string {
	return "say"
}

func (s *Say) Description() string {
	return "Says whatever you want!"
}

func (s *Say) Options() []domain.OptionSchema {
	return []domain.OptionSchema{
		{
			Name:        sayOption,
			Description: "What you want the bot to say",
			Required:    true,
			MaxLength:   sayMaxLength,
		},
	}
}

func (s *Say) Parse(req *domain.CommandRequest) (port.Invocation, error) {
	text, ok := req.StringOption(sayOption)
	if !ok {
		return nil, errors.New("no message provided")
	}

	if err := validateSayText(text); err != nil {
		return nil, err
	}

	return &sayInvocation{say: s, message: text}, nil
}

func (s *Say) Answerable(_ context.Context, req *domain.ComponentRequest) bool {
	return req.CustomID == sayAgainID
}

func (s *Say) Interaction(_ context.Context, _ *domain.ComponentRequest) (*domain.Response, error) {
	return &domain.Response{
		Modal: &domain.Modal{
			CustomID: sayModalID,
			Title:    "Say something",
			Fields: []domain.TextField{
				{
					CustomID:  sayOption,
					Label:     "What you want the bot to say",
					Required:  true,
					MaxLength: sayMaxLength,
				},
			},
		},
	}, nil
}

func (s *Say) ModalSubmit(_ context.Context, req *domain.ModalRequest) bool {
	return req.CustomID == sayModalID
}

func (s *Say) HandleModalSubmit(ctx context.Context, req *domain.ModalRequest) (*domain.Response, error) {
	text := req.Fields[sayOption]
	if err := validateSayText(text); err != nil {
		return nil, &domain.CommandError{
			Response:   "Please provide something to say",
			Kind:       domain.FailureWarning,
			LogMessage: err.Error(),
			Err:        domain.ErrInvalidArguments,
		}
	}

	return s.send(ctx, req.GuildID, req.ChannelID, text)
}

func (s *Say) send(ctx context.Context, guildID domain.GuildID, channelID string, text string) (*domain.Response, error) {
	l := log.With().
		Stringer("guildId", guildID).
		Str("channelId", channelID).
		Str("command", s.Name()).
		Logger()

	l.Info().Msg("handling request")

	if _, err := s.sender.SendChannelMessage(ctx, channelID, text); err != nil {
		l.Error().Err(err).Msg(domain.ErrSendingReplyFailed.Error())
		return nil, &domain.CommandError{
			Response:   "Failed to use /say due to error",
			Kind:       domain.FailureError,
			LogMessage: err.Error(),
			Err:        fmt.Errorf("%w: %w", domain.ErrSendingReplyFailed, err),
		}
	}

	return &domain.Response{
		Content:   fmt.Sprintf("I will send: %s", text),
		Ephemeral: true,
		Buttons:   []domain.Button{{CustomID: sayAgainID, Label: "Say again"}},
	}, nil
}

func validateSayText(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("no message provided")
	}

	if utf8.RuneCountInString(text) > sayMaxLength {
		return fmt.Errorf("message longer than %d characters", sayMaxLength)
	}

	return nil
}

type sayInvocation struct {
	say     *Say
	message string
}

func (i *sayInvocation) Execute(ctx context.Context, req *domain.CommandRequest) (*domain.Response, error) {
	return i.say.send(ctx, req.GuildID, req.ChannelID, i.message)
}
