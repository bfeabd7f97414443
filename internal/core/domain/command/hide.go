package command

import (
	"context"
	"strings"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"
)

const (
	zeroWidthSpace = "\u200b"
	hideLines      = 120
)

// Hide posts a tall message made of invisible lines so earlier messages scroll out of view.
type Hide struct{}

func NewHide() *Hide {
	return &Hide{}
}

func (h *Hide) Name() string {
	return "hide"
}

func (h *Hide) Description() string {
	return "Creates a large message to hide previous messages in the chat"
}

func (h *Hide) Options() []domain.OptionSchema {
	return nil
}

func (h *Hide) Parse(_ *domain.CommandRequest) (port.Invocation, error) {
	return hideInvocation{}, nil
}

type hideInvocation struct{}

func (hideInvocation) Execute(_ context.Context, _ *domain.CommandRequest) (*domain.Response, error) {
	return &domain.Response{Content: strings.Repeat(zeroWidthSpace+"\n", hideLines)}, nil
}
