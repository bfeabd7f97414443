package command

import (
	"context"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"
)

type Ping struct{}

func NewPing() *Ping {
	return &Ping{}
}

func (p *Ping) Name() string {
	return "ping"
}

func (p *Ping) Description() string {
	return "Pings the bot, expect a pong response."
}

func (p *Ping) Options() []domain.OptionSchema {
	return nil
}

func (p *Ping) Parse(_ *domain.CommandRequest) (port.Invocation, error) {
	return pingInvocation{}, nil
}

type pingInvocation struct{}

func (pingInvocation) Execute(_ context.Context, _ *domain.CommandRequest) (*domain.Response, error) {
	return &domain.Response{Content: "Pong!", Ephemeral: true}, nil
}
