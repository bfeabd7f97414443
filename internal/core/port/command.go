package port

import (
	"context"
	"timebot/internal/core/domain"
)

// Command is the base capability every registered command has.
type Command interface {
	// Name is the unique identifier the command is invoked by.
	Name() string
	// Description is shown to users when the command is registered with the platform.
	Description() string
	// Options returns the parameter schema used for registration.
	Options() []domain.OptionSchema
	// Parse validates a raw request into the command's typed arguments.
	Parse(req *domain.CommandRequest) (Invocation, error)
}

// Invocation is a parsed, validated command ready to run.
type Invocation interface {
	Execute(ctx context.Context, req *domain.CommandRequest) (*domain.Response, error)
}

// AutocompleteCommand produces suggestions for a partially typed option.
type AutocompleteCommand interface {
	Command
	Autocomplete(ctx context.Context, req *domain.CommandRequest, focused domain.Option) ([]domain.Choice, error)
}

// FollowupCommand handles component interactions (buttons, menus) spawned by an earlier response.
type FollowupCommand interface {
	Command
	// Answerable reports whether the component interaction belongs to this command.
	Answerable(ctx context.Context, req *domain.ComponentRequest) bool
	Interaction(ctx context.Context, req *domain.ComponentRequest) (*domain.Response, error)
}

// ModalCommand handles modal submissions.
type ModalCommand interface {
	Command
	// ModalSubmit reports whether the submission belongs to this command.
	ModalSubmit(ctx context.Context, req *domain.ModalRequest) bool
	HandleModalSubmit(ctx context.Context, req *domain.ModalRequest) (*domain.Response, error)
}

// Dispatcher routes requests to the registered commands.
type Dispatcher interface {
	Command(ctx context.Context, req *domain.CommandRequest) (*domain.Response, error)
	Autocomplete(ctx context.Context, req *domain.CommandRequest) ([]domain.Choice, error)
	Component(ctx context.Context, req *domain.ComponentRequest) (*domain.Response, error)
	Modal(ctx context.Context, req *domain.ModalRequest) (*domain.Response, error)
	Descriptors() []domain.CommandDescriptor
}
