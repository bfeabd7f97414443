package command

import (
	"context"
	"errors"
	"fmt"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"

	"github.com/rs/zerolog/log"
)

// Capability names a set of operations a command can take part in.
type Capability string

const (
	CapCommand      Capability = "command"
	CapAutocomplete Capability = "autocomplete"
	CapFollowup     Capability = "followup"
	CapModal        Capability = "modal"
)

// Registry is the ordered list of commands plus one filtered view per capability. It is built
// once at startup and only read afterwards.
type Registry struct {
	commands     []port.Command
	names        map[string]struct{}
	autocomplete []port.AutocompleteCommand
	followups    []port.FollowupCommand
	modals       []port.ModalCommand
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a command together with the capabilities it claims. It fails if the command
// does not implement one of them, if its name is empty, or if the name is already taken.
func (r *Registry) Register(cmd port.Command, caps ...Capability) error {
	if r.names == nil {
		r.names = make(map[string]struct{})
	}

	name := cmd.Name()
	if name == "" {
		return errors.New("command without name")
	}

	if _, ok := r.names[name]; ok {
		return fmt.Errorf("command %q registered twice", name)
	}

	var (
		ac port.AutocompleteCommand
		fc port.FollowupCommand
		mc port.ModalCommand
		ok bool
	)

	for _, c := range caps {
		switch c {
		case CapCommand:
		case CapAutocomplete:
			if ac, ok = cmd.(port.AutocompleteCommand); !ok {
				return fmt.Errorf("command %q claims %s but does not implement it", name, c)
			}
		case CapFollowup:
			if fc, ok = cmd.(port.FollowupCommand); !ok {
				return fmt.Errorf("command %q claims %s but does not implement it", name, c)
			}
		case CapModal:
			if mc, ok = cmd.(port.ModalCommand); !ok {
				return fmt.Errorf("command %q claims %s but does not implement it", name, c)
			}
		default:
			return fmt.Errorf("command %q claims unknown capability %q", name, c)
		}
	}

	log.Info().Str("command", name).Interface("capabilities", caps).Msg("adding command to registry")

	r.names[name] = struct{}{}
	r.commands = append(r.commands, cmd)
	if ac != nil {
		r.autocomplete = append(r.autocomplete, ac)
	}
	if fc != nil {
		r.followups = append(r.followups, fc)
	}
	if mc != nil {
		r.modals = append(r.modals, mc)
	}

	return nil
}

// MustRegister is Register for startup code, where a misconfigured registry is fatal.
func (r *Registry) MustRegister(cmd port.Command, caps ...Capability) {
	if err := r.Register(cmd, caps...); err != nil {
		panic(err)
	}
}

// Command runs the first command whose name matches the request. A parse failure does not fall
// through to later commands.
func (r *Registry) Command(ctx context.Context, req *domain.CommandRequest) (*domain.Response, error) {
	log.Debug().Str("command", req.Name).Msg("dispatching command")

	for _, cmd := range r.commands {
		if cmd.Name() != req.Name {
			continue
		}

		inv, err := cmd.Parse(req)
		if err != nil {
			return nil, &domain.CommandError{
				Response:   "Unsupported Command",
				Kind:       domain.FailureError,
				LogMessage: err.Error(),
				Err:        fmt.Errorf("%w: %w", domain.ErrUnsupportedCommand, errors.Join(domain.ErrInvalidArguments, err)),
			}
		}

		return inv.Execute(ctx, req)
	}

	return nil, domain.Unsupported("Command")
}

func (r *Registry) Autocomplete(ctx context.Context, req *domain.CommandRequest) ([]domain.Choice, error) {
	for _, cmd := range r.autocomplete {
		if cmd.Name() != req.Name {
			continue
		}

		focused, ok := req.FocusedOption()
		if !ok {
			return nil, &domain.CommandError{
				Response: "No Autocomplete Data Provided",
				Kind:     domain.FailureError,
				Err:      domain.ErrInvalidArguments,
			}
		}

		return cmd.Autocomplete(ctx, req, focused)
	}

	return nil, domain.Unsupported("Autocomplete Command")
}

// Component hands the interaction to the first followup command that claims it. Later commands
// are never asked, even if they would also answer.
func (r *Registry) Component(ctx context.Context, req *domain.ComponentRequest) (*domain.Response, error) {
	for _, cmd := range r.followups {
		if cmd.Answerable(ctx, req) {
			return cmd.Interaction(ctx, req)
		}
	}

	return nil, domain.Unsupported("Interaction Command")
}

func (r *Registry) Modal(ctx context.Context, req *domain.ModalRequest) (*domain.Response, error) {
	for _, cmd := range r.modals {
		if cmd.ModalSubmit(ctx, req) {
			return cmd.HandleModalSubmit(ctx, req)
		}
	}

	return nil, domain.Unsupported("Modal Submit Command")
}

// Descriptors exports every command in declaration order for platform registration.
func (r *Registry) Descriptors() []domain.CommandDescriptor {
	out := make([]domain.CommandDescriptor, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, domain.CommandDescriptor{
			Name:        cmd.Name(),
			Description: cmd.Description(),
			Options:     cmd.Options(),
		})
	}

	return out
}

// ListCommands returns the registered command names in declaration order.
func (r *Registry) ListCommands() []string {
	names := make([]string, len(r.commands))
	for i, cmd := range r.commands {
		names[i] = cmd.Name()
	}

	return names
}

var _ port.Dispatcher = (*Registry)(nil)
