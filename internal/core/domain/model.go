package domain

import (
	"fmt"
	"strconv"
)

// GuildID is the platform-assigned identifier of a guild. It is the only key of the actor table.
type GuildID uint64

func (g GuildID) String() string {
	return strconv.FormatUint(uint64(g), 10)
}

// ParseGuildID converts a snowflake string into a GuildID. An empty snowflake means the payload
// has no guild association.
func ParseGuildID(snowflake string) (GuildID, error) {
	if snowflake == "" {
		return 0, ErrNoGuild
	}

	id, err := strconv.ParseUint(snowflake, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid guild id %q: %w", snowflake, err)
	}

	return GuildID(id), nil
}

type Option struct {
	Name    string
	Value   any
	Focused bool
}

type CommandRequest struct {
	GuildID   GuildID
	ChannelID string
	UserID    string
	Name      string
	Options   []Option
}

// StringOption returns the string value of the named option.
func (r *CommandRequest) StringOption(name string) (string, bool) {
	for _, o := range r.Options {
		if o.Name != name {
			continue
		}
		s, ok := o.Value.(string)
		return s, ok
	}

	return "", false
}

// FocusedOption returns the option the user is currently typing into, if any.
func (r *CommandRequest) FocusedOption() (Option, bool) {
	for _, o := range r.Options {
		if o.Focused {
			return o, true
		}
	}

	return Option{}, false
}

type ComponentRequest struct {
	GuildID   GuildID
	ChannelID string
	UserID    string
	CustomID  string
	Values    []string
}

type ModalRequest struct {
	GuildID   GuildID
	ChannelID string
	UserID    string
	CustomID  string
	Fields    map[string]string
}

type Button struct {
	CustomID string
	Label    string
}

type TextField struct {
	CustomID  string
	Label     string
	Required  bool
	MaxLength int
}

type Modal struct {
	CustomID string
	Title    string
	Fields   []TextField
}

// Response is the platform-independent reply to an interaction. Update replaces the message the
// interaction originated from instead of posting a new one. A non-nil Modal takes precedence over
// the message content.
type Response struct {
	Content   string
	Ephemeral bool
	Update    bool
	Buttons   []Button
	Modal     *Modal
}

type Choice struct {
	Name  string
	Value string
}

type OptionSchema struct {
	Name         string
	Description  string
	Required     bool
	MaxLength    int
	Autocomplete bool
	Choices      []Choice
}

// CommandDescriptor is the registration form of a command, exported once at startup.
type CommandDescriptor struct {
	Name        string
	Description string
	Options     []OptionSchema
}
