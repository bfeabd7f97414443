package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"
	"timebot/internal/core/domain"
	"timebot/internal/core/port"
)

const (
	timeOption       = "location"
	timeRefreshID    = "time:refresh:"
	maxAutocomplete  = 25
	timeResponseText = "The time in %s is %s on a %s"
)

var knownLocations = []domain.Choice{
	{Name: "London", Value: "Europe/London"},
	{Name: "Auckland", Value: "Pacific/Auckland"},
	{Name: "Berlin", Value: "Europe/Berlin"},
	{Name: "New York", Value: "America/New_York"},
	{Name: "Los Angeles", Value: "America/Los_Angeles"},
	{Name: "Tokyo", Value: "Asia/Tokyo"},
	{Name: "Sydney", Value: "Australia/Sydney"},
	{Name: "UTC", Value: "UTC"},
}

// Time reports the current time in a location. It suggests known locations while the user types
// and attaches a refresh button to its answer.
type Time struct {
	now func() time.Time
}

func NewTime() *Time {
	return &Time{now: time.Now}
}

func (t *Time) Name() string {
	return "time"
}

func (t *Time) Description() string {
	return "Tells the current time in a location"
}

func (t *Time) Options() []domain.OptionSchema {
	return []domain.OptionSchema{
		{
			Name:         timeOption,
			Description:  "The location to get the time for",
			Required:     true,
			Autocomplete: true,
		},
	}
}

func (t *Time) Parse(req *domain.CommandRequest) (port.Invocation, error) {
	zone, ok := req.StringOption(timeOption)
	if !ok || zone == "" {
		return nil, errors.New("no location provided")
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown location %q: %w", zone, err)
	}

	return &timeInvocation{t: t, loc: loc}, nil
}

// Autocomplete ranks prefix matches before substring matches, keeping declaration order within
// each group.
func (t *Time) Autocomplete(_ context.Context, _ *domain.CommandRequest, focused domain.Option) ([]domain.Choice, error) {
	input, _ := focused.Value.(string)
	input = strings.ToLower(strings.TrimSpace(input))

	type ranked struct {
		choice domain.Choice
		rank   int
	}

	var matches []ranked
	for _, c := range knownLocations {
		name := strings.ToLower(c.Name)
		zone := strings.ToLower(c.Value)

		switch {
		case input == "":
			matches = append(matches, ranked{c, 0})
		case strings.HasPrefix(name, input) || strings.HasPrefix(zone, input):
			matches = append(matches, ranked{c, 0})
		case strings.Contains(name, input) || strings.Contains(zone, input):
			matches = append(matches, ranked{c, 1})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].rank < matches[j].rank
	})

	choices := make([]domain.Choice, 0, min(len(matches), maxAutocomplete))
	for _, m := range matches {
		if len(choices) == maxAutocomplete {
			break
		}
		choices = append(choices, m.choice)
	}

	return choices, nil
}

func (t *Time) Answerable(_ context.Context, req *domain.ComponentRequest) bool {
	return strings.HasPrefix(req.CustomID, timeRefreshID)
}

func (t *Time) Interaction(_ context.Context, req *domain.ComponentRequest) (*domain.Response, error) {
	zone := strings.TrimPrefix(req.CustomID, timeRefreshID)

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, &domain.CommandError{
			Response:   "That location is no longer available",
			Kind:       domain.FailureWarning,
			LogMessage: err.Error(),
			Err:        domain.ErrInvalidArguments,
		}
	}

	resp := t.respond(loc)
	resp.Update = true

	return resp, nil
}

func (t *Time) respond(loc *time.Location) *domain.Response {
	now := t.now().In(loc)

	return &domain.Response{
		Content: fmt.Sprintf(timeResponseText, loc.String(), now.Format("3:04pm"), now.Format("Monday")),
		Buttons: []domain.Button{{CustomID: timeRefreshID + loc.String(), Label: "Refresh"}},
	}
}

type timeInvocation struct {
	t   *Time
	loc *time.Location
}

func (i *timeInvocation) Execute(_ context.Context, _ *domain.CommandRequest) (*domain.Response, error) {
	return i.t.respond(i.loc), nil
}
