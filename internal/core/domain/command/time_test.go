package command

import (
	"testing"
	"time"
	"timebot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTime() *Time {
	return &Time{now: func() time.Time {
		// a Tuesday
		return time.Date(2024, time.March, 5, 2, 34, 0, 0, time.UTC)
	}}
}

func TestTime_Execute(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     string
	}{
		{
			name:     "auckland is ahead",
			location: "Pacific/Auckland",
			want:     "The time in Pacific/Auckland is 3:34pm on a Tuesday",
		},
		{
			name:     "london",
			location: "Europe/London",
			want:     "The time in Europe/London is 2:34am on a Tuesday",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := fixedTime()
			req := &domain.CommandRequest{
				Name:    "time",
				Options: []domain.Option{{Name: "location", Value: tc.location}},
			}

			inv, err := cmd.Parse(req)
			require.NoError(t, err)

			resp, err := inv.Execute(t.Context(), req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.Content)
			assert.False(t, resp.Update)
			require.Len(t, resp.Buttons, 1)
			assert.Equal(t, "time:refresh:"+tc.location, resp.Buttons[0].CustomID)
		})
	}
}

func TestTime_ParseRejectsUnknownLocation(t *testing.T) {
	_, err := NewTime().Parse(&domain.CommandRequest{
		Options: []domain.Option{{Name: "location", Value: "Nowhere/Special"}},
	})
	require.Error(t, err)

	_, err = NewTime().Parse(&domain.CommandRequest{})
	require.Error(t, err)
}

func TestTime_Autocomplete(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{
			name:  "prefix on display name",
			input: "lon",
			want:  []string{"Europe/London"},
		},
		{
			name:  "prefix before substring",
			input: "n",
			want: []string{
				"America/New_York", "Europe/London", "Pacific/Auckland", "Europe/Berlin",
				"America/Los_Angeles", "Australia/Sydney",
			},
		},
		{
			name:  "zone prefix",
			input: "europe/",
			want:  []string{"Europe/London", "Europe/Berlin"},
		},
		{
			name:  "no match",
			input: "zzz",
			want:  []string{},
		},
		{
			name:  "non string input lists everything",
			input: nil,
			want: []string{
				"Europe/London", "Pacific/Auckland", "Europe/Berlin", "America/New_York",
				"America/Los_Angeles", "Asia/Tokyo", "Australia/Sydney", "UTC",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			choices, err := NewTime().Autocomplete(t.Context(), &domain.CommandRequest{},
				domain.Option{Name: "location", Value: tc.input, Focused: true})
			require.NoError(t, err)

			got := make([]string, 0, len(choices))
			for _, c := range choices {
				got = append(got, c.Value)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTime_Refresh(t *testing.T) {
	cmd := fixedTime()
	req := &domain.ComponentRequest{CustomID: "time:refresh:Europe/London"}

	assert.True(t, cmd.Answerable(t.Context(), req))
	assert.False(t, cmd.Answerable(t.Context(), &domain.ComponentRequest{CustomID: "say:again"}))

	resp, err := cmd.Interaction(t.Context(), req)
	require.NoError(t, err)
	assert.True(t, resp.Update)
	assert.Equal(t, "The time in Europe/London is 2:34am on a Tuesday", resp.Content)

	_, err = cmd.Interaction(t.Context(), &domain.ComponentRequest{CustomID: "time:refresh:Bad/Zone"})
	require.ErrorIs(t, err, domain.ErrInvalidArguments)
}
