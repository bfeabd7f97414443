package service

import (
	"context"
	"sync"
	"testing"
	"time"
	"timebot/internal/core/domain"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Connections(t *testing.T) {
	s := NewState()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Connect()
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), s.Connected())

	for range 60 {
		s.Disconnect()
	}
	assert.Equal(t, int64(0), s.Connected())
}

func TestState_Uptime(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &State{StartedAt: start, now: func() time.Time { return start.Add(90 * time.Second) }}

	assert.Equal(t, 90*time.Second, s.Uptime())
}

func TestIdentity_SetOnce(t *testing.T) {
	id := NewIdentity()

	_, ok := id.Get()
	assert.False(t, ok)

	got := make(chan BotIdentity, 3)
	for range 3 {
		go func() {
			v, err := id.Wait(t.Context())
			assert.NoError(t, err)
			got <- v
		}()
	}

	want := BotIdentity{UserID: "1", ApplicationID: "2", Username: "timebot"}
	assert.True(t, id.Set(want))
	assert.False(t, id.Set(BotIdentity{UserID: "other"}))

	for range 3 {
		select {
		case v := <-got:
			assert.Equal(t, want, v)
		case <-time.After(waitFor):
			t.Fatal("waiter not released")
		}
	}

	v, ok := id.Get()
	assert.True(t, ok)
	assert.Equal(t, want, v)
}

func TestIdentity_WaitCancelled(t *testing.T) {
	id := NewIdentity()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	_, err := id.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewGuildAllowlist(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		wantErr  bool
		expected []domain.GuildID
	}{
		{
			name: "loads allowed guild IDs",
			setup: func() {
				viper.Set("discord.allowed_guild_ids", []int64{1, 2, 3})
			},
			expected: []domain.GuildID{1, 2, 3},
		},
		{
			name: "snowflake strings are accepted",
			setup: func() {
				viper.Set("discord.allowed_guild_ids", []string{"1092485839562854400"})
			},
			expected: []domain.GuildID{1092485839562854400},
		},
		{
			name: "invalid type returns error",
			setup: func() {
				viper.Set("discord.allowed_guild_ids", "not a slice")
			},
			wantErr: true,
		},
		{
			name:     "missing key is fine",
			setup:    func() {},
			expected: []domain.GuildID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			tt.setup()

			list, err := NewGuildAllowlist()

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, list)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, list.allowlist)
		})
	}
}

func TestGuildAllowlist_IsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []domain.GuildID
		guild     domain.GuildID
		want      bool
	}{
		{name: "empty list admits all", guild: 5, want: true},
		{name: "listed guild", allowlist: []domain.GuildID{4, 5}, guild: 5, want: true},
		{name: "unlisted guild", allowlist: []domain.GuildID{4}, guild: 5, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &GuildAllowlist{allowlist: tt.allowlist}
			assert.Equal(t, tt.want, a.IsAllowed(tt.guild))
		})
	}
}
