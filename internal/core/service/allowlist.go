package service

import (
	"errors"
	"timebot/internal/core/domain"

	"github.com/spf13/viper"
)

// GuildAllowlist limits the guilds the bot serves. An empty list admits every guild.
type GuildAllowlist struct {
	allowlist []domain.GuildID
}

func NewGuildAllowlist() (*GuildAllowlist, error) {
	var list []uint64

	err := viper.UnmarshalKey("discord.allowed_guild_ids", &list)
	if err != nil {
		return nil, errors.New("failed to load allowed guild IDs")
	}

	ids := make([]domain.GuildID, 0, len(list))
	for _, id := range list {
		ids = append(ids, domain.GuildID(id))
	}

	return &GuildAllowlist{allowlist: ids}, nil
}

func (a *GuildAllowlist) IsAllowed(id domain.GuildID) bool {
	if a == nil || len(a.allowlist) == 0 {
		return true
	}

	for _, allowed := range a.allowlist {
		if allowed == id {
			return true
		}
	}

	return false
}
