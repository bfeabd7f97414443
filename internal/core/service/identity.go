package service

import (
	"context"
	"sync"
)

type BotIdentity struct {
	UserID        string
	ApplicationID string
	Username      string
}

// Identity holds the bot's own identity, which becomes known once the gateway session is ready.
// It is set at most once.
type Identity struct {
	once  sync.Once
	ready chan struct{}
	value BotIdentity
}

func NewIdentity() *Identity {
	return &Identity{ready: make(chan struct{})}
}

// Set stores v and wakes every waiter. It reports false if the identity was already set, in
// which case v is ignored.
func (i *Identity) Set(v BotIdentity) bool {
	set := false
	i.once.Do(func() {
		i.value = v
		close(i.ready)
		set = true
	})

	return set
}

// Wait blocks until the identity is set or ctx is done.
func (i *Identity) Wait(ctx context.Context) (BotIdentity, error) {
	select {
	case <-i.ready:
		return i.value, nil
	case <-ctx.Done():
		return BotIdentity{}, ctx.Err()
	}
}

func (i *Identity) Get() (BotIdentity, bool) {
	select {
	case <-i.ready:
		return i.value, true
	default:
		return BotIdentity{}, false
	}
}
