package port

import "context"

type MessageSender interface {
	// SendChannelMessage posts content to a channel and returns the ID of the created message.
	SendChannelMessage(ctx context.Context, channelID string, content string) (string, error)
}
