package events

import "context"

// Subscriber delivers raw payloads published on external channels.
type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}
