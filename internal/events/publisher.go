package events

import (
	"context"
	"sync"

	"parley-chat/internal/domain/conversation"
)

// Publisher fans events out to rooms. Delivery is best effort: an empty room or a
// slow client is not an error.
type Publisher interface {
	BroadcastToConversation(ctx context.Context, ref conversation.Ref, e Event)
	BroadcastToUser(ctx context.Context, userID int64, e Event)
	BroadcastPresence(ctx context.Context, userID int64, e Event)
	// LeaveConversation stops delivering the conversation room to userID's connections.
	LeaveConversation(ctx context.Context, ref conversation.Ref, userID int64)
	// CloseConversation empties the conversation room.
	CloseConversation(ctx context.Context, ref conversation.Ref)
}

// NopPublisher discards everything.
type NopPublisher struct{}

func (NopPublisher) BroadcastToConversation(context.Context, conversation.Ref, Event) {}
func (NopPublisher) BroadcastToUser(context.Context, int64, Event)                    {}
func (NopPublisher) BroadcastPresence(context.Context, int64, Event)                  {}
func (NopPublisher) LeaveConversation(context.Context, conversation.Ref, int64)       {}
func (NopPublisher) CloseConversation(context.Context, conversation.Ref)              {}

// Published is one recorded broadcast.
type Published struct {
	Room  Room
	Event Event
}

// Eviction is one recorded room removal. UserID 0 stands for every subscriber.
type Eviction struct {
	Room   Room
	UserID int64
}

// Recorder keeps every broadcast in order. Services are tested against it.
type Recorder struct {
	mu        sync.Mutex
	events    []Published
	evictions []Eviction
}

func (r *Recorder) record(room Room, e Event) {
	r.mu.Lock()
	r.events = append(r.events, Published{Room: room, Event: e})
	r.mu.Unlock()
}

func (r *Recorder) BroadcastToConversation(_ context.Context, ref conversation.Ref, e Event) {
	r.record(ConversationRoom(ref), e)
}

func (r *Recorder) BroadcastToUser(_ context.Context, userID int64, e Event) {
	r.record(UserRoom(userID), e)
}

func (r *Recorder) BroadcastPresence(_ context.Context, userID int64, e Event) {
	r.record(StatusRoom(userID), e)
}

func (r *Recorder) LeaveConversation(_ context.Context, ref conversation.Ref, userID int64) {
	r.mu.Lock()
	r.evictions = append(r.evictions, Eviction{Room: ConversationRoom(ref), UserID: userID})
	r.mu.Unlock()
}

func (r *Recorder) CloseConversation(_ context.Context, ref conversation.Ref) {
	r.mu.Lock()
	r.evictions = append(r.evictions, Eviction{Room: ConversationRoom(ref)})
	r.mu.Unlock()
}

func (r *Recorder) Evictions() []Eviction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Eviction(nil), r.evictions...)
}

func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

// Named returns the recorded broadcasts with the given event name.
func (r *Recorder) Named(name string) []Published {
	var out []Published
	for _, p := range r.Events() {
		if p.Event.Name == name {
			out = append(out, p)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.evictions = nil
	r.mu.Unlock()
}
