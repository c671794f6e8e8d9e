package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/events"
	"parley-chat/internal/redis"
)

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-c.Send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func frameNames(t *testing.T, frames [][]byte) []string {
	t.Helper()
	names := make([]string, 0, len(frames))
	for _, raw := range frames {
		var f events.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		names = append(names, f.Event)
	}
	return names
}

func TestHubPublishOrder(t *testing.T) {
	hub := NewHub()
	room := events.ConversationRoom(conversation.GroupRef(1))
	a := NewClient(nil, 1, nil)
	b := NewClient(nil, 2, nil)
	outsider := NewClient(nil, 3, nil)
	hub.Subscribe(a, room)
	hub.Subscribe(b, room)

	for i := 0; i < 5; i++ {
		if got := hub.Publish(room, []byte(fmt.Sprint(i))); got != 2 {
			t.Fatalf("delivered to %d clients, want 2", got)
		}
	}

	for _, c := range []*Client{a, b} {
		frames := drain(c)
		if len(frames) != 5 {
			t.Fatalf("client %d got %d frames", c.UserID, len(frames))
		}
		for i, f := range frames {
			if string(f) != fmt.Sprint(i) {
				t.Errorf("client %d frame %d = %s", c.UserID, i, f)
			}
		}
	}
	if got := drain(outsider); len(got) != 0 {
		t.Errorf("outsider got %d frames", len(got))
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	room := events.UserRoom(1)
	slow := NewClient(nil, 1, nil)
	hub.Subscribe(slow, room)

	for i := 0; i < sendBufferSize; i++ {
		hub.Publish(room, []byte("x"))
	}
	if got := hub.Publish(room, []byte("overflow")); got != 0 {
		t.Fatalf("full client accepted a frame")
	}

	frames := drain(slow)
	if len(frames) != sendBufferSize {
		t.Fatalf("got %d frames, want %d", len(frames), sendBufferSize)
	}
	if string(frames[len(frames)-1]) != "x" {
		t.Error("overflow frame was queued")
	}
	if got := hub.Publish(room, []byte("after")); got != 1 {
		t.Error("drained client should accept frames again")
	}
}

func TestHubUnsubscribeAndRemove(t *testing.T) {
	hub := NewHub()
	room := events.StatusRoom(5)
	c := NewClient(nil, 1, nil)
	hub.addClient(c)
	hub.Subscribe(c, room)
	hub.Subscribe(c, events.UserRoom(1))

	hub.Unsubscribe(c, room)
	if c.InRoom(room) || hub.SubscriberCount(room) != 0 {
		t.Fatal("client still in room after unsubscribe")
	}

	hub.removeClient(c)
	if hub.ClientCount() != 0 || hub.SubscriberCount(events.UserRoom(1)) != 0 {
		t.Fatal("removed client still tracked")
	}
	if _, ok := <-c.Send; ok {
		t.Fatal("send channel left open")
	}

	hub.Subscribe(c, room)
	if hub.SubscriberCount(room) != 0 {
		t.Error("closed client was subscribed")
	}
}

func TestHubRunRegisters(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := NewClient(nil, 1, nil)
	hub.Register(c)
	hub.Subscribe(c, events.UserRoom(1))
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.ClientCount() != 0 || !c.isClosed() {
		t.Error("stopped hub kept its clients")
	}
}

type fakeRelay struct {
	channels []string
	err      error
}

func (f *fakeRelay) Publish(_ context.Context, channel string, _ []byte) error {
	f.channels = append(f.channels, channel)
	return f.err
}

type fakeMirror struct {
	statuses []redis.PresenceStatus
}

func (f *fakeMirror) Set(_ context.Context, status redis.PresenceStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func TestGatewayRelay(t *testing.T) {
	hub := NewHub()
	c := NewClient(nil, 1, nil)
	hub.Subscribe(c, events.UserRoom(1))

	relay := &fakeRelay{}
	gw := NewGateway(hub, relay, nil)
	gw.BroadcastToUser(context.Background(), 1, events.EditUser())
	if len(relay.channels) != 1 || relay.channels[0] != redis.RoomChannelPrefix+"user_1" {
		t.Fatalf("relay channels = %v", relay.channels)
	}
	if got := drain(c); len(got) != 0 {
		t.Fatal("relayed frame also delivered locally")
	}

	relay.err = errors.New("redis down")
	gw.BroadcastToUser(context.Background(), 1, events.EditUser())
	if got := frameNames(t, drain(c)); len(got) != 1 || got[0] != events.EventEditUser {
		t.Fatalf("fallback frames = %v", got)
	}
}

func TestGatewayPresence(t *testing.T) {
	hub := NewHub()
	watcher := NewClient(nil, 2, nil)
	hub.Subscribe(watcher, events.StatusRoom(1))
	mirror := &fakeMirror{}
	gw := NewGateway(hub, nil, mirror)

	if _, ok := gw.Presence(1); ok {
		t.Fatal("presence known before any signal")
	}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	gw.SetPresence(context.Background(), 1, false, at)

	p, ok := gw.Presence(1)
	if !ok || p.Online || !p.LastSeen.Equal(at) {
		t.Fatalf("presence = %+v, %v", p, ok)
	}
	if len(mirror.statuses) != 1 || mirror.statuses[0].IsOnline {
		t.Errorf("mirror = %+v", mirror.statuses)
	}

	frames := drain(watcher)
	if len(frames) != 1 {
		t.Fatalf("watcher got %d frames", len(frames))
	}
	var f struct {
		Event string `json:"event"`
		Data  struct {
			UserID int64  `json:"userId"`
			Event  string `json:"event"`
		} `json:"data"`
	}
	if err := json.Unmarshal(frames[0], &f); err != nil {
		t.Fatal(err)
	}
	if f.Event != events.EventSetStatusOnline || f.Data.UserID != 1 || f.Data.Event != events.StatusOffline {
		t.Errorf("frame = %+v", f)
	}
}

func TestRedisBridgeHandle(t *testing.T) {
	hub := NewHub()
	c := NewClient(nil, 7, nil)
	hub.Subscribe(c, events.UserRoom(7))
	hub.Subscribe(c, events.ConversationRoom(conversation.ChannelRef(3)))

	local := NewRedisBridge(nil, hub, false)
	if got := local.Channels(); len(got) != 1 || got[0] != redis.UserEditedChannel {
		t.Fatalf("local channels = %v", got)
	}
	local.handle(redis.UserEditedChannel, []byte(`{"userId":7}`))
	local.handle(redis.RoomChannelPrefix+"channel_3", []byte(`{"event":"x"}`))
	if got := frameNames(t, drain(c)); len(got) != 1 || got[0] != events.EventEditUser {
		t.Fatalf("local bridge frames = %v", got)
	}

	shared := NewRedisBridge(nil, hub, true)
	shared.handle(redis.RoomChannelPrefix+"channel_3", []byte(`{"event":"x"}`))
	shared.handle(redis.RoomChannelPrefix+"nonsense", []byte(`{"event":"y"}`))
	shared.handle(redis.UserEditedChannel, []byte(`not json`))
	if got := frameNames(t, drain(c)); len(got) != 1 || got[0] != "x" {
		t.Fatalf("shared bridge frames = %v", got)
	}
}

func TestHubEvictAndCloseRoom(t *testing.T) {
	hub := NewHub()
	room := events.ConversationRoom(conversation.GroupRef(1))
	other := events.ConversationRoom(conversation.GroupRef(2))
	a1 := NewClient(nil, 1, nil)
	a2 := NewClient(nil, 1, nil)
	b := NewClient(nil, 2, nil)
	for _, c := range []*Client{a1, a2, b} {
		hub.Subscribe(c, room)
	}
	hub.Subscribe(a1, other)

	if got := hub.EvictUser(room, 1); got != 2 {
		t.Fatalf("evicted %d clients, want 2", got)
	}
	if a1.InRoom(room) || a2.InRoom(room) || !a1.InRoom(other) {
		t.Error("eviction touched the wrong rooms")
	}
	if hub.Publish(room, []byte("x")) != 1 || len(drain(a1)) != 0 {
		t.Error("evicted user still receives room frames")
	}

	if got := hub.CloseRoom(room); got != 1 {
		t.Fatalf("closed room had %d clients, want 1", got)
	}
	if b.InRoom(room) || hub.SubscriberCount(room) != 0 {
		t.Error("closed room kept subscribers")
	}
}

func TestHubStoppedIsSafe(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := NewClient(nil, 1, nil)
	if !hub.Register(c) {
		t.Fatal("running hub refused a client")
	}
	cancel()
	<-stopped

	if c.SendMessage([]byte("late")) {
		t.Error("closed client accepted a frame")
	}

	finished := make(chan bool)
	go func() {
		hub.Unregister(c)
		finished <- hub.Register(NewClient(nil, 2, nil))
	}()
	select {
	case ok := <-finished:
		if ok {
			t.Error("stopped hub accepted a client")
		}
	case <-time.After(time.Second):
		t.Fatal("stopped hub blocked")
	}
}

func TestGatewayEviction(t *testing.T) {
	hub := NewHub()
	ref := conversation.GroupRef(4)
	room := events.ConversationRoom(ref)
	a := NewClient(nil, 1, nil)
	b := NewClient(nil, 2, nil)
	hub.Subscribe(a, room)
	hub.Subscribe(b, room)

	relay := &fakeRelay{}
	gw := NewGateway(hub, relay, nil)
	gw.LeaveConversation(context.Background(), ref, 1)
	if a.InRoom(room) || !b.InRoom(room) {
		t.Fatal("local eviction missing")
	}
	if len(relay.channels) != 1 || relay.channels[0] != redis.RoomEvictChannel {
		t.Fatalf("relay channels = %v", relay.channels)
	}

	// another instance applies the relayed eviction
	remote := NewHub()
	c := NewClient(nil, 2, nil)
	remote.Subscribe(c, room)
	bridge := NewRedisBridge(nil, remote, true)
	bridge.handle(redis.RoomEvictChannel, []byte(`{"room":"group_4","userId":1}`))
	if !c.InRoom(room) {
		t.Fatal("eviction of user 1 removed user 2")
	}
	bridge.handle(redis.RoomEvictChannel, []byte(`{"room":"group_4"}`))
	if c.InRoom(room) {
		t.Fatal("room close not applied")
	}

	gw.CloseConversation(context.Background(), ref)
	if b.InRoom(room) || hub.SubscriberCount(room) != 0 {
		t.Error("close left subscribers")
	}
}
