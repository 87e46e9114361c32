package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/broker"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

func nextEvent(t *testing.T, c *Client) receivedEvent {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "client closed while waiting for an event")
		var ev receivedEvent
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return receivedEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func decode[T any](t *testing.T, ev receivedEvent) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ev.Data, &out))
	return out
}

func TestRoomName(t *testing.T) {
	assert.Equal(t, "user_12", RoomName(12))
}

func TestHub_EmitFansOutToAllConnectionsOfUser(t *testing.T) {
	hub := NewHub(nil)
	tab1 := NewClient(nil, 1, "Alice")
	tab2 := NewClient(nil, 1, "Alice")
	other := NewClient(nil, 2, "Bob")
	hub.Register(tab1)
	hub.Register(tab2)
	hub.Register(other)

	hub.Emit(1, EventConversationDeleted, ConversationDeletedPayload{UserID: 2})

	for _, c := range []*Client{tab1, tab2} {
		ev := nextEvent(t, c)
		assert.Equal(t, EventConversationDeleted, ev.Type)
		assert.Equal(t, uint64(2), decode[ConversationDeletedPayload](t, ev).UserID)
	}
	assertNoEvent(t, other)
}

func TestHub_UnregisterReportsLastConnection(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient(nil, 1, "A")
	b := NewClient(nil, 1, "A")
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.Connections(1))

	assert.False(t, hub.Unregister(a))
	assert.False(t, hub.Unregister(a), "double unregister is a no-op")
	assert.True(t, hub.Unregister(b))
	assert.Zero(t, hub.Connections(1))
}

func TestHub_EmitToEmptyRoomIsHarmless(t *testing.T) {
	hub := NewHub(nil)
	assert.NotPanics(t, func() {
		hub.Emit(99, EventTypingStopped, TypingPayload{UserID: 1})
	})
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := NewHub(nil)
	slow := NewClient(nil, 1, "Slow")
	hub.Register(slow)

	for i := 0; i < sendBufferSize+1; i++ {
		hub.Emit(1, EventTypingStarted, TypingPayload{UserID: 2})
	}

	slow.mu.Lock()
	closed := slow.closed
	slow.mu.Unlock()
	assert.True(t, closed)

	// Further emits to a closed client must not panic
	assert.NotPanics(t, func() { hub.Emit(1, EventTypingStopped, TypingPayload{UserID: 2}) })
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c := NewClient(nil, 1, "A")
	c.Close()
	assert.NotPanics(t, c.Close)
	assert.NotPanics(t, func() { c.Send(EventJoined, JoinedPayload{Room: "user_1"}) })
}

func TestClient_ExpireSendsSessionExpired(t *testing.T) {
	c := NewClient(nil, 1, "A")
	c.Expire("session expired")

	ev := nextEvent(t, c)
	assert.Equal(t, EventSessionExpired, ev.Type)
	_, ok := <-c.send
	assert.False(t, ok)
}

func TestHub_DeliversThroughRedisBroker(t *testing.T) {
	server := miniredis.RunT(t)
	b, err := broker.NewRedisEventBroker("redis://" + server.Addr())
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(b)
	require.NoError(t, hub.Start(ctx))

	c := NewClient(nil, 5, "E")
	hub.Register(c)

	hub.Emit(5, EventMessageDeleted, MessageDeletedPayload{MessageID: 10, UserID: 6})

	ev := nextEvent(t, c)
	assert.Equal(t, EventMessageDeleted, ev.Type)
	p := decode[MessageDeletedPayload](t, ev)
	assert.Equal(t, uint64(10), p.MessageID)
	assert.Equal(t, uint64(6), p.UserID)
}

func TestHub_TwoInstancesShareRooms(t *testing.T) {
	server := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newInstance := func() *Hub {
		b, err := broker.NewRedisEventBroker("redis://" + server.Addr())
		require.NoError(t, err)
		t.Cleanup(func() { b.Close() })
		h := NewHub(b)
		require.NoError(t, h.Start(ctx))
		return h
	}
	first, second := newInstance(), newInstance()

	onSecond := NewClient(nil, 3, "C")
	second.Register(onSecond)

	first.Emit(3, EventTypingStarted, TypingPayload{UserID: 4, UserName: "D"})

	ev := nextEvent(t, onSecond)
	assert.Equal(t, EventTypingStarted, ev.Type)
	assert.Equal(t, "D", decode[TypingPayload](t, ev).UserName)
}

// gatedBroker holds every Publish until release is closed
type gatedBroker struct {
	release   chan struct{}
	published chan broker.Envelope
}

func (g *gatedBroker) Publish(ctx context.Context, userID uint64, payload []byte) error {
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.published <- broker.Envelope{UserID: userID, Payload: payload}
	return nil
}

func (g *gatedBroker) Subscribe(ctx context.Context) (<-chan broker.Envelope, error) {
	ch := make(chan broker.Envelope)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (g *gatedBroker) Close() error { return nil }

func TestHub_EmitDoesNotWaitForBroker(t *testing.T) {
	gb := &gatedBroker{release: make(chan struct{}), published: make(chan broker.Envelope, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(gb)
	require.NoError(t, hub.Start(ctx))

	start := time.Now()
	hub.Emit(7, EventTypingStopped, TypingPayload{UserID: 8})
	hub.Emit(7, EventNewMessage, MessagePayload{ID: 1})
	hub.Emit(7, EventMessageDeleted, MessageDeletedPayload{MessageID: 1, UserID: 8})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(gb.release)

	var got []EventType
	for i := 0; i < 3; i++ {
		select {
		case env := <-gb.published:
			assert.Equal(t, uint64(7), env.UserID)
			var ev receivedEvent
			require.NoError(t, json.Unmarshal(env.Payload, &ev))
			got = append(got, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for publish")
		}
	}
	assert.Equal(t, []EventType{EventTypingStopped, EventNewMessage, EventMessageDeleted}, got)
}
