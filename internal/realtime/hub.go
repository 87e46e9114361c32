package realtime

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Baaaki/pharmsoc-messaging/internal/broker"
	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"go.uber.org/zap"
)

const (
	publishTimeout   = 2 * time.Second
	publishQueueSize = 1024
)

type outbound struct {
	userID    uint64
	eventType EventType
	payload   []byte
}

// RoomName is the room every connection of userID joins
func RoomName(userID uint64) string {
	return "user_" + strconv.FormatUint(userID, 10)
}

// Hub tracks the local connections of each user's room and delivers room events.
// With a broker, events go through it so rooms spanning several instances all
// receive them; without one, delivery is in-process.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uint64]map[*Client]struct{}
	broker broker.EventBroker
	outbox chan outbound
}

func NewHub(b broker.EventBroker) *Hub {
	h := &Hub{
		rooms:  make(map[uint64]map[*Client]struct{}),
		broker: b,
	}
	if b != nil {
		h.outbox = make(chan outbound, publishQueueSize)
	}
	return h
}

// Start subscribes to the broker and delivers its events to local rooms until ctx
// is done, and starts the publisher draining Emit's queue. It returns after the
// subscription is active.
func (h *Hub) Start(ctx context.Context) error {
	if h.broker == nil {
		return nil
	}

	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for env := range events {
			h.deliverLocal(env.UserID, env.Payload)
		}
		logger.Log.Info("Hub: broker subscription ended")
	}()
	go h.publishLoop(ctx)
	return nil
}

// publishLoop sends queued events to the broker one at a time, keeping their order
func (h *Hub) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-h.outbox:
			h.publish(out)
		}
	}
}

func (h *Hub) publish(out outbound) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := h.broker.Publish(ctx, out.userID, out.payload); err != nil {
		logger.Log.Warn("Hub: publish failed, delivering locally",
			zap.Uint64("user_id", out.userID),
			zap.String("type", string(out.eventType)),
			zap.Error(err),
		)
		h.deliverLocal(out.userID, out.payload)
	}
}

// Register adds c to its user's room
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.UserID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.UserID] = room
	}
	room[c] = struct{}{}
}

// Unregister removes c and reports whether it was the user's last local connection
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.UserID]
	if !ok {
		return false
	}
	if _, member := room[c]; !member {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.UserID)
		return true
	}
	return false
}

// Connections returns the number of local connections in the user's room
func (h *Hub) Connections(userID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Emit sends an event to every connection of userID. It never blocks: with a
// broker the event is queued for publishing, and delivery problems are logged.
func (h *Hub) Emit(userID uint64, t EventType, data any) {
	payload, err := encodeEvent(t, data)
	if err != nil {
		logger.Log.Error("Hub: failed to encode event", zap.String("type", string(t)), zap.Error(err))
		return
	}

	if h.broker == nil {
		h.deliverLocal(userID, payload)
		return
	}

	select {
	case h.outbox <- outbound{userID: userID, eventType: t, payload: payload}:
	default:
		logger.Log.Warn("Hub: publish queue full, delivering locally",
			zap.Uint64("user_id", userID),
			zap.String("type", string(t)),
		)
		h.deliverLocal(userID, payload)
	}
}

func (h *Hub) deliverLocal(userID uint64, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[userID] {
		if !c.enqueue(payload) {
			logger.Log.Warn("Hub: dropping slow client",
				zap.Uint64("user_id", userID),
				zap.String("client_id", c.ID),
			)
			c.Close()
		}
	}
}
