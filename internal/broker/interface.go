package broker

import "context"

// Envelope is one serialized event addressed to a user's room
type Envelope struct {
	UserID  uint64
	Payload []byte
}

// EventBroker fans room events out across server instances. Every instance
// publishes, and every instance receives all events and delivers the ones whose
// room has local connections.
type EventBroker interface {
	Publish(ctx context.Context, userID uint64, payload []byte) error
	// Subscribe returns once the subscription is active. The channel closes when
	// ctx is done or the broker is closed.
	Subscribe(ctx context.Context) (<-chan Envelope, error)
	Close() error
}
