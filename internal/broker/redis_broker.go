package broker

import (
	"context"
	"strconv"
	"strings"

	"github.com/Baaaki/pharmsoc-messaging/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "dm:user:"
	channelPattern = channelPrefix + "*"
)

// RedisEventBroker implements EventBroker with one Redis pub/sub channel per user
type RedisEventBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
}

func NewRedisEventBroker(redisURL string) (*RedisEventBroker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisEventBroker{client: client}, nil
}

// Client exposes the underlying connection so other Redis users can share it
func (r *RedisEventBroker) Client() *redis.Client {
	return r.client
}

func channelFor(userID uint64) string {
	return channelPrefix + strconv.FormatUint(userID, 10)
}

func (r *RedisEventBroker) Publish(ctx context.Context, userID uint64, payload []byte) error {
	return r.client.Publish(ctx, channelFor(userID), payload).Err()
}

func (r *RedisEventBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	r.pubsub = r.client.PSubscribe(ctx, channelPattern)

	// Wait for the subscription confirmation so no publish after return is missed
	if _, err := r.pubsub.Receive(ctx); err != nil {
		r.pubsub.Close()
		return nil, err
	}

	out := make(chan Envelope, 256)
	in := r.pubsub.Channel()

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				userID, err := strconv.ParseUint(strings.TrimPrefix(msg.Channel, channelPrefix), 10, 64)
				if err != nil {
					logger.Log.Warn("Broker: ignoring message on unexpected channel",
						zap.String("channel", msg.Channel),
					)
					continue
				}
				select {
				case out <- Envelope{UserID: userID, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *RedisEventBroker) Close() error {
	if r.pubsub != nil {
		r.pubsub.Close()
	}
	return r.client.Close()
}
