package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "auction:room:"

// Redis fans events out over Redis pub/sub, one channel per room
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Publish(ctx context.Context, ev RoomEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal room event: %w", err)
	}
	if err := r.client.Publish(ctx, channelPrefix+ev.RoomID.String(), payload).Err(); err != nil {
		return fmt.Errorf("publish room event: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, h Handler) error {
	pubsub := r.client.PSubscribe(ctx, channelPrefix+"*")
	// wait for the subscription confirmation so no event published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to room events: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev RoomEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Warn("Fanout: dropping malformed room event",
						zap.String("channel", msg.Channel),
						zap.Error(err),
					)
					continue
				}
				if ev.RoomID.String() != strings.TrimPrefix(msg.Channel, channelPrefix) {
					log.Warn("Fanout: room event on foreign channel", zap.String("channel", msg.Channel))
					continue
				}
				h(ev)
			}
		}
	}()
	return nil
}

var _ Fanout = (*Redis)(nil)
