package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"relay-server/internal/relay"
)

const (
	roomChannelPrefix = "room:"
	globalChannel     = "broadcast:all"
)

// envelope carries one broadcast across instances. Frame is the already
// marshaled wire frame; it is delivered to local sockets untouched.
type envelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Frame json.RawMessage `json:"frame"`
}

// Client routes broadcasts through Redis pub/sub so several relay instances
// share room traffic. It implements ws.Publisher.
type Client struct {
	rdb *redis.Client
	ctx context.Context
}

func NewClient(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	ctx := context.Background()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	slog.Info("[REDIS] Connected to Redis")

	return &Client{rdb: rdb, ctx: ctx}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Publish sends the broadcast envelope to the room's channel, or to the
// shared global channel for an unscoped broadcast. Delivery back to local
// sockets happens through the subscriber.
func (c *Client) Publish(bc relay.Broadcast) error {
	payload, err := json.Marshal(envelope{Room: bc.Room, Event: bc.Event, Frame: bc.Frame})
	if err != nil {
		slog.Error("[REDIS] Failed to marshal envelope", "event", bc.Event, "room", bc.Room, "error", err)
		return err
	}

	channel := globalChannel
	if bc.Room != "" {
		channel = roomChannelPrefix + bc.Room
	}

	if err := c.rdb.Publish(c.ctx, channel, payload).Err(); err != nil {
		slog.Error("[REDIS] Failed to publish broadcast", "event", bc.Event, "channel", channel, "error", err)
		return err
	}

	return nil
}
