package broker

import (
	"log/slog"

	"github.com/goccy/go-json"

	"relay-server/internal/relay"
	"relay-server/internal/ws"
)

// SubscribeToBroadcasts listens for broadcast envelopes published by any
// relay instance (this one included) and feeds them into the local hub.
func SubscribeToBroadcasts(client *Client, hub *ws.Hub) {
	slog.Info("[REDIS] Starting pub/sub subscription")

	pubsub := client.rdb.PSubscribe(client.ctx, roomChannelPrefix+"*", globalChannel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(client.ctx); err != nil {
		slog.Error("[REDIS] Failed to receive subscription confirmation", "error", err)
		return
	}

	slog.Info("[REDIS] Subscription confirmed, listening for broadcasts")

	ch := pubsub.Channel()

	for msg := range ch {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			slog.Error("[REDIS] Error unmarshaling envelope", "channel", msg.Channel, "error", err)
			continue
		}

		hub.Broadcast <- relay.Broadcast{
			Room:  env.Room,
			Event: env.Event,
			Frame: env.Frame,
		}
	}

	slog.Info("[REDIS] Pub/sub channel closed")
}
