package ws

import (
	"testing"
	"time"

	"relay-server/internal/relay"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(relay.NewGateway())
	go hub.Run()
	return hub
}

func newTestClient(id string) *Client {
	return &Client{
		send:  make(chan []byte, 4),
		id:    id,
		rooms: make(map[string]struct{}),
	}
}

// awaitDelivery blocks until every previously queued hub operation has been
// processed: the run loop only picks this broadcast up after finishing the
// work queued before it, and delivery to a room nobody joined is a no-op.
func awaitDelivery(h *Hub) {
	h.Broadcast <- relay.Broadcast{Room: "barrier:none", Event: "noop"}
}

func recvFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return nil
}

func assertNoFrame(t *testing.T, h *Hub, c *Client) {
	t.Helper()
	awaitDelivery(h)
	if n := len(c.send); n != 0 {
		t.Fatalf("client %s has %d buffered frame(s), want none", c.id, n)
	}
}

func broadcast(h *Hub, room, event string) {
	h.Broadcast <- relay.Broadcast{Room: room, Event: event, Frame: []byte(`{"type":"` + event + `"}`)}
}

func TestHub_JoinAndBroadcast(t *testing.T) {
	hub := newTestHub(t)

	a := newTestClient("a")
	b := newTestClient("b")
	bystander := newTestClient("bystander")
	for _, c := range []*Client{a, b, bystander} {
		hub.register <- c
	}

	hub.Join(a, "question:42")
	hub.Join(b, "question:42")

	broadcast(hub, "question:42", "answer:created")

	recvFrame(t, a)
	recvFrame(t, b)
	assertNoFrame(t, hub, bystander)
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub := newTestHub(t)

	a := newTestClient("a")
	hub.register <- a
	hub.Join(a, "snippet:5")

	broadcast(hub, "snippet:5", "comment:created")
	recvFrame(t, a)

	hub.Leave(a, "snippet:5")
	broadcast(hub, "snippet:5", "comment:updated")
	assertNoFrame(t, hub, a)

	hub.Join(a, "snippet:5")
	broadcast(hub, "snippet:5", "comment:deleted")
	recvFrame(t, a)
}

func TestHub_UnregisterDropsAllMemberships(t *testing.T) {
	hub := newTestHub(t)

	a := newTestClient("a")
	b := newTestClient("b")
	hub.register <- a
	hub.register <- b

	hub.Join(a, "question:1")
	hub.Join(a, "snippet:2")
	hub.Join(b, "question:1")

	hub.unregister <- a

	broadcast(hub, "question:1", "answer:created")
	broadcast(hub, "snippet:2", "comment:created")

	recvFrame(t, b)
	awaitDelivery(hub)

	// a's channel must be closed with nothing delivered after unregister
	if frame, ok := <-a.send; ok {
		t.Fatalf("unregistered client received frame %s", frame)
	}
	if members := hub.RoomMembers("snippet:2"); len(members) != 0 {
		t.Fatalf("snippet:2 still has members %v", members)
	}
}

func TestHub_EmptyRoomKeyIgnored(t *testing.T) {
	hub := newTestHub(t)

	a := newTestClient("a")
	hub.register <- a

	hub.Join(a, "")
	hub.Leave(a, "")

	awaitDelivery(hub)
	if members := hub.RoomMembers(""); len(members) != 0 {
		t.Fatalf("empty room has members %v", members)
	}
}

func TestHub_BroadcastToUnknownRoomIsNoop(t *testing.T) {
	hub := newTestHub(t)

	a := newTestClient("a")
	hub.register <- a
	hub.Join(a, "question:1")

	broadcast(hub, "question:999", "answer:created")
	assertNoFrame(t, hub, a)
}

func TestHub_GlobalBroadcastReachesEveryone(t *testing.T) {
	hub := newTestHub(t)

	joined := newTestClient("joined")
	loner := newTestClient("loner")
	hub.register <- joined
	hub.register <- loner
	hub.Join(joined, "snippet:1")

	broadcast(hub, "", "comment:created")

	recvFrame(t, joined)
	recvFrame(t, loner)
}

func TestHub_FullBufferDropsClient(t *testing.T) {
	hub := newTestHub(t)

	stuck := &Client{
		send:  make(chan []byte), // nothing draining it
		id:    "stuck",
		rooms: make(map[string]struct{}),
	}
	healthy := newTestClient("healthy")
	hub.register <- stuck
	hub.register <- healthy
	hub.Join(stuck, "question:1")
	hub.Join(healthy, "question:1")

	broadcast(hub, "question:1", "answer:created")

	recvFrame(t, healthy)
	awaitDelivery(hub)

	if _, ok := <-stuck.send; ok {
		t.Fatal("dropped client's send channel still open")
	}
	if members := hub.RoomMembers("question:1"); len(members) != 1 {
		t.Fatalf("question:1 members = %v, want only the healthy client", members)
	}

	// a late unregister from the read pump must be a harmless no-op
	hub.unregister <- stuck
	awaitDelivery(hub)
}
