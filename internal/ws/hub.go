package ws

import (
	"log/slog"
	"sync"

	"relay-server/internal/relay"
)

// Publisher is the seam between a dispatched relay event and its delivery.
// The hub is the default, in-process implementation; a broker can stand in
// front of it to fan broadcasts out across relay instances.
type Publisher interface {
	Publish(bc relay.Broadcast) error
}

// Dispatcher turns an inbound mutation event into a broadcast.
type Dispatcher interface {
	Handles(kind string) bool
	Dispatch(kind string, data []byte) (relay.Broadcast, error)
}

type membership struct {
	client *Client
	room   string
}

// Hub owns every live connection and the room registry. Membership is
// mutated only by the Run loop; clients never touch it directly.
type Hub struct {
	// All connected clients, joined or not
	clients map[*Client]struct{}

	// Room key -> members
	rooms map[string]map[*Client]struct{}

	// Lock for thread-safe access
	mu sync.RWMutex

	// Register requests from new connections
	register chan *Client

	// Unregister requests from closing connections
	unregister chan *Client

	// Membership changes requested by clients
	join  chan membership
	leave chan membership

	// Broadcast delivers a dispatched frame to a room, or to every client
	// when the room is empty (exported for broker access)
	Broadcast chan relay.Broadcast

	// Gateway for inbound mutation events
	gateway Dispatcher

	// Where dispatched broadcasts go; defaults to the hub itself
	publisher Publisher
}

func NewHub(gateway Dispatcher) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan membership),
		leave:      make(chan membership),
		Broadcast:  make(chan relay.Broadcast),
		gateway:    gateway,
	}
	h.publisher = h
	return h
}

// UsePublisher routes dispatched broadcasts through p instead of delivering
// them locally. Must be called before Run starts.
func (h *Hub) UsePublisher(p Publisher) {
	h.publisher = p
}

// Publish delivers a broadcast to local room members.
func (h *Hub) Publish(bc relay.Broadcast) error {
	h.Broadcast <- bc
	return nil
}

func (h *Hub) Run() {
	slog.Info("[HUB] Starting hub event loop")
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case m := <-h.join:
			h.joinRoom(m.client, m.room)

		case m := <-h.leave:
			h.leaveRoom(m.client, m.room)

		case bc := <-h.Broadcast:
			h.deliver(bc)
		}
	}
}

// Join adds the client to the named room. An empty room key is a silent
// no-op; the client already computed the key from trusted app state, so the
// membership primitive stays permissive.
func (h *Hub) Join(client *Client, room string) {
	if room == "" {
		return
	}
	h.join <- membership{client: client, room: room}
}

// Leave removes the client from the named room under the same validity rule.
func (h *Hub) Leave(client *Client, room string) {
	if room == "" {
		return
	}
	h.leave <- membership{client: client, room: room}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
	slog.Info("[HUB] Client registered", "conn", client.id, "user", client.user, "clients", len(h.clients))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		// already dropped during a broadcast
		return
	}
	delete(h.clients, client)
	for room := range client.rooms {
		h.dropMembershipLocked(client, room)
	}
	close(client.send)
	slog.Info("[HUB] Client unregistered", "conn", client.id, "clients", len(h.clients))
}

func (h *Hub) joinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if h.rooms[room] == nil {
		slog.Debug("[HUB] Creating room", "room", room)
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
	slog.Debug("[HUB] Client joined room", "conn", client.id, "room", room, "members", len(h.rooms[room]))
}

func (h *Hub) leaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropMembershipLocked(client, room)
	delete(client.rooms, room)
	slog.Debug("[HUB] Client left room", "conn", client.id, "room", room)
}

// dropMembershipLocked removes the client from one room and deletes the room
// once it is empty. Caller holds h.mu.
func (h *Hub) dropMembershipLocked(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		slog.Debug("[HUB] Room empty, removing", "room", room)
		delete(h.rooms, room)
	}
}

func (h *Hub) deliver(bc relay.Broadcast) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets map[*Client]struct{}
	if bc.Room == "" {
		targets = h.clients
	} else {
		members, ok := h.rooms[bc.Room]
		if !ok {
			slog.Debug("[HUB] No clients in room", "room", bc.Room, "event", bc.Event)
			return
		}
		targets = members
	}

	sent := 0
	for client := range targets {
		select {
		case client.send <- bc.Frame:
			sent++
		default:
			// Client buffer full, disconnect
			slog.Warn("[HUB] Client buffer full, dropping", "conn", client.id)
			h.dropClientLocked(client)
		}
	}
	slog.Debug("[HUB] Broadcast delivered", "room", bc.Room, "event", bc.Event, "sent", sent)
}

// dropClientLocked force-removes a client whose send buffer overflowed.
// Caller holds h.mu. The client's pumps notice the closed channel and the
// later unregister becomes a no-op.
func (h *Hub) dropClientLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	for room := range client.rooms {
		h.dropMembershipLocked(client, room)
	}
	close(client.send)
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomMembers returns the connection ids currently joined to a room.
func (h *Hub) RoomMembers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		ids = append(ids, client.id)
	}
	return ids
}
