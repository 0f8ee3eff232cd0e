package realtime

import (
	"context"
)

// Message is a frame for the members of one session, or for one client
// when Client is set.
type Message struct {
	Session string
	Client  *Client
	Data    []byte
}

// Hub owns the clients of every session served by this relay instance and
// their send channels. Clients that cannot keep up are dropped.
type Hub struct {
	rooms map[string]map[*Client]bool

	broadcast  chan Message
	direct     chan Message
	register   chan *Client
	unregister chan *Client

	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan Message),
		direct:     make(chan Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		for _, room := range h.rooms {
			for client := range room {
				h.drop(client)
			}
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case client := <-h.register:
			room, ok := h.rooms[client.session]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.session] = room
			}
			room[client] = true

		case client := <-h.unregister:
			if h.rooms[client.session][client] {
				h.drop(client)
			}

		case msg := <-h.direct:
			if h.rooms[msg.Client.session][msg.Client] {
				h.deliver(msg.Client, msg.Data)
			}

		case msg := <-h.broadcast:
			for client := range h.rooms[msg.Session] {
				h.deliver(client, msg.Data)
			}
		}
	}
}

func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		client.logger.Warn().Msg("client too slow, dropping")
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	room := h.rooms[client.session]
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.session)
	}
	close(client.send)
	_ = client.conn.Close()
}

func (h *Hub) post(ch chan Message, msg Message) bool {
	select {
	case ch <- msg:
		return true
	case <-h.done:
		return false
	}
}

// Broadcast sends data to every member of session on this instance.
func (h *Hub) Broadcast(session string, data []byte) bool {
	return h.post(h.broadcast, Message{Session: session, Data: data})
}

// SendTo sends data to one client, if it is still registered.
func (h *Hub) SendTo(client *Client, data []byte) bool {
	return h.post(h.direct, Message{Client: client, Data: data})
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
