package stream

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Hub fans tracking deltas out to every observer of a booking. Each
// subscriber gets its own buffered channel; a slow or dead subscriber drops
// messages instead of blocking the rest. Redis pubsub bridges deltas across
// instances so a subscriber can be connected anywhere.
type Hub struct {
	id      string
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

// envelope wraps deltas on the redis wire so an instance can skip its own
// echo and not deliver twice.
type envelope struct {
	Src  string          `json:"src"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	BookingID string
	Send      chan []byte
	closed    bool
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		id:      uuid.NewString(),
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(bookingID string) *Client {
	client := &Client{
		BookingID: bookingID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[bookingID] == nil {
		h.clients[bookingID] = map[*Client]struct{}{}
	}
	h.clients[bookingID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if bookingClients, ok := h.clients[client.BookingID]; ok {
		delete(bookingClients, client)
		if len(bookingClients) == 0 {
			delete(h.clients, client.BookingID)
		}
	}
	h.closeLocked(client)
}

// Publish fans a delta out locally and over redis. Never blocks on a
// subscriber.
func (h *Hub) Publish(bookingID string, payload []byte) {
	h.fanOut(bookingID, payload)

	if h.redis != nil {
		wrapped, err := json.Marshal(envelope{Src: h.id, Data: payload})
		if err != nil {
			log.Printf("stream: envelope marshal: %v", err)
			return
		}
		if err := h.redis.Publish(context.Background(), redisChannel(bookingID), wrapped).Err(); err != nil {
			log.Printf("stream: redis publish: %v", err)
		}
	}
}

// CloseSession closes every open channel for a booking; called when its
// tracking session stops.
func (h *Hub) CloseSession(bookingID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[bookingID] {
		h.closeLocked(client)
	}
	delete(h.clients, bookingID)
}

func (h *Hub) fanOut(bookingID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[bookingID] {
		if client.closed {
			continue
		}
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) closeLocked(client *Client) {
	if !client.closed {
		client.closed = true
		close(client.Send)
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "tracking:*:updates")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("stream: envelope unmarshal: %v", err)
			continue
		}
		if env.Src == h.id {
			continue
		}
		h.fanOut(bookingIDFromChannel(msg.Channel), env.Data)
	}
}

func redisChannel(bookingID string) string {
	return "tracking:" + bookingID + ":updates"
}

func bookingIDFromChannel(ch string) string {
	// tracking:{booking}:updates
	trimmed := strings.TrimPrefix(ch, "tracking:")
	trimmed = strings.TrimSuffix(trimmed, ":updates")
	if trimmed == ch {
		return ""
	}
	return trimmed
}
