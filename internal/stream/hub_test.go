package stream

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestHubPublish(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("booking-1")
	defer hub.Unregister(client)

	payload := []byte(`{"booking_id":"booking-1"}`)
	hub.Publish("booking-1", payload)

	select {
	case msg := <-client.Send:
		if string(msg) != string(payload) {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for message")
	}
}

func TestFanOutIsolation(t *testing.T) {
	hub := NewHub(nil)
	healthy := hub.Register("booking-1")
	defer hub.Unregister(healthy)

	// slow subscriber: fill its buffer so further sends would block
	slow := hub.Register("booking-1")
	defer hub.Unregister(slow)
	for i := 0; i < cap(slow.Send); i++ {
		slow.Send <- []byte("backlog")
	}

	hub.Publish("booking-1", []byte("delta"))

	select {
	case msg := <-healthy.Send:
		if string(msg) != "delta" {
			t.Fatalf("unexpected message for healthy subscriber")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("slow subscriber delayed the healthy one")
	}
}

func TestUnregisterCloses(t *testing.T) {
	hub := NewHub(nil)
	client := hub.Register("booking-2")
	hub.Unregister(client)
	if _, ok := <-client.Send; ok {
		t.Fatalf("expected channel closed")
	}
	// double unregister is harmless
	hub.Unregister(client)
}

func TestCloseSessionClosesAllSubscribers(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Register("booking-3")
	b := hub.Register("booking-3")

	hub.CloseSession("booking-3")

	if _, ok := <-a.Send; ok {
		t.Fatalf("expected first subscriber closed")
	}
	if _, ok := <-b.Send; ok {
		t.Fatalf("expected second subscriber closed")
	}

	// unregister after session close must not panic
	hub.Unregister(a)

	// publish to a closed session is a no-op
	hub.Publish("booking-3", []byte("late"))
}

func TestHubHelpers(t *testing.T) {
	ch := redisChannel("abc")
	if ch != "tracking:abc:updates" {
		t.Fatalf("unexpected channel: %s", ch)
	}
	if bookingIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected booking id")
	}
	if bookingIDFromChannel("bad") != "" {
		t.Fatalf("expected empty booking id")
	}
}

func TestHubRedisBridge(t *testing.T) {
	s := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: s.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer clientA.Close()
	defer clientB.Close()

	hubA := NewHub(clientA)
	hubB := NewHub(clientB)

	local := hubA.Register("booking-r")
	defer hubA.Unregister(local)
	remote := hubB.Register("booking-r")
	defer hubB.Unregister(remote)

	time.Sleep(20 * time.Millisecond) // let subscriptions settle
	hubA.Publish("booking-r", []byte("ping"))

	select {
	case msg := <-local.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected local message")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for local delivery")
	}

	select {
	case msg := <-remote.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected bridged message")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for bridged delivery")
	}

	// the publishing hub must not receive its own echo as a duplicate
	select {
	case <-local.Send:
		t.Fatalf("publisher received duplicate via redis echo")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubRedisPublishError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	server.Close()
	defer client.Close()

	hub := NewHub(client)
	sub := hub.Register("booking-bad")
	defer hub.Unregister(sub)

	// redis down: local delivery still works, error only logged
	hub.Publish("booking-bad", []byte("ping"))
	select {
	case msg := <-sub.Send:
		if string(msg) != "ping" {
			t.Fatalf("unexpected message")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("local delivery should survive redis failure")
	}
}
