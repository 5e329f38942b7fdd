package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, familyID string) *Client {
	return &Client{
		hub:      hub,
		conn:     nil,
		familyID: familyID,
		send:     make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "fam-1")
	c2 := mockClient(hub, "fam-1")

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "fam-1")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "fam-1")
	c2 := mockClient(hub, "fam-1")
	hub.Register(c1)
	hub.Register(c2)

	msg := NewMessage("expense", "created", "e-42", "fam-1", map[string]any{"amount": 90.0})
	hub.Broadcast(msg)

	// Check both clients received the message
	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "expense_created" {
				t.Errorf("expected type expense_created, got %s", got.Type)
			}
			if got.Entity != "expense" {
				t.Errorf("expected entity expense, got %s", got.Entity)
			}
			if got.ID != "e-42" {
				t.Errorf("expected id e-42, got %s", got.ID)
			}
			if got.FamilyID != "fam-1" {
				t.Errorf("expected family fam-1, got %s", got.FamilyID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestBroadcastFamilyIsolation(t *testing.T) {
	hub := NewHub(slog.Default())

	watcher := mockClient(hub, "fam-1")
	outsider := mockClient(hub, "fam-2")
	hub.Register(watcher)
	hub.Register(outsider)

	hub.Broadcast(NewMessage("payment", "confirmed", "p-1", "fam-1", nil))

	select {
	case <-watcher.send:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message on watching client")
	}

	select {
	case <-outsider.send:
		t.Fatal("client watching another family received the message")
	default:
	}

	if got := hub.FamilyClientCount("fam-1"); got != 1 {
		t.Errorf("fam-1 clients = %d, want 1", got)
	}
	if got := hub.FamilyClientCount("fam-2"); got != 1 {
		t.Errorf("fam-2 clients = %d, want 1", got)
	}

	hub.Unregister(watcher)
	hub.Unregister(outsider)
}

func TestBroadcastWithoutFamilyReachesEveryone(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "fam-1")
	c2 := mockClient(hub, "fam-2")
	hub.Register(c1)
	hub.Register(c2)

	hub.Broadcast(Message{Type: "backup_status", Entity: "backup", Action: "running"})

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "backup_status" {
				t.Errorf("expected type backup_status, got %s", got.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for global message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	msg := NewMessage("payment", "rejected", "p-1", "fam-1", nil)
	hub.Broadcast(msg)
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, "fam-1")
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("expense", "created", "e-fill", "fam-1", nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("expense", "created", "e-dropped", "fam-1", nil))

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("member", "updated", "m-5", "fam-1", nil)
	if msg.Type != "member_updated" {
		t.Errorf("expected type member_updated, got %s", msg.Type)
	}
	if msg.Entity != "member" {
		t.Errorf("expected entity member, got %s", msg.Entity)
	}
	if msg.Action != "updated" {
		t.Errorf("expected action updated, got %s", msg.Action)
	}
	if msg.ID != "m-5" {
		t.Errorf("expected id m-5, got %s", msg.ID)
	}
	if msg.FamilyID != "fam-1" {
		t.Errorf("expected family fam-1, got %s", msg.FamilyID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	// Spawn goroutines that register, broadcast, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, "fam-1")
			hub.Register(c)
			hub.Broadcast(NewMessage("expense", "created", "e-c", "fam-1", nil))
			// Drain any messages
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
