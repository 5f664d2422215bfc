package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNewMessageType(t *testing.T) {
	msg := NewMessage("backup", "completed", 7)
	if msg.Type != "backup_completed" {
		t.Errorf("Type = %q, want backup_completed", msg.Type)
	}
	if msg.Entity != "backup" || msg.Action != "completed" || msg.ID != 7 {
		t.Errorf("unexpected message fields: %+v", msg)
	}
}

func TestBroadcastDelivers(t *testing.T) {
	hub := NewHub(testLogger())

	c := &Client{hub: hub, send: make(chan []byte, sendBufferSize), logger: testLogger()}
	hub.Register(c)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("ClientCount = %d, want 1", got)
	}

	msg := NewMessage("restore", "progress", 3)
	msg.Progress = 60
	msg.Step = "Restoring data"
	hub.Broadcast(msg)

	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if got.Type != "restore_progress" || got.Progress != 60 {
			t.Errorf("got %+v", got)
		}
	default:
		t.Fatal("no message delivered to client")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(testLogger())

	c := &Client{hub: hub, send: make(chan []byte, 1), logger: testLogger()}
	hub.Register(c)

	hub.Broadcast(NewMessage("backup", "progress", 1))
	// Buffer is full now; this must not block.
	hub.Broadcast(NewMessage("backup", "progress", 2))

	if len(c.send) != 1 {
		t.Errorf("send buffer len = %d, want 1", len(c.send))
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	hub := NewHub(testLogger())

	c := &Client{hub: hub, send: make(chan []byte, 1), logger: testLogger()}
	hub.Register(c)
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel not closed")
	}
	// Double unregister must be a no-op.
	hub.Unregister(c)
}
