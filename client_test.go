package main

import (
	"sync"
	"testing"
)

// The coordinator binds rooms from its own goroutine while the read pump
// keeps resolving the client's room for input routing. Run under -race.
func TestBindRoomConcurrentWithInput(t *testing.T) {
	hub := newBareHub(t)
	c := NewClient(hub, nil, "10.0.0.1")
	c.setIdentity("alice", "tank")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.BindRoom("room-1")
		}
	}()
	for i := 0; i < 200; i++ {
		c.room()
		c.sessionState()
	}
	wg.Wait()

	if _, roomID := c.sessionState(); roomID != "room-1" {
		t.Errorf("expected bound room to stick, got %q", roomID)
	}
}

func TestSessionStateSnapshot(t *testing.T) {
	hub := newBareHub(t)
	c := NewClient(hub, nil, "10.0.0.1")

	if username, roomID := c.sessionState(); username != "" || roomID != "" {
		t.Errorf("fresh client should be unbound, got %q %q", username, roomID)
	}
	c.setIdentity("alice", "tank")
	c.BindRoom("room-9")
	if username, roomID := c.sessionState(); username != "alice" || roomID != "room-9" {
		t.Errorf("snapshot mismatch: %q %q", username, roomID)
	}
}
