package main

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// mockConn is a locally attached connection for coordinator tests.
type mockConn struct {
	mockClient
	id     string
	roomID string
}

func (c *mockConn) ConnID() string         { return c.id }
func (c *mockConn) BindRoom(roomID string) { c.roomID = roomID }

type mockDirectory struct {
	conns map[string]*mockConn
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{conns: make(map[string]*mockConn)}
}

func (d *mockDirectory) attach(id string) *mockConn {
	c := &mockConn{id: id}
	d.conns[id] = c
	return c
}

func (d *mockDirectory) Conn(id string) PlayerConn {
	if c, ok := d.conns[id]; ok {
		return c
	}
	return nil
}

func (d *mockDirectory) ConnIDs() []string {
	ids := make([]string, 0, len(d.conns))
	for id := range d.conns {
		ids = append(ids, id)
	}
	return ids
}

func newTestMatchmaker(t *testing.T, dir *mockDirectory) (*Matchmaker, *SharedStore, *RoomRegistry) {
	t.Helper()
	store := newTestStore(t)
	rooms := NewRoomRegistry(NewGrid(), &mockRewards{})
	tickets := NewTicketIssuer(store)
	mm := NewMatchmaker(store, store, tickets, rooms, dir, NewGrid(), "node-a", "ws://node-a:8080")
	return mm, store, rooms
}

func TestReconcileBelowMinimumBroadcastsSearching(t *testing.T) {
	dir := newMockDirectory()
	conn := dir.attach("c1")
	mm, _, _ := newTestMatchmaker(t, dir)

	mm.Enqueue("alice", "tank", "c1")
	mm.Reconcile()

	status := conn.envelopes(MsgMatchStatus)
	if len(status) != 1 {
		t.Fatalf("expected one status message, got %d", len(status))
	}
	msg := status[0].Data.(MatchStatusMsg)
	if msg.Status != StatusSearching || msg.QueueSize != 1 {
		t.Errorf("unexpected status %+v", msg)
	}
	if mm.phase != phaseSearching {
		t.Errorf("expected searching phase, got %v", mm.phase)
	}
}

func TestReconcileDedupesByIdentity(t *testing.T) {
	dir := newMockDirectory()
	dir.attach("c1")
	dir.attach("c2")
	mm, _, _ := newTestMatchmaker(t, dir)

	// The same account queued from two connections counts once, so the
	// countdown must not start.
	mm.Enqueue("alice", "tank", "c1")
	mm.Enqueue("alice", "tank", "c2")
	mm.Reconcile()

	if mm.phase != phaseSearching {
		t.Errorf("duplicate identity should not reach the countdown, phase=%v", mm.phase)
	}
}

func TestCountdownDecrementsEachCycle(t *testing.T) {
	dir := newMockDirectory()
	c1 := dir.attach("c1")
	dir.attach("c2")
	mm, _, _ := newTestMatchmaker(t, dir)

	mm.Enqueue("alice", "tank", "c1")
	mm.Enqueue("bob", "tank", "c2")

	mm.Reconcile()
	if mm.phase != phaseCountdown || mm.remaining != CountdownSeconds {
		t.Fatalf("expected fresh countdown, phase=%v remaining=%d", mm.phase, mm.remaining)
	}
	mm.Reconcile()
	if mm.remaining != CountdownSeconds-1 {
		t.Errorf("expected %d remaining, got %d", CountdownSeconds-1, mm.remaining)
	}

	status := c1.envelopes(MsgMatchStatus)
	if len(status) != 2 {
		t.Fatalf("expected 2 status messages, got %d", len(status))
	}
	last := status[1].Data.(MatchStatusMsg)
	if last.Status != StatusCountdown || last.Countdown != CountdownSeconds-1 {
		t.Errorf("unexpected countdown status %+v", last)
	}
}

func TestCountdownResetsWhenQueueChanges(t *testing.T) {
	dir := newMockDirectory()
	dir.attach("c1")
	dir.attach("c2")
	dir.attach("c3")
	mm, _, _ := newTestMatchmaker(t, dir)

	mm.Enqueue("alice", "tank", "c1")
	mm.Enqueue("bob", "tank", "c2")
	mm.Reconcile()
	mm.Reconcile()
	mm.Reconcile()
	if mm.remaining != CountdownSeconds-2 {
		t.Fatalf("expected countdown to have ticked down, remaining=%d", mm.remaining)
	}

	// A third player joining restarts the countdown from the top.
	mm.Enqueue("carol", "tank", "c3")
	mm.Reconcile()
	if mm.remaining != CountdownSeconds {
		t.Errorf("join should reset the countdown, remaining=%d", mm.remaining)
	}

	// A player leaving mid-countdown resets it too.
	mm.Reconcile()
	mm.Dequeue("c3")
	mm.Reconcile()
	if mm.remaining != CountdownSeconds {
		t.Errorf("leave should reset the countdown, remaining=%d", mm.remaining)
	}
}

func TestCountdownFallsBackToSearching(t *testing.T) {
	dir := newMockDirectory()
	dir.attach("c1")
	dir.attach("c2")
	mm, _, _ := newTestMatchmaker(t, dir)

	mm.Enqueue("alice", "tank", "c1")
	mm.Enqueue("bob", "tank", "c2")
	mm.Reconcile()
	if mm.phase != phaseCountdown {
		t.Fatal("countdown should have started")
	}

	mm.Dequeue("c2")
	mm.Reconcile()
	if mm.phase != phaseSearching {
		t.Errorf("dropping below the minimum should fall back to searching, phase=%v", mm.phase)
	}
}

func TestDequeuedIdentityNeverMatched(t *testing.T) {
	defer func(v int) { CountdownSeconds = v }(CountdownSeconds)
	CountdownSeconds = 1

	dir := newMockDirectory()
	dir.attach("c1")
	dir.attach("c2")
	c3 := dir.attach("c3")
	mm, _, rooms := newTestMatchmaker(t, dir)

	mm.Enqueue("alice", "tank", "c1")
	mm.Enqueue("bob", "tank", "c2")
	mm.Enqueue("carol", "tank", "c3")
	mm.Dequeue("c3")

	mm.Reconcile() // countdown = 1
	mm.Reconcile() // assemble

	if rooms.RoomCount() != 1 {
		t.Fatalf("expected one room, got %d", rooms.RoomCount())
	}
	if len(c3.envelopes(MsgMatchFound)) != 0 {
		t.Error("a dequeued player must never be matched")
	}
}

func TestAssemblePlacesLocalPlayers(t *testing.T) {
	defer func(v int) { CountdownSeconds = v }(CountdownSeconds)
	CountdownSeconds = 1

	dir := newMockDirectory()
	c1 := dir.attach("c1")
	c2 := dir.attach("c2")
	mm, store, rooms := newTestMatchmaker(t, dir)

	mm.Enqueue("alice", "tank", "c1")
	mm.Enqueue("bob", "tank1", "c2")

	mm.Reconcile() // countdown = 1
	mm.Reconcile() // assemble

	if rooms.RoomCount() != 1 {
		t.Fatalf("expected one room, got %d", rooms.RoomCount())
	}
	room := rooms.GetRoom(c1.roomID)
	if room == nil {
		t.Fatal("conn not bound to the created room")
	}
	if room.PlayerCount() != 2 || !room.HasPlayer("alice") || !room.HasPlayer("bob") {
		t.Errorf("room should hold both players, count=%d", room.PlayerCount())
	}
	if c2.roomID != room.ID {
		t.Error("second conn bound to a different room")
	}

	for _, c := range []*mockConn{c1, c2} {
		found := c.envelopes(MsgMatchFound)
		if len(found) != 1 {
			t.Fatalf("%s: expected one match_found, got %d", c.id, len(found))
		}
		msg := found[0].Data.(MatchFoundMsg)
		if msg.RoomID != room.ID || msg.RedirectURL != "" {
			t.Errorf("%s: unexpected match_found %+v", c.id, msg)
		}
		if len(c.envelopes(MsgJoinSuccess)) != 1 {
			t.Errorf("%s: missing join_success", c.id)
		}
	}

	// The matched identities are gone from the shared queue.
	entries, _ := store.Entries()
	if len(entries) != 0 {
		t.Errorf("queue should be empty after the match, got %+v", entries)
	}

	// The next cycle goes back to idle instead of matching again.
	mm.Reconcile()
	if rooms.RoomCount() != 1 {
		t.Errorf("expected no further rooms, got %d", rooms.RoomCount())
	}
}

func TestAssembleYieldsWhenQueueTakenElsewhere(t *testing.T) {
	dir := newMockDirectory()
	c1 := dir.attach("c1")
	c2 := dir.attach("c2")
	mm, _, rooms := newTestMatchmaker(t, dir)

	// Both countdowns expired at once and the competing node's DELETE
	// landed first: the shared queue no longer holds these identities.
	mm.assemble([]QueueEntry{
		{Username: "alice", Skin: "tank", ConnID: "c1"},
		{Username: "bob", Skin: "tank", ConnID: "c2"},
	})

	if rooms.RoomCount() != 0 {
		t.Fatalf("loser of the queue race must not build a room, got %d", rooms.RoomCount())
	}
	for _, c := range []*mockConn{c1, c2} {
		if len(c.envelopes(MsgMatchFound)) != 0 {
			t.Errorf("%s: match_found sent for a match this node never owned", c.id)
		}
	}
}

func TestAssemblePlacesOnlyIdentitiesItTook(t *testing.T) {
	dir := newMockDirectory()
	c1 := dir.attach("c1")
	c2 := dir.attach("c2")
	mm, store, rooms := newTestMatchmaker(t, dir)

	// alice's row was already taken by another node; only bob's remains.
	store.Push(queueEntry("bob", "c2"))

	mm.assemble([]QueueEntry{
		{Username: "alice", Skin: "tank", ConnID: "c1"},
		{Username: "bob", Skin: "tank", ConnID: "c2"},
	})

	if rooms.RoomCount() != 1 {
		t.Fatalf("expected one room for the identities this node took, got %d", rooms.RoomCount())
	}
	room := rooms.GetRoom(c2.roomID)
	if room == nil || !room.HasPlayer("bob") {
		t.Fatal("bob should be placed in the room")
	}
	if room.HasPlayer("alice") {
		t.Error("alice belongs to the other node's match")
	}
	if len(c1.envelopes(MsgMatchFound)) != 0 {
		t.Error("alice's conn must not hear about this node's match")
	}
}

func TestAssembleReservesRemotePlayers(t *testing.T) {
	defer func(v int) { CountdownSeconds = v }(CountdownSeconds)
	CountdownSeconds = 1

	dir := newMockDirectory()
	dir.attach("c1")
	mm, store, rooms := newTestMatchmaker(t, dir)

	// bob queued from another node: his connection is not in our
	// directory, so he gets a redirect instead of a placement.
	mm.Enqueue("alice", "tank", "c1")
	store.Push(queueEntry("bob", "remote-conn"))

	mm.Reconcile()
	mm.Reconcile()

	if rooms.RoomCount() != 1 {
		t.Fatalf("expected one room, got %d", rooms.RoomCount())
	}
	var room *Room
	for _, id := range dir.ConnIDs() {
		if r := rooms.GetRoom(dir.conns[id].roomID); r != nil {
			room = r
		}
	}
	if room == nil {
		t.Fatal("local player not placed")
	}
	if !room.HasPlayer("bob") {
		t.Error("remote identity should hold a reserved slot")
	}

	// The redirect waits in the mailbox for whichever node holds the conn.
	redirects, err := store.DrainRedirects([]string{"remote-conn"})
	if err != nil || len(redirects) != 1 {
		t.Fatalf("expected one pending redirect, got %v err=%v", redirects, err)
	}

	// The reserved slot is claimable by identity with a fresh conn id.
	if !room.Rekey("bob", "fresh-conn", &mockClient{}) {
		t.Error("reserved slot should be claimable")
	}
}

func TestDeliverRedirectsForwardsToLocalConn(t *testing.T) {
	dir := newMockDirectory()
	conn := dir.attach("c9")
	mm, store, _ := newTestMatchmaker(t, dir)

	payload, err := msgpack.Marshal(MatchFoundMsg{RoomID: "room-7", RedirectURL: "ws://node-b:8080", Ticket: "tkt"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	store.PushRedirect("c9", payload)

	mm.Reconcile()

	found := conn.envelopes(MsgMatchFound)
	if len(found) != 1 {
		t.Fatalf("expected one match_found, got %d", len(found))
	}
	msg := found[0].Data.(MatchFoundMsg)
	if msg.RoomID != "room-7" || msg.RedirectURL != "ws://node-b:8080" || msg.Ticket != "tkt" {
		t.Errorf("unexpected redirect payload %+v", msg)
	}

	// Delivered exactly once.
	mm.Reconcile()
	if len(conn.envelopes(MsgMatchFound)) != 1 {
		t.Error("redirect delivered twice")
	}
}

func TestAssembleCapsRoomSize(t *testing.T) {
	defer func(v int) { CountdownSeconds = v }(CountdownSeconds)
	CountdownSeconds = 1

	dir := newMockDirectory()
	mm, _, rooms := newTestMatchmaker(t, dir)

	names := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10", "p11"}
	for _, n := range names {
		dir.attach("conn-" + n)
		mm.Enqueue(n, "tank", "conn-"+n)
	}

	mm.Reconcile()
	mm.Reconcile()

	if rooms.RoomCount() != 1 {
		t.Fatalf("expected one room, got %d", rooms.RoomCount())
	}
	placed := 0
	for _, c := range dir.conns {
		if c.roomID != "" {
			placed++
		}
	}
	if placed != MaxPlayers {
		t.Errorf("expected %d placements, got %d", MaxPlayers, placed)
	}

	// The two overflow players are still queued for the next match.
	entries, _ := mm.queue.Entries()
	if len(entries) != len(names)-MaxPlayers {
		t.Errorf("expected %d players left in the queue, got %d", len(names)-MaxPlayers, len(entries))
	}
}
