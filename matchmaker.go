package main

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	MinPlayers    = 2
	MaxPlayers    = 10
	matchRoomName = "Battle Royale"
)

// Tunables are variables so tests can shorten them.
var (
	CountdownSeconds  = 10
	ReconcileInterval = time.Second
)

// matchPhase is the coordinator's explicit countdown state.
type matchPhase int

const (
	phaseIdle matchPhase = iota
	phaseSearching
	phaseCountdown
)

// PlayerConn is what the coordinator needs from a locally attached
// connection.
type PlayerConn interface {
	Broadcaster
	ConnID() string
	BindRoom(roomID string)
}

// ConnDirectory resolves connection ids to locally attached connections.
type ConnDirectory interface {
	Conn(connID string) PlayerConn
	ConnIDs() []string
}

// Matchmaker reconciles the shared queue once per interval, drives the
// reset-on-change countdown and assembles matches into local rooms. Every
// node runs its own Matchmaker; they coordinate only through the shared
// queue and the redirect bus.
type Matchmaker struct {
	mu sync.Mutex

	queue   MatchQueue
	bus     RedirectBus
	tickets *TicketIssuer
	rooms   *RoomRegistry
	dir     ConnDirectory
	grid    *Grid

	nodeID    string
	publicURL string

	phase     matchPhase
	remaining int
	baseline  int

	stop chan struct{}
	once sync.Once
}

// NewMatchmaker wires the coordinator for one node.
func NewMatchmaker(queue MatchQueue, bus RedirectBus, tickets *TicketIssuer, rooms *RoomRegistry, dir ConnDirectory, grid *Grid, nodeID, publicURL string) *Matchmaker {
	return &Matchmaker{
		queue:     queue,
		bus:       bus,
		tickets:   tickets,
		rooms:     rooms,
		dir:       dir,
		grid:      grid,
		nodeID:    nodeID,
		publicURL: publicURL,
		stop:      make(chan struct{}),
	}
}

// Enqueue pushes a waiting player onto the shared queue.
func (m *Matchmaker) Enqueue(username, skin, connID string) error {
	return m.queue.Push(QueueEntry{
		Username:   username,
		Skin:       skin,
		ConnID:     connID,
		NodeID:     m.nodeID,
		EnqueuedAt: time.Now().UnixMilli(),
	})
}

// Dequeue removes a connection's queue entries. Idempotent.
func (m *Matchmaker) Dequeue(connID string) error {
	return m.queue.RemoveConn(connID)
}

// Run reconciles once per interval until Stop.
func (m *Matchmaker) Run() {
	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Reconcile()
		case <-m.stop:
			return
		}
	}
}

// Stop terminates the loop started by Run.
func (m *Matchmaker) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// Reconcile runs one coordinator cycle. A shared-store error degrades the
// cycle to "no new matches" without touching running rooms.
func (m *Matchmaker) Reconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliverRedirects()

	entries, err := m.queue.Entries()
	if err != nil {
		Log.Warnw("queue unreachable, skipping cycle", "err", err)
		return
	}

	deduped := dedupeByIdentity(entries)
	size := len(deduped)

	switch {
	case size == 0:
		m.phase = phaseIdle
		m.remaining = 0
		m.baseline = 0

	case size < MinPlayers:
		m.phase = phaseSearching
		m.remaining = 0
		m.baseline = 0
		m.broadcastStatus(deduped, MatchStatusMsg{Status: StatusSearching, QueueSize: size})

	default:
		// Any change in deduped size restarts the countdown from the
		// full duration.
		if m.phase != phaseCountdown || size != m.baseline {
			m.phase = phaseCountdown
			m.baseline = size
			m.remaining = CountdownSeconds
		} else {
			m.remaining--
		}

		if m.remaining <= 0 {
			m.assemble(deduped)
			m.phase = phaseIdle
			m.remaining = 0
			m.baseline = 0
			return
		}
		m.broadcastStatus(deduped, MatchStatusMsg{Status: StatusCountdown, QueueSize: size, Countdown: m.remaining})
	}
}

// dedupeByIdentity keeps the first-seen entry per username, so reconnect
// retries never double-count toward match size.
func dedupeByIdentity(entries []QueueEntry) []QueueEntry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		if seen[e.Username] {
			continue
		}
		seen[e.Username] = true
		out = append(out, e)
	}
	return out
}

// broadcastStatus notifies the queued connections attached to this node.
// Connections queued from other nodes hear from their own coordinator.
func (m *Matchmaker) broadcastStatus(entries []QueueEntry, msg MatchStatusMsg) {
	for _, e := range entries {
		if conn := m.dir.Conn(e.ConnID); conn != nil {
			conn.SendJSON(Envelope{T: MsgMatchStatus, Data: msg})
		}
	}
}

// assemble creates a room for up to MaxPlayers from the front of the queue
// and places every matched player, locally or by redirect.
func (m *Matchmaker) assemble(deduped []QueueEntry) {
	count := len(deduped)
	if count > MaxPlayers {
		count = MaxPlayers
	}
	matched := deduped[:count]

	usernames := make([]string, len(matched))
	for i, e := range matched {
		usernames[i] = e.Username
	}
	taken, err := m.queue.TakeIdentities(usernames)
	if err != nil {
		Log.Warnw("queue take failed, match abandoned", "err", err)
		return
	}
	// Identities whose rows were already gone belong to another node's
	// match now. Place only the ones this node actually took.
	if len(taken) < len(matched) {
		won := make(map[string]bool, len(taken))
		for _, u := range taken {
			won[u] = true
		}
		kept := matched[:0:0]
		for _, e := range matched {
			if won[e.Username] {
				kept = append(kept, e)
			}
		}
		Log.Infow("queue partially claimed by another node", "wanted", len(matched), "kept", len(kept))
		matched = kept
		count = len(matched)
	}
	if count == 0 {
		return
	}

	room := m.rooms.CreateRoom(matchRoomName, count)
	if room == nil {
		Log.Warnw("room limit reached, match dropped", "players", count)
		return
	}

	placed := 0
	for _, e := range matched {
		if conn := m.dir.Conn(e.ConnID); conn != nil {
			if !room.AddPlayer(e.ConnID, e.Username, e.Skin, conn) {
				continue
			}
			conn.BindRoom(room.ID)
			conn.SendJSON(Envelope{T: MsgMatchFound, Data: MatchFoundMsg{RoomID: room.ID, Map: m.grid.Tiles()}})
			conn.SendJSON(Envelope{T: MsgJoinSuccess, Data: JoinSuccessMsg{RoomID: room.ID, Map: m.grid.Tiles()}})
			placed++
			Log.Infow("matched local player", "user", e.Username, "room", room.ID)
			continue
		}

		// Remote player: reserve the slot under its old conn id and
		// push a redirect through the bus. The client reconnects to
		// this node and claims the slot by identity. A player who
		// never completes the redirect is removed by the idle sweep.
		if m.publicURL == "" {
			Log.Warnw("no public URL for redirect, player skipped", "user", e.Username)
			continue
		}
		ticket, err := m.tickets.Issue(room.ID, e.Username)
		if err != nil {
			Log.Errorw("ticket issue failed", "user", e.Username, "err", err)
			continue
		}
		payload, err := msgpack.Marshal(MatchFoundMsg{RoomID: room.ID, RedirectURL: m.publicURL, Ticket: ticket})
		if err != nil {
			continue
		}
		room.AddPlayer(e.ConnID, e.Username, e.Skin, nil)
		if err := m.bus.PushRedirect(e.ConnID, payload); err != nil {
			Log.Warnw("redirect push failed", "user", e.Username, "err", err)
			room.RemovePlayer(e.ConnID)
			continue
		}
		placed++
		Log.Infow("matched remote player", "user", e.Username, "room", room.ID)
	}

	if placed == 0 {
		m.rooms.deleteRoom(room.ID)
		Log.Warnw("match produced no placements, room dropped", "room", room.ID)
	}
}

// deliverRedirects drains the bus for connections attached to this node and
// forwards each payload as a match_found message.
func (m *Matchmaker) deliverRedirects() {
	ids := m.dir.ConnIDs()
	if len(ids) == 0 {
		return
	}
	redirects, err := m.bus.DrainRedirects(ids)
	if err != nil {
		Log.Warnw("redirect drain failed", "err", err)
		return
	}
	for _, r := range redirects {
		conn := m.dir.Conn(r.ConnID)
		if conn == nil {
			continue
		}
		var msg MatchFoundMsg
		if err := msgpack.Unmarshal(r.Payload, &msg); err != nil {
			continue
		}
		conn.SendJSON(Envelope{T: MsgMatchFound, Data: msg})
	}
}
