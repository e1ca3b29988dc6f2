package main

import "sync"

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub tracks every WebSocket connection on this node and routes lifecycle
// events to the matchmaker, room registry and session arbiter.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client // connID -> client
	register   chan *Client
	unregister chan *Client

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	rooms    *RoomRegistry
	mm       *Matchmaker
	arbiter  *SessionArbiter
	tickets  *TicketIssuer
	identity IdentityService
	grid     *Grid

	publicURL string
}

// NewHub creates a hub over the node's registry and coordinator. The
// matchmaker is attached afterwards because it needs the hub as its
// connection directory.
func NewHub(rooms *RoomRegistry, arbiter *SessionArbiter, tickets *TicketIssuer, identity IdentityService, grid *Grid, publicURL string) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		ipConns:    make(map[string]int),
		rooms:      rooms,
		arbiter:    arbiter,
		tickets:    tickets,
		identity:   identity,
		grid:       grid,
		publicURL:  publicURL,
	}
}

// SetMatchmaker attaches the coordinator once it has been constructed.
func (h *Hub) SetMatchmaker(mm *Matchmaker) {
	h.mm = mm
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.connID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.connID]; ok {
				delete(h.clients, client.connID)
				close(client.send)
			}
			h.mu.Unlock()
			h.cleanupClient(client)
		}
	}
}

// cleanupClient removes a departed connection from the queue, its room and
// the session record. Every step is idempotent.
func (h *Hub) cleanupClient(c *Client) {
	if h.mm != nil {
		if err := h.mm.Dequeue(c.connID); err != nil {
			Log.Warnw("dequeue on disconnect failed", "conn", c.connID, "err", err)
		}
	}
	username, roomID := c.sessionState()
	if roomID != "" {
		h.rooms.RemovePlayer(roomID, c.connID)
	}
	h.arbiter.Release(username, c.connID)
}

// Conn returns a locally attached connection, or nil.
func (h *Hub) Conn(connID string) PlayerConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		return c
	}
	return nil
}

// ConnIDs returns the ids of every connection attached to this node.
func (h *Hub) ConnIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ForceDisconnect tells a connection to go away and closes it. Used by the
// idle sweep and the session arbiter.
func (h *Hub) ForceDisconnect(connID, reason string) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.SendJSON(Envelope{T: MsgForceDisconnect, Data: ForceDisconnectMsg{Reason: reason}})
	c.conn.Close()
}
