package main

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	connID     string
	remoteAddr string

	// mu guards the fields below. The read pump owns most writes, but
	// the coordinator goroutine binds rooms during match assembly and
	// the hub goroutine reads them during cleanup.
	mu       sync.Mutex
	username string
	skin     string
	roomID   string

	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client with a fresh connection id.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		connID:     uuid.NewString(),
		remoteAddr: remoteAddr,
	}
}

// ConnID returns the connection's id, which doubles as its session token.
func (c *Client) ConnID() string {
	return c.connID
}

// BindRoom records the client's room and claims the account session for
// this connection.
func (c *Client) BindRoom(roomID string) {
	c.mu.Lock()
	c.roomID = roomID
	username := c.username
	c.mu.Unlock()
	if username != "" {
		c.hub.arbiter.Claim(username, c.connID)
	}
}

func (c *Client) setIdentity(username, skin string) {
	c.mu.Lock()
	c.username = username
	c.skin = skin
	c.mu.Unlock()
}

func (c *Client) setUsername(username string) {
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
}

// sessionState returns the username and room binding as one snapshot.
func (c *Client) sessionState() (username, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username, c.roomID
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("ws error", "err", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			Log.Warnw("rate limit exceeded, disconnecting", "addr", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		Log.Errorw("marshal error", "err", err)
		return
	}
	c.sendRaw(data)
}

// sendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) sendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		Log.Debugw("unmarshal error", "err", err)
		return
	}

	switch env.T {
	case MsgJoinMatchmaking:
		c.handleJoinMatchmaking(env.D)
	case MsgLeaveMatchmaking:
		c.handleLeaveMatchmaking()
	case MsgClaimSpot:
		c.handleClaimSpot(env.D)
	case MsgCreateRoom:
		c.handleCreateRoom(env.D)
	case MsgMovement:
		c.handleMovement(env.D)
	case MsgShoot:
		c.handleShoot()
	case MsgSwitchAmmo:
		c.handleSwitchAmmo()
	case MsgUseItem:
		c.handleUseItem(env.D)
	case MsgLeaveGame:
		c.handleLeaveGame()
	case MsgPing:
		c.handlePing()
	}
}

func (c *Client) handleJoinMatchmaking(data json.RawMessage) {
	var msg JoinMatchmakingMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	username, skin, err := c.hub.identity.Resolve(msg.Username, msg.Skin)
	if err != nil {
		return
	}
	c.setIdentity(username, skin)

	if err := c.hub.mm.Enqueue(username, skin, c.connID); err != nil {
		Log.Warnw("enqueue failed", "user", username, "err", err)
		return
	}
	c.SendJSON(Envelope{T: MsgMatchStatus, Data: MatchStatusMsg{Status: StatusSearching, QueueSize: 1}})
}

func (c *Client) handleLeaveMatchmaking() {
	if err := c.hub.mm.Dequeue(c.connID); err != nil {
		Log.Warnw("dequeue failed", "conn", c.connID, "err", err)
	}
}

// handleClaimSpot rejoins a reserved room slot after a cross-node redirect.
// The connection id changed across the reconnect, so the slot is claimed by
// identity, proven by the coordinator's ticket.
func (c *Client) handleClaimSpot(data json.RawMessage) {
	var msg ClaimSpotMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	roomID, username, err := c.hub.tickets.Validate(msg.Ticket)
	if err != nil || roomID != msg.RoomID || username != msg.Username {
		c.SendJSON(Envelope{T: MsgJoinError, Data: JoinErrorMsg{Reason: "invalid ticket"}})
		return
	}
	room := c.hub.rooms.GetRoom(roomID)
	if room == nil {
		c.SendJSON(Envelope{T: MsgJoinError, Data: JoinErrorMsg{Reason: "room not found"}})
		return
	}
	if !room.Rekey(username, c.connID, c) {
		c.SendJSON(Envelope{T: MsgJoinError, Data: JoinErrorMsg{Reason: "no reserved spot"}})
		return
	}
	c.setUsername(username)
	c.BindRoom(roomID)
	Log.Infow("redirected player rejoined", "user", username, "room", roomID)
	c.SendJSON(Envelope{T: MsgJoinSuccess, Data: JoinSuccessMsg{RoomID: roomID, Map: c.hub.grid.Tiles()}})
}

func (c *Client) handleCreateRoom(data json.RawMessage) {
	var msg CreateRoomMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	username, skin, err := c.hub.identity.Resolve(msg.Username, msg.Skin)
	if err != nil {
		return
	}
	name := msg.Name
	if name == "" {
		name = defaultRoomName
	}
	capacity := msg.Capacity
	if capacity < minCustomSize || capacity > maxCustomSize {
		capacity = maxCustomSize
	}

	room := c.hub.rooms.CreateRoom(name, capacity)
	if room == nil {
		c.SendJSON(Envelope{T: MsgJoinError, Data: JoinErrorMsg{Reason: "too many active rooms"}})
		return
	}
	c.setIdentity(username, skin)
	room.AddPlayer(c.connID, username, skin, c)
	c.BindRoom(room.ID)

	link := InviteLink(c.hub.publicURL, room.ID)
	qr, err := InviteQR(link)
	if err != nil {
		Log.Errorw("invite qr failed", "room", room.ID, "err", err)
	}
	c.SendJSON(Envelope{T: MsgRoomCreated, Data: RoomCreatedMsg{RoomID: room.ID, Invite: link, InviteQR: qr}})
	c.SendJSON(Envelope{T: MsgJoinSuccess, Data: JoinSuccessMsg{RoomID: room.ID, Map: c.hub.grid.Tiles()}})
}

// room returns the client's current room, or nil.
func (c *Client) room() *Room {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return nil
	}
	return c.hub.rooms.GetRoom(roomID)
}

func (c *Client) handleMovement(data json.RawMessage) {
	var msg MovementMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if room := c.room(); room != nil {
		room.HandleMovement(c.connID, msg)
	}
}

func (c *Client) handleShoot() {
	if room := c.room(); room != nil {
		room.HandleShoot(c.connID)
	}
}

func (c *Client) handleSwitchAmmo() {
	if room := c.room(); room != nil {
		room.HandleSwitchAmmo(c.connID)
	}
}

func (c *Client) handleUseItem(data json.RawMessage) {
	var msg UseItemMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if room := c.room(); room != nil {
		room.HandleUseItem(c.connID, ItemType(msg.Item))
	}
}

func (c *Client) handleLeaveGame() {
	if err := c.hub.mm.Dequeue(c.connID); err != nil {
		Log.Warnw("dequeue failed", "conn", c.connID, "err", err)
	}
	c.mu.Lock()
	username, roomID := c.username, c.roomID
	c.roomID = ""
	c.mu.Unlock()
	if roomID != "" {
		c.hub.rooms.RemovePlayer(roomID, c.connID)
	}
	c.hub.arbiter.Release(username, c.connID)
}

// handlePing doubles as the session heartbeat: the conditional update fails
// once a newer login owns the account, and the stale connection is closed.
func (c *Client) handlePing() {
	username, roomID := c.sessionState()
	if username != "" && roomID != "" {
		if !c.hub.arbiter.Heartbeat(username, c.connID) {
			Log.Infow("session superseded", "user", username, "conn", c.connID)
			c.SendJSON(Envelope{T: MsgForceDisconnect, Data: ForceDisconnectMsg{Reason: "logged in elsewhere"}})
			c.conn.Close()
			return
		}
	}
	c.SendJSON(Envelope{T: MsgPong, Data: map[string]int64{"ts": time.Now().UnixMilli()}})
}
