package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoinMatchmaking  = "join_matchmaking"
	MsgLeaveMatchmaking = "leave_matchmaking"
	MsgClaimSpot        = "claim_spot"
	MsgCreateRoom       = "create_room"
	MsgMovement         = "movement"
	MsgShoot            = "shoot"
	MsgSwitchAmmo       = "switch_ammo"
	MsgUseItem          = "use_item"
	MsgLeaveGame        = "leave_game"
	MsgPing             = "ping_check"
)

// Server -> Client message types
const (
	MsgState           = "state"
	MsgMatchStatus     = "matchmaking_status"
	MsgMatchFound      = "match_found"
	MsgJoinSuccess     = "join_success"
	MsgJoinError       = "join_error"
	MsgYouDied         = "you_died"
	MsgKillReward      = "kill_reward"
	MsgForceDisconnect = "force_disconnect"
	MsgRoomCreated     = "room_created"
	MsgPong            = "pong"
)

// Matchmaking status values
const (
	StatusSearching = "searching"
	StatusCountdown = "countdown"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages. json.RawMessage avoids a
// double unmarshal of the payload.
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMatchmakingMsg enters the shared queue.
type JoinMatchmakingMsg struct {
	Username string `json:"username"`
	Skin     string `json:"skin"`
}

// ClaimSpotMsg reclaims a reserved slot after a cross-node redirect. The
// ticket proves the claim was issued by the coordinator.
type ClaimSpotMsg struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Ticket   string `json:"ticket"`
}

// CreateRoomMsg creates a custom room outside matchmaking.
type CreateRoomMsg struct {
	Username string `json:"username"`
	Skin     string `json:"skin"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// MovementMsg carries held-key state for one input frame.
type MovementMsg struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Up    bool `json:"up"`
	Down  bool `json:"down"`
}

// UseItemMsg consumes one carried item.
type UseItemMsg struct {
	Item string `json:"item"`
}

// MatchStatusMsg is sent to queued connections each reconcile cycle.
type MatchStatusMsg struct {
	Status    string `json:"status"`
	QueueSize int    `json:"queueSize"`
	Countdown int    `json:"countdown,omitempty"`
}

// MatchFoundMsg tells a queued player its room. RedirectURL is set when the
// room lives on a different node and the client must reconnect there.
type MatchFoundMsg struct {
	RoomID      string  `json:"roomId"`
	Map         [][]int `json:"map,omitempty"`
	RedirectURL string  `json:"redirectUrl,omitempty"`
	Ticket      string  `json:"ticket,omitempty"`
}

// JoinSuccessMsg confirms placement into a room.
type JoinSuccessMsg struct {
	RoomID string  `json:"roomId"`
	Map    [][]int `json:"map"`
}

// JoinErrorMsg reports an explicit placement failure.
type JoinErrorMsg struct {
	Reason string `json:"reason"`
}

// RoomCreatedMsg answers create_room with the new id and a QR-encoded
// invite link.
type RoomCreatedMsg struct {
	RoomID   string `json:"roomId"`
	Invite   string `json:"invite"`
	InviteQR string `json:"inviteQr"` // base64 PNG
}

// YouDiedMsg tells a victim who killed it and how many tanks remain.
type YouDiedMsg struct {
	Killer string `json:"killer"`
	Rank   int    `json:"rank"`
}

// KillRewardMsg signals the shooter's credit for an elimination.
type KillRewardMsg struct {
	Amount int `json:"amount"`
}

// ForceDisconnectMsg precedes a server-initiated close.
type ForceDisconnectMsg struct {
	Reason string `json:"reason"`
}

// TankState is broadcast per tank each tick.
type TankState struct {
	ID       string  `msgpack:"id" json:"id"`
	Username string  `msgpack:"n" json:"n"`
	X        float64 `msgpack:"x" json:"x"`
	Y        float64 `msgpack:"y" json:"y"`
	Angle    float64 `msgpack:"a" json:"a"`
	HP       int     `msgpack:"hp" json:"hp"`
	MaxHP    int     `msgpack:"mhp" json:"mhp"`
	Armor    int     `msgpack:"ar" json:"ar"`
	Skin     string  `msgpack:"s" json:"s"`
	Ammo     int     `msgpack:"am" json:"am"`
	AmmoType string  `msgpack:"at" json:"at"`
	Dead     bool    `msgpack:"d" json:"d"`
}

// BulletState is broadcast per bullet each tick.
type BulletState struct {
	X     float64 `msgpack:"x" json:"x"`
	Y     float64 `msgpack:"y" json:"y"`
	Owner string  `msgpack:"o" json:"o"`
	Type  string  `msgpack:"t" json:"t"`
}

// SmokeState is broadcast per active smoke cloud.
type SmokeState struct {
	X float64 `msgpack:"x" json:"x"`
	Y float64 `msgpack:"y" json:"y"`
}

// RoomState is the per-tick snapshot broadcast to every room subscriber,
// encoded as msgpack and sent as a binary frame.
type RoomState struct {
	Players    []TankState   `msgpack:"p" json:"p"`
	Bullets    []BulletState `msgpack:"b" json:"b"`
	Smoke      []SmokeState  `msgpack:"sm" json:"sm"`
	ServerTime int64         `msgpack:"ts" json:"ts"`
}
