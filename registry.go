package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TickRate      = 24 // simulation ticks per second
	TickDuration  = time.Second / TickRate
	SweepInterval = 10 * time.Second
	maxRooms      = 100
)

// IdleTimeout is how long a player may go without input before the sweep
// disconnects it. Variable so tests can shorten it.
var IdleTimeout = 5 * time.Minute

// RoomRegistry owns every room on this node. A single loop ticks all rooms
// so room state is never advanced by two tick iterations at once.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	grid    *Grid
	rewards RewardSink

	// onIdle force-disconnects a long-idle connection. Set by the hub.
	onIdle func(connID string)

	stop chan struct{}
	once sync.Once
}

// NewRoomRegistry creates a registry over the shared grid.
func NewRoomRegistry(grid *Grid, rewards RewardSink) *RoomRegistry {
	return &RoomRegistry{
		rooms:   make(map[string]*Room),
		grid:    grid,
		rewards: rewards,
		stop:    make(chan struct{}),
	}
}

// SetIdleHandler installs the callback used to disconnect idle players.
func (rr *RoomRegistry) SetIdleHandler(fn func(connID string)) {
	rr.onIdle = fn
}

// CreateRoom allocates a new room and returns it. Returns nil when the node
// is at its room limit.
func (rr *RoomRegistry) CreateRoom(name string, capacity int) *Room {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if len(rr.rooms) >= maxRooms {
		return nil
	}
	id := uuid.NewString()
	room := NewRoom(id, name, capacity, rr.grid, rr.rewards)
	rr.rooms[id] = room
	Log.Infow("room created", "room", id, "name", name, "capacity", capacity)
	return room
}

// GetRoom returns a room by id, or nil.
func (rr *RoomRegistry) GetRoom(id string) *Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.rooms[id]
}

// RemovePlayer drops a connection from a room and deletes the room if that
// left it empty. Unknown room ids are ignored.
func (rr *RoomRegistry) RemovePlayer(roomID, connID string) {
	room := rr.GetRoom(roomID)
	if room == nil {
		return
	}
	room.RemovePlayer(connID)
	if room.Empty() {
		rr.deleteRoom(roomID)
	}
}

// RoomCount returns the number of live rooms on this node.
func (rr *RoomRegistry) RoomCount() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.rooms)
}

func (rr *RoomRegistry) deleteRoom(id string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if _, ok := rr.rooms[id]; ok {
		delete(rr.rooms, id)
		Log.Infow("room deleted", "room", id)
	}
}

// Run drives the simulation tick and the periodic sweep until Stop.
func (rr *RoomRegistry) Run() {
	ticker := time.NewTicker(TickDuration)
	sweeper := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	defer sweeper.Stop()

	for {
		select {
		case <-ticker.C:
			rr.tickAll(time.Now())
		case <-sweeper.C:
			rr.Sweep(time.Now())
		case <-rr.stop:
			return
		}
	}
}

// Stop terminates the loop started by Run.
func (rr *RoomRegistry) Stop() {
	rr.once.Do(func() { close(rr.stop) })
}

// tickAll updates every room. A panic inside one room's tick is contained
// so the remaining rooms still advance this cycle.
func (rr *RoomRegistry) tickAll(now time.Time) {
	rr.mu.RLock()
	rooms := make([]*Room, 0, len(rr.rooms))
	for _, room := range rr.rooms {
		rooms = append(rooms, room)
	}
	rr.mu.RUnlock()

	for _, room := range rooms {
		rr.tickRoom(room, now)
	}
}

func (rr *RoomRegistry) tickRoom(room *Room, now time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			Log.Errorw("room tick panic", "room", room.ID, "panic", rec)
		}
	}()
	room.Update(now)
}

// Sweep deletes empty rooms and force-disconnects long-idle players.
func (rr *RoomRegistry) Sweep(now time.Time) {
	rr.mu.RLock()
	rooms := make(map[string]*Room, len(rr.rooms))
	for id, room := range rr.rooms {
		rooms[id] = room
	}
	rr.mu.RUnlock()

	for id, room := range rooms {
		for _, connID := range room.IdleConns(now, IdleTimeout) {
			Log.Infow("idle player removed", "room", id, "conn", connID)
			room.RemovePlayer(connID)
			if rr.onIdle != nil {
				rr.onIdle(connID)
			}
		}
		if room.Empty() {
			rr.deleteRoom(id)
		}
	}
}
