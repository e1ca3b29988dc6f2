package main

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	RotateStep    = 0.08
	KillReward    = 100
	SpawnAttempts = 200
	SmokeDuration = 8 * time.Second
)

// Broadcaster is the send surface a room needs from a connection.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// SmokeCloud is a time-bounded area effect dropped by a smoke bomb.
type SmokeCloud struct {
	X, Y    float64
	Created time.Time
}

// Room is one isolated match instance: its own tanks, bullets and smoke,
// sharing only the immutable grid with other rooms.
type Room struct {
	mu sync.Mutex

	ID       string
	Name     string
	Capacity int

	grid    *Grid
	players map[string]*Tank       // connID -> tank
	byName  map[string]string      // username -> connID
	clients map[string]Broadcaster // connID -> connection
	bullets []*Bullet
	smoke   []*SmokeCloud

	rewards RewardSink
}

// NewRoom creates an empty room over the shared grid.
func NewRoom(id, name string, capacity int, grid *Grid, rewards RewardSink) *Room {
	return &Room{
		ID:       id,
		Name:     name,
		Capacity: capacity,
		grid:     grid,
		players:  make(map[string]*Tank),
		byName:   make(map[string]string),
		clients:  make(map[string]Broadcaster),
		rewards:  rewards,
	}
}

// AddPlayer spawns a tank for the identity and binds its connection.
// Returns false when the room is full.
func (r *Room) AddPlayer(connID, username, skin string, client Broadcaster) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) >= r.Capacity {
		return false
	}
	// A rejoining identity replaces its previous slot instead of
	// occupying two.
	if old, ok := r.byName[username]; ok {
		delete(r.players, old)
		delete(r.clients, old)
	}

	now := time.Now()
	x, y := r.spawnPosition(connID)
	r.players[connID] = NewTank(username, skin, x, y, now)
	r.byName[username] = connID
	if client != nil {
		r.clients[connID] = client
	}
	return true
}

// Rekey rebinds an identity's tank to a new connection id after a redirect
// reconnect. Returns false if the identity has no slot here.
func (r *Room) Rekey(username, newConnID string, client Broadcaster) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldConnID, ok := r.byName[username]
	if !ok {
		return false
	}
	t := r.players[oldConnID]
	delete(r.players, oldConnID)
	delete(r.clients, oldConnID)
	r.players[newConnID] = t
	r.byName[username] = newConnID
	if client != nil {
		r.clients[newConnID] = client
	}
	t.LastActive = time.Now()
	return true
}

// RemovePlayer drops a connection's tank. Removing an absent id is a no-op.
func (r *Room) RemovePlayer(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.players[connID]; ok {
		delete(r.players, connID)
		delete(r.byName, t.Username)
	}
	delete(r.clients, connID)
}

// PlayerCount returns the number of occupied slots, dead tanks included.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// Empty reports whether the room has no players left.
func (r *Room) Empty() bool {
	return r.PlayerCount() == 0
}

// HasPlayer reports whether the identity occupies a slot in this room.
func (r *Room) HasPlayer(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byName[username]
	return ok
}

// IdleConns returns the connection ids whose tanks have produced no input
// for longer than timeout.
func (r *Room) IdleConns(now time.Time, timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []string
	for id, t := range r.players {
		if now.Sub(t.LastActive) > timeout {
			idle = append(idle, id)
		}
	}
	return idle
}

// spawnPosition draws random positions inside the playable area until one is
// clear of walls and other tanks, giving up after a bounded number of tries
// and accepting the last candidate. Callers hold r.mu.
func (r *Room) spawnPosition(excludeID string) (float64, float64) {
	var x, y float64
	for i := 0; i < SpawnAttempts; i++ {
		x = rand.Float64()*(WorldWidth-4*TileSize) + 2*TileSize
		y = rand.Float64()*(WorldHeight-4*TileSize) + 2*TileSize
		if !r.grid.IsWallAt(x, y) && !TankOverlap(excludeID, x, y, r.players) {
			return x, y
		}
	}
	return x, y
}

// HandleMovement rotates and moves a tank for one input frame. The x and y
// components commit independently so a tank can slide along a wall.
func (r *Room) HandleMovement(connID string, m MovementMsg) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.players[connID]
	if !ok || t.Dead {
		return
	}
	if m.Left {
		t.Angle -= RotateStep
	}
	if m.Right {
		t.Angle += RotateStep
	}
	t.Angle = NormalizeAngle(t.Angle)

	step := 0.0
	if m.Up {
		step = t.Speed
	} else if m.Down {
		step = -t.Speed
	}
	if step != 0 {
		dx := math.Cos(t.Angle) * step
		dy := math.Sin(t.Angle) * step
		if !r.grid.IsWallAt(t.X+dx, t.Y) && !TankOverlap(connID, t.X+dx, t.Y, r.players) {
			t.X += dx
		}
		if !r.grid.IsWallAt(t.X, t.Y+dy) && !TankOverlap(connID, t.X, t.Y+dy, r.players) {
			t.Y += dy
		}
	}
	t.LastActive = time.Now()
}

// HandleShoot fires the selected ammo type if the reload interval has
// elapsed. The recoil displacement is gated by the same collision checks as
// movement and silently skipped when blocked.
func (r *Room) HandleShoot(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.players[connID]
	if !ok || t.Dead {
		return
	}
	now := time.Now()
	if !t.CanShoot(now) {
		return
	}
	t.Ammo[t.CurAmmo]--
	t.LastShot = now
	t.LastActive = now

	r.bullets = append(r.bullets, NewBullet(connID, t))

	rx := t.X - math.Cos(t.Angle)*t.Recoil
	ry := t.Y - math.Sin(t.Angle)*t.Recoil
	if !r.grid.IsWallAt(rx, ry) && !TankOverlap(connID, rx, ry, r.players) {
		t.X = rx
		t.Y = ry
	}
}

// HandleSwitchAmmo cycles the tank's selected ammo type.
func (r *Room) HandleSwitchAmmo(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.players[connID]
	if !ok || t.Dead {
		return
	}
	t.CycleAmmo()
	t.LastActive = time.Now()
}

// HandleUseItem consumes one carried item.
func (r *Room) HandleUseItem(connID string, item ItemType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.players[connID]
	if !ok || t.Dead {
		return
	}
	now := time.Now()
	switch item {
	case ItemHealthKit:
		if t.Items.HealthKit > 0 && t.HP < t.MaxHP {
			t.HP = min(t.HP+HealthKitHeal, t.MaxHP)
			t.Items.HealthKit--
		}
	case ItemArmorKit:
		if t.Items.ArmorKit > 0 && t.Armor < MaxArmor {
			t.Armor++
			t.Items.ArmorKit--
		}
	case ItemSmokeBomb:
		if t.Items.SmokeBomb > 0 {
			r.smoke = append(r.smoke, &SmokeCloud{X: t.X, Y: t.Y, Created: now})
			t.Items.SmokeBomb--
		}
	}
	t.LastActive = now
}

// Update advances the room by one tick: expire smoke, move bullets, resolve
// wall and tank hits, then broadcast the snapshot.
func (r *Room) Update(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Expire smoke clouds.
	live := r.smoke[:0]
	for _, s := range r.smoke {
		if now.Sub(s.Created) < SmokeDuration {
			live = append(live, s)
		}
	}
	r.smoke = live

	for i := 0; i < len(r.bullets); i++ {
		b := r.bullets[i]
		b.Advance()

		if r.grid.IsWallAt(b.X, b.Y) || !InBounds(b.X, b.Y) {
			if b.Ammo == AmmoExplosive {
				r.explode(b, now)
			}
			r.bullets = removeBullet(r.bullets, i)
			i--
			continue
		}

		// One bullet resolves at most one direct hit per tick.
		for id, t := range r.players {
			if id == b.OwnerID || t.Dead {
				continue
			}
			if b.HitsTank(t) {
				r.applyHit(t, b.Damage, b.Ammo, b.OwnerID, b.OwnerName)
				if b.Ammo == AmmoExplosive {
					r.explode(b, now)
				}
				r.bullets = removeBullet(r.bullets, i)
				i--
				break
			}
		}
	}

	r.broadcastState(now)
}

// explode applies linear-falloff area damage around the bullet's impact
// point to every living tank other than the shooter, skipping tanks still
// under spawn protection.
func (r *Room) explode(b *Bullet, now time.Time) {
	for id, t := range r.players {
		if id == b.OwnerID || t.Dead || t.Invincible(now) {
			continue
		}
		d := math.Hypot(b.X-t.X, b.Y-t.Y)
		if dmg := BlastDamage(b.Damage, d); dmg > 0 {
			r.applyHit(t, dmg, b.Ammo, b.OwnerID, b.OwnerName)
		}
	}
}

// applyHit runs the damage protocol and, on elimination, notifies the
// victim with its final rank and signals the shooter's reward. Callers hold
// r.mu.
func (r *Room) applyHit(target *Tank, damage int, ammo AmmoType, killerConnID, killerName string) {
	if !target.TakeHit(damage, ammo) {
		return
	}

	alive := 0
	for _, t := range r.players {
		if !t.Dead {
			alive++
		}
	}

	if victimConn, ok := r.byName[target.Username]; ok {
		if c, ok := r.clients[victimConn]; ok {
			c.SendJSON(Envelope{T: MsgYouDied, Data: YouDiedMsg{Killer: killerName, Rank: alive}})
		}
	}
	if c, ok := r.clients[killerConnID]; ok {
		c.SendJSON(Envelope{T: MsgKillReward, Data: KillRewardMsg{Amount: KillReward}})
	}
	if r.rewards != nil {
		r.rewards.Grant(killerName, KillReward)
	}
}

// Snapshot assembles the wire state for the current tick. Exposed for tests.
func (r *Room) Snapshot(now time.Time) RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(now)
}

func (r *Room) snapshotLocked(now time.Time) RoomState {
	st := RoomState{
		Players:    make([]TankState, 0, len(r.players)),
		Bullets:    make([]BulletState, 0, len(r.bullets)),
		Smoke:      make([]SmokeState, 0, len(r.smoke)),
		ServerTime: now.UnixMilli(),
	}
	for id, t := range r.players {
		st.Players = append(st.Players, TankState{
			ID:       id,
			Username: t.Username,
			X:        t.X,
			Y:        t.Y,
			Angle:    t.Angle,
			HP:       t.HP,
			MaxHP:    t.MaxHP,
			Armor:    t.Armor,
			Skin:     t.Skin,
			Ammo:     t.Ammo[t.CurAmmo],
			AmmoType: t.CurAmmo.String(),
			Dead:     t.Dead,
		})
	}
	for _, b := range r.bullets {
		st.Bullets = append(st.Bullets, BulletState{X: b.X, Y: b.Y, Owner: b.OwnerID, Type: b.Ammo.String()})
	}
	for _, s := range r.smoke {
		st.Smoke = append(st.Smoke, SmokeState{X: s.X, Y: s.Y})
	}
	return st
}

// broadcastState sends the msgpack snapshot to every subscriber. Callers
// hold r.mu.
func (r *Room) broadcastState(now time.Time) {
	if len(r.clients) == 0 {
		return
	}
	data, err := encodeState(r.snapshotLocked(now))
	if err != nil {
		Log.Errorw("encode state", "room", r.ID, "err", err)
		return
	}
	for _, c := range r.clients {
		c.SendBinary(data)
	}
}

func removeBullet(bullets []*Bullet, i int) []*Bullet {
	bullets[i] = bullets[len(bullets)-1]
	return bullets[:len(bullets)-1]
}
