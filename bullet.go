package main

import "math"

const (
	BulletSpeed     = 12.0 // distance per tick
	BulletHitRadius = 25.0
	MuzzleOffset    = 30.0
	BlastRadius     = 80.0
)

// Bullet is a live shell inside one room. Bullets never outlive the room
// tick loop that created them.
type Bullet struct {
	X, Y      float64
	VX, VY    float64
	Damage    int
	Ammo      AmmoType
	OwnerID   string
	OwnerName string
}

// NewBullet spawns a shell offset forward from the shooter's barrel.
func NewBullet(ownerID string, t *Tank) *Bullet {
	return &Bullet{
		X:         t.X + math.Cos(t.Angle)*MuzzleOffset,
		Y:         t.Y + math.Sin(t.Angle)*MuzzleOffset,
		VX:        math.Cos(t.Angle) * BulletSpeed,
		VY:        math.Sin(t.Angle) * BulletSpeed,
		Damage:    t.Damage,
		Ammo:      t.CurAmmo,
		OwnerID:   ownerID,
		OwnerName: t.Username,
	}
}

// Advance moves the bullet one tick along its velocity.
func (b *Bullet) Advance() {
	b.X += b.VX
	b.Y += b.VY
}

// HitsTank reports whether the bullet overlaps the given tank.
func (b *Bullet) HitsTank(t *Tank) bool {
	return math.Hypot(b.X-t.X, b.Y-t.Y) < BulletHitRadius
}

// BlastDamage returns the area-effect damage for a target at distance d from
// an explosive impact: full damage at the center, falling off linearly to
// zero at BlastRadius.
func BlastDamage(base int, d float64) int {
	if d >= BlastRadius {
		return 0
	}
	dmg := float64(base) * (1 - d/BlastRadius)
	if dmg < 0 {
		return 0
	}
	return int(dmg)
}
