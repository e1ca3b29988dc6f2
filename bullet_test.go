package main

import (
	"math"
	"testing"
	"time"
)

func TestNewBulletSpawnsAtMuzzle(t *testing.T) {
	tank := NewTank("alice", "tank", 100, 200, time.Now())
	tank.Angle = 0

	b := NewBullet("conn-1", tank)
	if b.X != 100+MuzzleOffset || b.Y != 200 {
		t.Errorf("bullet should spawn at the muzzle, got (%v, %v)", b.X, b.Y)
	}
	if b.VX != BulletSpeed || b.VY != 0 {
		t.Errorf("unexpected velocity (%v, %v)", b.VX, b.VY)
	}
	if b.OwnerID != "conn-1" || b.OwnerName != "alice" {
		t.Errorf("unexpected ownership %q/%q", b.OwnerID, b.OwnerName)
	}
	if b.Damage != tank.Damage || b.Ammo != tank.CurAmmo {
		t.Error("bullet should snapshot the shooter's damage and ammo type")
	}
}

func TestBulletAdvance(t *testing.T) {
	b := &Bullet{X: 10, Y: 20, VX: 3, VY: -4}
	b.Advance()
	b.Advance()
	if b.X != 16 || b.Y != 12 {
		t.Errorf("expected (16, 12), got (%v, %v)", b.X, b.Y)
	}
}

func TestHitsTankRadius(t *testing.T) {
	tank := &Tank{X: 100, Y: 100}
	inside := &Bullet{X: 100 + BulletHitRadius - 1, Y: 100}
	outside := &Bullet{X: 100 + BulletHitRadius, Y: 100}
	if !inside.HitsTank(tank) {
		t.Error("bullet inside the hit radius should connect")
	}
	if outside.HitsTank(tank) {
		t.Error("hit boundary is exclusive")
	}
}

func TestBlastDamageFalloff(t *testing.T) {
	if got := BlastDamage(100, 0); got != 100 {
		t.Errorf("center of blast should deal full damage, got %d", got)
	}
	if got := BlastDamage(100, BlastRadius/2); got != 50 {
		t.Errorf("half radius should deal half damage, got %d", got)
	}
	if got := BlastDamage(100, BlastRadius); got != 0 {
		t.Errorf("edge of blast should deal nothing, got %d", got)
	}
	if got := BlastDamage(100, BlastRadius+50); got != 0 {
		t.Errorf("beyond the radius should deal nothing, got %d", got)
	}
}

func TestBlastDamageMonotonic(t *testing.T) {
	prev := math.MaxInt
	for d := 0.0; d <= BlastRadius; d += 5 {
		got := BlastDamage(40, d)
		if got > prev {
			t.Fatalf("damage increased with distance at d=%v", d)
		}
		prev = got
	}
}
