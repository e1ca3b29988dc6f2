package main

import "time"

// AmmoType enumerates the closed set of shell types.
type AmmoType int

const (
	AmmoNormal AmmoType = iota
	AmmoExplosive
	AmmoArmorPiercing
	ammoTypeCount
)

func (a AmmoType) String() string {
	switch a {
	case AmmoExplosive:
		return "explosive"
	case AmmoArmorPiercing:
		return "armorPiercing"
	default:
		return "normal"
	}
}

// ItemType enumerates usable items.
type ItemType string

const (
	ItemHealthKit ItemType = "healthKit"
	ItemArmorKit  ItemType = "armorKit"
	ItemSmokeBomb ItemType = "smokeBomb"
)

const (
	MaxArmor       = 3
	HealthKitHeal  = 50
	SpawnProtectMS = 3000

	startNormalAmmo   = 30
	startExplosive    = 5
	startArmorPiercer = 10
)

// AmmoCounts is a fixed-shape record of remaining shells per type.
type AmmoCounts [ammoTypeCount]int

// ItemCounts tracks the consumable items a tank carries.
type ItemCounts struct {
	HealthKit int
	ArmorKit  int
	SmokeBomb int
}

// Tank is the in-room player entity. It is owned exclusively by the room
// that created it and mutated only by that room's tick and input handlers.
type Tank struct {
	Username string
	Skin     string

	X, Y  float64
	Angle float64

	Speed    float64
	HP       int
	MaxHP    int
	Damage   int
	Recoil   float64
	ReloadMS int64

	Armor int

	Ammo    AmmoCounts
	CurAmmo AmmoType
	Items   ItemCounts

	LastShot   time.Time
	LastActive time.Time

	// SafeUntil grants spawn protection from blast damage.
	SafeUntil time.Time

	Dead bool
}

// NewTank creates a tank for the given identity and skin at (x, y).
func NewTank(username, skin string, x, y float64, now time.Time) *Tank {
	stats := ResolveLoadout(skin)
	return &Tank{
		Username:   username,
		Skin:       skin,
		X:          x,
		Y:          y,
		Speed:      stats.Speed,
		HP:         stats.MaxHP,
		MaxHP:      stats.MaxHP,
		Damage:     stats.Damage,
		Recoil:     stats.Recoil,
		ReloadMS:   stats.ReloadMS,
		Ammo:       AmmoCounts{startNormalAmmo, startExplosive, startArmorPiercer},
		Items:      ItemCounts{HealthKit: 1, ArmorKit: 1, SmokeBomb: 1},
		LastActive: now,
		SafeUntil:  now.Add(SpawnProtectMS * time.Millisecond),
	}
}

// CanShoot reports whether the reload interval has elapsed and the selected
// ammo type has shells left.
func (t *Tank) CanShoot(now time.Time) bool {
	if t.Dead || t.Ammo[t.CurAmmo] <= 0 {
		return false
	}
	return now.Sub(t.LastShot) >= time.Duration(t.ReloadMS)*time.Millisecond
}

// CycleAmmo advances the selected ammo type: normal -> explosive ->
// armorPiercing -> normal.
func (t *Tank) CycleAmmo() {
	t.CurAmmo = (t.CurAmmo + 1) % ammoTypeCount
}

// Invincible reports whether the tank is still inside its spawn protection
// window.
func (t *Tank) Invincible(now time.Time) bool {
	return now.Before(t.SafeUntil)
}

// TakeHit applies the damage protocol for a single hit and returns true if
// the tank died from it. One armor segment fully absorbs a hit regardless of
// ammo type; armor-piercing shells carry a 1.5x multiplier which, given the
// full-block rule, only lands once armor is gone.
func (t *Tank) TakeHit(damage int, ammo AmmoType) bool {
	if t.Dead {
		return false
	}
	if t.Armor > 0 {
		t.Armor--
		return false
	}
	if ammo == AmmoArmorPiercing {
		damage = damage * 3 / 2
	}
	t.HP -= damage
	if t.HP <= 0 {
		t.HP = 0
		t.Dead = true
		return true
	}
	return false
}
