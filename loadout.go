package main

// Loadout holds the derived combat stats for one tank hull. The catalog is
// supplied by the economy service at deploy time; the values here mirror its
// defaults so the server can run standalone.
type Loadout struct {
	Name       string
	Speed      float64 // distance per movement impulse
	MaxHP      int
	Damage     int
	Recoil     float64 // displacement opposite the barrel per shot
	ReloadMS   int64   // minimum milliseconds between shots
}

const DefaultSkin = "tank"

// LoadoutCatalog maps skin id to hull stats.
var LoadoutCatalog = map[string]Loadout{
	"tank":  {Name: "M4 Sherman", Speed: 3, MaxHP: 100, Damage: 10, Recoil: 5, ReloadMS: 500},
	"tank1": {Name: "T-34 Legend", Speed: 3.5, MaxHP: 110, Damage: 12, Recoil: 5, ReloadMS: 450},
	"tank2": {Name: "M18 Hellcat", Speed: 5.5, MaxHP: 70, Damage: 8, Recoil: 3, ReloadMS: 150},
	"tank3": {Name: "Tiger I", Speed: 2, MaxHP: 200, Damage: 20, Recoil: 2, ReloadMS: 900},
	"tank4": {Name: "IS-2 Soviet", Speed: 3.5, MaxHP: 100, Damage: 45, Recoil: 45, ReloadMS: 1800},
	"tank5": {Name: "Maus Tank", Speed: 3, MaxHP: 300, Damage: 35, Recoil: 10, ReloadMS: 700},
}

// ResolveLoadout returns the stats for a skin, falling back to the default
// hull for unknown ids.
func ResolveLoadout(skin string) Loadout {
	if l, ok := LoadoutCatalog[skin]; ok {
		return l
	}
	return LoadoutCatalog[DefaultSkin]
}
