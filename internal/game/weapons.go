package game

import "sort"

// Weapon is a named firing preset.
type Weapon struct {
	ID                string  `json:"id" yaml:"id"`
	Name              string  `json:"name" yaml:"name"`
	FireRate          float64 `json:"fireRate" yaml:"fire_rate"` // seconds between shots
	MaxBulletsPerFire int     `json:"maxBulletsPerFire" yaml:"max_bullets_per_fire"`
	Damage            float64 `json:"damage" yaml:"damage"`
	BulletSpeed       float64 `json:"bulletSpeed" yaml:"bullet_speed"`
	BurstOnly         bool    `json:"burstOnly" yaml:"burst_only"`
	RearmOnFire       bool    `json:"rearmOnFire" yaml:"rearm_on_fire"`
	Color             string  `json:"color" yaml:"color"`
}

// DefaultWeaponID is returned for unknown ids.
const DefaultWeaponID = "pistol"

// Weapons is the built-in catalog.
var Weapons = map[string]Weapon{
	"pistol": {
		ID:                "pistol",
		Name:              "Pistol",
		FireRate:          0.1,
		MaxBulletsPerFire: 1,
		Damage:            1,
		BulletSpeed:       5,
		Color:             "#ffeb3b",
	},
	"revolver": {
		ID:                "revolver",
		Name:              "Revolver",
		FireRate:          0.1,
		MaxBulletsPerFire: 1,
		Damage:            3,
		BulletSpeed:       8,
		Color:             "#9e9e9e",
	},
	"carbine": {
		ID:                "carbine",
		Name:              "Burst Carbine",
		FireRate:          0.08,
		MaxBulletsPerFire: 3,
		Damage:            1,
		BulletSpeed:       12,
		BurstOnly:         true,
		Color:             "#2196f3",
	},
	"smg": {
		ID:                "smg",
		Name:              "SMG",
		FireRate:          0.06,
		MaxBulletsPerFire: 30,
		Damage:            0.5,
		BulletSpeed:       15,
		Color:             "#f44336",
	},
	"tapper": {
		ID:                "tapper",
		Name:              "Tapper",
		FireRate:          0.2,
		MaxBulletsPerFire: 1,
		Damage:            1,
		BulletSpeed:       6,
		RearmOnFire:       true,
		Color:             "#4caf50",
	},
}

// GetWeapon returns the preset for id, or the pistol for unknown ids.
func GetWeapon(id string) Weapon {
	if w, ok := Weapons[id]; ok {
		return w
	}
	return Weapons[DefaultWeaponID]
}

// GetAllWeapons returns every preset ordered by id.
func GetAllWeapons() []Weapon {
	result := make([]Weapon, 0, len(Weapons))
	for _, w := range Weapons {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Apply copies the preset's firing settings onto cfg, keeping muzzle and aim.
func (w Weapon) Apply(cfg WeaponConfig) WeaponConfig {
	cfg.FireRate = w.FireRate
	cfg.MaxBulletsPerFire = w.MaxBulletsPerFire
	cfg.Damage = w.Damage
	cfg.BulletSpeed = w.BulletSpeed
	cfg.BurstOnly = w.BurstOnly
	cfg.RearmOnFire = w.RearmOnFire
	return cfg
}
