// Package data loads static range tables from YAML.
package data

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"shooting-range/internal/game"
)

var (
	ErrUnknownShape  = errors.New("unknown shape")
	ErrDuplicateArea = errors.New("duplicate area name")
)

// ShapeEntry describes a box (center + size) or a sphere (center + radius).
type ShapeEntry struct {
	Shape  string    `yaml:"shape"` // "box" or "sphere"
	Center game.Vec3 `yaml:"center"`
	Size   game.Vec3 `yaml:"size"`
	Radius float64   `yaml:"radius"`
}

// AreaEntry is one spawn area row.
type AreaEntry struct {
	Name       string    `yaml:"name"`
	ShapeEntry `yaml:",inline"`
	Direction  game.Vec3 `yaml:"direction"`
	Forward    game.Vec3 `yaml:"forward"`
}

type areaFile struct {
	Areas      []AreaEntry  `yaml:"areas"`
	DeathZones []ShapeEntry `yaml:"death_zones"`
}

// AreaTable holds spawn areas in file order and the death zones.
type AreaTable struct {
	areas      []game.SpawnArea
	byName     map[string]int
	deathZones []game.Shape
}

// LoadSpawnAreas loads a spawn area file.
func LoadSpawnAreas(path string) (*AreaTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn areas: %w", err)
	}
	return ParseSpawnAreas(raw)
}

// ParseSpawnAreas builds a table from YAML bytes.
func ParseSpawnAreas(raw []byte) (*AreaTable, error) {
	var f areaFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse spawn areas: %w", err)
	}

	t := &AreaTable{
		areas:  make([]game.SpawnArea, 0, len(f.Areas)),
		byName: make(map[string]int, len(f.Areas)),
	}
	for i, e := range f.Areas {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("area-%d", i)
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("spawn area %q: %w", name, ErrDuplicateArea)
		}
		shape, err := e.ShapeEntry.build()
		if err != nil {
			return nil, fmt.Errorf("spawn area %q: %w", name, err)
		}
		t.byName[name] = len(t.areas)
		t.areas = append(t.areas, game.SpawnArea{
			Name:      name,
			Shape:     shape,
			Direction: e.Direction,
			Forward:   e.Forward,
		})
	}
	for i, e := range f.DeathZones {
		shape, err := e.build()
		if err != nil {
			return nil, fmt.Errorf("death zone %d: %w", i, err)
		}
		t.deathZones = append(t.deathZones, shape)
	}
	return t, nil
}

func (e ShapeEntry) build() (game.Shape, error) {
	switch e.Shape {
	case "box", "":
		if e.Size.X < 0 || e.Size.Y < 0 || e.Size.Z < 0 {
			return nil, fmt.Errorf("box size %v must not be negative", e.Size)
		}
		return game.Box{Center: e.Center, Size: e.Size}, nil
	case "sphere":
		if e.Radius <= 0 {
			return nil, fmt.Errorf("sphere radius %v must be positive", e.Radius)
		}
		return game.Sphere{Center: e.Center, Radius: e.Radius}, nil
	default:
		return nil, fmt.Errorf("%q: %w", e.Shape, ErrUnknownShape)
	}
}

// Areas returns the spawn areas in file order.
func (t *AreaTable) Areas() []game.SpawnArea { return t.areas }

// DeathZones returns the instant-kill volumes.
func (t *AreaTable) DeathZones() []game.Shape { return t.deathZones }

// Get returns the named area.
func (t *AreaTable) Get(name string) (game.SpawnArea, bool) {
	i, ok := t.byName[name]
	if !ok {
		return game.SpawnArea{}, false
	}
	return t.areas[i], true
}

// Count returns the number of spawn areas loaded.
func (t *AreaTable) Count() int {
	return len(t.areas)
}
