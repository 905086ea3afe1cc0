// Package view is a terminal client for a running range.
package view

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"shooting-range/internal/game"
)

// Controller is what the view drives.
type Controller interface {
	GetSnapshot() game.RangeSnapshot
	PullTrigger() bool
	ReleaseTrigger()
	ResetWeapon()
	StartSpawning() error
	StopSpawning()
	SpawnTarget(health int) (game.SpawnReport, error)
}

const hudRows = 2

var (
	styleHUD    = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleFloor  = tcell.StyleDefault.Foreground(tcell.ColorDarkSlateGray)
	styleBullet = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleHit    = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleBoom   = tcell.StyleDefault.Foreground(tcell.ColorOrange)
	styleMuzzle = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	styleHeld   = tcell.StyleDefault.Foreground(tcell.ColorRed).Reverse(true)
	styleError  = tcell.StyleDefault.Foreground(tcell.ColorRed)

	tierStyles = []tcell.Style{
		tcell.StyleDefault.Foreground(tcell.ColorGreen),
		tcell.StyleDefault.Foreground(tcell.ColorYellow),
		tcell.StyleDefault.Foreground(tcell.ColorOrange),
		tcell.StyleDefault.Foreground(tcell.ColorRed),
		tcell.StyleDefault.Foreground(tcell.ColorPurple),
	}
)

// View renders snapshots as characters and maps keys to range commands.
//
//	space  hold/release trigger
//	r      reset weapon
//	s      spawn a target (1-5 spawns with that health)
//	a      toggle the spawner
//	q, Esc quit
type View struct {
	screen tcell.Screen
	rng    Controller
	log    *zap.Logger

	held     bool
	spawning bool
	status   string
	statusAt time.Time
}

// New wraps an initialized screen.
func New(screen tcell.Screen, rng Controller, log *zap.Logger) *View {
	if log == nil {
		log = zap.NewNop()
	}
	return &View{screen: screen, rng: rng, log: log.Named("view")}
}

// Run redraws at fps until ctx ends or the user quits.
func (v *View) Run(ctx context.Context, fps int) {
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if !v.HandleEvent(ev) {
				return
			}
		case <-ticker.C:
			snap := v.rng.GetSnapshot()
			v.Draw(&snap)
		}
	}
}

// HandleEvent applies one input event. Returns false to quit.
func (v *View) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() != tcell.KeyRune {
			return true
		}
		switch r := ev.Rune(); {
		case r == 'q':
			return false
		case r == ' ':
			v.toggleTrigger()
		case r == 'r':
			v.rng.ResetWeapon()
			v.held = false
			v.setStatus("weapon reset")
		case r == 's':
			v.spawn(1)
		case r >= '1' && r <= '5':
			v.spawn(int(r - '0'))
		case r == 'a':
			v.toggleSpawner()
		}
	case *tcell.EventResize:
		v.screen.Sync()
	}
	return true
}

func (v *View) toggleTrigger() {
	if v.held {
		v.rng.ReleaseTrigger()
		v.held = false
		return
	}
	v.rng.PullTrigger()
	v.held = true
}

func (v *View) spawn(health int) {
	rep, err := v.rng.SpawnTarget(health)
	if err != nil {
		v.setStatus("spawn failed: " + err.Error())
		return
	}
	v.setStatus(fmt.Sprintf("spawned %s in %s", rep.Handle, rep.Area))
}

func (v *View) toggleSpawner() {
	if v.spawning {
		v.rng.StopSpawning()
		v.spawning = false
		v.setStatus("spawner stopped")
		return
	}
	if err := v.rng.StartSpawning(); err != nil {
		v.setStatus("spawner: " + err.Error())
		return
	}
	v.spawning = true
	v.setStatus("spawner started")
}

func (v *View) setStatus(s string) {
	v.status = s
	v.statusAt = time.Now()
	v.log.Debug(s)
}

// Draw paints snap onto the screen and shows it.
func (v *View) Draw(snap *game.RangeSnapshot) {
	v.screen.Clear()
	w, h := v.screen.Size()
	v.held = snap.Weapon.TriggerHeld
	v.spawning = snap.Spawning

	grid := newCellMap(snap.Bounds, w, h-hudRows)
	for y := 0; y < grid.rows; y++ {
		for x := 0; x < grid.cols; x++ {
			v.screen.SetContent(x, y+hudRows, '·', nil, styleFloor)
		}
	}

	for _, t := range snap.Targets {
		if !t.Visible {
			continue
		}
		if x, y, ok := grid.cell(t.Position); ok {
			v.screen.SetContent(x, y+hudRows, healthRune(t.Health), nil, tierStyle(t.Tier))
		}
	}
	for _, e := range snap.Effects {
		style, r := styleHit, '+'
		if e.Kind == game.EffectTargetDestroy.String() {
			style, r = styleBoom, '*'
		}
		if x, y, ok := grid.cell(e.Point); ok {
			v.screen.SetContent(x, y+hudRows, r, nil, style)
		}
	}
	for _, b := range snap.Bullets {
		if !b.Visible {
			continue
		}
		if x, y, ok := grid.cell(b.Position); ok {
			v.screen.SetContent(x, y+hudRows, '•', nil, styleBullet)
		}
	}
	if x, y, ok := grid.cell(snap.Weapon.Muzzle); ok {
		style := styleMuzzle
		if snap.Weapon.TriggerHeld {
			style = styleHeld
		}
		v.screen.SetContent(x, y+hudRows, '^', nil, style)
	}

	spawner := "off"
	if snap.Spawning {
		spawner = "on"
	}
	drawText(v.screen, 0, 0, styleHUD, fmt.Sprintf(
		"score %d  destroyed %d  weapon %s  bullets %d/%d  targets %d/%d  spawner %s",
		snap.Score, snap.Destroyed, snap.Weapon.State,
		snap.BulletPool.InUse, snap.BulletPool.Capacity,
		snap.TargetPool.InUse, snap.TargetPool.Capacity, spawner))
	if v.status != "" && time.Since(v.statusAt) < 3*time.Second {
		drawText(v.screen, 0, 1, styleError, v.status)
	}

	v.screen.Show()
}

// cellMap projects the range floor onto a character grid, far side up.
type cellMap struct {
	bounds     game.Box
	cols, rows int
}

func newCellMap(b game.Box, cols, rows int) cellMap {
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	return cellMap{bounds: b, cols: cols, rows: rows}
}

func (m cellMap) cell(p game.Vec3) (int, int, bool) {
	if m.cols == 0 || m.rows == 0 || m.bounds.Size.X <= 0 || m.bounds.Size.Z <= 0 {
		return 0, 0, false
	}
	minX := m.bounds.Center.X - m.bounds.Size.X/2
	maxZ := m.bounds.Center.Z + m.bounds.Size.Z/2
	fx := (p.X - minX) / m.bounds.Size.X
	fz := (maxZ - p.Z) / m.bounds.Size.Z
	if fx < 0 || fx > 1 || fz < 0 || fz > 1 {
		return 0, 0, false
	}
	x := int(math.Min(fx*float64(m.cols), float64(m.cols-1)))
	y := int(math.Min(fz*float64(m.rows), float64(m.rows-1)))
	return x, y, true
}

func healthRune(health float64) rune {
	n := int(math.Ceil(health))
	switch {
	case n <= 0:
		return 'x'
	case n > 9:
		return '+'
	}
	return rune('0' + n)
}

func tierStyle(tier int) tcell.Style {
	if tier < 0 {
		tier = 0
	}
	if tier >= len(tierStyles) {
		tier = len(tierStyles) - 1
	}
	return tierStyles[tier]
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	w, _ := s.Size()
	for _, r := range text {
		if x >= w {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
